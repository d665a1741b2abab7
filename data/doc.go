// Package data holds the engine-side model of a context: a tree of tagged
// values. The in-process engine stores one Value tree per root context and
// hands processing units a *Value to read inputs from and write results to.
package data
