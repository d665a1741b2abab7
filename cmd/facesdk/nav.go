package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/facesdk/runtime"
)

// treeNode is the accessor surface shared by *runtime.Context and
// runtime.Ref.
type treeNode interface {
	runtime.Node
	Kind() (runtime.Kind, error)
	Value() (any, error)
	Len() (int, error)
	Keys() ([]string, error)
	Get(key string) (runtime.Ref, error)
	GetOrInsert(key string) (runtime.Ref, error)
	Index(i int) (runtime.Ref, error)
	Set(lit any) error
	PushBack(child runtime.Node) error
	Clear() error
	ToLiteral() (any, error)
}

// splitPath splits a dotted path. "" and "." name the root.
func splitPath(p string) []string {
	p = strings.Trim(strings.TrimSpace(p), ".")
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

func joinPath(path []string) string {
	if len(path) == 0 {
		return "."
	}
	return strings.Join(path, ".")
}

// resolve walks path from root. Numeric elements index arrays; everything
// else is an object key. With create set, missing keys are inserted.
func resolve(root treeNode, path []string, create bool) (treeNode, error) {
	cur := root
	for _, elem := range path {
		kind, err := cur.Kind()
		if err != nil {
			return nil, err
		}
		if kind == runtime.KindArray {
			i, err := strconv.Atoi(elem)
			if err != nil {
				return nil, fmt.Errorf("%q is not an array index", elem)
			}
			if cur, err = cur.Index(i); err != nil {
				return nil, err
			}
			continue
		}
		if create {
			cur, err = cur.GetOrInsert(elem)
		} else {
			cur, err = cur.Get(elem)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// entry is one child of a container, rendered for listings.
type entry struct {
	name      string
	kind      runtime.Kind
	preview   string
	container bool
}

func children(n treeNode) ([]entry, error) {
	kind, err := n.Kind()
	if err != nil {
		return nil, err
	}
	var names []string
	switch kind {
	case runtime.KindObject:
		if names, err = n.Keys(); err != nil {
			return nil, err
		}
	case runtime.KindArray:
		size, err := n.Len()
		if err != nil {
			return nil, err
		}
		for i := 0; i < size; i++ {
			names = append(names, strconv.Itoa(i))
		}
	default:
		return nil, nil
	}

	out := make([]entry, 0, len(names))
	for _, name := range names {
		child, err := resolve(n, []string{name}, false)
		if err != nil {
			return nil, err
		}
		e, err := describe(name, child)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func describe(name string, n treeNode) (entry, error) {
	kind, err := n.Kind()
	if err != nil {
		return entry{}, err
	}
	e := entry{name: name, kind: kind, container: kind.Container()}
	if e.container {
		size, err := n.Len()
		if err != nil {
			return entry{}, err
		}
		if kind == runtime.KindArray {
			e.preview = fmt.Sprintf("[%d]", size)
		} else {
			e.preview = fmt.Sprintf("{%d}", size)
		}
		return e, nil
	}
	v, err := n.Value()
	if err != nil {
		return entry{}, err
	}
	e.preview = summary(v)
	return e, nil
}
