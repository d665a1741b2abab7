// Package facesdk is a Go host for the open source face SDK engine.
//
// The engine exchanges all data as trees of tagged values (contexts) and
// runs processing blocks over them: detectors, estimators, fitters and
// matchers selected by unit type. This module loads the engine, marshals
// Go values in and out of contexts, and manages the lifetime of every
// native object it creates.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	facesdk/             Root package (documentation only)
//	├── runtime/         High-level API: Service, Context, Ref, ProcessingBlock
//	├── engine/          Engine ABI, exception channel and the engine loaders
//	├── data/            Tagged value tree used by the in-process engine
//	├── artifact/        Model file manifest and download providers
//	├── resource/        Handle table implementation
//	├── errors/          Structured error types for debugging
//	└── cmd/facesdk/     Command line runner, tree printer, shell and TUI
//
// # Quick Start
//
// Run the template matcher on the in-process engine:
//
//	svc, err := runtime.New(ctx, runtime.WithLibrary(engine.NewLocal()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	matcher, err := svc.CreateProcessingBlock(ctx, map[string]any{
//	    "unit_type": engine.UnitMatcher,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer matcher.Close()
//
//	m := map[string]any{"verification": map[string]any{"objects": pair}}
//	if err := matcher.Call(m); err != nil {
//	    log.Fatal(err)
//	}
//
// # Engines
//
// engine.Library is the engine's C ABI as a Go interface. Three
// implementations exist:
//
//   - engine.Dlopen loads the shared library build (cgo, linux and darwin)
//   - engine.Wazero runs a WebAssembly build under wazero with WASI preview1
//   - engine.Local implements the engine in Go, with pluggable units
//
// runtime.New picks the platform library under the SDK root unless a
// path or an engine is given.
//
// # Ownership
//
// A *runtime.Context owns its native tree and must be closed. A
// runtime.Ref is a weak view into a tree: it is invalidated when the tree
// is closed or structurally changed through another node, and every
// accessor then fails with a stale_reference error instead of touching
// freed memory. Closing a Service releases whatever is still open and logs
// each leak.
//
// # Thread Safety
//
// A Service and everything it creates must be used by a single goroutine,
// or access must be synchronized. The in-process engine and the wazero
// engine serialize their own calls.
package facesdk
