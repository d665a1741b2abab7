// Package runtime is the host-side API of the face SDK.
//
// # Quick Start
//
//	ctx := context.Background()
//	svc, err := runtime.New(ctx, runtime.WithSDKPath("/opt/face_sdk"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close(ctx)
//
//	detector, err := svc.CreateProcessingBlock(ctx, map[string]any{
//	    "unit_type": "FACE_DETECTOR",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer detector.Close()
//
//	io, err := svc.CreateContext(map[string]any{"image": image})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer io.Close()
//
//	if err := detector.Process(io); err != nil {
//	    log.Fatal(err)
//	}
//	objects, _ := io.Get("objects")
//
// # Contexts and Refs
//
// A *Context owns a native tree and must be closed. Get, GetOrInsert and
// Index return a Ref, a weak view with no Close. A Ref fails with
// stale_reference once its tree is closed or changed structurally through
// another node: PushBack, Clear, CopyFrom, Set on a container, or
// processing.
//
// Values are typed (see Kind). Value resolves a scalar by checking none,
// bool, string, long, unsigned long, double and data pointer in that
// order; ToLiteral converts a whole subtree to plain Go values.
//
// # Processing Blocks
//
// A block is called two ways:
//
//	detector.Process(io)        // in place on a context tree
//	detector.ProcessMap(m)      // on a map; only new top-level keys come back
//
// Call accepts either form and rejects anything else with the engine's
// wrong context type code.
//
// # Engines
//
// New loads the platform library from the SDK layout unless a library path
// or an engine.Library is given. A path ending in .wasm runs under wazero.
// For tests and model-free units use engine.NewLocal:
//
//	svc, err := runtime.New(ctx, runtime.WithLibrary(engine.NewLocal()))
package runtime
