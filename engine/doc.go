// Package engine binds the host to the native inference engine.
//
// The engine exposes a fixed C entry point surface: TDVContext_* for the
// tagged-value tree, TDVProcessingBlock_* for processing units and
// TDVException_* for reading back faults. Library mirrors that surface one
// method per symbol, each taking the trailing exception out slot exactly as
// a C caller would.
//
// # Implementations
//
//	Local   - in-process engine over data.Value trees; units are Go values
//	Wazero  - a wasm32 build of the engine running under wazero
//	Dlopen  - the native shared library, loaded with dlopen (cgo only)
//
// Open picks Wazero or Dlopen from the file extension.
//
// # Faults
//
// Entry points never return Go errors. A faulting call sets the exception
// slot; Bridge turns that into an *errors.Error carrying the native code and
// message, deletes the native exception and discards the call's result:
//
//	b := engine.NewBridge(lib, logger)
//	h, err := b.Create()
//	_, err = b.GetByIndex(h, 0) // errors.Is(err, errors.ErrIndexOutOfRange)
//
// Faults raised on the Go side of a foreign engine (a missing optional
// symbol, a guest trap, a closed library) use ids from a range the engine
// never allocates, so Bridge handles them the same way.
//
// # Fault codes
//
// Codes are the engine's own, one per entry point. KindForCode maps the
// ones that identify a specific failure (index out of range, wrong value
// type, wrong key type) to an error kind; the rest are native_fault.
package engine
