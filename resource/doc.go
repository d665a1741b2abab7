// Package resource provides handle tables for SDK-owned objects.
//
// The in-process engine keeps every context, view, processing block and
// pending exception in a Table and hands out Handles in place of pointers.
// The runtime uses a second Table to track the owning contexts and blocks a
// Service has created, so anything the caller forgot to close can be
// released when the Service shuts down.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	h, err := table.Insert(kindContext, value)
//	value, ok := table.Get(h)
//	value, ok = table.Remove(h)
//
// Handles carry a generation, so a handle kept after Remove never resolves
// to a later value that reuses the same slot.
//
// # Kinds
//
// Every entry is tagged with a Kind. GetTyped and the generic Typed view
// only resolve handles inserted with the expected kind:
//
//	blocks := resource.NewTyped[*Block](table, kindBlock)
//	b, ok := blocks.Get(h)
//
// # Observers
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %d", e.Type, e.Handle)
//	}))
//
// # Memory Management
//
// Values are not garbage collected. Close returns whatever is still live so
// the owner can release it.
package resource
