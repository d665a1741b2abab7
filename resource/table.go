package resource

import (
	"sync"
)

// Table maps handles to values with kind tagging and observer support.
type Table struct {
	slab      *Slab
	observers []Observer
	obsMu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{slab: NewSlab()}
}

// Insert adds a value and returns its handle.
func (t *Table) Insert(kind Kind, value any) (Handle, error) {
	h, err := t.slab.Put(kind, value)
	if err != nil {
		return 0, err
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		Kind:   kind,
		Value:  value,
	})

	return h, nil
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	v, _, ok := t.slab.Get(h)
	return v, ok
}

// GetTyped retrieves a value only if it was inserted with the given kind.
func (t *Table) GetTyped(h Handle, kind Kind) (any, bool) {
	v, k, ok := t.slab.Get(h)
	if !ok || k != kind {
		return nil, false
	}
	return v, true
}

// KindOf reports the kind a live handle was inserted with.
func (t *Table) KindOf(h Handle) (Kind, bool) {
	_, k, ok := t.slab.Get(h)
	return k, ok
}

// Remove drops a value and returns (value, true) if it was live.
// Values implementing Dropper have Drop called.
func (t *Table) Remove(h Handle) (any, bool) {
	value, kind, ok := t.slab.Take(h)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: h,
		Kind:   kind,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live values.
func (t *Table) Len() int {
	return t.slab.Len()
}

// Each iterates over live values until fn returns false.
func (t *Table) Each(fn func(Handle, Kind, any) bool) {
	t.slab.Each(fn)
}

// Clear removes every live value.
func (t *Table) Clear() {
	var handles []Handle
	t.slab.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close stops accepting values and returns the ones still live.
// Leaked values are not dropped; the caller decides how to release them.
func (t *Table) Close() []any {
	return t.slab.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// Typed is a view of a Table restricted to one kind.
type Typed[T any] struct {
	table *Table
	kind  Kind
}

// NewTyped creates a typed view over table for kind.
func NewTyped[T any](table *Table, kind Kind) Typed[T] {
	return Typed[T]{table: table, kind: kind}
}

// Insert adds a value and returns its handle.
func (t Typed[T]) Insert(value T) (Handle, error) {
	return t.table.Insert(t.kind, value)
}

// Get retrieves a value by handle.
func (t Typed[T]) Get(h Handle) (T, bool) {
	v, ok := t.table.GetTyped(h, t.kind)
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Remove drops a value if it belongs to this view.
func (t Typed[T]) Remove(h Handle) (T, bool) {
	var zero T
	if _, ok := t.table.GetTyped(h, t.kind); !ok {
		return zero, false
	}
	v, ok := t.table.Remove(h)
	if !ok {
		return zero, false
	}
	return v.(T), true
}

// Each iterates over values of this view's kind.
func (t Typed[T]) Each(fn func(Handle, T) bool) {
	t.table.Each(func(h Handle, k Kind, v any) bool {
		if k != t.kind {
			return true
		}
		return fn(h, v.(T))
	})
}
