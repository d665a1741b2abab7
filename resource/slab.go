package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed = errors.New("resource table closed")
	ErrFull   = errors.New("resource table full")
)

// Slab is the storage behind a Table: a slice of slots with a free list.
type Slab struct {
	slots  []slot
	free   []uint32
	live   int
	mu     sync.RWMutex
	closed bool
}

type slot struct {
	value any
	kind  Kind
	gen   uint8
	live  bool
}

// NewSlab creates an empty slab.
func NewSlab() *Slab {
	return &Slab{
		slots: make([]slot, 0, 64),
		free:  make([]uint32, 0, 16),
	}
}

// Put stores a value and returns its handle.
func (s *Slab) Put(kind Kind, value any) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		sl := &s.slots[idx]
		sl.value, sl.kind, sl.live = value, kind, true
		s.live++
		return makeHandle(idx, sl.gen), nil
	}

	if len(s.slots) >= indexMask {
		return 0, ErrFull
	}
	s.slots = append(s.slots, slot{value: value, kind: kind, live: true})
	s.live++
	return makeHandle(uint32(len(s.slots)-1), 0), nil
}

// Get retrieves a value and its kind by handle.
func (s *Slab) Get(h Handle) (any, Kind, bool) {
	if h == 0 {
		return nil, 0, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sl, ok := s.lookup(h)
	if !ok {
		return nil, 0, false
	}
	return sl.value, sl.kind, true
}

// Take removes a value and returns it.
func (s *Slab) Take(h Handle) (any, Kind, bool) {
	if h == 0 {
		return nil, 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.lookup(h)
	if !ok {
		return nil, 0, false
	}
	value, kind := sl.value, sl.kind
	sl.value = nil
	sl.live = false
	sl.gen++
	s.live--
	s.free = append(s.free, h.index())
	return value, kind, true
}

func (s *Slab) lookup(h Handle) (*slot, bool) {
	idx := h.index()
	if int(idx) >= len(s.slots) {
		return nil, false
	}
	sl := &s.slots[idx]
	if !sl.live || sl.gen != h.gen() {
		return nil, false
	}
	return sl, true
}

// Len returns the number of live values.
func (s *Slab) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live
}

// Each calls fn for every live value in slot order until fn returns false.
// fn runs without the slab lock held.
func (s *Slab) Each(fn func(Handle, Kind, any) bool) {
	type item struct {
		h Handle
		k Kind
		v any
	}

	s.mu.RLock()
	items := make([]item, 0, s.live)
	for i := range s.slots {
		if sl := &s.slots[i]; sl.live {
			items = append(items, item{makeHandle(uint32(i), sl.gen), sl.kind, sl.value})
		}
	}
	s.mu.RUnlock()

	for _, it := range items {
		if !fn(it.h, it.k, it.v) {
			return
		}
	}
}

// Close stops accepting values and returns whatever was still live.
func (s *Slab) Close() []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var leaked []any
	for i := range s.slots {
		if s.slots[i].live {
			leaked = append(leaked, s.slots[i].value)
		}
	}
	s.slots = nil
	s.free = nil
	s.live = 0
	return leaked
}
