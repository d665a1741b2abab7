package resource

import (
	"sync"
	"testing"
)

func TestSlab_Reuse(t *testing.T) {
	s := NewSlab()

	var handles []Handle
	for i := 0; i < 10; i++ {
		h, err := s.Put(1, i)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		handles = append(handles, h)
	}

	for _, h := range handles[:5] {
		if _, _, ok := s.Take(h); !ok {
			t.Fatalf("Take(%d) failed", h)
		}
	}
	if s.Len() != 5 {
		t.Fatalf("Len = %d, want 5", s.Len())
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Put(1, i); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if len(s.slots) != 10 {
		t.Fatalf("slots = %d, want 10 (free list not reused)", len(s.slots))
	}
}

func TestSlab_EachOrder(t *testing.T) {
	s := NewSlab()
	s.Put(1, "a")
	hb, _ := s.Put(2, "b")
	s.Put(1, "c")
	s.Take(hb)

	var got []any
	s.Each(func(_ Handle, _ Kind, v any) bool {
		got = append(got, v)
		return true
	})
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Each = %v", got)
	}

	var first []any
	s.Each(func(_ Handle, _ Kind, v any) bool {
		first = append(first, v)
		return false
	})
	if len(first) != 1 {
		t.Fatalf("early stop visited %d", len(first))
	}
}

func TestSlab_Concurrent(t *testing.T) {
	s := NewSlab()
	var wg sync.WaitGroup

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h, err := s.Put(1, i)
				if err != nil {
					t.Errorf("Put: %v", err)
					return
				}
				if _, _, ok := s.Get(h); !ok {
					t.Errorf("Get(%d) failed", h)
				}
				s.Take(h)
			}
		}()
	}
	wg.Wait()

	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0", s.Len())
	}
}
