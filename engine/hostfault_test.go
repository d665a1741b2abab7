package engine

import "testing"

func TestHostFaults(t *testing.T) {
	f := newHostFaults(wasmFaultBase)

	var a, b Exception
	f.raise(&a, CodeUnsupported, "first")
	f.raise(&b, CodeHostTrap, "second")

	if a == 0 || b == 0 || a == b {
		t.Fatalf("ids = %d, %d", a, b)
	}
	for _, e := range []Exception{a, b} {
		if !f.owns(e) {
			t.Fatalf("%d not owned", e)
		}
	}
	if f.owns(wasmFaultBase - 1) {
		t.Fatal("id below base should not be owned")
	}

	got, ok := f.get(a)
	if !ok || got.code != CodeUnsupported || got.msg != "first" {
		t.Fatalf("get = %+v, %v", got, ok)
	}

	f.delete(a)
	if _, ok := f.get(a); ok {
		t.Fatal("fault not deleted")
	}

	// A nil slot drops the fault.
	f.raise(nil, CodeHostTrap, "ignored")
	if len(f.m) != 1 {
		t.Fatalf("pending = %d, want 1", len(f.m))
	}
}

func TestHostFaults_Exhausted(t *testing.T) {
	f := newHostFaults(wasmFaultBase)
	var last Exception
	for i := 0; i < hostFaultSlots+10; i++ {
		f.raise(&last, CodeHostTrap, "x")
	}
	if len(f.m) != hostFaultSlots {
		t.Fatalf("pending = %d, want %d", len(f.m), hostFaultSlots)
	}
	if !f.owns(last) {
		t.Fatal("overflow id outside the range")
	}
}
