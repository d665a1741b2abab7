package engine

import (
	"sync"
)

const hostFaultSlots = 4096

// hostFaults holds exceptions raised on the Go side of a foreign engine,
// such as a missing optional symbol or a guest trap. Ids are drawn from
// [base, base+hostFaultSlots), a range the engine never uses for its own
// exception pointers.
type hostFaults struct {
	m    map[Exception]hostFault
	base Exception
	next Exception
	mu   sync.Mutex
}

type hostFault struct {
	msg  string
	code uint32
}

func newHostFaults(base Exception) *hostFaults {
	return &hostFaults{
		m:    make(map[Exception]hostFault),
		base: base,
	}
}

func (f *hostFaults) raise(eh *Exception, code uint32, msg string) {
	if eh == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := 0; i < hostFaultSlots; i++ {
		id := f.base + f.next
		f.next = (f.next + 1) % hostFaultSlots
		if _, used := f.m[id]; !used {
			f.m[id] = hostFault{msg: msg, code: code}
			*eh = id
			return
		}
	}
	// Every slot is pending; overwrite the oldest rather than drop the fault.
	id := f.base + f.next
	f.m[id] = hostFault{msg: msg, code: code}
	*eh = id
}

func (f *hostFaults) owns(e Exception) bool {
	return e >= f.base && e < f.base+hostFaultSlots
}

func (f *hostFaults) get(e Exception) (hostFault, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.m[e]
	return h, ok
}

func (f *hostFaults) delete(e Exception) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, e)
}
