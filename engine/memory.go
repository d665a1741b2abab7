package engine

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Memory represents guest linear memory.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
	ReadCString(offset uint32) (string, error)
	Size() uint32
}

// Allocator allocates guest linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// WazeroMemory wraps wazero memory to implement Memory.
type WazeroMemory struct {
	mem api.Memory
}

// Read returns a view of guest memory; callers copy what they keep.
func (m *WazeroMemory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(offset uint32, data []byte) error {
	ok := m.mem.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *WazeroMemory) ReadU32(offset uint32) (uint32, error) {
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d, length=4", offset)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU32(offset uint32, value uint32) error {
	ok := m.mem.WriteUint32Le(offset, value)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=4", offset)
	}
	return nil
}

// ReadCString reads a NUL-terminated string starting at offset.
func (m *WazeroMemory) ReadCString(offset uint32) (string, error) {
	size := m.Size()
	if offset >= size {
		return "", fmt.Errorf("read out of bounds: offset=%d, length=1", offset)
	}
	data, err := m.Read(offset, size-offset)
	if err != nil {
		return "", err
	}
	n := bytes.IndexByte(data, 0)
	if n < 0 {
		return "", fmt.Errorf("unterminated string at offset=%d", offset)
	}
	return string(data[:n]), nil
}

func (m *WazeroMemory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// guestAllocator calls the guest's malloc/free, or cabi_realloc when the
// module only exports the canonical allocator.
type guestAllocator struct {
	allocFn       api.Function
	freeFn        api.Function
	ctx           context.Context
	stackBuf      []uint64
	stackMutex    sync.Mutex
	isSimpleAlloc bool
}

func newGuestAllocator(ctx context.Context, mod api.Module) (*guestAllocator, error) {
	a := &guestAllocator{ctx: ctx, stackBuf: make([]uint64, 4)}
	if fn := mod.ExportedFunction("malloc"); fn != nil {
		a.allocFn = fn
		a.freeFn = mod.ExportedFunction("free")
		a.isSimpleAlloc = true
		return a, nil
	}
	if fn := mod.ExportedFunction("cabi_realloc"); fn != nil {
		a.allocFn = fn
		return a, nil
	}
	return nil, fmt.Errorf("module exports neither malloc nor cabi_realloc")
}

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	if a.isSimpleAlloc {
		a.stackBuf[0] = uint64(size)
		if err := a.allocFn.CallWithStack(a.ctx, a.stackBuf[:1]); err != nil {
			return 0, err
		}
	} else {
		a.stackBuf[0] = 0
		a.stackBuf[1] = 0
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = uint64(size)
		if err := a.allocFn.CallWithStack(a.ctx, a.stackBuf[:4]); err != nil {
			return 0, err
		}
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 && size > 0 {
		return 0, fmt.Errorf("guest allocation of %d bytes failed", size)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	a.stackMutex.Lock()
	defer a.stackMutex.Unlock()

	var err error
	if a.isSimpleAlloc {
		if a.freeFn == nil {
			return
		}
		a.stackBuf[0] = uint64(ptr)
		err = a.freeFn.CallWithStack(a.ctx, a.stackBuf[:1])
	} else {
		a.stackBuf[0] = uint64(ptr)
		a.stackBuf[1] = uint64(size)
		a.stackBuf[2] = uint64(align)
		a.stackBuf[3] = 0
		err = a.allocFn.CallWithStack(a.ctx, a.stackBuf[:4])
	}
	if err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// Compile-time interface checks.
var _ Memory = (*WazeroMemory)(nil)
var _ Allocator = (*guestAllocator)(nil)
