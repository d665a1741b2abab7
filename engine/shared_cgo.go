//go:build cgo && (linux || darwin)

package engine

/*
#cgo linux LDFLAGS: -ldl

#include <dlfcn.h>
#include <stdbool.h>
#include <stdlib.h>

static char tdv_host_faults[4096];

static void* tdv_fault_base(void) { return tdv_host_faults; }

static void* tdv_open(const char* path) { return dlopen(path, RTLD_NOW | RTLD_LOCAL); }
static const char* tdv_error(void) { return dlerror(); }
static void* tdv_sym(void* h, const char* name) { return dlsym(h, name); }
static int tdv_close(void* h) { return dlclose(h); }

typedef void* eh_t;

static void* call_p_e(void* fn, eh_t* eh) { return ((void* (*)(eh_t*))fn)(eh); }
static void call_v_pe(void* fn, void* a, eh_t* eh) { ((void (*)(void*, eh_t*))fn)(a, eh); }
static void* call_p_pe(void* fn, void* a, eh_t* eh) { return ((void* (*)(void*, eh_t*))fn)(a, eh); }
static void* call_p_pie(void* fn, void* a, int i, eh_t* eh) { return ((void* (*)(void*, int, eh_t*))fn)(a, i, eh); }
static void* call_p_pse(void* fn, void* a, const char* s, eh_t* eh) { return ((void* (*)(void*, const char*, eh_t*))fn)(a, s, eh); }
static void call_v_ppe(void* fn, void* a, void* b, eh_t* eh) { ((void (*)(void*, void*, eh_t*))fn)(a, b, eh); }
static void call_v_pse(void* fn, void* a, const char* s, eh_t* eh) { ((void (*)(void*, const char*, eh_t*))fn)(a, s, eh); }
static void call_v_ple(void* fn, void* a, long v, eh_t* eh) { ((void (*)(void*, long, eh_t*))fn)(a, v, eh); }
static void call_v_pule(void* fn, void* a, unsigned long v, eh_t* eh) { ((void (*)(void*, unsigned long, eh_t*))fn)(a, v, eh); }
static void call_v_pde(void* fn, void* a, double v, eh_t* eh) { ((void (*)(void*, double, eh_t*))fn)(a, v, eh); }
static void call_v_pbe(void* fn, void* a, bool v, eh_t* eh) { ((void (*)(void*, bool, eh_t*))fn)(a, v, eh); }
static void* call_p_pbue(void* fn, void* a, unsigned char* b, unsigned long n, eh_t* eh) {
	return ((void* (*)(void*, unsigned char*, unsigned long, eh_t*))fn)(a, b, n, eh);
}
static void call_v_ppbe(void* fn, void* a, void* b, bool c, eh_t* eh) { ((void (*)(void*, void*, bool, eh_t*))fn)(a, b, c, eh); }
static unsigned long call_ul_pe(void* fn, void* a, eh_t* eh) { return ((unsigned long (*)(void*, eh_t*))fn)(a, eh); }
static char** call_k_pue(void* fn, void* a, unsigned long n, eh_t* eh) { return ((char** (*)(void*, unsigned long, eh_t*))fn)(a, n, eh); }
static bool call_b_pe(void* fn, void* a, eh_t* eh) { return ((bool (*)(void*, eh_t*))fn)(a, eh); }
static const char* call_s_pce(void* fn, void* a, char* buf, eh_t* eh) { return ((const char* (*)(void*, char*, eh_t*))fn)(a, buf, eh); }
static long call_l_pe(void* fn, void* a, eh_t* eh) { return ((long (*)(void*, eh_t*))fn)(a, eh); }
static double call_d_pe(void* fn, void* a, eh_t* eh) { return ((double (*)(void*, eh_t*))fn)(a, eh); }
static void call_v_p(void* fn, void* p) { ((void (*)(void*))fn)(p); }
static const char* call_s_p(void* fn, void* p) { return ((const char* (*)(void*))fn)(p); }
static unsigned int call_u_p(void* fn, void* p) { return ((unsigned int (*)(void*))fn)(p); }
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/errors"
)

// Dlopen implements Library over the native shared library.
type Dlopen struct {
	handle unsafe.Pointer
	fns    map[string]unsafe.Pointer
	slot   *C.eh_t
	faults *hostFaults
	log    *zap.Logger
	path   string
	mu     sync.Mutex
	closed bool
}

// OpenShared loads the shared library at path and resolves every entry
// point. A missing required symbol fails the load.
func OpenShared(path string, log *zap.Logger) (Library, error) {
	if log == nil {
		log = Logger()
	}

	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	handle := C.tdv_open(cPath)
	if handle == nil {
		return nil, errors.LibraryLoad(path, fmt.Errorf("%s", C.GoString(C.tdv_error())))
	}

	d := &Dlopen{
		handle: handle,
		fns:    make(map[string]unsafe.Pointer, len(symbols)),
		faults: newHostFaults(Exception(uintptr(C.tdv_fault_base()))),
		log:    log,
		path:   path,
	}
	for _, sym := range symbols {
		cName := C.CString(sym)
		fn := C.tdv_sym(handle, cName)
		C.free(unsafe.Pointer(cName))
		if fn == nil {
			if optionalSymbols[sym] {
				continue
			}
			C.tdv_close(handle)
			return nil, errors.LibraryLoad(path, fmt.Errorf("missing symbol %s", sym))
		}
		d.fns[sym] = fn
	}
	d.slot = (*C.eh_t)(C.malloc(C.size_t(unsafe.Sizeof(uintptr(0)))))

	log.Debug("engine loaded", zap.String("engine", "dlopen"), zap.String("path", path))
	return d, nil
}

// enter locks the library and resets the exception slot. On false the
// fault is already in eh and the lock is released.
func (d *Dlopen) enter(sym string, eh *Exception) (unsafe.Pointer, bool) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.faults.raise(eh, CodeLibraryClosed, "library is closed")
		return nil, false
	}
	fn := d.fns[sym]
	if fn == nil {
		d.mu.Unlock()
		d.faults.raise(eh, CodeUnsupported, sym+" is not exported by "+d.path)
		return nil, false
	}
	*d.slot = nil
	return fn, true
}

// leave publishes a native exception into eh and unlocks. It reports
// whether the call succeeded.
func (d *Dlopen) leave(eh *Exception) bool {
	e := *d.slot
	d.mu.Unlock()
	if e == nil {
		return true
	}
	if eh != nil {
		*eh = Exception(uintptr(e))
	}
	return false
}

func (d *Dlopen) release(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if fn := d.fns[SymFreePtr]; fn != nil {
		C.call_v_p(fn, p)
		return
	}
	C.free(p)
}

// cptr returns the C heap address an engine handle carries. The memory
// belongs to the engine and is never tracked by the GC.
func cptr[T Handle | Block | Exception](h T) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&h))
}

func (d *Dlopen) ContextCreate(eh *Exception) Handle {
	fn, ok := d.enter(SymContextCreate, eh)
	if !ok {
		return 0
	}
	r := C.call_p_e(fn, d.slot)
	d.leave(eh)
	return Handle(uintptr(r))
}

func (d *Dlopen) void(sym string, h Handle, eh *Exception) {
	fn, ok := d.enter(sym, eh)
	if !ok {
		return
	}
	C.call_v_pe(fn, cptr(h), d.slot)
	d.leave(eh)
}

func (d *Dlopen) ContextDestroy(h Handle, eh *Exception) { d.void(SymContextDestroy, h, eh) }
func (d *Dlopen) Clear(h Handle, eh *Exception)          { d.void(SymClear, h, eh) }

func (d *Dlopen) GetByIndex(h Handle, index int32, eh *Exception) Handle {
	fn, ok := d.enter(SymGetByIndex, eh)
	if !ok {
		return 0
	}
	r := C.call_p_pie(fn, cptr(h), C.int(index), d.slot)
	d.leave(eh)
	return Handle(uintptr(r))
}

func (d *Dlopen) keyed(sym string, h Handle, key string, eh *Exception) Handle {
	cKey := C.CString(key)
	defer C.free(unsafe.Pointer(cKey))

	fn, ok := d.enter(sym, eh)
	if !ok {
		return 0
	}
	r := C.call_p_pse(fn, cptr(h), cKey, d.slot)
	d.leave(eh)
	return Handle(uintptr(r))
}

func (d *Dlopen) GetByKey(h Handle, key string, eh *Exception) Handle {
	return d.keyed(SymGetByKey, h, key, eh)
}

func (d *Dlopen) GetOrInsertByKey(h Handle, key string, eh *Exception) Handle {
	return d.keyed(SymGetOrInsertByKey, h, key, eh)
}

func (d *Dlopen) Copy(src, dst Handle, eh *Exception) {
	fn, ok := d.enter(SymCopy, eh)
	if !ok {
		return
	}
	C.call_v_ppe(fn, cptr(src), cptr(dst), d.slot)
	d.leave(eh)
}

func (d *Dlopen) handleOf(sym string, h Handle, eh *Exception) unsafe.Pointer {
	fn, ok := d.enter(sym, eh)
	if !ok {
		return nil
	}
	r := C.call_p_pe(fn, cptr(h), d.slot)
	if !d.leave(eh) {
		return nil
	}
	return r
}

func (d *Dlopen) Clone(h Handle, eh *Exception) Handle {
	return Handle(uintptr(d.handleOf(SymClone, h, eh)))
}

func (d *Dlopen) PutStr(h Handle, s string, eh *Exception) {
	cStr := C.CString(s)
	defer C.free(unsafe.Pointer(cStr))

	fn, ok := d.enter(SymPutStr, eh)
	if !ok {
		return
	}
	C.call_v_pse(fn, cptr(h), cStr, d.slot)
	d.leave(eh)
}

func (d *Dlopen) PutLong(h Handle, v int64, eh *Exception) {
	fn, ok := d.enter(SymPutLong, eh)
	if !ok {
		return
	}
	C.call_v_ple(fn, cptr(h), C.long(v), d.slot)
	d.leave(eh)
}

func (d *Dlopen) PutUnsignedLong(h Handle, v uint64, eh *Exception) {
	fn, ok := d.enter(SymPutUnsignedLong, eh)
	if !ok {
		return
	}
	C.call_v_pule(fn, cptr(h), C.ulong(v), d.slot)
	d.leave(eh)
}

func (d *Dlopen) PutDouble(h Handle, v float64, eh *Exception) {
	fn, ok := d.enter(SymPutDouble, eh)
	if !ok {
		return
	}
	C.call_v_pde(fn, cptr(h), C.double(v), d.slot)
	d.leave(eh)
}

func (d *Dlopen) PutBool(h Handle, v bool, eh *Exception) {
	fn, ok := d.enter(SymPutBool, eh)
	if !ok {
		return
	}
	C.call_v_pbe(fn, cptr(h), C.bool(v), d.slot)
	d.leave(eh)
}

func (d *Dlopen) PutDataPtr(h Handle, b []byte, eh *Exception) {
	var p unsafe.Pointer
	if len(b) > 0 {
		p = C.CBytes(b)
		defer C.free(p)
	}

	fn, ok := d.enter(SymPutDataPtr, eh)
	if !ok {
		return
	}
	C.call_p_pbue(fn, cptr(h), (*C.uchar)(p), C.ulong(len(b)), d.slot)
	d.leave(eh)
}

func (d *Dlopen) PushBack(h, child Handle, copyChild bool, eh *Exception) {
	fn, ok := d.enter(SymPushBack, eh)
	if !ok {
		return
	}
	C.call_v_ppbe(fn, cptr(h), cptr(child), C.bool(copyChild), d.slot)
	d.leave(eh)
}

func (d *Dlopen) ulong(sym string, h Handle, eh *Exception) uint64 {
	fn, ok := d.enter(sym, eh)
	if !ok {
		return 0
	}
	r := C.call_ul_pe(fn, cptr(h), d.slot)
	d.leave(eh)
	return uint64(r)
}

func (d *Dlopen) GetLength(h Handle, eh *Exception) uint64 { return d.ulong(SymGetLength, h, eh) }

func (d *Dlopen) GetKeys(h Handle, length uint64, eh *Exception) []string {
	fn, ok := d.enter(SymGetKeys, eh)
	if !ok {
		return nil
	}
	arr := C.call_k_pue(fn, cptr(h), C.ulong(length), d.slot)
	if !d.leave(eh) || arr == nil {
		return nil
	}
	defer d.release(unsafe.Pointer(arr))

	keys := make([]string, 0, length)
	for _, p := range unsafe.Slice(arr, length) {
		keys = append(keys, C.GoString(p))
		d.release(unsafe.Pointer(p))
	}
	return keys
}

func (d *Dlopen) pred(sym string, h Handle, eh *Exception) bool {
	fn, ok := d.enter(sym, eh)
	if !ok {
		return false
	}
	r := C.call_b_pe(fn, cptr(h), d.slot)
	d.leave(eh)
	return bool(r)
}

func (d *Dlopen) IsNone(h Handle, eh *Exception) bool    { return d.pred(SymIsNone, h, eh) }
func (d *Dlopen) IsArray(h Handle, eh *Exception) bool   { return d.pred(SymIsArray, h, eh) }
func (d *Dlopen) IsObject(h Handle, eh *Exception) bool  { return d.pred(SymIsObject, h, eh) }
func (d *Dlopen) IsBool(h Handle, eh *Exception) bool    { return d.pred(SymIsBool, h, eh) }
func (d *Dlopen) IsLong(h Handle, eh *Exception) bool    { return d.pred(SymIsLong, h, eh) }
func (d *Dlopen) IsDouble(h Handle, eh *Exception) bool  { return d.pred(SymIsDouble, h, eh) }
func (d *Dlopen) IsString(h Handle, eh *Exception) bool  { return d.pred(SymIsString, h, eh) }
func (d *Dlopen) IsDataPtr(h Handle, eh *Exception) bool { return d.pred(SymIsDataPtr, h, eh) }
func (d *Dlopen) GetBool(h Handle, eh *Exception) bool   { return d.pred(SymGetBool, h, eh) }

func (d *Dlopen) IsUnsignedLong(h Handle, eh *Exception) bool {
	if d.fns[SymIsUnsignedLong] == nil {
		return false
	}
	return d.pred(SymIsUnsignedLong, h, eh)
}

func (d *Dlopen) GetStr(h Handle, eh *Exception) string {
	var sizeFault Exception
	size := d.ulong(SymGetStrSize, h, &sizeFault)
	if sizeFault != 0 {
		if eh != nil {
			*eh = sizeFault
		}
		return ""
	}

	fn, ok := d.enter(SymGetStr, eh)
	if !ok {
		return ""
	}
	p := C.call_s_pce(fn, cptr(h), nil, d.slot)
	if !d.leave(eh) || p == nil {
		return ""
	}
	defer d.release(unsafe.Pointer(p))
	return C.GoStringN(p, C.int(size))
}

func (d *Dlopen) GetStrSize(h Handle, eh *Exception) uint64 { return d.ulong(SymGetStrSize, h, eh) }

func (d *Dlopen) GetLong(h Handle, eh *Exception) int64 {
	fn, ok := d.enter(SymGetLong, eh)
	if !ok {
		return 0
	}
	r := C.call_l_pe(fn, cptr(h), d.slot)
	d.leave(eh)
	return int64(r)
}

func (d *Dlopen) GetUnsignedLong(h Handle, eh *Exception) uint64 {
	return d.ulong(SymGetUnsignedLong, h, eh)
}

func (d *Dlopen) GetDouble(h Handle, eh *Exception) float64 {
	fn, ok := d.enter(SymGetDouble, eh)
	if !ok {
		return 0
	}
	r := C.call_d_pe(fn, cptr(h), d.slot)
	d.leave(eh)
	return float64(r)
}

func (d *Dlopen) GetDataPtr(h Handle, eh *Exception) []byte {
	p := d.handleOf(SymGetDataPtr, h, eh)
	if p == nil {
		return nil
	}
	var sizeFault Exception
	size := d.ulong(SymGetDataSize, h, &sizeFault)
	if sizeFault != 0 {
		if eh != nil {
			*eh = sizeFault
		}
		return nil
	}
	return C.GoBytes(p, C.int(size))
}

func (d *Dlopen) CreateProcessingBlock(config Handle, eh *Exception) Block {
	return Block(uintptr(d.handleOf(SymCreateProcessingBlock, config, eh)))
}

func (d *Dlopen) DestroyBlock(b Block, eh *Exception) { d.void(SymDestroyBlock, Handle(b), eh) }

func (d *Dlopen) ProcessContext(b Block, h Handle, eh *Exception) {
	fn, ok := d.enter(SymProcessContext, eh)
	if !ok {
		return
	}
	C.call_v_ppe(fn, cptr(b), cptr(h), d.slot)
	d.leave(eh)
}

func (d *Dlopen) ExceptionMessage(e Exception) string {
	if d.faults.owns(e) {
		f, _ := d.faults.get(e)
		return f.msg
	}
	return C.GoString(C.call_s_p(d.fns[SymExceptionGetMessage], cptr(e)))
}

func (d *Dlopen) ExceptionCode(e Exception) uint32 {
	if d.faults.owns(e) {
		f, _ := d.faults.get(e)
		return f.code
	}
	return uint32(C.call_u_p(d.fns[SymExceptionGetErrorCode], cptr(e)))
}

func (d *Dlopen) DeleteException(e Exception) {
	if d.faults.owns(e) {
		d.faults.delete(e)
		return
	}
	C.call_v_p(d.fns[SymExceptionDelete], cptr(e))
}

// Close unloads the library. Handles still held by callers become invalid.
func (d *Dlopen) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	C.free(unsafe.Pointer(d.slot))
	if C.tdv_close(d.handle) != 0 {
		return errors.Wrap(errors.PhaseLoad, errors.KindLibraryLoad,
			fmt.Errorf("%s", C.GoString(C.tdv_error())), "dlclose "+d.path)
	}
	d.log.Debug("engine closed", zap.String("engine", "dlopen"), zap.String("path", d.path))
	return nil
}

var _ Library = (*Dlopen)(nil)
