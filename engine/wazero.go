package engine

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/facesdk/errors"
)

const (
	// maxGuestPages keeps guest memory below wasmFaultBase so host fault
	// ids can never alias a guest exception pointer.
	maxGuestPages = 65535

	wasmFaultBase Exception = 0xffff0000
)

// Config holds configuration for loading a foreign engine build. Fields
// other than Logger only apply to WebAssembly builds.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 and values
	// above 65535 mean 65535.
	MemoryLimitPages uint32

	Stdout io.Writer
	Stderr io.Writer

	// Mounts maps host directories to guest paths, typically the SDK
	// root so units can read their models.
	Mounts map[string]string
	Env    map[string]string

	Logger *zap.Logger
}

// Wazero implements Library over a wasm32 build of the engine running in
// wazero. Handles, blocks and exceptions are guest pointers. Strings and
// blobs are marshalled through guest memory allocated with the module's
// own allocator.
type Wazero struct {
	ctx     context.Context
	runtime wazero.Runtime
	module  api.Module
	memory  *WazeroMemory
	alloc   *guestAllocator
	fns     map[string]api.Function
	faults  *hostFaults
	log     *zap.Logger
	name    string
	slot    uint32
	mu      sync.Mutex
	closed  bool
}

// OpenWazero loads the module at path.
func OpenWazero(ctx context.Context, path string, cfg *Config) (*Wazero, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LibraryLoad(path, err)
	}
	return newWazero(ctx, path, wasmBytes, cfg)
}

// NewWazero loads a module from memory.
func NewWazero(ctx context.Context, wasmBytes []byte, cfg *Config) (*Wazero, error) {
	return newWazero(ctx, "<memory>", wasmBytes, cfg)
}

func newWazero(ctx context.Context, name string, wasmBytes []byte, cfg *Config) (*Wazero, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	pages := cfg.MemoryLimitPages
	if pages == 0 || pages > maxGuestPages {
		pages = maxGuestPages
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(pages))
	w := &Wazero{
		ctx:     ctx,
		runtime: r,
		fns:     make(map[string]api.Function, len(symbols)),
		faults:  newHostFaults(wasmFaultBase),
		log:     log,
		name:    name,
	}
	if err := w.init(ctx, wasmBytes, cfg); err != nil {
		r.Close(ctx)
		return nil, errors.LibraryLoad(name, err)
	}

	log.Debug("engine loaded",
		zap.String("engine", "wazero"),
		zap.String("module", name),
		zap.Uint32("memory_bytes", w.memory.Size()))
	return w, nil
}

func (w *Wazero) init(ctx context.Context, wasmBytes []byte, cfg *Config) error {
	if err := instantiateWASI(ctx, w.runtime); err != nil {
		return fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := w.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("compile failed: %w", err)
	}

	mc := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	if cfg.Stdout != nil {
		mc = mc.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mc = mc.WithStderr(cfg.Stderr)
	}
	if len(cfg.Mounts) > 0 {
		fs := wazero.NewFSConfig()
		for host, guest := range cfg.Mounts {
			fs = fs.WithDirMount(host, guest)
		}
		mc = mc.WithFSConfig(fs)
	}
	for k, v := range cfg.Env {
		mc = mc.WithEnv(k, v)
	}

	mod, err := w.runtime.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return fmt.Errorf("instantiate failed: %w", err)
	}
	w.module = mod

	if initFn := mod.ExportedFunction("_initialize"); initFn != nil {
		if _, err := initFn.Call(ctx); err != nil {
			return fmt.Errorf("_initialize: %w", err)
		}
	}

	// Memory() wraps a nil instance in a non-nil interface; the export
	// lookup does not.
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		return fmt.Errorf("module exports no memory")
	}
	w.memory = &WazeroMemory{mem: mem}

	for _, sym := range symbols {
		fn := mod.ExportedFunction(sym)
		if fn == nil {
			if optionalSymbols[sym] {
				continue
			}
			return fmt.Errorf("missing export %s", sym)
		}
		w.fns[sym] = fn
	}

	if w.alloc, err = newGuestAllocator(ctx, mod); err != nil {
		return err
	}
	if w.slot, err = w.alloc.Alloc(4, 4); err != nil {
		return fmt.Errorf("allocate exception slot: %w", err)
	}
	return nil
}

// instantiateWASI registers WASI preview1 under its canonical module name.
func instantiateWASI(ctx context.Context, r wazero.Runtime) error {
	if r.Module(wasi_snapshot_preview1.ModuleName) != nil {
		return nil
	}
	builder := r.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	_, err := builder.Instantiate(ctx)
	return err
}

// Memory exposes guest linear memory.
func (w *Wazero) Memory() Memory {
	return w.memory
}

// invoke calls sym with the exception slot appended. It reports false when
// the guest or the host raised a fault into eh.
func (w *Wazero) invoke(sym string, eh *Exception, args ...uint64) (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.faults.raise(eh, CodeLibraryClosed, "library is closed")
		return 0, false
	}
	fn := w.fns[sym]
	if fn == nil {
		w.faults.raise(eh, CodeUnsupported, sym+" is not exported by "+w.name)
		return 0, false
	}
	if err := w.memory.WriteU32(w.slot, 0); err != nil {
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return 0, false
	}

	res, err := fn.Call(w.ctx, append(args, uint64(w.slot))...)
	if err != nil {
		w.faults.raise(eh, CodeHostTrap, fmt.Sprintf("%s: %v", sym, err))
		return 0, false
	}

	e, err := w.memory.ReadU32(w.slot)
	if err != nil {
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return 0, false
	}
	if e != 0 {
		if eh != nil {
			*eh = Exception(e)
		}
		return 0, false
	}
	if len(res) == 0 {
		return 0, true
	}
	return res[0], true
}

// raw calls an entry point that takes no exception slot.
func (w *Wazero) raw(sym string, args ...uint64) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("library is closed")
	}
	fn := w.fns[sym]
	if fn == nil {
		return 0, fmt.Errorf("%s is not exported", sym)
	}
	res, err := fn.Call(w.ctx, args...)
	if err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

func (w *Wazero) wide(sym string, param int) bool {
	fn := w.fns[sym]
	if fn == nil {
		return true
	}
	types := fn.Definition().ParamTypes()
	return param < len(types) && types[param] == api.ValueTypeI64
}

func (w *Wazero) wideResult(sym string) bool {
	fn := w.fns[sym]
	if fn == nil {
		return true
	}
	types := fn.Definition().ResultTypes()
	return len(types) > 0 && types[0] == api.ValueTypeI64
}

// long encodes a C long argument at the width the module was built with.
func (w *Wazero) long(sym string, param int, v int64, code uint32, eh *Exception) (uint64, bool) {
	if w.wide(sym, param) {
		return api.EncodeI64(v), true
	}
	if v < math.MinInt32 || v > math.MaxInt32 {
		w.faults.raise(eh, code, fmt.Sprintf("value %d does not fit a 32-bit long", v))
		return 0, false
	}
	return api.EncodeI32(int32(v)), true
}

func (w *Wazero) ulong(sym string, param int, v uint64, code uint32, eh *Exception) (uint64, bool) {
	if w.wide(sym, param) {
		return v, true
	}
	if v > math.MaxUint32 {
		w.faults.raise(eh, code, fmt.Sprintf("value %d does not fit a 32-bit unsigned long", v))
		return 0, false
	}
	return uint64(uint32(v)), true
}

func (w *Wazero) resultLong(sym string, r uint64) int64 {
	if w.wideResult(sym) {
		return int64(r)
	}
	return int64(int32(uint32(r)))
}

func (w *Wazero) resultULong(sym string, r uint64) uint64 {
	if w.wideResult(sym) {
		return r
	}
	return uint64(uint32(r))
}

// cstring copies s into guest memory with a terminating NUL.
func (w *Wazero) cstring(s string, eh *Exception) (uint32, bool) {
	ptr, err := w.alloc.Alloc(uint32(len(s)+1), 1)
	if err != nil {
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return 0, false
	}
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	if err := w.memory.Write(ptr, buf); err != nil {
		w.alloc.Free(ptr, uint32(len(buf)), 1)
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return 0, false
	}
	return ptr, true
}

// release frees memory the engine allocated and handed to the caller.
func (w *Wazero) release(ptr uint32) {
	if ptr == 0 {
		return
	}
	if _, ok := w.fns[SymFreePtr]; ok {
		if _, err := w.raw(SymFreePtr, uint64(ptr)); err != nil {
			w.log.Warn("freePtr failed", zap.Uint32("ptr", ptr), zap.Error(err))
		}
		return
	}
	w.alloc.Free(ptr, 0, 1)
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func (w *Wazero) ContextCreate(eh *Exception) Handle {
	r, _ := w.invoke(SymContextCreate, eh)
	return Handle(uint32(r))
}

func (w *Wazero) ContextDestroy(h Handle, eh *Exception) {
	w.invoke(SymContextDestroy, eh, uint64(h))
}

func (w *Wazero) GetByIndex(h Handle, index int32, eh *Exception) Handle {
	r, _ := w.invoke(SymGetByIndex, eh, uint64(h), api.EncodeI32(index))
	return Handle(uint32(r))
}

func (w *Wazero) keyed(sym string, h Handle, key string, eh *Exception) Handle {
	k, ok := w.cstring(key, eh)
	if !ok {
		return 0
	}
	defer w.alloc.Free(k, uint32(len(key)+1), 1)
	r, _ := w.invoke(sym, eh, uint64(h), uint64(k))
	return Handle(uint32(r))
}

func (w *Wazero) GetByKey(h Handle, key string, eh *Exception) Handle {
	return w.keyed(SymGetByKey, h, key, eh)
}

func (w *Wazero) GetOrInsertByKey(h Handle, key string, eh *Exception) Handle {
	return w.keyed(SymGetOrInsertByKey, h, key, eh)
}

func (w *Wazero) Copy(src, dst Handle, eh *Exception) {
	w.invoke(SymCopy, eh, uint64(src), uint64(dst))
}

func (w *Wazero) Clone(h Handle, eh *Exception) Handle {
	r, _ := w.invoke(SymClone, eh, uint64(h))
	return Handle(uint32(r))
}

func (w *Wazero) Clear(h Handle, eh *Exception) {
	w.invoke(SymClear, eh, uint64(h))
}

func (w *Wazero) PutStr(h Handle, s string, eh *Exception) {
	p, ok := w.cstring(s, eh)
	if !ok {
		return
	}
	defer w.alloc.Free(p, uint32(len(s)+1), 1)
	w.invoke(SymPutStr, eh, uint64(h), uint64(p))
}

func (w *Wazero) PutLong(h Handle, v int64, eh *Exception) {
	arg, ok := w.long(SymPutLong, 1, v, CodePutLong, eh)
	if !ok {
		return
	}
	w.invoke(SymPutLong, eh, uint64(h), arg)
}

func (w *Wazero) PutUnsignedLong(h Handle, v uint64, eh *Exception) {
	arg, ok := w.ulong(SymPutUnsignedLong, 1, v, CodePutUnsignedLong, eh)
	if !ok {
		return
	}
	w.invoke(SymPutUnsignedLong, eh, uint64(h), arg)
}

func (w *Wazero) PutDouble(h Handle, v float64, eh *Exception) {
	w.invoke(SymPutDouble, eh, uint64(h), api.EncodeF64(v))
}

func (w *Wazero) PutBool(h Handle, v bool, eh *Exception) {
	w.invoke(SymPutBool, eh, uint64(h), b2u(v))
}

func (w *Wazero) PutDataPtr(h Handle, b []byte, eh *Exception) {
	size, ok := w.ulong(SymPutDataPtr, 2, uint64(len(b)), CodePutDataPtr, eh)
	if !ok {
		return
	}
	var p uint32
	if len(b) > 0 {
		var err error
		if p, err = w.alloc.Alloc(uint32(len(b)), 1); err != nil {
			w.faults.raise(eh, CodeHostMemory, err.Error())
			return
		}
		defer w.alloc.Free(p, uint32(len(b)), 1)
		if err := w.memory.Write(p, b); err != nil {
			w.faults.raise(eh, CodeHostMemory, err.Error())
			return
		}
	}
	w.invoke(SymPutDataPtr, eh, uint64(h), uint64(p), size)
}

func (w *Wazero) PushBack(h, child Handle, copyChild bool, eh *Exception) {
	w.invoke(SymPushBack, eh, uint64(h), uint64(child), b2u(copyChild))
}

func (w *Wazero) GetLength(h Handle, eh *Exception) uint64 {
	r, _ := w.invoke(SymGetLength, eh, uint64(h))
	return w.resultULong(SymGetLength, r)
}

func (w *Wazero) GetKeys(h Handle, length uint64, eh *Exception) []string {
	n, ok := w.ulong(SymGetKeys, 1, length, CodeGetKeys, eh)
	if !ok {
		return nil
	}
	arr, ok := w.invoke(SymGetKeys, eh, uint64(h), n)
	if !ok || arr == 0 {
		return nil
	}
	base := uint32(arr)
	defer w.release(base)

	keys := make([]string, 0, length)
	for i := uint32(0); i < uint32(length); i++ {
		p, err := w.memory.ReadU32(base + 4*i)
		if err != nil {
			w.faults.raise(eh, CodeHostMemory, err.Error())
			return nil
		}
		s, err := w.memory.ReadCString(p)
		w.release(p)
		if err != nil {
			w.faults.raise(eh, CodeHostMemory, err.Error())
			return nil
		}
		keys = append(keys, s)
	}
	return keys
}

func (w *Wazero) pred(sym string, h Handle, eh *Exception) bool {
	r, _ := w.invoke(sym, eh, uint64(h))
	return r&0xff != 0
}

func (w *Wazero) IsNone(h Handle, eh *Exception) bool   { return w.pred(SymIsNone, h, eh) }
func (w *Wazero) IsArray(h Handle, eh *Exception) bool  { return w.pred(SymIsArray, h, eh) }
func (w *Wazero) IsObject(h Handle, eh *Exception) bool { return w.pred(SymIsObject, h, eh) }
func (w *Wazero) IsBool(h Handle, eh *Exception) bool   { return w.pred(SymIsBool, h, eh) }
func (w *Wazero) IsLong(h Handle, eh *Exception) bool   { return w.pred(SymIsLong, h, eh) }
func (w *Wazero) IsDouble(h Handle, eh *Exception) bool { return w.pred(SymIsDouble, h, eh) }
func (w *Wazero) IsString(h Handle, eh *Exception) bool { return w.pred(SymIsString, h, eh) }

func (w *Wazero) IsDataPtr(h Handle, eh *Exception) bool {
	return w.pred(SymIsDataPtr, h, eh)
}

func (w *Wazero) IsUnsignedLong(h Handle, eh *Exception) bool {
	if _, ok := w.fns[SymIsUnsignedLong]; !ok {
		return false
	}
	return w.pred(SymIsUnsignedLong, h, eh)
}

func (w *Wazero) GetStr(h Handle, eh *Exception) string {
	size := w.GetStrSize(h, eh)
	if eh != nil && *eh != 0 {
		return ""
	}
	r, ok := w.invoke(SymGetStr, eh, uint64(h), 0)
	if !ok {
		return ""
	}
	p := uint32(r)
	defer w.release(p)

	b, err := w.memory.Read(p, uint32(size))
	if err != nil {
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return ""
	}
	return string(b)
}

func (w *Wazero) GetStrSize(h Handle, eh *Exception) uint64 {
	r, _ := w.invoke(SymGetStrSize, eh, uint64(h))
	return w.resultULong(SymGetStrSize, r)
}

func (w *Wazero) GetLong(h Handle, eh *Exception) int64 {
	r, _ := w.invoke(SymGetLong, eh, uint64(h))
	return w.resultLong(SymGetLong, r)
}

func (w *Wazero) GetUnsignedLong(h Handle, eh *Exception) uint64 {
	r, _ := w.invoke(SymGetUnsignedLong, eh, uint64(h))
	return w.resultULong(SymGetUnsignedLong, r)
}

func (w *Wazero) GetDouble(h Handle, eh *Exception) float64 {
	r, _ := w.invoke(SymGetDouble, eh, uint64(h))
	return api.DecodeF64(r)
}

func (w *Wazero) GetBool(h Handle, eh *Exception) bool {
	r, _ := w.invoke(SymGetBool, eh, uint64(h))
	return r&0xff != 0
}

func (w *Wazero) GetDataPtr(h Handle, eh *Exception) []byte {
	r, ok := w.invoke(SymGetDataPtr, eh, uint64(h))
	if !ok || r == 0 {
		return nil
	}
	n, ok := w.invoke(SymGetDataSize, eh, uint64(h))
	if !ok {
		return nil
	}
	size := w.resultULong(SymGetDataSize, n)
	b, err := w.memory.Read(uint32(r), uint32(size))
	if err != nil {
		w.faults.raise(eh, CodeHostMemory, err.Error())
		return nil
	}
	return append([]byte(nil), b...)
}

func (w *Wazero) CreateProcessingBlock(config Handle, eh *Exception) Block {
	r, _ := w.invoke(SymCreateProcessingBlock, eh, uint64(config))
	return Block(uint32(r))
}

func (w *Wazero) DestroyBlock(b Block, eh *Exception) {
	w.invoke(SymDestroyBlock, eh, uint64(b))
}

func (w *Wazero) ProcessContext(b Block, h Handle, eh *Exception) {
	w.invoke(SymProcessContext, eh, uint64(b), uint64(h))
}

func (w *Wazero) ExceptionMessage(e Exception) string {
	if w.faults.owns(e) {
		f, _ := w.faults.get(e)
		return f.msg
	}
	r, err := w.raw(SymExceptionGetMessage, uint64(e))
	if err != nil {
		return err.Error()
	}
	s, err := w.memory.ReadCString(uint32(r))
	if err != nil {
		return err.Error()
	}
	return s
}

func (w *Wazero) ExceptionCode(e Exception) uint32 {
	if w.faults.owns(e) {
		f, _ := w.faults.get(e)
		return f.code
	}
	r, err := w.raw(SymExceptionGetErrorCode, uint64(e))
	if err != nil {
		return CodeHostTrap
	}
	return uint32(r)
}

func (w *Wazero) DeleteException(e Exception) {
	if w.faults.owns(e) {
		w.faults.delete(e)
		return
	}
	if _, err := w.raw(SymExceptionDelete, uint64(e)); err != nil {
		w.log.Warn("deleteException failed", zap.Uintptr("exception", uintptr(e)), zap.Error(err))
	}
}

// Close tears down the runtime. Handles still held by callers become
// invalid and further calls fault with CodeLibraryClosed.
func (w *Wazero) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.log.Debug("engine closed", zap.String("engine", "wazero"), zap.String("module", w.name))
	return w.runtime.Close(ctx)
}

var _ Library = (*Wazero)(nil)
