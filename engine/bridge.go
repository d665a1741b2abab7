package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/errors"
)

// Bridge makes fault-checked calls into a Library.
//
// Each call gets a fresh zeroed exception slot. When the slot comes back
// set, the bridge reads the message and code, deletes the native exception
// and returns an *errors.Error; the call's result is discarded. Calls are
// never retried.
type Bridge struct {
	lib Library
	log *zap.Logger
}

// NewBridge wraps lib. A nil logger uses the package logger.
func NewBridge(lib Library, log *zap.Logger) *Bridge {
	if log == nil {
		log = Logger()
	}
	return &Bridge{lib: lib, log: log}
}

// Library returns the wrapped library.
func (b *Bridge) Library() Library {
	return b.lib
}

// Close closes the wrapped library.
func (b *Bridge) Close(ctx context.Context) error {
	return b.lib.Close(ctx)
}

func call[T any](b *Bridge, op string, fn func(eh *Exception) T) (T, error) {
	var eh Exception
	r := fn(&eh)
	if eh != 0 {
		var zero T
		return zero, b.fault(op, eh)
	}
	return r, nil
}

func (b *Bridge) call0(op string, fn func(eh *Exception)) error {
	var eh Exception
	fn(&eh)
	if eh != 0 {
		return b.fault(op, eh)
	}
	return nil
}

func (b *Bridge) fault(op string, eh Exception) error {
	msg := b.lib.ExceptionMessage(eh)
	code := b.lib.ExceptionCode(eh)
	b.lib.DeleteException(eh)

	err := errors.Native(op, code, msg)
	err.Kind = KindForCode(code)

	b.log.Debug("native fault",
		zap.String("op", op),
		zap.Uint32("code", code),
		zap.String("kind", string(err.Kind)),
		zap.String("message", msg))
	return err
}

func (b *Bridge) Create() (Handle, error) {
	return call(b, SymContextCreate, b.lib.ContextCreate)
}

func (b *Bridge) Destroy(h Handle) error {
	return b.call0(SymContextDestroy, func(eh *Exception) { b.lib.ContextDestroy(h, eh) })
}

func (b *Bridge) GetByIndex(h Handle, index int) (Handle, error) {
	return call(b, SymGetByIndex, func(eh *Exception) Handle { return b.lib.GetByIndex(h, int32(index), eh) })
}

func (b *Bridge) GetByKey(h Handle, key string) (Handle, error) {
	return call(b, SymGetByKey, func(eh *Exception) Handle { return b.lib.GetByKey(h, key, eh) })
}

func (b *Bridge) GetOrInsertByKey(h Handle, key string) (Handle, error) {
	return call(b, SymGetOrInsertByKey, func(eh *Exception) Handle { return b.lib.GetOrInsertByKey(h, key, eh) })
}

// Copy replaces dst with a deep copy of src.
func (b *Bridge) Copy(src, dst Handle) error {
	return b.call0(SymCopy, func(eh *Exception) { b.lib.Copy(src, dst, eh) })
}

func (b *Bridge) Clone(h Handle) (Handle, error) {
	return call(b, SymClone, func(eh *Exception) Handle { return b.lib.Clone(h, eh) })
}

func (b *Bridge) Clear(h Handle) error {
	return b.call0(SymClear, func(eh *Exception) { b.lib.Clear(h, eh) })
}

func (b *Bridge) PutStr(h Handle, s string) error {
	return b.call0(SymPutStr, func(eh *Exception) { b.lib.PutStr(h, s, eh) })
}

func (b *Bridge) PutLong(h Handle, v int64) error {
	return b.call0(SymPutLong, func(eh *Exception) { b.lib.PutLong(h, v, eh) })
}

func (b *Bridge) PutUnsignedLong(h Handle, v uint64) error {
	return b.call0(SymPutUnsignedLong, func(eh *Exception) { b.lib.PutUnsignedLong(h, v, eh) })
}

func (b *Bridge) PutDouble(h Handle, v float64) error {
	return b.call0(SymPutDouble, func(eh *Exception) { b.lib.PutDouble(h, v, eh) })
}

func (b *Bridge) PutBool(h Handle, v bool) error {
	return b.call0(SymPutBool, func(eh *Exception) { b.lib.PutBool(h, v, eh) })
}

func (b *Bridge) PutDataPtr(h Handle, data []byte) error {
	return b.call0(SymPutDataPtr, func(eh *Exception) { b.lib.PutDataPtr(h, data, eh) })
}

// PushBack appends child to the array h. With copyChild set the child keeps its
// own state; otherwise its contents are moved.
func (b *Bridge) PushBack(h, child Handle, copyChild bool) error {
	return b.call0(SymPushBack, func(eh *Exception) { b.lib.PushBack(h, child, copyChild, eh) })
}

func (b *Bridge) GetLength(h Handle) (uint64, error) {
	return call(b, SymGetLength, func(eh *Exception) uint64 { return b.lib.GetLength(h, eh) })
}

// GetKeys queries the length first, then fetches exactly that many keys.
func (b *Bridge) GetKeys(h Handle) ([]string, error) {
	n, err := b.GetLength(h)
	if err != nil {
		return nil, err
	}
	return call(b, SymGetKeys, func(eh *Exception) []string { return b.lib.GetKeys(h, n, eh) })
}

func (b *Bridge) IsNone(h Handle) (bool, error) {
	return call(b, SymIsNone, func(eh *Exception) bool { return b.lib.IsNone(h, eh) })
}

func (b *Bridge) IsArray(h Handle) (bool, error) {
	return call(b, SymIsArray, func(eh *Exception) bool { return b.lib.IsArray(h, eh) })
}

func (b *Bridge) IsObject(h Handle) (bool, error) {
	return call(b, SymIsObject, func(eh *Exception) bool { return b.lib.IsObject(h, eh) })
}

func (b *Bridge) IsBool(h Handle) (bool, error) {
	return call(b, SymIsBool, func(eh *Exception) bool { return b.lib.IsBool(h, eh) })
}

func (b *Bridge) IsLong(h Handle) (bool, error) {
	return call(b, SymIsLong, func(eh *Exception) bool { return b.lib.IsLong(h, eh) })
}

func (b *Bridge) IsUnsignedLong(h Handle) (bool, error) {
	return call(b, SymIsUnsignedLong, func(eh *Exception) bool { return b.lib.IsUnsignedLong(h, eh) })
}

func (b *Bridge) IsDouble(h Handle) (bool, error) {
	return call(b, SymIsDouble, func(eh *Exception) bool { return b.lib.IsDouble(h, eh) })
}

func (b *Bridge) IsString(h Handle) (bool, error) {
	return call(b, SymIsString, func(eh *Exception) bool { return b.lib.IsString(h, eh) })
}

func (b *Bridge) IsDataPtr(h Handle) (bool, error) {
	return call(b, SymIsDataPtr, func(eh *Exception) bool { return b.lib.IsDataPtr(h, eh) })
}

func (b *Bridge) GetStr(h Handle) (string, error) {
	return call(b, SymGetStr, func(eh *Exception) string { return b.lib.GetStr(h, eh) })
}

func (b *Bridge) GetStrSize(h Handle) (uint64, error) {
	return call(b, SymGetStrSize, func(eh *Exception) uint64 { return b.lib.GetStrSize(h, eh) })
}

func (b *Bridge) GetLong(h Handle) (int64, error) {
	return call(b, SymGetLong, func(eh *Exception) int64 { return b.lib.GetLong(h, eh) })
}

func (b *Bridge) GetUnsignedLong(h Handle) (uint64, error) {
	return call(b, SymGetUnsignedLong, func(eh *Exception) uint64 { return b.lib.GetUnsignedLong(h, eh) })
}

func (b *Bridge) GetDouble(h Handle) (float64, error) {
	return call(b, SymGetDouble, func(eh *Exception) float64 { return b.lib.GetDouble(h, eh) })
}

func (b *Bridge) GetBool(h Handle) (bool, error) {
	return call(b, SymGetBool, func(eh *Exception) bool { return b.lib.GetBool(h, eh) })
}

func (b *Bridge) GetDataPtr(h Handle) ([]byte, error) {
	return call(b, SymGetDataPtr, func(eh *Exception) []byte { return b.lib.GetDataPtr(h, eh) })
}

func (b *Bridge) CreateProcessingBlock(config Handle) (Block, error) {
	return call(b, SymCreateProcessingBlock, func(eh *Exception) Block { return b.lib.CreateProcessingBlock(config, eh) })
}

func (b *Bridge) DestroyBlock(blk Block) error {
	return b.call0(SymDestroyBlock, func(eh *Exception) { b.lib.DestroyBlock(blk, eh) })
}

func (b *Bridge) ProcessContext(blk Block, h Handle) error {
	return b.call0(SymProcessContext, func(eh *Exception) { b.lib.ProcessContext(blk, h, eh) })
}
