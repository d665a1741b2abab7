package engine

import (
	"context"
)

// Handle is an opaque native context pointer.
type Handle uintptr

// Block is an opaque native processing block pointer.
type Block uintptr

// Exception is the out slot every entry point takes. It is zero on entry
// and non-zero after a call that faulted.
type Exception uintptr

// Library is the fixed entry point surface of the inference engine.
//
// Every method mirrors one exported C symbol and takes the trailing
// exception slot. Implementations never return Go errors from entry
// points; faults are reported through eh and read back with the
// Exception* methods, exactly as a C caller would.
type Library interface {
	ContextCreate(eh *Exception) Handle
	ContextDestroy(h Handle, eh *Exception)

	GetByIndex(h Handle, index int32, eh *Exception) Handle
	GetByKey(h Handle, key string, eh *Exception) Handle
	GetOrInsertByKey(h Handle, key string, eh *Exception) Handle

	Copy(src, dst Handle, eh *Exception)
	Clone(h Handle, eh *Exception) Handle
	Clear(h Handle, eh *Exception)

	PutStr(h Handle, s string, eh *Exception)
	PutLong(h Handle, v int64, eh *Exception)
	PutUnsignedLong(h Handle, v uint64, eh *Exception)
	PutDouble(h Handle, v float64, eh *Exception)
	PutBool(h Handle, v bool, eh *Exception)
	PutDataPtr(h Handle, b []byte, eh *Exception)
	PushBack(h, child Handle, copyChild bool, eh *Exception)

	GetLength(h Handle, eh *Exception) uint64
	GetKeys(h Handle, length uint64, eh *Exception) []string

	IsNone(h Handle, eh *Exception) bool
	IsArray(h Handle, eh *Exception) bool
	IsObject(h Handle, eh *Exception) bool
	IsBool(h Handle, eh *Exception) bool
	IsLong(h Handle, eh *Exception) bool
	IsUnsignedLong(h Handle, eh *Exception) bool
	IsDouble(h Handle, eh *Exception) bool
	IsString(h Handle, eh *Exception) bool
	IsDataPtr(h Handle, eh *Exception) bool

	GetStr(h Handle, eh *Exception) string
	GetStrSize(h Handle, eh *Exception) uint64
	GetLong(h Handle, eh *Exception) int64
	GetUnsignedLong(h Handle, eh *Exception) uint64
	GetDouble(h Handle, eh *Exception) float64
	GetBool(h Handle, eh *Exception) bool
	GetDataPtr(h Handle, eh *Exception) []byte

	CreateProcessingBlock(config Handle, eh *Exception) Block
	DestroyBlock(b Block, eh *Exception)
	ProcessContext(b Block, h Handle, eh *Exception)

	ExceptionMessage(e Exception) string
	ExceptionCode(e Exception) uint32
	DeleteException(e Exception)

	Close(ctx context.Context) error
}

// Exported symbol names.
const (
	SymContextCreate         = "TDVContext_create"
	SymContextDestroy        = "TDVContext_destroy"
	SymGetByIndex            = "TDVContext_getByIndex"
	SymGetByKey              = "TDVContext_getByKey"
	SymGetOrInsertByKey      = "TDVContext_getOrInsertByKey"
	SymCopy                  = "TDVContext_copy"
	SymClone                 = "TDVContext_clone"
	SymClear                 = "TDVContext_clear"
	SymPutStr                = "TDVContext_putStr"
	SymPutLong               = "TDVContext_putLong"
	SymPutUnsignedLong       = "TDVContext_putUnsignedLong"
	SymPutDouble             = "TDVContext_putDouble"
	SymPutBool               = "TDVContext_putBool"
	SymPutDataPtr            = "TDVContext_putDataPtr"
	SymPushBack              = "TDVContext_pushBack"
	SymGetLength             = "TDVContext_getLength"
	SymGetKeys               = "TDVContext_getKeys"
	SymIsNone                = "TDVContext_isNone"
	SymIsArray               = "TDVContext_isArray"
	SymIsObject              = "TDVContext_isObject"
	SymIsBool                = "TDVContext_isBool"
	SymIsLong                = "TDVContext_isLong"
	SymIsUnsignedLong        = "TDVContext_isUnsignedLong"
	SymIsDouble              = "TDVContext_isDouble"
	SymIsString              = "TDVContext_isString"
	SymIsDataPtr             = "TDVContext_isDataPtr"
	SymGetStr                = "TDVContext_getStr"
	SymGetStrSize            = "TDVContext_getStrSize"
	SymFreePtr               = "TDVContext_freePtr"
	SymGetLong               = "TDVContext_getLong"
	SymGetUnsignedLong       = "TDVContext_getUnsignedLong"
	SymGetDouble             = "TDVContext_getDouble"
	SymGetBool               = "TDVContext_getBool"
	SymGetDataPtr            = "TDVContext_getDataPtr"
	SymGetDataSize           = "TDVContext_getDataSize"
	SymCreateProcessingBlock = "TDVProcessingBlock_createProcessingBlock"
	SymDestroyBlock          = "TDVProcessingBlock_destroyBlock"
	SymProcessContext        = "TDVProcessingBlock_processContext"
	SymExceptionGetMessage   = "TDVException_getMessage"
	SymExceptionGetErrorCode = "TDVException_getErrorCode"
	SymExceptionDelete       = "TDVException_deleteException"
)

// optionalSymbols may be absent from older builds of the engine.
// Calls through a missing optional symbol fault with CodeUnsupported,
// except isUnsignedLong which then reports false.
var optionalSymbols = map[string]bool{
	SymPutUnsignedLong: true,
	SymIsUnsignedLong:  true,
	SymGetUnsignedLong: true,
	SymGetDataSize:     true,
}

// symbols lists every entry point a foreign engine is resolved against.
var symbols = []string{
	SymContextCreate, SymContextDestroy,
	SymGetByIndex, SymGetByKey, SymGetOrInsertByKey,
	SymCopy, SymClone, SymClear,
	SymPutStr, SymPutLong, SymPutUnsignedLong, SymPutDouble, SymPutBool, SymPutDataPtr,
	SymPushBack, SymGetLength, SymGetKeys,
	SymIsNone, SymIsArray, SymIsObject, SymIsBool, SymIsLong, SymIsUnsignedLong,
	SymIsDouble, SymIsString, SymIsDataPtr,
	SymGetStr, SymGetStrSize, SymFreePtr,
	SymGetLong, SymGetUnsignedLong, SymGetDouble, SymGetBool, SymGetDataPtr, SymGetDataSize,
	SymCreateProcessingBlock, SymDestroyBlock, SymProcessContext,
	SymExceptionGetMessage, SymExceptionGetErrorCode, SymExceptionDelete,
}
