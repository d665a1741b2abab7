package engine

import (
	"github.com/wippyai/facesdk/errors"
)

// Fault codes reported by the engine, one per entry point.
const (
	CodeContextCreate    uint32 = 0x56234801
	CodeContextDestroy   uint32 = 0x2dc17586
	CodeClone            uint32 = 0xf52416f4
	CodeCopy             uint32 = 0x06e0b1ce
	CodeClear            uint32 = 0x06e0b1ce
	CodeGetByIndex       uint32 = 0x6ba98764
	CodeGetOrInsertByKey uint32 = 0xcb1ec66f
	CodeGetByKey         uint32 = 0xb2a4ab43
	CodePutStr           uint32 = 0xaa600d43
	CodePutLong          uint32 = 0x88df0572
	CodePutDouble        uint32 = 0x75a049e2
	CodePutBool          uint32 = 0xccc7e754
	CodePutDataPtr       uint32 = 0x4c551e44
	CodePushBack         uint32 = 0x6b8d124a
	CodeGetLength        uint32 = 0xd45f61aa
	CodeGetKeys          uint32 = 0xd48f61aa
	CodeGetKeysLength    uint32 = 0xdada331a
	CodeIsNone           uint32 = 0x96fac41a
	CodeIsArray          uint32 = 0x96fac41b
	CodeIsObject         uint32 = 0x96fac41c
	CodeIsBool           uint32 = 0x96fac42c
	CodeIsLong           uint32 = 0x96fac43c
	CodeIsUnsignedLong   uint32 = 0x96fac43d
	CodeIsDouble         uint32 = 0x96fac44c
	CodeIsString         uint32 = 0x96fac45c
	CodeIsDataPtr        uint32 = 0x96fac46c
	CodeAllocDataPtr     uint32 = 0x4655ae44
	CodeGetStr           uint32 = 0x9097d24a
	CodeGetStrSize       uint32 = 0x8fc91369
	CodeGetLong          uint32 = 0x2353ead7
	CodeGetUnsignedLong  uint32 = 0x2353ead8
	CodeGetDouble        uint32 = 0xd4fbd56c
	CodeGetBool          uint32 = 0xfe8d07c6
	CodeGetDataPtr       uint32 = 0x51228370
	CodeCreateBlock      uint32 = 0x10d504a0
	CodeDestroyBlock     uint32 = 0xfa7b73ff
	CodeProcessContext   uint32 = 0x9398017a
	CodeWrongContextType uint32 = 0xa341de35
	CodePutUnsignedLong  uint32 = 0x88df0573
	CodeGetDataSize      uint32 = 0x51228371
	CodeUnsupported      uint32 = 0xfffffff1 // optional symbol not exported
	CodeHostTrap         uint32 = 0xfffffff2 // guest trap or failed foreign call
	CodeHostMemory       uint32 = 0xfffffff3 // guest allocation or memory access failed
	CodeLibraryClosed    uint32 = 0xfffffff4
)

var codeKinds = map[uint32]errors.Kind{
	CodeGetByIndex:       errors.KindOutOfBounds,
	CodeGetOrInsertByKey: errors.KindKeyTypeMismatch,
	CodeGetKeys:          errors.KindKeyTypeMismatch,
	CodeGetKeysLength:    errors.KindOutOfBounds,
	CodePutStr:           errors.KindTypeMismatch,
	CodePutLong:          errors.KindTypeMismatch,
	CodePutUnsignedLong:  errors.KindTypeMismatch,
	CodePutDouble:        errors.KindTypeMismatch,
	CodePutBool:          errors.KindTypeMismatch,
	CodePutDataPtr:       errors.KindTypeMismatch,
	CodePushBack:         errors.KindTypeMismatch,
	CodeGetStr:           errors.KindTypeMismatch,
	CodeGetStrSize:       errors.KindTypeMismatch,
	CodeGetLong:          errors.KindTypeMismatch,
	CodeGetUnsignedLong:  errors.KindTypeMismatch,
	CodeGetDouble:        errors.KindTypeMismatch,
	CodeGetBool:          errors.KindTypeMismatch,
	CodeGetDataPtr:       errors.KindTypeMismatch,
	CodeGetDataSize:      errors.KindTypeMismatch,
	CodeWrongContextType: errors.KindInvalidInput,
	CodeUnsupported:      errors.KindUnsupported,
	CodeLibraryClosed:    errors.KindClosed,
}

// KindForCode maps an engine fault code to an error kind.
// Codes without a more specific meaning are native faults.
func KindForCode(code uint32) errors.Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return errors.KindNativeFault
}
