package runtime

import (
	"github.com/wippyai/facesdk/data"
)

// Kind is the type of value a context node holds.
type Kind = data.Kind

const (
	KindNone         = data.KindNone
	KindBool         = data.KindBool
	KindLong         = data.KindLong
	KindUnsignedLong = data.KindUnsignedLong
	KindDouble       = data.KindDouble
	KindString       = data.KindString
	KindDataPtr      = data.KindDataPtr
	KindArray        = data.KindArray
	KindObject       = data.KindObject
)

// Scalar is a single non-container value. Only the field selected by Kind
// is meaningful.
type Scalar struct {
	String       string
	Bytes        []byte
	Long         int64
	UnsignedLong uint64
	Double       float64
	Kind         Kind
	Bool         bool
}

func None() Scalar                      { return Scalar{Kind: KindNone} }
func BoolValue(b bool) Scalar           { return Scalar{Kind: KindBool, Bool: b} }
func LongValue(v int64) Scalar          { return Scalar{Kind: KindLong, Long: v} }
func UnsignedLongValue(v uint64) Scalar { return Scalar{Kind: KindUnsignedLong, UnsignedLong: v} }
func DoubleValue(v float64) Scalar      { return Scalar{Kind: KindDouble, Double: v} }
func StringValue(s string) Scalar       { return Scalar{Kind: KindString, String: s} }
func BytesValue(b []byte) Scalar        { return Scalar{Kind: KindDataPtr, Bytes: b} }

// Value returns the payload as a plain Go value, nil for None.
func (s Scalar) Value() any {
	switch s.Kind {
	case KindBool:
		return s.Bool
	case KindLong:
		return s.Long
	case KindUnsignedLong:
		return s.UnsignedLong
	case KindDouble:
		return s.Double
	case KindString:
		return s.String
	case KindDataPtr:
		return s.Bytes
	}
	return nil
}

func (s Scalar) valid() bool {
	return s.Kind <= KindDataPtr
}
