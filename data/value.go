package data

import (
	"sort"
	"strconv"
)

// Kind is the discriminant of a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindBool
	KindLong
	KindUnsignedLong
	KindDouble
	KindString
	KindDataPtr
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNone:         "none",
	KindBool:         "bool",
	KindLong:         "long",
	KindUnsignedLong: "unsigned_long",
	KindDouble:       "double",
	KindString:       "string",
	KindDataPtr:      "data_ptr",
	KindArray:        "array",
	KindObject:       "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Container reports whether values of this kind hold children.
func (k Kind) Container() bool {
	return k == KindArray || k == KindObject
}

// Value is a node of the tagged value tree held on the engine side.
//
// A Value has exactly one kind at a time. Scalar setters overwrite the kind
// and drop any children. None is promoted to Array by the first Append and
// to Object by the first Insert; no other implicit conversion happens.
//
// Object keys are kept sorted, so Keys and Walk are deterministic.
type Value struct {
	kind   Kind
	b      bool
	i      int64
	u      uint64
	f      float64
	s      string
	blob   []byte
	items  []*Value
	keys   []string
	fields map[string]*Value
}

// New returns a None value.
func New() *Value {
	return &Value{}
}

// Kind returns the current discriminant.
func (v *Value) Kind() Kind {
	return v.kind
}

func (v *Value) reset(k Kind) {
	*v = Value{kind: k}
}

// promote moves a None value to container kind k.
// It reports false if v already holds a different kind.
func (v *Value) promote(k Kind) bool {
	switch v.kind {
	case k:
		return true
	case KindNone:
		v.kind = k
		if k == KindObject {
			v.fields = make(map[string]*Value)
		}
		return true
	}
	return false
}

func (v *Value) SetNone() { v.reset(KindNone) }

func (v *Value) SetBool(b bool) {
	v.reset(KindBool)
	v.b = b
}

func (v *Value) SetLong(i int64) {
	v.reset(KindLong)
	v.i = i
}

func (v *Value) SetUnsignedLong(u uint64) {
	v.reset(KindUnsignedLong)
	v.u = u
}

func (v *Value) SetDouble(f float64) {
	v.reset(KindDouble)
	v.f = f
}

func (v *Value) SetString(s string) {
	v.reset(KindString)
	v.s = s
}

// SetBytes stores a copy of b.
func (v *Value) SetBytes(b []byte) {
	v.reset(KindDataPtr)
	v.blob = append(make([]byte, 0, len(b)), b...)
}

func (v *Value) Bool() (bool, bool)           { return v.b, v.kind == KindBool }
func (v *Value) Long() (int64, bool)          { return v.i, v.kind == KindLong }
func (v *Value) UnsignedLong() (uint64, bool) { return v.u, v.kind == KindUnsignedLong }
func (v *Value) Double() (float64, bool)      { return v.f, v.kind == KindDouble }
func (v *Value) Str() (string, bool)          { return v.s, v.kind == KindString }

// Bytes returns the blob without copying.
func (v *Value) Bytes() ([]byte, bool) { return v.blob, v.kind == KindDataPtr }

// Number widens any numeric kind to float64.
func (v *Value) Number() (float64, bool) { return v.number() }

// Items returns the array elements without copying.
func (v *Value) Items() []*Value {
	if v.kind != KindArray {
		return nil
	}
	return v.items
}

// number widens any numeric kind to float64.
func (v *Value) number() (float64, bool) {
	switch v.kind {
	case KindLong:
		return float64(v.i), true
	case KindUnsignedLong:
		return float64(v.u), true
	case KindDouble:
		return v.f, true
	}
	return 0, false
}

// Insert returns the child under key, creating a None child if absent.
// It reports false if v is neither None nor Object.
func (v *Value) Insert(key string) (*Value, bool) {
	if !v.promote(KindObject) {
		return nil, false
	}
	if c, ok := v.fields[key]; ok {
		return c, true
	}
	c := New()
	v.fields[key] = c
	i := sort.SearchStrings(v.keys, key)
	v.keys = append(v.keys, "")
	copy(v.keys[i+1:], v.keys[i:])
	v.keys[i] = key
	return c, true
}

// Child is Insert for callers that already know v is an object or None.
// It returns nil otherwise.
func (v *Value) Child(key string) *Value {
	c, _ := v.Insert(key)
	return c
}

// Lookup returns the child under key without creating it.
func (v *Value) Lookup(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	c, ok := v.fields[key]
	return c, ok
}

// Contains reports whether v is an object holding key.
func (v *Value) Contains(key string) bool {
	_, ok := v.Lookup(key)
	return ok
}

// Remove deletes key from an object.
func (v *Value) Remove(key string) bool {
	if v.kind != KindObject {
		return false
	}
	if _, ok := v.fields[key]; !ok {
		return false
	}
	delete(v.fields, key)
	i := sort.SearchStrings(v.keys, key)
	v.keys = append(v.keys[:i], v.keys[i+1:]...)
	return true
}

// Index returns the i-th element of an array.
func (v *Value) Index(i int) (*Value, bool) {
	if v.kind != KindArray || i < 0 || i >= len(v.items) {
		return nil, false
	}
	return v.items[i], true
}

// Append adds a deep copy of child to the end of an array.
// It reports false if v is neither None nor Array.
func (v *Value) Append(child *Value) bool {
	if !v.promote(KindArray) {
		return false
	}
	v.items = append(v.items, child.Clone())
	return true
}

// AppendNew adds a None element to an array and returns it.
func (v *Value) AppendNew() *Value {
	if !v.promote(KindArray) {
		return nil
	}
	c := New()
	v.items = append(v.items, c)
	return c
}

// Len returns the element count of an array, the key count of an object,
// and 0 for everything else.
func (v *Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.keys)
	}
	return 0
}

// Keys returns a copy of the object's keys in sorted order.
func (v *Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	return append([]string(nil), v.keys...)
}

// Clone returns a deep copy.
func (v *Value) Clone() *Value {
	c := &Value{kind: v.kind, b: v.b, i: v.i, u: v.u, f: v.f, s: v.s}
	switch v.kind {
	case KindDataPtr:
		c.blob = append([]byte(nil), v.blob...)
	case KindArray:
		c.items = make([]*Value, len(v.items))
		for i, it := range v.items {
			c.items[i] = it.Clone()
		}
	case KindObject:
		c.keys = append([]string(nil), v.keys...)
		c.fields = make(map[string]*Value, len(v.fields))
		for k, f := range v.fields {
			c.fields[k] = f.Clone()
		}
	}
	return c
}

// Assign replaces v with a deep copy of src. src may be a descendant of v.
func (v *Value) Assign(src *Value) {
	v.Replace(src.Clone())
}

// Replace moves the contents of src into v. src must not be used afterwards.
func (v *Value) Replace(src *Value) {
	*v = *src
	*src = Value{}
}

// Clear resets v to None, dropping all children.
func (v *Value) Clear() {
	v.reset(KindNone)
}

// Walk visits v and its descendants depth first, objects in key order.
// Returning false from fn skips the node's children.
func (v *Value) Walk(fn func(path []string, v *Value) bool) {
	v.walk(nil, fn)
}

func (v *Value) walk(path []string, fn func([]string, *Value) bool) {
	if !fn(path, v) {
		return
	}
	switch v.kind {
	case KindArray:
		for i, it := range v.items {
			it.walk(append(path[:len(path):len(path)], strconv.Itoa(i)), fn)
		}
	case KindObject:
		for _, k := range v.keys {
			v.fields[k].walk(append(path[:len(path):len(path)], k), fn)
		}
	}
}

// Equal reports whether two trees hold the same kinds and payloads.
func (v *Value) Equal(o *Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNone:
		return true
	case KindBool:
		return v.b == o.b
	case KindLong:
		return v.i == o.i
	case KindUnsignedLong:
		return v.u == o.u
	case KindDouble:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindDataPtr:
		return string(v.blob) == string(o.blob)
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.keys) != len(o.keys) {
			return false
		}
		for _, k := range v.keys {
			of, ok := o.fields[k]
			if !ok || !v.fields[k].Equal(of) {
				return false
			}
		}
		return true
	}
	return false
}
