package runtime

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
	"github.com/wippyai/facesdk/resource"
)

// Node is implemented by *Context and Ref.
type Node interface {
	base() *node
}

// tree is the state shared by an owning context and every Ref derived
// from it. gen advances on each structural mutation.
type tree struct {
	gen    uint64
	closed bool
}

// node is the accessor core behind Context and Ref.
type node struct {
	svc   *Service
	tree  *tree
	path  []string
	h     engine.Handle
	gen   uint64
	owner bool
}

func (n *node) base() *node { return n }

// nodeOf resolves n, mapping a nil *Context to a nil node.
func nodeOf(n Node) *node {
	switch x := n.(type) {
	case nil:
		return nil
	case *Context:
		if x == nil {
			return nil
		}
		return x.node
	}
	return n.base()
}

// Context is an owning handle to a native context tree. It must be
// released with Close.
type Context struct {
	*node
	res resource.Handle
}

// Ref is a weak view into a context tree. It has no Close; it stays
// valid until its tree is closed or structurally changed through another
// node (push back, clear, copy, processing).
type Ref struct {
	*node
}

func (n *node) check() error {
	if n == nil || n.svc == nil {
		return errors.InvalidInput(errors.PhaseBridge, "zero context reference")
	}
	if n.svc.closed {
		return errors.Closed(errors.PhaseSession, "service")
	}
	if n.owner {
		if n.tree.closed {
			return errors.Closed(errors.PhaseBridge, "context")
		}
		// The owner is never stale; children taken from it carry the
		// current generation.
		n.gen = n.tree.gen
		return nil
	}
	if n.tree.closed {
		return n.stale("owning context is closed")
	}
	if n.gen != n.tree.gen {
		return n.stale("context tree changed since the reference was taken")
	}
	return nil
}

func (n *node) stale(detail string) error {
	err := errors.StaleReference(detail)
	err.Path = n.path
	return err
}

// bump records a structural change made through n. n itself stays valid;
// every other Ref into the tree goes stale.
func (n *node) bump() {
	n.tree.gen++
	n.gen = n.tree.gen
}

func (n *node) annotate(err error) error {
	if e, ok := err.(*errors.Error); ok && len(e.Path) == 0 {
		e.Path = n.path
	}
	return err
}

func (n *node) child(h engine.Handle, elem string) Ref {
	path := make([]string, len(n.path)+1)
	copy(path, n.path)
	path[len(n.path)] = elem
	return Ref{&node{svc: n.svc, tree: n.tree, h: h, gen: n.gen, path: path}}
}

// Path returns the keys and indices leading from the owning context to
// this node.
func (n *node) Path() []string {
	if n == nil {
		return nil
	}
	return append([]string(nil), n.path...)
}

// scalar writes a value, invalidating other refs when it replaces a
// non-empty container.
func (n *node) scalar(put func(b *engine.Bridge) error) error {
	if err := n.check(); err != nil {
		return err
	}
	b := n.svc.bridge
	size, err := b.GetLength(n.h)
	if err != nil {
		return n.annotate(err)
	}
	if err := put(b); err != nil {
		return n.annotate(err)
	}
	if size > 0 {
		n.bump()
	}
	return nil
}

func (n *node) SetBool(v bool) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutBool(n.h, v) })
}

func (n *node) SetLong(v int64) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutLong(n.h, v) })
}

func (n *node) SetUnsignedLong(v uint64) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutUnsignedLong(n.h, v) })
}

func (n *node) SetDouble(v float64) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutDouble(n.h, v) })
}

func (n *node) SetString(v string) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutStr(n.h, v) })
}

// SetBytes stores a copy of v.
func (n *node) SetBytes(v []byte) error {
	return n.scalar(func(b *engine.Bridge) error { return b.PutDataPtr(n.h, v) })
}

// Set replaces the node's value with lit. See Service.CreateContext for
// the accepted Go types. The literal is validated before anything is
// written.
func (n *node) Set(lit any) error {
	if err := n.check(); err != nil {
		return err
	}
	if err := validate(n.svc, lit, n.path); err != nil {
		return err
	}
	enc := encoder{svc: n.svc}
	defer enc.close()
	if err := enc.assign(n, lit); err != nil {
		return n.annotate(err)
	}
	return nil
}

// Value returns the scalar held by the node: nil for None, then the first
// of bool, string, int64, uint64, float64 or []byte whose predicate
// matches. Containers also yield nil.
func (n *node) Value() (any, error) {
	if err := n.check(); err != nil {
		return nil, err
	}
	b := n.svc.bridge
	steps := []struct {
		is  func(engine.Handle) (bool, error)
		get func(engine.Handle) (any, error)
	}{
		{b.IsNone, func(engine.Handle) (any, error) { return nil, nil }},
		{b.IsBool, func(h engine.Handle) (any, error) { return b.GetBool(h) }},
		{b.IsString, func(h engine.Handle) (any, error) { return b.GetStr(h) }},
		{b.IsLong, func(h engine.Handle) (any, error) { return b.GetLong(h) }},
		{b.IsUnsignedLong, func(h engine.Handle) (any, error) { return b.GetUnsignedLong(h) }},
		{b.IsDouble, func(h engine.Handle) (any, error) { return b.GetDouble(h) }},
		{b.IsDataPtr, func(h engine.Handle) (any, error) { return b.GetDataPtr(h) }},
	}
	for _, s := range steps {
		ok, err := s.is(n.h)
		if err != nil {
			return nil, n.annotate(err)
		}
		if ok {
			v, err := s.get(n.h)
			if err != nil {
				return nil, n.annotate(err)
			}
			return v, nil
		}
	}
	return nil, nil
}

// Kind reports the node's type.
func (n *node) Kind() (Kind, error) {
	if err := n.check(); err != nil {
		return KindNone, err
	}
	b := n.svc.bridge
	preds := []struct {
		is   func(engine.Handle) (bool, error)
		kind Kind
	}{
		{b.IsNone, KindNone},
		{b.IsArray, KindArray},
		{b.IsObject, KindObject},
		{b.IsBool, KindBool},
		{b.IsString, KindString},
		{b.IsLong, KindLong},
		{b.IsUnsignedLong, KindUnsignedLong},
		{b.IsDouble, KindDouble},
		{b.IsDataPtr, KindDataPtr},
	}
	for _, p := range preds {
		ok, err := p.is(n.h)
		if err != nil {
			return KindNone, n.annotate(err)
		}
		if ok {
			return p.kind, nil
		}
	}
	return KindNone, errors.New(errors.PhaseDecode, errors.KindUnsupported).
		Path(n.path...).
		Detail("value matches no known type").
		Build()
}

func get[T any](n *node, fn func(engine.Handle) (T, error)) (T, error) {
	if err := n.check(); err != nil {
		var zero T
		return zero, err
	}
	v, err := fn(n.h)
	return v, n.annotate(err)
}

func (n *node) Bool() (bool, error)           { return get(n, n.bridge().GetBool) }
func (n *node) Long() (int64, error)          { return get(n, n.bridge().GetLong) }
func (n *node) UnsignedLong() (uint64, error) { return get(n, n.bridge().GetUnsignedLong) }
func (n *node) Double() (float64, error)      { return get(n, n.bridge().GetDouble) }
func (n *node) String() (string, error)       { return get(n, n.bridge().GetStr) }
func (n *node) Bytes() ([]byte, error)        { return get(n, n.bridge().GetDataPtr) }

func (n *node) IsNone() (bool, error)         { return get(n, n.bridge().IsNone) }
func (n *node) IsArray() (bool, error)        { return get(n, n.bridge().IsArray) }
func (n *node) IsObject() (bool, error)       { return get(n, n.bridge().IsObject) }
func (n *node) IsBool() (bool, error)         { return get(n, n.bridge().IsBool) }
func (n *node) IsLong() (bool, error)         { return get(n, n.bridge().IsLong) }
func (n *node) IsUnsignedLong() (bool, error) { return get(n, n.bridge().IsUnsignedLong) }
func (n *node) IsDouble() (bool, error)       { return get(n, n.bridge().IsDouble) }
func (n *node) IsString() (bool, error)       { return get(n, n.bridge().IsString) }
func (n *node) IsDataPtr() (bool, error)      { return get(n, n.bridge().IsDataPtr) }

// bridge tolerates a zero Ref so method values can be taken before check.
func (n *node) bridge() *engine.Bridge {
	if n == nil || n.svc == nil {
		return nilBridge
	}
	return n.svc.bridge
}

var nilBridge = engine.NewBridge(nil, zap.NewNop())

// Len returns the element count of an array, the key count of an object
// and 0 for anything else.
func (n *node) Len() (int, error) {
	if err := n.check(); err != nil {
		return 0, err
	}
	size, err := n.svc.bridge.GetLength(n.h)
	if err != nil {
		return 0, n.annotate(err)
	}
	return int(size), nil
}

// Keys returns an object's keys. It fails on any other type.
func (n *node) Keys() ([]string, error) {
	if err := n.check(); err != nil {
		return nil, err
	}
	keys, err := n.svc.bridge.GetKeys(n.h)
	return keys, n.annotate(err)
}

// Contains reports whether the node is an object holding key.
func (n *node) Contains(key string) (bool, error) {
	obj, err := n.IsObject()
	if err != nil || !obj {
		return false, err
	}
	keys, err := n.Keys()
	if err != nil {
		return false, err
	}
	for _, k := range keys {
		if k == key {
			return true, nil
		}
	}
	return false, nil
}

// GetOrInsert returns the child under key, inserting None when absent.
// A None node becomes an object.
func (n *node) GetOrInsert(key string) (Ref, error) {
	if err := n.check(); err != nil {
		return Ref{}, err
	}
	h, err := n.svc.bridge.GetOrInsertByKey(n.h, key)
	if err != nil {
		return Ref{}, n.annotate(err)
	}
	return n.child(h, key), nil
}

// Get returns the child under key. It fails with key_type_mismatch on a
// non-object and not_found when the key is absent.
func (n *node) Get(key string) (Ref, error) {
	if err := n.check(); err != nil {
		return Ref{}, err
	}
	b := n.svc.bridge
	h, err := b.GetByKey(n.h, key)
	if err == nil {
		return n.child(h, key), nil
	}

	kind := errors.KindNotFound
	detail := "key " + strconv.Quote(key) + " not found"
	if obj, oerr := b.IsObject(n.h); oerr == nil && !obj {
		kind = errors.KindKeyTypeMismatch
		detail = "keyed access on a non-object value"
	}
	return Ref{}, errors.New(errors.PhaseBridge, kind).
		Path(n.path...).
		Op(engine.SymGetByKey).
		Code(errors.CodeOf(err)).
		Detail("%s", detail).
		Cause(err).
		Build()
}

// Index returns the i-th element of an array.
func (n *node) Index(i int) (Ref, error) {
	size, err := n.Len()
	if err != nil {
		return Ref{}, err
	}
	if i < 0 || i >= size {
		return Ref{}, errors.OutOfBounds(errors.PhaseBridge, n.path, i, size)
	}
	h, err := n.svc.bridge.GetByIndex(n.h, i)
	if err != nil {
		return Ref{}, n.annotate(err)
	}
	return n.child(h, strconv.Itoa(i)), nil
}

// PushBack appends a copy of child's current value. child keeps its own
// state. A None node becomes an array.
func (n *node) PushBack(child Node) error {
	if err := n.check(); err != nil {
		return err
	}
	c, err := n.peer(child)
	if err != nil {
		return err
	}
	if err := n.svc.bridge.PushBack(n.h, c.h, true); err != nil {
		return n.annotate(err)
	}
	n.bump()
	return nil
}

// Clone returns an owning deep copy of the node.
func (n *node) Clone() (*Context, error) {
	if err := n.check(); err != nil {
		return nil, err
	}
	h, err := n.svc.bridge.Clone(n.h)
	if err != nil {
		return nil, n.annotate(err)
	}
	return n.svc.adopt(h)
}

// Clear resets the node to None.
func (n *node) Clear() error {
	if err := n.check(); err != nil {
		return err
	}
	if err := n.svc.bridge.Clear(n.h); err != nil {
		return n.annotate(err)
	}
	n.bump()
	return nil
}

// CopyFrom replaces the node's value with a deep copy of src.
func (n *node) CopyFrom(src Node) error {
	if err := n.check(); err != nil {
		return err
	}
	s, err := n.peer(src)
	if err != nil {
		return err
	}
	if err := n.svc.bridge.Copy(s.h, n.h); err != nil {
		return n.annotate(err)
	}
	n.bump()
	return nil
}

// ToLiteral converts the subtree to plain Go values: []any for arrays,
// map[string]any for objects and Value for everything else.
func (n *node) ToLiteral() (any, error) {
	kind, err := n.Kind()
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindArray:
		size, err := n.Len()
		if err != nil {
			return nil, err
		}
		out := make([]any, size)
		for i := range out {
			el, err := n.Index(i)
			if err != nil {
				return nil, err
			}
			if out[i], err = el.ToLiteral(); err != nil {
				return nil, err
			}
		}
		return out, nil
	case KindObject:
		keys, err := n.Keys()
		if err != nil {
			return nil, err
		}
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			f, err := n.Get(k)
			if err != nil {
				return nil, err
			}
			if out[k], err = f.ToLiteral(); err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	return n.Value()
}

// peer resolves another node of the same service.
func (n *node) peer(other Node) (*node, error) {
	o := nodeOf(other)
	if err := o.check(); err != nil {
		return nil, err
	}
	if o.svc != n.svc {
		return nil, errors.InvalidInput(errors.PhaseBridge, "context belongs to another service")
	}
	return o, nil
}

// Close releases the context. Refs derived from it go stale. Closing
// twice is a no-op.
func (c *Context) Close() error {
	if c == nil || c.node == nil || c.tree.closed {
		return nil
	}
	if c.svc.closed {
		c.tree.closed = true
		return nil
	}
	c.tree.closed = true
	c.svc.contexts.Remove(c.res)
	return c.svc.bridge.Destroy(c.h)
}

// release destroys the native context without touching the service table.
func (c *Context) release() error {
	if c.tree.closed {
		return nil
	}
	c.tree.closed = true
	return c.svc.bridge.Destroy(c.h)
}

// Closed reports whether Close has been called.
func (c *Context) Closed() bool {
	return c == nil || c.node == nil || c.tree.closed
}
