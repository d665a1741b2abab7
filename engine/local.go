package engine

import (
	"context"
	"fmt"
	"path"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/artifact"
	"github.com/wippyai/facesdk/data"
	"github.com/wippyai/facesdk/errors"
	"github.com/wippyai/facesdk/resource"
)

// MaxStrSize bounds strings and keys passed into the engine, terminator
// included.
const MaxStrSize = 65535

const (
	kindRoot resource.Kind = iota + 1
	kindView
	kindBlock
	kindFault
)

type localCtx struct {
	node  *data.Value
	root  resource.Handle   // owning root; zero for roots themselves
	views []resource.Handle // roots only
}

type localBlock struct {
	unit     Unit
	unitType string
}

type localFault struct {
	msg  string
	code uint32
}

// Local is an in-process engine. It implements Library over data.Value
// trees, keeping contexts, views, blocks and pending exceptions in a
// resource table and handing out table handles in place of pointers.
//
// Processing units are looked up in a Registry by unit type. Units that
// need model inference are supplied by the caller; the matcher is built in.
type Local struct {
	objects  *resource.Table
	views    map[*data.Value]resource.Handle
	units    *Registry
	manifest artifact.Manifest
	log      *zap.Logger
	mu       sync.Mutex
	closed   bool
}

// LocalOption configures a Local engine.
type LocalOption func(*Local)

// WithRegistry replaces the unit registry.
func WithRegistry(r *Registry) LocalOption {
	return func(l *Local) { l.units = r }
}

// WithUnit registers a unit factory.
func WithUnit(unitType string, f UnitFactory) LocalOption {
	return func(l *Local) { l.units.Register(unitType, f) }
}

// WithManifest sets the table used to fill in default model paths.
func WithManifest(m artifact.Manifest) LocalOption {
	return func(l *Local) { l.manifest = m }
}

// WithLocalLogger sets the engine's logger.
func WithLocalLogger(log *zap.Logger) LocalOption {
	return func(l *Local) { l.log = log }
}

// NewLocal creates an in-process engine.
func NewLocal(opts ...LocalOption) *Local {
	l := &Local{
		objects:  resource.NewTable(),
		views:    make(map[*data.Value]resource.Handle),
		units:    NewRegistry(),
		manifest: artifact.DefaultManifest(),
		log:      Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the engine's unit registry.
func (l *Local) Registry() *Registry {
	return l.units
}

// Live returns the number of live root contexts and blocks.
func (l *Local) Live() (contexts, blocks int) {
	l.objects.Each(func(_ resource.Handle, k resource.Kind, _ any) bool {
		switch k {
		case kindRoot:
			contexts++
		case kindBlock:
			blocks++
		}
		return true
	})
	return contexts, blocks
}

func (l *Local) raise(eh *Exception, code uint32, format string, args ...any) {
	if eh == nil {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	h, err := l.objects.Insert(kindFault, &localFault{msg: msg, code: code})
	if err != nil {
		l.log.Error("exception table full", zap.Uint32("code", code), zap.String("message", msg))
		return
	}
	*eh = Exception(h)
}

func (l *Local) enter(eh *Exception) bool {
	if l.closed {
		l.raise(eh, CodeLibraryClosed, "engine closed")
		return false
	}
	return true
}

func (l *Local) ctx(h Handle, code uint32, eh *Exception) (*localCtx, resource.Handle, bool) {
	rh := resource.Handle(h)
	v, ok := l.objects.Get(rh)
	if c, isCtx := v.(*localCtx); ok && isCtx {
		return c, rh, true
	}
	l.raise(eh, code, "invalid context handle")
	return nil, 0, false
}

// view returns a handle for child, reusing an existing one when possible.
func (l *Local) view(parent *localCtx, parentHandle resource.Handle, child *data.Value, code uint32, eh *Exception) Handle {
	root := parent.root
	if root == 0 {
		root = parentHandle
	}
	if h, ok := l.views[child]; ok {
		if _, live := l.objects.GetTyped(h, kindView); live {
			return Handle(h)
		}
	}

	h, err := l.objects.Insert(kindView, &localCtx{node: child, root: root})
	if err != nil {
		l.raise(eh, code, "%v", err)
		return 0
	}
	l.views[child] = h
	if r, ok := l.objects.GetTyped(root, kindRoot); ok {
		rc := r.(*localCtx)
		rc.views = append(rc.views, h)
	}
	return Handle(h)
}

// rootOf returns the handle of the owning context of c.
func rootOf(c *localCtx, h resource.Handle) resource.Handle {
	if c.root != 0 {
		return c.root
	}
	return h
}

// prune drops the views of a root whose nodes left its tree.
func (l *Local) prune(root resource.Handle) {
	v, ok := l.objects.GetTyped(root, kindRoot)
	if !ok {
		return
	}
	rc := v.(*localCtx)
	if len(rc.views) == 0 {
		return
	}
	live := make(map[*data.Value]struct{})
	rc.node.Walk(func(_ []string, n *data.Value) bool {
		live[n] = struct{}{}
		return true
	})
	kept := rc.views[:0]
	for _, vh := range rc.views {
		vv, ok := l.objects.GetTyped(vh, kindView)
		if !ok {
			continue
		}
		node := vv.(*localCtx).node
		if _, in := live[node]; in {
			kept = append(kept, vh)
			continue
		}
		l.objects.Remove(vh)
		if l.views[node] == vh {
			delete(l.views, node)
		}
	}
	rc.views = kept
}

func (l *Local) newRoot(node *data.Value, code uint32, eh *Exception) Handle {
	h, err := l.objects.Insert(kindRoot, &localCtx{node: node})
	if err != nil {
		l.raise(eh, code, "%v", err)
		return 0
	}
	return Handle(h)
}

func (l *Local) ContextCreate(eh *Exception) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	return l.newRoot(data.New(), CodeContextCreate, eh)
}

func (l *Local) ContextDestroy(h Handle, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	rh := resource.Handle(h)
	v, ok := l.objects.GetTyped(rh, kindRoot)
	if !ok {
		if _, isView := l.objects.GetTyped(rh, kindView); isView {
			l.raise(eh, CodeContextDestroy, "context is not owning")
			return
		}
		l.raise(eh, CodeContextDestroy, "invalid context handle")
		return
	}
	root := v.(*localCtx)
	for _, vh := range root.views {
		if vv, ok := l.objects.Remove(vh); ok {
			delete(l.views, vv.(*localCtx).node)
		}
	}
	l.objects.Remove(rh)
}

func (l *Local) GetByIndex(h Handle, index int32, eh *Exception) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, rh, ok := l.ctx(h, CodeGetByIndex, eh)
	if !ok {
		return 0
	}
	if c.node.Kind() != data.KindArray {
		l.raise(eh, CodeGetByIndex, "index access on %s value", c.node.Kind())
		return 0
	}
	child, ok := c.node.Index(int(index))
	if !ok {
		l.raise(eh, CodeGetByIndex, "index %d out of range (length %d)", index, c.node.Len())
		return 0
	}
	return l.view(c, rh, child, CodeGetByIndex, eh)
}

func (l *Local) GetByKey(h Handle, key string, eh *Exception) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, rh, ok := l.ctx(h, CodeGetByKey, eh)
	if !ok {
		return 0
	}
	if c.node.Kind() != data.KindObject {
		l.raise(eh, CodeGetByKey, "key access on %s value", c.node.Kind())
		return 0
	}
	child, ok := c.node.Lookup(key)
	if !ok {
		l.raise(eh, CodeGetByKey, "key %q not found", key)
		return 0
	}
	return l.view(c, rh, child, CodeGetByKey, eh)
}

func (l *Local) GetOrInsertByKey(h Handle, key string, eh *Exception) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, rh, ok := l.ctx(h, CodeGetOrInsertByKey, eh)
	if !ok {
		return 0
	}
	if len(key) >= MaxStrSize {
		l.raise(eh, CodeGetOrInsertByKey, "key longer than %d bytes", MaxStrSize-1)
		return 0
	}
	child, ok := c.node.Insert(key)
	if !ok {
		l.raise(eh, CodeGetOrInsertByKey, "key access on %s value", c.node.Kind())
		return 0
	}
	return l.view(c, rh, child, CodeGetOrInsertByKey, eh)
}

func (l *Local) Copy(src, dst Handle, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	s, _, ok := l.ctx(src, CodeCopy, eh)
	if !ok {
		return
	}
	d, dh, ok := l.ctx(dst, CodeCopy, eh)
	if !ok {
		return
	}
	d.node.Assign(s.node)
	l.prune(rootOf(d, dh))
}

func (l *Local) Clone(h Handle, eh *Exception) Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, _, ok := l.ctx(h, CodeClone, eh)
	if !ok {
		return 0
	}
	return l.newRoot(c.node.Clone(), CodeClone, eh)
}

func (l *Local) Clear(h Handle, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	if c, rh, ok := l.ctx(h, CodeClear, eh); ok {
		c.node.Clear()
		l.prune(rootOf(c, rh))
	}
}

// put resolves h and applies set under the engine lock.
func (l *Local) put(h Handle, code uint32, eh *Exception, set func(*data.Value)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	if c, rh, ok := l.ctx(h, code, eh); ok {
		container := c.node.Kind().Container()
		set(c.node)
		if container {
			l.prune(rootOf(c, rh))
		}
	}
}

func (l *Local) PutStr(h Handle, s string, eh *Exception) {
	if len(s) >= MaxStrSize {
		l.mu.Lock()
		l.raise(eh, CodePutStr, "arg is not null terminated c-string or longer then MAX_STR_SIZE")
		l.mu.Unlock()
		return
	}
	l.put(h, CodePutStr, eh, func(v *data.Value) { v.SetString(s) })
}

func (l *Local) PutLong(h Handle, v int64, eh *Exception) {
	l.put(h, CodePutLong, eh, func(n *data.Value) { n.SetLong(v) })
}

func (l *Local) PutUnsignedLong(h Handle, v uint64, eh *Exception) {
	l.put(h, CodePutUnsignedLong, eh, func(n *data.Value) { n.SetUnsignedLong(v) })
}

func (l *Local) PutDouble(h Handle, v float64, eh *Exception) {
	l.put(h, CodePutDouble, eh, func(n *data.Value) { n.SetDouble(v) })
}

func (l *Local) PutBool(h Handle, v bool, eh *Exception) {
	l.put(h, CodePutBool, eh, func(n *data.Value) { n.SetBool(v) })
}

func (l *Local) PutDataPtr(h Handle, b []byte, eh *Exception) {
	l.put(h, CodePutDataPtr, eh, func(n *data.Value) { n.SetBytes(b) })
}

func (l *Local) PushBack(h, child Handle, copyChild bool, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	parent, _, ok := l.ctx(h, CodePushBack, eh)
	if !ok {
		return
	}
	c, ch, ok := l.ctx(child, CodePushBack, eh)
	if !ok {
		return
	}
	if k := parent.node.Kind(); k != data.KindNone && k != data.KindArray {
		l.raise(eh, CodePushBack, "push back on %s value", k)
		return
	}
	if copyChild {
		parent.node.Append(c.node)
		return
	}
	moved := c.node.Clone()
	c.node.Clear()
	parent.node.AppendNew().Replace(moved)
	l.prune(rootOf(c, ch))
}

func (l *Local) GetLength(h Handle, eh *Exception) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, _, ok := l.ctx(h, CodeGetLength, eh)
	if !ok {
		return 0
	}
	return uint64(c.node.Len())
}

func (l *Local) GetKeys(h Handle, length uint64, eh *Exception) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return nil
	}
	c, _, ok := l.ctx(h, CodeGetKeys, eh)
	if !ok {
		return nil
	}
	if c.node.Kind() != data.KindObject {
		l.raise(eh, CodeGetKeys, "keys of %s value", c.node.Kind())
		return nil
	}
	keys := c.node.Keys()
	if uint64(len(keys)) < length {
		l.raise(eh, CodeGetKeysLength, "length exceeds current size")
		return nil
	}
	return keys[:length]
}

func (l *Local) is(h Handle, code uint32, eh *Exception, kind data.Kind) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return false
	}
	c, _, ok := l.ctx(h, code, eh)
	return ok && c.node.Kind() == kind
}

func (l *Local) IsNone(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsNone, eh, data.KindNone)
}

func (l *Local) IsArray(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsArray, eh, data.KindArray)
}

func (l *Local) IsObject(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsObject, eh, data.KindObject)
}

func (l *Local) IsBool(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsBool, eh, data.KindBool)
}

func (l *Local) IsLong(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsLong, eh, data.KindLong)
}

func (l *Local) IsUnsignedLong(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsUnsignedLong, eh, data.KindUnsignedLong)
}

func (l *Local) IsDouble(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsDouble, eh, data.KindDouble)
}

func (l *Local) IsString(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsString, eh, data.KindString)
}

func (l *Local) IsDataPtr(h Handle, eh *Exception) bool {
	return l.is(h, CodeIsDataPtr, eh, data.KindDataPtr)
}

// getAs resolves h, checks its kind and reads it under the engine lock.
func getAs[T any](l *Local, h Handle, code uint32, eh *Exception, kind data.Kind, read func(*data.Value) T) T {
	var zero T
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return zero
	}
	c, _, ok := l.ctx(h, code, eh)
	if !ok {
		return zero
	}
	if c.node.Kind() != kind {
		l.raise(eh, code, "value is %s, not %s", c.node.Kind(), kind)
		return zero
	}
	return read(c.node)
}

func (l *Local) GetStr(h Handle, eh *Exception) string {
	return getAs(l, h, CodeGetStr, eh, data.KindString, func(v *data.Value) string {
		s, _ := v.Str()
		return s
	})
}

func (l *Local) GetStrSize(h Handle, eh *Exception) uint64 {
	return getAs(l, h, CodeGetStrSize, eh, data.KindString, func(v *data.Value) uint64 {
		s, _ := v.Str()
		return uint64(len(s))
	})
}

func (l *Local) GetLong(h Handle, eh *Exception) int64 {
	return getAs(l, h, CodeGetLong, eh, data.KindLong, func(v *data.Value) int64 {
		i, _ := v.Long()
		return i
	})
}

func (l *Local) GetUnsignedLong(h Handle, eh *Exception) uint64 {
	return getAs(l, h, CodeGetUnsignedLong, eh, data.KindUnsignedLong, func(v *data.Value) uint64 {
		u, _ := v.UnsignedLong()
		return u
	})
}

func (l *Local) GetDouble(h Handle, eh *Exception) float64 {
	return getAs(l, h, CodeGetDouble, eh, data.KindDouble, func(v *data.Value) float64 {
		f, _ := v.Double()
		return f
	})
}

func (l *Local) GetBool(h Handle, eh *Exception) bool {
	return getAs(l, h, CodeGetBool, eh, data.KindBool, func(v *data.Value) bool {
		b, _ := v.Bool()
		return b
	})
}

// GetDataPtr returns a copy of the blob; callers never alias engine memory.
func (l *Local) GetDataPtr(h Handle, eh *Exception) []byte {
	return getAs(l, h, CodeGetDataPtr, eh, data.KindDataPtr, func(v *data.Value) []byte {
		b, _ := v.Bytes()
		return append([]byte(nil), b...)
	})
}

func (l *Local) CreateProcessingBlock(config Handle, eh *Exception) Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return 0
	}
	c, _, ok := l.ctx(config, CodeCreateBlock, eh)
	if !ok {
		return 0
	}

	var unitType string
	if v, ok := c.node.Lookup("unit_type"); ok {
		unitType, _ = v.Str()
	}
	if unitType == "" {
		l.raise(eh, CodeCreateBlock, "not unit_type")
		return 0
	}
	factory, ok := l.units.Lookup(unitType)
	if !ok {
		l.raise(eh, CodeCreateBlock, "not correct unit_type")
		return 0
	}

	cfg := c.node.Clone()
	l.defaultModelPaths(cfg, unitType)

	unit, err := l.buildUnit(factory, cfg)
	if err != nil {
		l.raise(eh, CodeCreateBlock, "%v", err)
		return 0
	}

	h, err := l.objects.Insert(kindBlock, &localBlock{unit: unit, unitType: unitType})
	if err != nil {
		l.raise(eh, CodeCreateBlock, "%v", err)
		return 0
	}
	l.log.Debug("processing block created", zap.String("unit_type", unitType), zap.Uint32("handle", uint32(h)))
	return Block(h)
}

func (l *Local) buildUnit(factory UnitFactory, cfg *data.Value) (unit Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit constructor panicked: %v", r)
		}
	}()
	return factory(cfg)
}

// defaultModelPaths fills model_path from the manifest when the caller gave
// none. Liveness takes two models and pose estimation a label map.
func (l *Local) defaultModelPaths(cfg *data.Value, unitType string) {
	var sdk string
	if v, ok := cfg.Lookup("@sdk_path"); ok {
		sdk, _ = v.Str()
	}
	files := l.manifest.Files(unitType)
	if len(files) == 0 {
		return
	}

	setIfEmpty := func(key, rel string) {
		if v, ok := cfg.Lookup(key); ok {
			if s, _ := v.Str(); s != "" {
				return
			}
		}
		cfg.Child(key).SetString(path.Join(sdk, rel))
	}

	switch unitType {
	case artifact.UnitLiveness:
		if !cfg.Contains("model_scale2.7_path") && !cfg.Contains("model_scale4.0_path") && len(files) >= 2 {
			setIfEmpty("model_scale2.7_path", files[0])
			setIfEmpty("model_scale4.0_path", files[1])
		}
	case artifact.UnitPose:
		setIfEmpty("model_path", files[0])
		if len(files) >= 2 {
			setIfEmpty("label_map", files[1])
		}
	default:
		setIfEmpty("model_path", files[0])
	}
}

func (l *Local) DestroyBlock(b Block, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	v, ok := l.objects.GetTyped(resource.Handle(b), kindBlock)
	if !ok {
		l.raise(eh, CodeDestroyBlock, "invalid block handle")
		return
	}
	l.objects.Remove(resource.Handle(b))
	l.log.Debug("processing block destroyed", zap.String("unit_type", v.(*localBlock).unitType))
}

// ProcessContext runs the block's unit on a copy of the context and commits
// the copy only if the unit succeeds, so a failed call leaves the context
// unchanged.
func (l *Local) ProcessContext(b Block, h Handle, eh *Exception) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enter(eh) {
		return
	}
	v, ok := l.objects.GetTyped(resource.Handle(b), kindBlock)
	if !ok {
		l.raise(eh, CodeProcessContext, "invalid block handle")
		return
	}
	blk := v.(*localBlock)
	c, rh, ok := l.ctx(h, CodeProcessContext, eh)
	if !ok {
		return
	}

	work := c.node.Clone()
	if err := runUnit(blk.unit, work); err != nil {
		code := errors.CodeOf(err)
		if code == 0 {
			code = CodeProcessContext
		}
		l.raise(eh, code, "%s: %v", blk.unitType, err)
		return
	}
	c.node.Replace(work)
	l.prune(rootOf(c, rh))
}

func runUnit(u Unit, ctx *data.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panicked: %v", r)
		}
	}()
	return u.Process(ctx)
}

func (l *Local) ExceptionMessage(e Exception) string {
	if v, ok := l.objects.GetTyped(resource.Handle(e), kindFault); ok {
		return v.(*localFault).msg
	}
	return ""
}

func (l *Local) ExceptionCode(e Exception) uint32 {
	if v, ok := l.objects.GetTyped(resource.Handle(e), kindFault); ok {
		return v.(*localFault).code
	}
	return 0
}

func (l *Local) DeleteException(e Exception) {
	if _, ok := l.objects.GetTyped(resource.Handle(e), kindFault); ok {
		l.objects.Remove(resource.Handle(e))
	}
}

// Close releases every context and block the engine still holds.
// Entry points called afterwards fault with CodeLibraryClosed.
func (l *Local) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	contexts, blocks := l.Live()
	if contexts > 0 || blocks > 0 {
		l.log.Debug("closing engine with live objects",
			zap.Int("contexts", contexts),
			zap.Int("blocks", blocks))
	}
	l.objects.Clear()
	l.views = make(map[*data.Value]resource.Handle)
	return nil
}

// LocalFault returns an error that makes ProcessContext report code.
// Units use it to surface engine-specific fault codes.
func LocalFault(code uint32, format string, args ...any) error {
	return errors.New(errors.PhaseProcess, errors.KindNativeFault).
		Code(code).
		Detail(format, args...).
		Build()
}
