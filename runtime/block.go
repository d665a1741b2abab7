package runtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
	"github.com/wippyai/facesdk/resource"
)

const (
	keyUnitType    = "unit_type"
	keySDKPath     = "@sdk_path"
	keyONNXRuntime = "ONNXRuntime"
	keyLibraryPath = "library_path"
)

// ProcessingBlock is a native processing unit built from a config. It
// keeps no state between calls and must be released with Close.
type ProcessingBlock struct {
	svc      *Service
	config   map[string]any
	unitType string
	blk      engine.Block
	res      resource.Handle
	id       uuid.UUID
	closed   bool
}

// CreateProcessingBlock builds a unit from cfg. cfg must name a unit_type.
// The Service adds @sdk_path and a default ONNXRuntime.library_path, merges
// configured unit defaults under the caller's keys, and ensures model
// artifacts when a provider is set. cfg itself is left untouched.
func (s *Service) CreateProcessingBlock(ctx context.Context, cfg map[string]any) (*ProcessingBlock, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	unitType, _ := cfg[keyUnitType].(string)
	if unitType == "" {
		return nil, errors.New(errors.PhaseProcess, errors.KindInvalidInput).
			Path(keyUnitType).
			Detail("unit_type must be a non-empty string").
			Build()
	}

	merged := s.blockConfig(unitType, cfg)

	if s.provider != nil {
		if err := s.provider.Ensure(ctx, unitType); err != nil {
			return nil, err
		}
	}

	c, err := s.CreateContext(merged)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return newProcessingBlock(s, c, unitType, merged)
}

func (s *Service) blockConfig(unitType string, cfg map[string]any) map[string]any {
	merged := cloneMap(s.units[unitType])
	for k, v := range cfg {
		merged[k] = cloneLiteral(v)
	}
	merged[keySDKPath] = s.sdkPath

	switch onnx := merged[keyONNXRuntime].(type) {
	case nil:
		merged[keyONNXRuntime] = map[string]any{keyLibraryPath: onnxRuntimeDir(s.binariesPath)}
	case map[string]any:
		if _, ok := onnx[keyLibraryPath]; !ok {
			onnx[keyLibraryPath] = onnxRuntimeDir(s.binariesPath)
		}
	}
	return merged
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+2)
	for k, v := range m {
		out[k] = cloneLiteral(v)
	}
	return out
}

func cloneLiteral(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, el := range x {
			out[i] = cloneLiteral(el)
		}
		return out
	}
	return v
}

func newProcessingBlock(s *Service, cfg *Context, unitType string, config map[string]any) (*ProcessingBlock, error) {
	blk, err := s.bridge.CreateProcessingBlock(cfg.h)
	if err != nil {
		return nil, err
	}
	b := &ProcessingBlock{
		svc:      s,
		config:   config,
		unitType: unitType,
		blk:      blk,
		id:       uuid.New(),
	}
	res, err := s.blocks.Insert(b)
	if err != nil {
		if derr := s.bridge.DestroyBlock(blk); derr != nil {
			s.log.Warn("release untracked block failed", zap.Error(derr))
		}
		return nil, errors.Wrap(errors.PhaseSession, errors.KindClosed, err, "track processing block")
	}
	b.res = res
	s.log.Debug("processing block created",
		zap.String("unit_type", unitType),
		zap.String("id", b.id.String()))
	return b, nil
}

// UnitType returns the unit_type the block was built with.
func (b *ProcessingBlock) UnitType() string { return b.unitType }

// ID identifies the block in log output.
func (b *ProcessingBlock) ID() uuid.UUID { return b.id }

// Config returns a copy of the config the block was built from, including
// the keys the Service added.
func (b *ProcessingBlock) Config() map[string]any { return cloneMap(b.config) }

func (b *ProcessingBlock) check() error {
	if b.svc.closed {
		return errors.Closed(errors.PhaseSession, "service")
	}
	if b.closed {
		return errors.Closed(errors.PhaseProcess, "processing block")
	}
	return nil
}

// Process runs the unit on c in place. Refs into c's tree taken before
// the call go stale.
func (b *ProcessingBlock) Process(c Node) error {
	if err := b.check(); err != nil {
		return err
	}
	n := nodeOf(c)
	if err := n.check(); err != nil {
		return err
	}
	if n.svc != b.svc {
		return errors.InvalidInput(errors.PhaseProcess, "context belongs to another service")
	}

	defer n.bump()
	if err := b.svc.bridge.ProcessContext(b.blk, n.h); err != nil {
		b.svc.log.Debug("process failed",
			zap.String("unit_type", b.unitType),
			zap.String("id", b.id.String()),
			zap.Error(err))
		return n.annotate(err)
	}
	return nil
}

// ProcessMap runs the unit on a context built from m and copies back the
// top-level keys the unit added. Keys already in m are never overwritten.
func (b *ProcessingBlock) ProcessMap(m map[string]any) error {
	if err := b.check(); err != nil {
		return err
	}
	if m == nil {
		return errors.InvalidInput(errors.PhaseProcess, "nil map")
	}
	c, err := b.svc.CreateContext(m)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := b.Process(c); err != nil {
		return err
	}

	if obj, err := c.IsObject(); err != nil || !obj {
		return err
	}
	keys, err := c.Keys()
	if err != nil {
		return err
	}
	added := make(map[string]any)
	for _, k := range keys {
		if _, ok := m[k]; ok {
			continue
		}
		r, err := c.Get(k)
		if err != nil {
			return err
		}
		v, err := r.ToLiteral()
		if err != nil {
			return err
		}
		added[k] = v
	}
	for k, v := range added {
		m[k] = v
	}
	return nil
}

// Call dispatches on the argument type: *Context and Ref are processed in
// place, map[string]any goes through ProcessMap. Anything else fails with
// the engine's wrong context type code.
func (b *ProcessingBlock) Call(arg any) error {
	switch x := arg.(type) {
	case *Context:
		return b.Process(x)
	case Ref:
		return b.Process(x)
	case map[string]any:
		return b.ProcessMap(x)
	}
	return errors.New(errors.PhaseProcess, errors.KindInvalidInput).
		Op("ProcessingBlock.Call").
		Code(engine.CodeWrongContextType).
		Value(arg).
		Detail("Wrong type of ctx").
		Build()
}

// Close destroys the native block. Calling Close again is a no-op.
func (b *ProcessingBlock) Close() error {
	if b.closed {
		return nil
	}
	if b.svc.closed {
		b.closed = true
		return nil
	}
	b.svc.blocks.Remove(b.res)
	return b.release()
}

func (b *ProcessingBlock) release() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.svc.log.Debug("processing block destroyed",
		zap.String("unit_type", b.unitType),
		zap.String("id", b.id.String()))
	return b.svc.bridge.DestroyBlock(b.blk)
}
