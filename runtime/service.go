package runtime

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/artifact"
	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
	"github.com/wippyai/facesdk/resource"
)

const (
	kindContext resource.Kind = iota + 1
	kindBlock
)

// Service owns a loaded engine and everything created through it.
//
// Contexts and processing blocks must not outlive their Service. Close
// releases any that are still open, then closes the engine. A Service and
// the values it creates are not safe for concurrent use.
type Service struct {
	lib      engine.Library
	bridge   *engine.Bridge
	objects  *resource.Table
	contexts resource.Typed[*Context]
	blocks   resource.Typed[*ProcessingBlock]
	provider artifact.Provider
	units    map[string]map[string]any
	log      *zap.Logger

	sdkPath      string
	binariesPath string
	libraryPath  string
	closed       bool
}

type options struct {
	lib          engine.Library
	provider     artifact.Provider
	units        map[string]map[string]any
	engineConfig *engine.Config
	log          *zap.Logger
	sdkPath      string
	binariesPath string
	libraryPath  string
}

// Option configures a Service.
type Option func(*options)

// WithSDKPath sets the SDK root holding data/models and the platform
// binaries directory. It defaults to the working directory.
func WithSDKPath(path string) Option {
	return func(o *options) { o.sdkPath = path }
}

// WithBinariesPath overrides the platform binaries directory, by default
// for_linux or for_windows under the SDK root.
func WithBinariesPath(path string) Option {
	return func(o *options) { o.binariesPath = path }
}

// WithLibraryPath loads the engine from path instead of the platform
// default. Paths ending in .wasm run under wazero.
func WithLibraryPath(path string) Option {
	return func(o *options) { o.libraryPath = path }
}

// WithLibrary uses an already loaded engine. The Service takes ownership
// and closes it on Close.
func WithLibrary(lib engine.Library) Option {
	return func(o *options) { o.lib = lib }
}

// WithArtifactProvider makes CreateProcessingBlock ensure model files for
// each unit type before the block is built.
func WithArtifactProvider(p artifact.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithUnitDefaults sets options merged under the caller's config for every
// block of unitType.
func WithUnitDefaults(unitType string, defaults map[string]any) Option {
	return func(o *options) {
		if o.units == nil {
			o.units = make(map[string]map[string]any)
		}
		o.units[unitType] = defaults
	}
}

// WithEngineConfig sets the configuration used when loading a WebAssembly
// build of the engine.
func WithEngineConfig(cfg *engine.Config) Option {
	return func(o *options) { o.engineConfig = cfg }
}

// WithLogger sets the Service logger. It defaults to engine.Logger().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// New loads the engine and creates a Service.
func New(ctx context.Context, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = engine.Logger()
	}

	sdk := o.sdkPath
	if sdk == "" {
		sdk = "."
	}
	if abs, err := filepath.Abs(sdk); err == nil {
		sdk = abs
	}
	bin := o.binariesPath
	if bin == "" {
		bin = binariesDir(sdk)
	}
	libPath := o.libraryPath
	if libPath == "" {
		libPath = libraryFile(bin)
	}

	lib := o.lib
	if lib == nil {
		cfg := engineConfig(o.engineConfig, sdk, o.log)
		var err error
		lib, err = engine.Open(ctx, libPath, cfg)
		if err != nil {
			return nil, err
		}
		o.log.Debug("engine loaded", zap.String("path", libPath))
	} else {
		libPath = ""
	}

	objects := resource.NewTable()
	s := &Service{
		lib:          lib,
		bridge:       engine.NewBridge(lib, o.log),
		objects:      objects,
		contexts:     resource.NewTyped[*Context](objects, kindContext),
		blocks:       resource.NewTyped[*ProcessingBlock](objects, kindBlock),
		provider:     o.provider,
		units:        o.units,
		log:          o.log,
		sdkPath:      sdk,
		binariesPath: bin,
		libraryPath:  libPath,
	}
	objects.Subscribe(resource.ObserverFunc(s.trace))
	return s, nil
}

// engineConfig mounts the SDK root at its own path so @sdk_path resolves
// the same inside a WebAssembly engine.
func engineConfig(base *engine.Config, sdk string, log *zap.Logger) *engine.Config {
	cfg := engine.Config{}
	if base != nil {
		cfg = *base
	}
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	mounts := make(map[string]string, len(cfg.Mounts)+1)
	for host, guest := range cfg.Mounts {
		mounts[host] = guest
	}
	if _, ok := mounts[sdk]; !ok {
		mounts[sdk] = sdk
	}
	cfg.Mounts = mounts
	return &cfg
}

func (s *Service) trace(e resource.Event) {
	what := "context"
	if e.Kind == kindBlock {
		what = "block"
	}
	s.log.Debug("service object "+e.Type.String(),
		zap.String("kind", what),
		zap.Uint32("handle", uint32(e.Handle)))
}

// SDKPath returns the absolute SDK root.
func (s *Service) SDKPath() string { return s.sdkPath }

// BinariesPath returns the platform binaries directory.
func (s *Service) BinariesPath() string { return s.binariesPath }

// LibraryPath returns the path the engine was loaded from, or "" for an
// engine passed with WithLibrary.
func (s *Service) LibraryPath() string { return s.libraryPath }

// Library returns the underlying engine.
func (s *Service) Library() engine.Library { return s.lib }

// Logger returns the Service logger.
func (s *Service) Logger() *zap.Logger { return s.log }

// Live returns the number of open contexts and blocks.
func (s *Service) Live() (contexts, blocks int) {
	if s.closed {
		return 0, 0
	}
	s.contexts.Each(func(resource.Handle, *Context) bool {
		contexts++
		return true
	})
	s.blocks.Each(func(resource.Handle, *ProcessingBlock) bool {
		blocks++
		return true
	})
	return contexts, blocks
}

func (s *Service) check() error {
	if s.closed {
		return errors.Closed(errors.PhaseSession, "service")
	}
	return nil
}

// adopt wraps a freshly created native context and tracks it.
func (s *Service) adopt(h engine.Handle) (*Context, error) {
	c := &Context{node: &node{svc: s, tree: &tree{}, h: h, owner: true}}
	res, err := s.contexts.Insert(c)
	if err != nil {
		if derr := s.bridge.Destroy(h); derr != nil {
			s.log.Warn("release untracked context failed", zap.Error(derr))
		}
		return nil, errors.Wrap(errors.PhaseSession, errors.KindClosed, err, "track context")
	}
	c.res = res
	return c, nil
}

// NewContext creates an empty context.
func (s *Service) NewContext() (*Context, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	h, err := s.bridge.Create()
	if err != nil {
		return nil, err
	}
	return s.adopt(h)
}

// CreateContext builds a context from a Go literal:
//
//	map[string]T, map with string-kinded keys -> object (keys in sorted order)
//	slice, array                              -> array
//	[]byte                                    -> data pointer (copied)
//	string, bool                              -> string, bool
//	signed integers, json.Number integers     -> long
//	unsigned integers                         -> unsigned long
//	float32, float64, json.Number             -> double
//	Scalar                                    -> its kind
//	*Context, Ref                             -> deep copy
//	nil, empty map, empty slice               -> none
//
// Any other type fails with unsupported_literal before the engine is
// touched.
func (s *Service) CreateContext(lit any) (*Context, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if err := validate(s, lit, nil); err != nil {
		return nil, err
	}
	c, err := s.NewContext()
	if err != nil {
		return nil, err
	}
	if err := c.Set(lit); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases every context and block still open, then closes the
// engine. Calling Close again is a no-op.
func (s *Service) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}

	for _, v := range s.objects.Close() {
		switch o := v.(type) {
		case *ProcessingBlock:
			s.log.Warn("processing block leaked; released on service close",
				zap.String("unit_type", o.unitType),
				zap.String("id", o.id.String()))
			if err := o.release(); err != nil {
				s.log.Warn("release block failed", zap.Error(err))
			}
		case *Context:
			s.log.Warn("context leaked; released on service close")
			if err := o.release(); err != nil {
				s.log.Warn("release context failed", zap.Error(err))
			}
		}
	}

	s.closed = true
	if err := s.bridge.Close(ctx); err != nil {
		return errors.Wrap(errors.PhaseSession, errors.KindNativeFault, err, "close engine")
	}
	return nil
}
