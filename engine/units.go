package engine

import (
	"math"
	"sort"
	"sync"

	"github.com/wippyai/facesdk/data"
	"github.com/wippyai/facesdk/errors"
)

// Unit is a processing unit run by the in-process engine. Process reads its
// inputs from ctx and writes results back into it. Process runs on a copy of
// the caller's context; the copy replaces the original only if Process
// returns nil.
type Unit interface {
	Process(ctx *data.Value) error
}

// UnitFunc adapts a function to the Unit interface.
type UnitFunc func(ctx *data.Value) error

func (f UnitFunc) Process(ctx *data.Value) error { return f(ctx) }

// UnitFactory builds a unit from its block configuration. The configuration
// has unit_type, @sdk_path and model paths already filled in.
type UnitFactory func(config *data.Value) (Unit, error)

// Registry maps unit types to factories.
type Registry struct {
	factories map[string]UnitFactory
	mu        sync.RWMutex
}

// NewRegistry creates a registry holding the built-in units.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]UnitFactory)}
	r.Register(UnitMatcher, newMatcher)
	return r
}

// Register adds or replaces the factory for unitType.
func (r *Registry) Register(unitType string, f UnitFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[unitType] = f
}

// Lookup returns the factory for unitType.
func (r *Registry) Lookup(unitType string) (UnitFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[unitType]
	return f, ok
}

// Types returns the registered unit types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// UnitMatcher compares two face templates.
const UnitMatcher = "MATCHER_MODULE"

// DefaultMatchThreshold is the squared distance below which two templates
// are reported as the same person.
const DefaultMatchThreshold = 1.175

type matcher struct {
	threshold float64
}

func newMatcher(config *data.Value) (Unit, error) {
	m := &matcher{threshold: DefaultMatchThreshold}
	if v, ok := config.Lookup("threshold"); ok {
		t, ok := v.Number()
		if !ok {
			return nil, errors.New(errors.PhaseProcess, errors.KindTypeMismatch).
				Path("threshold").
				Detail("expected number, got %s", v.Kind()).
				Build()
		}
		m.threshold = t
	}
	return m, nil
}

// Matcher fault codes.
const (
	CodeMatcherNoInput  uint32 = 0x0219d2b3
	CodeMatcherObjects  uint32 = 0x4c0d78cd
	codeMatcherTemplate uint32 = 0x4c0d78ce
)

// Process compares verification.objects[0] and [1] and writes
// verification.result.{distance,verdict}. A template is a blob of
// little-endian float32 or an array of numbers; template_size, when
// present, limits how many elements are compared.
func (m *matcher) Process(ctx *data.Value) error {
	ver, ok := ctx.Lookup("verification")
	if !ok {
		return errors.New(errors.PhaseProcess, errors.KindInvalidInput).
			Code(CodeMatcherNoInput).
			Detail("No input data for verification").
			Build()
	}
	objects, ok := ver.Lookup("objects")
	if !ok || objects.Kind() != data.KindArray || objects.Len() != 2 {
		return errors.New(errors.PhaseProcess, errors.KindInvalidInput).
			Code(CodeMatcherObjects).
			Path("verification", "objects").
			Detail("expected exactly two objects").
			Build()
	}

	first, _ := objects.Index(0)
	second, _ := objects.Index(1)
	a, err := templateOf(first)
	if err != nil {
		return err
	}
	b, err := templateOf(second)
	if err != nil {
		return err
	}
	n := min(len(a), len(b))
	if sz, ok := first.Lookup("template_size"); ok {
		if l, ok := sz.Number(); ok && int(l) < n {
			n = int(l)
		}
	}

	var dist float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		dist += d * d
	}
	if math.IsNaN(float64(dist)) {
		return errors.New(errors.PhaseProcess, errors.KindInvalidInput).
			Code(codeMatcherTemplate).
			Detail("template holds NaN").
			Build()
	}

	result := ver.Child("result")
	result.Child("distance").SetDouble(float64(dist))
	result.Child("verdict").SetBool(float64(dist) < m.threshold)
	return nil
}

func templateOf(obj *data.Value) ([]float32, error) {
	tmpl, ok := obj.Lookup("template")
	if !ok {
		return nil, errors.New(errors.PhaseProcess, errors.KindNotFound).
			Code(codeMatcherTemplate).
			Detail("object has no template").
			Build()
	}

	switch tmpl.Kind() {
	case data.KindDataPtr:
		b, _ := tmpl.Bytes()
		return data.Float32s(b), nil
	case data.KindArray:
		out := make([]float32, 0, tmpl.Len())
		for _, it := range tmpl.Items() {
			f, ok := it.Number()
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseProcess, []string{"template"}, "number", it.Kind().String())
			}
			out = append(out, float32(f))
		}
		return out, nil
	case data.KindObject:
		// The recognizer stores the blob under its model name.
		for _, k := range tmpl.Keys() {
			v, _ := tmpl.Lookup(k)
			if b, ok := v.Bytes(); ok {
				return data.Float32s(b), nil
			}
		}
	}
	return nil, errors.TypeMismatch(errors.PhaseProcess, []string{"template"}, "float32 blob", tmpl.Kind().String())
}
