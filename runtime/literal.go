package runtime

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
)

var (
	contextType = reflect.TypeOf((*Context)(nil))
	refType     = reflect.TypeOf(Ref{})
	scalarType  = reflect.TypeOf(Scalar{})
	numberType  = reflect.TypeOf(json.Number(""))
)

// validate walks lit and reports the first value with no context
// representation. Nothing is allocated.
func validate(svc *Service, lit any, path []string) error {
	return validateValue(svc, reflect.ValueOf(lit), path)
}

func validateValue(svc *Service, v reflect.Value, path []string) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Type() {
	case contextType, refType:
		if v.Kind() == reflect.Pointer && v.IsNil() {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).
				Detail("nil context").
				Build()
		}
		n := v.Interface().(Node).base()
		if err := n.check(); err != nil {
			return err
		}
		if n.svc != svc {
			return errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path(path...).
				Detail("context belongs to another service").
				Build()
		}
		return nil
	case scalarType:
		if s := v.Interface().(Scalar); !s.valid() {
			return errors.New(errors.PhaseEncode, errors.KindUnsupportedLiteral).
				Path(path...).
				Detail("scalar of kind %s", s.Kind).
				Build()
		}
		return nil
	case numberType:
		n := v.Interface().(json.Number)
		if _, err := n.Int64(); err == nil {
			return nil
		}
		if _, err := n.Float64(); err != nil {
			return errors.New(errors.PhaseEncode, errors.KindUnsupportedLiteral).
				Path(path...).
				Detail("malformed number %q", string(n)).
				Cause(err).
				Build()
		}
		return nil
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Interface:
		return validateValue(svc, v.Elem(), path)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return errors.New(errors.PhaseEncode, errors.KindUnsupportedLiteral).
				Path(path...).
				Detail("map key type %s is not a string", v.Type().Key()).
				Build()
		}
		iter := v.MapRange()
		for iter.Next() {
			if err := validateValue(svc, iter.Value(), appendPath(path, iter.Key().String())); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		if isBlob(v) {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := validateValue(svc, v.Index(i), appendPath(path, strconv.Itoa(i))); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.UnsupportedLiteral(path, v.Type().String())
}

func isBlob(v reflect.Value) bool {
	return v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// encoder writes validated literals into native contexts. The literal is
// built under a private root and committed with one copy. Array elements
// are built in scratch contexts, one per nesting depth, and pushed back by
// copy.
type encoder struct {
	svc     *Service
	root    engine.Handle
	scratch []engine.Handle
}

func (e *encoder) close() {
	hs := e.scratch
	if e.root != 0 {
		hs = append(hs, e.root)
	}
	for _, h := range hs {
		if err := e.svc.bridge.Destroy(h); err != nil {
			e.svc.log.Warn("release scratch context failed", zap.Error(err))
		}
	}
	e.root = 0
	e.scratch = nil
}

func (e *encoder) scratchAt(depth int) (engine.Handle, error) {
	for len(e.scratch) <= depth {
		h, err := e.svc.bridge.Create()
		if err != nil {
			return 0, err
		}
		e.scratch = append(e.scratch, h)
	}
	return e.scratch[depth], nil
}

// assign replaces n's value with lit. A fault while encoding leaves n
// untouched, and lit may hold refs into n's own tree.
func (e *encoder) assign(n *node, lit any) error {
	b := e.svc.bridge
	size, err := b.GetLength(n.h)
	if err != nil {
		return err
	}
	if e.root, err = b.Create(); err != nil {
		return err
	}
	if err := e.put(e.root, reflect.ValueOf(lit), 0); err != nil {
		return err
	}
	if err := b.Copy(e.root, n.h); err != nil {
		return err
	}
	if size > 0 {
		n.bump()
	}
	return nil
}

func (e *encoder) put(h engine.Handle, v reflect.Value, depth int) error {
	b := e.svc.bridge
	if !v.IsValid() {
		return b.Clear(h)
	}

	switch x := v.Interface().(type) {
	case *Context:
		return b.Copy(x.h, h)
	case Ref:
		return b.Copy(x.h, h)
	case Scalar:
		return e.scalar(h, x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return b.PutLong(h, i)
		}
		f, _ := x.Float64()
		return b.PutDouble(h, f)
	}

	switch v.Kind() {
	case reflect.Bool:
		return b.PutBool(h, v.Bool())
	case reflect.String:
		return b.PutStr(h, v.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return b.PutLong(h, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return b.PutUnsignedLong(h, v.Uint())
	case reflect.Float32, reflect.Float64:
		return b.PutDouble(h, v.Float())
	case reflect.Interface:
		return e.put(h, v.Elem(), depth)
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			child, err := b.GetOrInsertByKey(h, k.String())
			if err != nil {
				return err
			}
			if err := e.put(child, v.MapIndex(k), depth); err != nil {
				return err
			}
		}
		return nil
	case reflect.Slice, reflect.Array:
		if isBlob(v) {
			return b.PutDataPtr(h, v.Bytes())
		}
		for i := 0; i < v.Len(); i++ {
			s, err := e.scratchAt(depth)
			if err != nil {
				return err
			}
			if err := b.Clear(s); err != nil {
				return err
			}
			if err := e.put(s, v.Index(i), depth+1); err != nil {
				return err
			}
			if err := b.PushBack(h, s, true); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.UnsupportedLiteral(nil, v.Type().String())
}

func (e *encoder) scalar(h engine.Handle, s Scalar) error {
	b := e.svc.bridge
	switch s.Kind {
	case KindBool:
		return b.PutBool(h, s.Bool)
	case KindLong:
		return b.PutLong(h, s.Long)
	case KindUnsignedLong:
		return b.PutUnsignedLong(h, s.UnsignedLong)
	case KindDouble:
		return b.PutDouble(h, s.Double)
	case KindString:
		return b.PutStr(h, s.String)
	case KindDataPtr:
		return b.PutDataPtr(h, s.Bytes)
	}
	return b.Clear(h)
}
