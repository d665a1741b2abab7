package runtime

import (
	"context"
	"reflect"
	"testing"

	"github.com/wippyai/facesdk/data"
	"github.com/wippyai/facesdk/engine"
)

// recordingLib counts native destroys.
type recordingLib struct {
	*engine.Local
	destroyed       int
	blocksDestroyed int
}

func (r *recordingLib) ContextDestroy(h engine.Handle, eh *engine.Exception) {
	r.destroyed++
	r.Local.ContextDestroy(h, eh)
}

func (r *recordingLib) DestroyBlock(b engine.Block, eh *engine.Exception) {
	r.blocksDestroyed++
	r.Local.DestroyBlock(b, eh)
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return newServiceWith(t, engine.NewLocal(testUnits()...), opts...)
}

func newServiceWith(t *testing.T, lib engine.Library, opts ...Option) *Service {
	t.Helper()
	ctx := context.Background()
	svc, err := New(ctx, append([]Option{WithLibrary(lib), WithSDKPath(t.TempDir())}, opts...)...)
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	t.Cleanup(func() { svc.Close(ctx) })
	return svc
}

const (
	unitAdder  = "ADDER"
	unitBroken = "BROKEN"
)

// testUnits registers an adder that writes a=100 and b=2, and a unit that
// scribbles on its input and then faults with code 0x1234.
func testUnits() []engine.LocalOption {
	return []engine.LocalOption{
		engine.WithUnit(unitAdder, func(*data.Value) (engine.Unit, error) {
			return engine.UnitFunc(func(ctx *data.Value) error {
				ctx.Child("a").SetLong(100)
				ctx.Child("b").SetLong(2)
				return nil
			}), nil
		}),
		engine.WithUnit(unitBroken, func(*data.Value) (engine.Unit, error) {
			return engine.UnitFunc(func(ctx *data.Value) error {
				ctx.Child("scribble").SetLong(1)
				return engine.LocalFault(0x1234, "broken unit")
			}), nil
		}),
	}
}

func mustContext(t *testing.T, svc *Service, lit any) *Context {
	t.Helper()
	c, err := svc.CreateContext(lit)
	if err != nil {
		t.Fatalf("create context: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func literalOf(t *testing.T, n Node) any {
	t.Helper()
	v, err := nodeOf(n).ToLiteral()
	if err != nil {
		t.Fatalf("to literal: %v", err)
	}
	return v
}

func assertLiteral(t *testing.T, n Node, want any) {
	t.Helper()
	if got := literalOf(t, n); !reflect.DeepEqual(got, want) {
		t.Fatalf("literal = %#v, want %#v", got, want)
	}
}
