package runtime

import (
	"encoding/json"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
)

type label string

func TestCreateContext(t *testing.T) {
	svc := newService(t)
	inner := mustContext(t, svc, map[string]any{"x": 1})
	innerX, _ := inner.Get("x")

	tests := []struct {
		name string
		lit  any
		want any
	}{
		{"nil", nil, nil},
		{"empty slice", []any{}, nil},
		{"typed map", map[string]int{"b": 2, "a": 1}, map[string]any{"a": int64(1), "b": int64(2)}},
		{"named string", label("face"), "face"},
		{"array value", [2]float64{0.5, 1}, []any{0.5, 1.0}},
		{"nested slices", [][]int{{1}, {2, 3}}, []any{[]any{int64(1)}, []any{int64(2), int64(3)}}},
		{"json number int", json.Number("12"), int64(12)},
		{"json number float", json.Number("1.5"), 1.5},
		{"bytes scalar", BytesValue([]byte{9}), []byte{9}},
		{"context copy", map[string]any{"c": inner}, map[string]any{"c": map[string]any{"x": int64(1)}}},
		{"ref copy", []any{innerX}, []any{int64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := svc.CreateContext(tt.lit)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			defer c.Close()
			got := literalOf(t, c)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("literal = %#v, want %#v", got, tt.want)
			}
		})
	}

	assertLiteral(t, inner, map[string]any{"x": int64(1)})
}

func TestCreateContext_Unsupported(t *testing.T) {
	lib := &recordingLib{Local: engine.NewLocal()}
	svc := newServiceWith(t, lib)

	tests := []struct {
		name string
		lit  any
		kind errors.Kind
		path []string
	}{
		{"struct", struct{}{}, errors.KindUnsupportedLiteral, nil},
		{"channel in map", map[string]any{"a": 1, "ch": make(chan int)}, errors.KindUnsupportedLiteral, []string{"ch"}},
		{"deep", map[string]any{"a": map[string]any{"b": []any{1, func() {}}}}, errors.KindUnsupportedLiteral, []string{"a", "b", "1"}},
		{"int keys", map[int]string{1: "a"}, errors.KindUnsupportedLiteral, nil},
		{"pointer", new(int), errors.KindUnsupportedLiteral, nil},
		{"bad number", json.Number("x1"), errors.KindUnsupportedLiteral, nil},
		{"nil context", map[string]any{"c": (*Context)(nil)}, errors.KindInvalidInput, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, _ := lib.Live()
			_, err := svc.CreateContext(tt.lit)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("err = %v", err)
			}
			if e.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", e.Kind, tt.kind)
			}
			if tt.path != nil && !reflect.DeepEqual(e.Path, tt.path) {
				t.Fatalf("path = %v, want %v", e.Path, tt.path)
			}
			if after, _ := lib.Live(); after != before {
				t.Fatalf("native contexts %d -> %d", before, after)
			}
		})
	}
}

func TestCreateContext_ForeignContext(t *testing.T) {
	a := newService(t)
	b := newService(t)
	c := mustContext(t, a, 1)

	if _, err := b.CreateContext([]any{c}); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("err = %v, want invalid_input", err)
	}
	if err := mustContext(t, b, nil).PushBack(c); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("push back: err = %v, want invalid_input", err)
	}
}

func TestSet_ReplacesContainer(t *testing.T) {
	svc := newService(t)
	c := mustContext(t, svc, map[string]any{"old": 1, "keep": 2})
	old, _ := c.Get("old")

	if err := c.Set(map[string]any{"new": "v"}); err != nil {
		t.Fatal(err)
	}
	assertLiteral(t, c, map[string]any{"new": "v"})
	if _, err := old.Long(); !stderrors.Is(err, errors.ErrStaleReference) {
		t.Fatalf("err = %v, want stale_reference", err)
	}

	// A rejected literal leaves the value untouched.
	if err := c.Set([]any{make(chan int)}); !stderrors.Is(err, errors.ErrUnsupportedLiteral) {
		t.Fatalf("err = %v", err)
	}
	assertLiteral(t, c, map[string]any{"new": "v"})
}

func TestSet_FaultKeepsValue(t *testing.T) {
	svc := newService(t)
	c := mustContext(t, svc, map[string]any{"keep": 7})
	keep, _ := c.Get("keep")

	// "a" encodes first; the oversized string faults after it.
	err := c.Set(map[string]any{"a": 1, "z": strings.Repeat("z", engine.MaxStrSize)})
	if err == nil {
		t.Fatal("expected fault")
	}
	assertLiteral(t, c, map[string]any{"keep": int64(7)})
	if v, err := keep.Long(); err != nil || v != 7 {
		t.Fatalf("keep = %d, %v", v, err)
	}
}

func TestSet_FromOwnTree(t *testing.T) {
	svc := newService(t)

	t.Run("subtree over its root", func(t *testing.T) {
		c := mustContext(t, svc, map[string]any{"x": map[string]any{"y": 1}, "z": 2})
		x, _ := c.Get("x")
		if err := c.Set(x); err != nil {
			t.Fatal(err)
		}
		assertLiteral(t, c, map[string]any{"y": int64(1)})
	})

	t.Run("nested in a literal", func(t *testing.T) {
		c := mustContext(t, svc, []any{1, 2})
		second, _ := c.Index(1)
		if err := c.Set(map[string]any{"second": second, "all": c}); err != nil {
			t.Fatal(err)
		}
		assertLiteral(t, c, map[string]any{
			"second": int64(2),
			"all":    []any{int64(1), int64(2)},
		})
		if _, err := second.Long(); !stderrors.Is(err, errors.ErrStaleReference) {
			t.Fatalf("err = %v, want stale_reference", err)
		}
	})
}
