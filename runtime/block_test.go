package runtime

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/wippyai/facesdk/artifact"
	"github.com/wippyai/facesdk/data"
	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
)

func mustBlock(t *testing.T, svc *Service, cfg map[string]any) *ProcessingBlock {
	t.Helper()
	b, err := svc.CreateProcessingBlock(context.Background(), cfg)
	if err != nil {
		t.Fatalf("create block: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestProcessMap_OnlyNewKeys(t *testing.T) {
	svc := newService(t)
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitAdder})

	m := map[string]any{"a": 1}
	if err := blk.ProcessMap(m); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"a": 1, "b": int64(2)}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("m = %#v, want %#v", m, want)
	}
}

func TestProcess_InPlace(t *testing.T) {
	svc := newService(t)
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitAdder})

	c := mustContext(t, svc, map[string]any{"a": 1, "keep": "x"})
	before, _ := c.Get("keep")
	if err := blk.Process(c); err != nil {
		t.Fatal(err)
	}
	assertLiteral(t, c, map[string]any{"a": int64(100), "b": int64(2), "keep": "x"})

	if _, err := before.String(); !stderrors.Is(err, errors.ErrStaleReference) {
		t.Fatalf("err = %v, want stale_reference", err)
	}

	// Processing a subtree through a Ref.
	nested := mustContext(t, svc, map[string]any{"sub": map[string]any{}})
	sub, _ := nested.GetOrInsert("sub")
	if err := blk.Process(sub); err != nil {
		t.Fatal(err)
	}
	assertLiteral(t, nested, map[string]any{"sub": map[string]any{"a": int64(100), "b": int64(2)}})
}

func TestProcess_FaultLeavesContext(t *testing.T) {
	svc := newService(t)
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitBroken})
	c := mustContext(t, svc, map[string]any{"a": 1})

	err := blk.Process(c)
	if !stderrors.Is(err, errors.ErrNativeFault) {
		t.Fatalf("err = %v, want native_fault", err)
	}
	if errors.CodeOf(err) != 0x1234 {
		t.Fatalf("code = 0x%08x", errors.CodeOf(err))
	}
	assertLiteral(t, c, map[string]any{"a": int64(1)})

	m := map[string]any{"a": 1}
	if err := blk.ProcessMap(m); err == nil {
		t.Fatal("expected fault")
	}
	if len(m) != 1 {
		t.Fatalf("m = %v", m)
	}
}

func TestCall(t *testing.T) {
	svc := newService(t)
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitAdder})
	c := mustContext(t, svc, nil)
	r, _ := c.GetOrInsert("r")

	tests := []struct {
		name string
		arg  any
		code uint32
	}{
		{"ref", r, 0},
		{"context", c, 0},
		{"map", map[string]any{}, 0},
		{"string", "ctx", engine.CodeWrongContextType},
		{"typed map", map[string]int{}, engine.CodeWrongContextType},
		{"nil", nil, engine.CodeWrongContextType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := blk.Call(tt.arg)
			if tt.code == 0 {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if !stderrors.Is(err, errors.ErrInvalidInput) || errors.CodeOf(err) != tt.code {
				t.Fatalf("err = %v, want invalid_input with code 0x%08x", err, tt.code)
			}
		})
	}

	if err := blk.Call((*Context)(nil)); !stderrors.Is(err, errors.ErrInvalidInput) {
		t.Fatalf("nil context: err = %v", err)
	}
}

func TestCreateProcessingBlock_Config(t *testing.T) {
	var got *data.Value
	capture := engine.WithUnit("CAPTURE", func(cfg *data.Value) (engine.Unit, error) {
		got = cfg.Clone()
		return engine.UnitFunc(func(*data.Value) error { return nil }), nil
	})
	svc := newServiceWith(t, engine.NewLocal(capture),
		WithBinariesPath("/opt/bin"),
		WithUnitDefaults("CAPTURE", map[string]any{"threshold": 0.5, "mode": "fast"}))

	cfg := map[string]any{"unit_type": "CAPTURE", "mode": "slow"}
	blk := mustBlock(t, svc, cfg)

	if len(cfg) != 2 {
		t.Fatalf("caller config mutated: %v", cfg)
	}

	str := func(path ...string) string {
		t.Helper()
		v := got
		for _, p := range path {
			var ok bool
			if v, ok = v.Lookup(p); !ok {
				t.Fatalf("config has no %v", path)
			}
		}
		s, _ := v.Str()
		return s
	}
	if s := str("@sdk_path"); s != svc.SDKPath() {
		t.Fatalf("@sdk_path = %q, want %q", s, svc.SDKPath())
	}
	if s := str("ONNXRuntime", "library_path"); s != onnxRuntimeDir("/opt/bin") {
		t.Fatalf("library_path = %q", s)
	}
	if s := str("mode"); s != "slow" {
		t.Fatalf("mode = %q, caller value should win", s)
	}
	th, _ := got.Lookup("threshold")
	if f, _ := th.Double(); f != 0.5 {
		t.Fatalf("threshold = %v", f)
	}

	if blk.UnitType() != "CAPTURE" {
		t.Fatalf("unit type = %q", blk.UnitType())
	}
	if blk.Config()["@sdk_path"] != svc.SDKPath() {
		t.Fatalf("block config = %v", blk.Config())
	}
}

func TestCreateProcessingBlock_KeepsONNXRuntime(t *testing.T) {
	svc := newService(t)
	onnx := map[string]any{"intra_op_num_threads": 2}
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitAdder, "ONNXRuntime": onnx})

	if len(onnx) != 1 {
		t.Fatalf("caller ONNXRuntime map mutated: %v", onnx)
	}
	got := blk.Config()["ONNXRuntime"].(map[string]any)
	if got["intra_op_num_threads"] != 2 || got["library_path"] != onnxRuntimeDir(svc.BinariesPath()) {
		t.Fatalf("ONNXRuntime = %v", got)
	}

	custom := mustBlock(t, svc, map[string]any{
		"unit_type":   unitAdder,
		"ONNXRuntime": map[string]any{"library_path": "/custom"},
	})
	if lp := custom.Config()["ONNXRuntime"].(map[string]any)["library_path"]; lp != "/custom" {
		t.Fatalf("library_path = %v", lp)
	}
}

func TestCreateProcessingBlock_Errors(t *testing.T) {
	lib := &recordingLib{Local: engine.NewLocal(testUnits()...)}
	svc := newServiceWith(t, lib)
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  map[string]any
		want error
		code uint32
	}{
		{"no unit type", map[string]any{}, errors.ErrInvalidInput, 0},
		{"empty unit type", map[string]any{"unit_type": ""}, errors.ErrInvalidInput, 0},
		{"unit type not a string", map[string]any{"unit_type": 3}, errors.ErrInvalidInput, 0},
		{"unknown unit", map[string]any{"unit_type": "NOPE"}, errors.ErrNativeFault, engine.CodeCreateBlock},
		{"bad literal", map[string]any{"unit_type": unitAdder, "x": struct{}{}}, errors.ErrUnsupportedLiteral, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProcessingBlock(ctx, tt.cfg)
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if tt.code != 0 && errors.CodeOf(err) != tt.code {
				t.Fatalf("code = 0x%08x", errors.CodeOf(err))
			}
			if contexts, blocks := lib.Live(); contexts != 0 || blocks != 0 {
				t.Fatalf("live contexts=%d blocks=%d", contexts, blocks)
			}
		})
	}
}

func TestCreateProcessingBlock_Artifacts(t *testing.T) {
	var asked []string
	provider := artifact.ProviderFunc(func(_ context.Context, unitType string) error {
		asked = append(asked, unitType)
		if unitType == unitBroken {
			return errors.MissingArtifact(unitType, []string{"data/models/broken.onnx"})
		}
		return nil
	})
	svc := newService(t, WithArtifactProvider(provider))

	mustBlock(t, svc, map[string]any{"unit_type": unitAdder})
	_, err := svc.CreateProcessingBlock(context.Background(), map[string]any{"unit_type": unitBroken})
	if !stderrors.Is(err, errors.ErrMissingArtifact) {
		t.Fatalf("err = %v, want missing_artifact", err)
	}
	if !reflect.DeepEqual(asked, []string{unitAdder, unitBroken}) {
		t.Fatalf("provider asked for %v", asked)
	}
	if _, blocks := svc.Live(); blocks != 1 {
		t.Fatalf("blocks = %d", blocks)
	}
}

func TestProcessingBlock_Close(t *testing.T) {
	lib := &recordingLib{Local: engine.NewLocal(testUnits()...)}
	svc := newServiceWith(t, lib)
	blk := mustBlock(t, svc, map[string]any{"unit_type": unitAdder})

	if err := blk.Close(); err != nil {
		t.Fatal(err)
	}
	if err := blk.Close(); err != nil {
		t.Fatal(err)
	}
	if lib.blocksDestroyed != 1 {
		t.Fatalf("destroyed %d times", lib.blocksDestroyed)
	}
	if err := blk.ProcessMap(map[string]any{}); !stderrors.Is(err, errors.ErrClosed) {
		t.Fatalf("err = %v, want closed", err)
	}
}

// detectorUnit checks the image layout and reports one face.
func detectorUnit(cfg *data.Value) (engine.Unit, error) {
	if _, ok := cfg.Lookup("model_path"); !ok {
		return nil, engine.LocalFault(engine.CodeCreateBlock, "no model_path")
	}
	return engine.UnitFunc(func(ctx *data.Value) error {
		img, ok := ctx.Lookup("image")
		if !ok {
			return engine.LocalFault(0x0b5e55ed, "no image")
		}
		field := func(k string) *data.Value {
			v, _ := img.Lookup(k)
			if v == nil {
				return data.New()
			}
			return v
		}
		if f, _ := field("format").Str(); f != "NDARRAY" {
			return engine.LocalFault(0x0b5e55ee, "format %q", f)
		}
		if d, _ := field("dtype").Str(); d != "uint8_t" {
			return engine.LocalFault(0x0b5e55ef, "dtype %q", d)
		}
		size := int64(1)
		for _, dim := range field("shape").Items() {
			n, _ := dim.Long()
			size *= n
		}
		blob, _ := field("blob").Bytes()
		if int64(len(blob)) != size {
			return engine.LocalFault(0x0b5e55f0, "blob has %d bytes, shape needs %d", len(blob), size)
		}

		obj := ctx.Child("objects").AppendNew()
		obj.Child("id").SetLong(0)
		obj.Child("class").SetString("face")
		obj.Child("confidence").SetDouble(0.9)
		bbox := obj.Child("bbox")
		for _, f := range []float64{0.1, 0.2, 0.8, 0.9} {
			bbox.AppendNew().SetDouble(f)
		}
		return nil
	}), nil
}

func TestDetector_EndToEnd(t *testing.T) {
	svc := newServiceWith(t, engine.NewLocal(engine.WithUnit("FACE_DETECTOR", detectorUnit)))
	blk := mustBlock(t, svc, map[string]any{"unit_type": "FACE_DETECTOR"})

	io := mustContext(t, svc, map[string]any{
		"image": map[string]any{
			"blob":   make([]byte, 12),
			"dtype":  "uint8_t",
			"format": "NDARRAY",
			"shape":  []any{1, 2, 2, 3},
		},
	})
	if err := blk.Process(io); err != nil {
		t.Fatal(err)
	}

	objects, err := io.Get("objects")
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := objects.Len(); n != 1 {
		t.Fatalf("objects = %d", n)
	}
	face, _ := objects.Index(0)
	assertLiteral(t, face, map[string]any{
		"id":         int64(0),
		"class":      "face",
		"confidence": 0.9,
		"bbox":       []any{0.1, 0.2, 0.8, 0.9},
	})

	// The input is still there, untouched.
	img, _ := io.Get("image")
	shape, _ := img.Get("shape")
	assertLiteral(t, shape, []any{int64(1), int64(2), int64(2), int64(3)})

	// The same image through the map form.
	m := map[string]any{"image": literalOf(t, img)}
	if err := blk.ProcessMap(m); err != nil {
		t.Fatal(err)
	}
	if objs, ok := m["objects"].([]any); !ok || len(objs) != 1 {
		t.Fatalf("objects = %#v", m["objects"])
	}

	bad := map[string]any{"image": map[string]any{
		"blob": make([]byte, 11), "dtype": "uint8_t", "format": "NDARRAY", "shape": []any{1, 2, 2, 3},
	}}
	if err := blk.ProcessMap(bad); errors.CodeOf(err) != 0x0b5e55f0 {
		t.Fatalf("err = %v", err)
	}
}

func TestDetector_DefaultModelPath(t *testing.T) {
	var modelPath string
	unit := func(cfg *data.Value) (engine.Unit, error) {
		v, _ := cfg.Lookup("model_path")
		modelPath, _ = v.Str()
		return detectorUnit(cfg)
	}
	svc := newServiceWith(t, engine.NewLocal(engine.WithUnit("FACE_DETECTOR", unit)))
	mustBlock(t, svc, map[string]any{"unit_type": "FACE_DETECTOR"})

	want := filepath.Join(svc.SDKPath(), "data/models/face_detector/face.onnx")
	if modelPath != want {
		t.Fatalf("model_path = %q, want %q", modelPath, want)
	}
}
