package artifact

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/facesdk/errors"
)

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()

	tests := []struct {
		unit  string
		files int
	}{
		{"FACE_DETECTOR", 1},
		{"MATCHER_MODULE", 0},
		{UnitLiveness, 2},
		{UnitPose, 2},
	}
	for _, tt := range tests {
		t.Run(tt.unit, func(t *testing.T) {
			if !m.Known(tt.unit) {
				t.Fatal("unit not listed")
			}
			if n := len(m.Files(tt.unit)); n != tt.files {
				t.Fatalf("files = %d, want %d", n, tt.files)
			}
		})
	}

	for _, u := range m.Units() {
		for _, f := range m[u] {
			if len(f) < len(ModelsDir) || f[:len(ModelsDir)] != ModelsDir {
				t.Errorf("%s: %s is outside %s", u, f, ModelsDir)
			}
		}
	}
}

func TestManifest_Merge(t *testing.T) {
	base := Manifest{"A": {"a"}, "B": {"b"}}
	merged := base.Merge(Manifest{"B": {"b2"}, "C": nil})

	if len(merged) != 3 || merged["B"][0] != "b2" {
		t.Fatalf("merged = %v", merged)
	}
	if base["B"][0] != "b" {
		t.Fatal("Merge modified the receiver")
	}
}

func TestManifest_Files_Copy(t *testing.T) {
	m := Manifest{"A": {"a"}}
	f := m.Files("A")
	f[0] = "changed"
	if m["A"][0] != "a" {
		t.Fatal("Files must return a copy")
	}
}

func TestCheckOnly(t *testing.T) {
	root := t.TempDir()
	m := Manifest{"FACE_DETECTOR": {"data/models/face_detector/face.onnx"}}
	p := CheckOnly{Manifest: m, Root: root}

	err := p.Ensure(context.Background(), "FACE_DETECTOR")
	if !stderrors.Is(err, errors.ErrMissingArtifact) {
		t.Fatalf("err = %v, want missing_artifact", err)
	}

	path := filepath.Join(root, "data", "models", "face_detector", "face.onnx")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(context.Background(), "FACE_DETECTOR"); err != nil {
		t.Fatalf("Ensure after writing file: %v", err)
	}
}
