package artifact

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/wippyai/facesdk/errors"
)

func testManifest() Manifest {
	return Manifest{
		"FACE_DETECTOR":  {"data/models/face_detector/face.onnx"},
		"MATCHER_MODULE": nil,
		UnitLiveness: {
			"data/models/liveness_estimator/liveness_2_7.onnx",
			"data/models/liveness_estimator/liveness_4_0.onnx",
		},
	}
}

func TestHTTPProvider_Downloads(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/models/face_detector/face.onnx" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("onnx-bytes"))
	}))
	defer srv.Close()

	root := t.TempDir()
	p := NewHTTPProvider(root, WithBaseURL(srv.URL+"/models"), WithManifest(testManifest()))

	if err := p.Ensure(context.Background(), "FACE_DETECTOR"); err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(root, "data", "models", "face_detector", "face.onnx"))
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(got) != "onnx-bytes" {
		t.Fatalf("model = %q", got)
	}

	// Present files are not fetched again.
	if err := p.Ensure(context.Background(), "FACE_DETECTOR"); err != nil {
		t.Fatalf("second Ensure: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hit %d times, want 1", hits.Load())
	}

	entries, _ := os.ReadDir(filepath.Join(root, "data", "models", "face_detector"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".part") {
			t.Fatalf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestHTTPProvider_NonOKSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "liveness_2_7.onnx") {
			w.Write([]byte("a"))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	root := t.TempDir()
	p := NewHTTPProvider(root, WithBaseURL(srv.URL), WithManifest(testManifest()))

	err := p.Ensure(context.Background(), UnitLiveness)
	if !stderrors.Is(err, errors.ErrMissingArtifact) {
		t.Fatalf("err = %v, want missing_artifact", err)
	}

	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatal("expected *errors.Error")
	}
	files, _ := e.Value.([]string)
	if len(files) != 1 || !strings.HasSuffix(files[0], "liveness_4_0.onnx") {
		t.Fatalf("missing = %v", files)
	}
	if e.Cause == nil || !strings.Contains(e.Cause.Error(), "403") {
		t.Fatalf("cause = %v", e.Cause)
	}

	if _, err := os.Stat(filepath.Join(root, "data", "models", "liveness_estimator", "liveness_2_7.onnx")); err != nil {
		t.Fatalf("successful file not kept: %v", err)
	}
}

func TestHTTPProvider_NoNetworkNeeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	}))
	defer srv.Close()

	p := NewHTTPProvider(t.TempDir(), WithBaseURL(srv.URL), WithManifest(testManifest()))

	for _, unit := range []string{"MATCHER_MODULE", "UNKNOWN_UNIT"} {
		t.Run(unit, func(t *testing.T) {
			if err := p.Ensure(context.Background(), unit); err != nil {
				t.Fatalf("Ensure: %v", err)
			}
		})
	}
}

func TestHTTPProvider_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewHTTPProvider(t.TempDir(), WithBaseURL("http://127.0.0.1:1"), WithManifest(testManifest()))
	err := p.Ensure(ctx, "FACE_DETECTOR")
	if !stderrors.Is(err, errors.ErrMissingArtifact) {
		t.Fatalf("err = %v", err)
	}
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("err should wrap context.Canceled: %v", err)
	}
}

func TestHTTPProvider_URL(t *testing.T) {
	p := NewHTTPProvider("/sdk")
	got := p.URL("data/models/face_detector/face.onnx")
	want := DefaultBaseURL + "face_detector/face.onnx"
	if got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
}
