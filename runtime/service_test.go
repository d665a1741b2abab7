package runtime

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/facesdk/engine"
	"github.com/wippyai/facesdk/errors"
)

func TestNew_LibraryLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		opts []Option
	}{
		{"platform layout missing", []Option{WithSDKPath(dir)}},
		{"explicit path missing", []Option{WithLibraryPath(filepath.Join(dir, "engine.so"))}},
		{"wasm not a module", []Option{WithLibraryPath(writeFile(t, dir, "engine.wasm", "nope"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(ctx, tt.opts...)
			if err == nil {
				svc.Close(ctx)
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrLibraryLoad) {
				t.Fatalf("err = %v, want library_load", err)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNew_Paths(t *testing.T) {
	dir := t.TempDir()
	svc := newServiceWith(t, engine.NewLocal(), WithSDKPath(dir))

	if svc.SDKPath() != dir {
		t.Fatalf("sdk path = %q, want %q", svc.SDKPath(), dir)
	}
	if svc.BinariesPath() != binariesDir(dir) {
		t.Fatalf("binaries path = %q", svc.BinariesPath())
	}
	if svc.LibraryPath() != "" {
		t.Fatalf("library path = %q for an injected engine", svc.LibraryPath())
	}
}

func TestPlatformLayout(t *testing.T) {
	tests := []struct {
		goos, bin, lib, onnx string
	}{
		{
			"linux",
			"/sdk/for_linux",
			"/sdk/for_linux/open_source_sdk/libopen_source_sdk.so",
			"/sdk/for_linux/onnxruntime-linux-x86-64-shared-install-dir",
		},
		{
			"darwin",
			"/sdk/for_linux",
			"/sdk/for_linux/open_source_sdk/libopen_source_sdk.so",
			"/sdk/for_linux/onnxruntime-linux-x86-64-shared-install-dir",
		},
		{
			"windows",
			"/sdk/for_windows",
			"/sdk/for_windows/open_source_sdk/open_source_sdk.dll",
			"/sdk/for_windows/onnxruntime-windows-x86-64-shared-install-dir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			bin := binariesDirFor(tt.goos, "/sdk")
			if bin != filepath.FromSlash(tt.bin) {
				t.Fatalf("binaries = %q", bin)
			}
			if got := libraryFileFor(tt.goos, bin); got != filepath.FromSlash(tt.lib) {
				t.Fatalf("library = %q", got)
			}
			if got := onnxRuntimeDirFor(tt.goos, bin); got != filepath.FromSlash(tt.onnx) {
				t.Fatalf("onnx = %q", got)
			}
		})
	}
}

func TestService_CloseReleasesLeaks(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	lib := &recordingLib{Local: engine.NewLocal(testUnits()...)}

	svc, err := New(ctx, WithLibrary(lib), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatal(err)
	}

	blk, err := svc.CreateProcessingBlock(ctx, map[string]any{"unit_type": unitAdder})
	if err != nil {
		t.Fatal(err)
	}
	leaked, err := svc.CreateContext(map[string]any{"a": 1})
	if err != nil {
		t.Fatal(err)
	}
	closed, err := svc.NewContext()
	if err != nil {
		t.Fatal(err)
	}
	if err := closed.Close(); err != nil {
		t.Fatal(err)
	}

	if contexts, blocks := svc.Live(); contexts != 1 || blocks != 1 {
		t.Fatalf("live contexts=%d blocks=%d", contexts, blocks)
	}
	lib.destroyed = 0

	if err := svc.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if lib.destroyed != 1 || lib.blocksDestroyed != 1 {
		t.Fatalf("destroyed contexts=%d blocks=%d", lib.destroyed, lib.blocksDestroyed)
	}
	if n := logs.FilterMessage("context leaked; released on service close").Len(); n != 1 {
		t.Fatalf("context leak warnings = %d", n)
	}
	if n := logs.FilterMessage("processing block leaked; released on service close").Len(); n != 1 {
		t.Fatalf("block leak warnings = %d", n)
	}

	// Everything fails with closed afterwards; closing leftovers is a no-op.
	checks := []struct {
		name string
		err  error
	}{
		{"context op", func() error { _, err := leaked.Len(); return err }()},
		{"new context", func() error { _, err := svc.NewContext(); return err }()},
		{"create context", func() error { _, err := svc.CreateContext(1); return err }()},
		{"create block", func() error {
			_, err := svc.CreateProcessingBlock(ctx, map[string]any{"unit_type": unitAdder})
			return err
		}()},
		{"process", blk.ProcessMap(map[string]any{})},
	}
	for _, c := range checks {
		if !stderrors.Is(c.err, errors.ErrClosed) {
			t.Errorf("%s: err = %v, want closed", c.name, c.err)
		}
	}
	if err := leaked.Close(); err != nil {
		t.Fatal(err)
	}
	if err := blk.Close(); err != nil {
		t.Fatal(err)
	}
	if lib.destroyed != 1 || lib.blocksDestroyed != 1 {
		t.Fatal("leftovers destroyed twice")
	}
}

func TestService_Live(t *testing.T) {
	svc := newService(t)
	a := mustContext(t, svc, nil)
	clone, err := a.Clone()
	if err != nil {
		t.Fatal(err)
	}
	if contexts, _ := svc.Live(); contexts != 2 {
		t.Fatalf("contexts = %d", contexts)
	}
	clone.Close()
	if contexts, _ := svc.Live(); contexts != 1 {
		t.Fatalf("contexts after close = %d", contexts)
	}
}
