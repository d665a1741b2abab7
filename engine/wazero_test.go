package engine

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/facesdk/errors"
)

var (
	emptyModule = []byte("\x00asm\x01\x00\x00\x00")

	// memoryModule exports a single one-page memory named "memory".
	memoryModule = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x05, 0x03, 0x01, 0x00, 0x01,
		0x07, 0x0a, 0x01, 0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	}
)

func TestNewWazero_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		module []byte
		detail string
	}{
		{"garbage", []byte("not wasm at all"), "compile failed"},
		{"empty module", emptyModule, "no memory"},
		{"no entry points", memoryModule, "missing export " + SymContextCreate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWazero(context.Background(), tt.module, nil)
			if !stderrors.Is(err, errors.ErrLibraryLoad) {
				t.Fatalf("err = %v, want library_load", err)
			}
			if !strings.Contains(err.Error(), tt.detail) {
				t.Fatalf("err = %v, want %q", err, tt.detail)
			}
		})
	}
}

func TestOpenWazero_Missing(t *testing.T) {
	_, err := OpenWazero(context.Background(), filepath.Join(t.TempDir(), "nope.wasm"), nil)
	if !stderrors.Is(err, errors.ErrLibraryLoad) {
		t.Fatalf("err = %v", err)
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Fatalf("err should wrap the stat error: %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "engine.WASM")
	if err := os.WriteFile(bad, emptyModule, 0o644); err != nil {
		t.Fatal(err)
	}
	notLib := filepath.Join(dir, "libopen_source_sdk.so")
	if err := os.WriteFile(notLib, []byte("plain text"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing", filepath.Join(dir, "missing.so")},
		{"wasm by extension", bad},
		{"not a shared library", notLib},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := Open(context.Background(), tt.path, nil)
			if err == nil {
				lib.Close(context.Background())
				t.Fatal("expected error")
			}
			if !stderrors.Is(err, errors.ErrLibraryLoad) {
				t.Fatalf("err = %v, want library_load", err)
			}
		})
	}
}

func TestWazeroMemory(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	mod, err := r.Instantiate(ctx, memoryModule)
	if err != nil {
		t.Fatal(err)
	}
	m := &WazeroMemory{mem: mod.Memory()}

	if m.Size() != 65536 {
		t.Fatalf("size = %d", m.Size())
	}
	if err := m.Write(100, []byte("key\x00rest")); err != nil {
		t.Fatal(err)
	}
	s, err := m.ReadCString(100)
	if err != nil || s != "key" {
		t.Fatalf("ReadCString = %q, %v", s, err)
	}
	if err := m.WriteU32(8, 0xdeadbeef); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.ReadU32(8); v != 0xdeadbeef {
		t.Fatalf("ReadU32 = 0x%x", v)
	}

	if _, err := m.Read(65530, 10); err == nil {
		t.Fatal("read past the end should fail")
	}
	if err := m.Write(65535, []byte{1, 2}); err == nil {
		t.Fatal("write past the end should fail")
	}
	if _, err := m.ReadCString(65536); err == nil {
		t.Fatal("string past the end should fail")
	}
	if err := m.Write(65532, []byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.ReadCString(65532); err == nil || !strings.Contains(err.Error(), "unterminated") {
		t.Fatalf("err = %v", err)
	}

	if _, err := newGuestAllocator(ctx, mod); err == nil {
		t.Fatal("module without an allocator should be rejected")
	}
}
