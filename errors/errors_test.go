package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "native fault",
			err: &Error{
				Phase:  PhaseBridge,
				Kind:   KindNativeFault,
				Op:     "TDVContext_getByIndex",
				Code:   0x6ba98764,
				Detail: "index out of range",
			},
			contains: []string{"[bridge]", "native_fault", "TDVContext_getByIndex", "0x6ba98764", "index out of range"},
		},
		{
			name: "path error",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindUnsupportedLiteral,
				Path:   []string{"image", "shape", "0"},
				Detail: "no representation",
			},
			contains: []string{"[encode]", "unsupported_literal", "image.shape.0", "no representation"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[decode]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindLibraryLoad,
				Detail: "dlopen failed",
				Cause:  errors.New("no such file"),
			},
			contains: []string{"[load]", "library_load", "dlopen failed", "caused by", "no such file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !containsSubstring(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := LibraryLoad("/opt/sdk/lib.so", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseBridge,
		Kind:  KindOutOfBounds,
		Code:  0x6ba98764,
	}

	tests := []struct {
		name   string
		target *Error
		want   bool
	}{
		{"sentinel", ErrIndexOutOfRange, true},
		{"same phase and kind", &Error{Phase: PhaseBridge, Kind: KindOutOfBounds}, true},
		{"different phase", &Error{Phase: PhaseDecode, Kind: KindOutOfBounds}, false},
		{"different kind", &Error{Phase: PhaseBridge, Kind: KindTypeMismatch}, false},
		{"same code", &Error{Kind: KindOutOfBounds, Code: 0x6ba98764}, true},
		{"different code", &Error{Kind: KindOutOfBounds, Code: 0x1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(err, tt.target); got != tt.want {
				t.Errorf("errors.Is = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestError_IsWrapped(t *testing.T) {
	inner := Native("TDVContext_getLong", 0x2353ead7, "not a number")
	inner.Kind = KindTypeMismatch
	outer := fmt.Errorf("reading score: %w", inner)

	if !errors.Is(outer, ErrTypeMismatch) {
		t.Error("errors.Is should see through fmt wrapping")
	}
	var e *Error
	if !errors.As(outer, &e) {
		t.Fatal("errors.As failed")
	}
	if e.Op != "TDVContext_getLong" {
		t.Errorf("Op = %q", e.Op)
	}
	if CodeOf(outer) != 0x2353ead7 {
		t.Errorf("CodeOf = %#x", CodeOf(outer))
	}
	if CodeOf(errors.New("plain")) != 0 {
		t.Error("CodeOf on a plain error should be 0")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindUnsupportedLiteral).
		Path("user", "name").
		Op("encode").
		Code(7).
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "chan").
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindUnsupportedLiteral {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupportedLiteral)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "name" {
		t.Errorf("Path = %v, want [user name]", err.Path)
	}
	if err.Op != "encode" || err.Code != 7 {
		t.Errorf("Op=%v Code=%v", err.Op, err.Code)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got chan" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Native", Native("op", 1, "boom"), KindNativeFault},
		{"LibraryLoad", LibraryLoad("x.so", nil), KindLibraryLoad},
		{"TypeMismatch", TypeMismatch(PhaseBridge, nil, "long", "string"), KindTypeMismatch},
		{"KeyTypeMismatch", KeyTypeMismatch(PhaseBridge, nil, "array"), KindKeyTypeMismatch},
		{"OutOfBounds", OutOfBounds(PhaseBridge, []string{"list"}, 10, 5), KindOutOfBounds},
		{"UnsupportedLiteral", UnsupportedLiteral([]string{"a"}, "func()"), KindUnsupportedLiteral},
		{"MissingArtifact", MissingArtifact("FACE_DETECTOR", []string{"face.onnx"}), KindMissingArtifact},
		{"StaleReference", StaleReference("root closed"), KindStaleReference},
		{"Closed", Closed(PhaseSession, "service"), KindClosed},
		{"Unsupported", Unsupported(PhaseBridge, "putUnsignedLong"), KindUnsupported},
		{"NotFound", NotFound(PhaseBridge, "key", "x"), KindNotFound},
		{"InvalidInput", InvalidInput(PhaseProcess, "unit_type required"), KindInvalidInput},
		{"Wrap", Wrap(PhaseFetch, KindMissingArtifact, errors.New("io"), "download"), KindMissingArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Phase == "" {
				t.Error("Phase not set")
			}
		})
	}

	t.Run("OutOfBounds value", func(t *testing.T) {
		err := OutOfBounds(PhaseBridge, nil, 10, 5)
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
		if !containsSubstring(err.Detail, "length 5") {
			t.Errorf("Detail = %v", err.Detail)
		}
	})

	t.Run("MissingArtifact lists files", func(t *testing.T) {
		err := MissingArtifact("LIVENESS_ESTIMATOR", []string{"a.onnx", "b.onnx"})
		if !containsSubstring(err.Error(), "a.onnx, b.onnx") {
			t.Errorf("Error() = %v", err.Error())
		}
	})
}

func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > 0 && containsSubstringHelper(s, substr)))
}

func containsSubstringHelper(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
