//go:build !cgo || !(linux || darwin)

package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/facesdk/errors"
)

// OpenShared is unavailable without cgo on linux or darwin. Use a
// WebAssembly build of the engine instead.
func OpenShared(path string, _ *zap.Logger) (Library, error) {
	return nil, errors.LibraryLoad(path, fmt.Errorf("shared library loading requires cgo on linux or darwin"))
}
