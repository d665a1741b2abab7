package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/facesdk/errors"
)

// Open loads the engine build at path. Files ending in .wasm run under
// wazero; anything else is loaded as a native shared library.
func Open(ctx context.Context, path string, cfg *Config) (Library, error) {
	if path == "" {
		return nil, errors.LibraryLoad(path, errors.InvalidInput(errors.PhaseLoad, "empty library path"))
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.LibraryLoad(path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".wasm") {
		w, err := OpenWazero(ctx, path, cfg)
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	if cfg == nil {
		cfg = &Config{}
	}
	return OpenShared(path, cfg.Logger)
}
