package artifact

import (
	"context"

	"github.com/wippyai/facesdk/errors"
)

// Provider makes sure the model files a unit type needs are present before
// a processing block is built.
type Provider interface {
	Ensure(ctx context.Context, unitType string) error
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, unitType string) error

func (f ProviderFunc) Ensure(ctx context.Context, unitType string) error { return f(ctx, unitType) }

// CheckOnly verifies files exist without fetching anything.
type CheckOnly struct {
	Manifest Manifest
	Root     string
}

// Ensure returns a missing_artifact error listing absent files.
func (c CheckOnly) Ensure(_ context.Context, unitType string) error {
	m := c.Manifest
	if m == nil {
		m = DefaultManifest()
	}
	if missing := m.Missing(c.Root, unitType); len(missing) > 0 {
		return errors.MissingArtifact(unitType, missing)
	}
	return nil
}
