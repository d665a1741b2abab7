package runtime

import (
	"bytes"
	"context"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/facesdk/artifact"
	"github.com/wippyai/facesdk/errors"
)

// Config is the YAML form of the Service options.
//
//	sdk_path: /opt/face_sdk
//	library_path: /opt/face_sdk/engine.wasm
//	artifacts:
//	  base_url: https://mirror.example/models/
//	units:
//	  FACE_DETECTOR:
//	    confidence_threshold: 0.6
type Config struct {
	Units        map[string]map[string]any `yaml:"units"`
	SDKPath      string                    `yaml:"sdk_path"`
	BinariesPath string                    `yaml:"binaries_path"`
	LibraryPath  string                    `yaml:"library_path"`
	Artifacts    ArtifactConfig            `yaml:"artifacts"`
}

// ArtifactConfig controls model downloads.
type ArtifactConfig struct {
	// Manifest adds to or replaces entries of the default unit table.
	Manifest artifact.Manifest `yaml:"manifest"`
	BaseURL  string            `yaml:"base_url"`
	// Disabled turns off downloads; missing models are reported instead.
	Disabled bool `yaml:"disabled"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseSession, errors.KindInvalidInput).
			Value(path).
			Detail("read config").
			Cause(err).
			Build()
	}
	return ParseConfig(raw)
}

// ParseConfig decodes YAML. Unknown keys are rejected.
func ParseConfig(raw []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(errors.PhaseSession, errors.KindInvalidInput, err, "parse config")
	}
	return cfg, nil
}

// Options converts the config to Service options. Downloads go to the
// SDK root unless disabled, in which case the files are only checked.
func (c Config) Options() []Option {
	var opts []Option
	if c.SDKPath != "" {
		opts = append(opts, WithSDKPath(c.SDKPath))
	}
	if c.BinariesPath != "" {
		opts = append(opts, WithBinariesPath(c.BinariesPath))
	}
	if c.LibraryPath != "" {
		opts = append(opts, WithLibraryPath(c.LibraryPath))
	}
	for unit, defaults := range c.Units {
		opts = append(opts, WithUnitDefaults(unit, defaults))
	}
	opts = append(opts, WithArtifactProvider(c.provider()))
	return opts
}

func (c Config) provider() artifact.Provider {
	manifest := artifact.DefaultManifest().Merge(c.Artifacts.Manifest)
	root := c.SDKPath
	if root == "" {
		root = "."
	}
	if c.Artifacts.Disabled {
		return artifact.CheckOnly{Manifest: manifest, Root: root}
	}
	opts := []artifact.HTTPOption{artifact.WithManifest(manifest)}
	if c.Artifacts.BaseURL != "" {
		opts = append(opts, artifact.WithBaseURL(c.Artifacts.BaseURL))
	}
	return artifact.NewHTTPProvider(root, opts...)
}

// NewFromConfig creates a Service from cfg. opts are applied after the
// config and take precedence.
func NewFromConfig(ctx context.Context, cfg Config, opts ...Option) (*Service, error) {
	return New(ctx, append(cfg.Options(), opts...)...)
}
