package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/facesdk/errors"
)

// HTTPProvider downloads missing model files over HTTP.
//
// Files are streamed to a temporary name next to their destination and
// renamed into place once complete, so a failed download never leaves a
// truncated model behind. A non-2xx response is logged and the file is
// skipped; Ensure then reports it as missing.
type HTTPProvider struct {
	client   *http.Client
	manifest Manifest
	log      *zap.Logger
	root     string
	baseURL  string
	mu       sync.Mutex
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) HTTPOption {
	return func(p *HTTPProvider) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		p.baseURL = u
	}
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithManifest replaces the default manifest.
func WithManifest(m Manifest) HTTPOption {
	return func(p *HTTPProvider) { p.manifest = m }
}

// WithLogger sets the provider's logger.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(p *HTTPProvider) { p.log = l }
}

// NewHTTPProvider creates a provider that stores files under root.
func NewHTTPProvider(root string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		client:   http.DefaultClient,
		manifest: DefaultManifest(),
		log:      Logger(),
		root:     root,
		baseURL:  DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Root returns the directory files are stored under.
func (p *HTTPProvider) Root() string {
	return p.root
}

// Ensure downloads whatever files unitType is missing. Unknown unit types
// and units without models succeed without network access.
func (p *HTTPProvider) Ensure(ctx context.Context, unitType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	missing := p.manifest.Missing(p.root, unitType)
	if len(missing) == 0 {
		return nil
	}

	var lastErr error
	for _, rel := range missing {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.PhaseFetch, errors.KindMissingArtifact, err, "fetch cancelled")
		}
		if err := p.fetch(ctx, rel); err != nil {
			lastErr = err
			p.log.Warn("model download failed",
				zap.String("unit_type", unitType),
				zap.String("file", rel),
				zap.Error(err))
		}
	}

	if still := p.manifest.Missing(p.root, unitType); len(still) > 0 {
		e := errors.MissingArtifact(unitType, still)
		e.Cause = lastErr
		return e
	}
	return nil
}

// URL returns the download location of a manifest path.
func (p *HTTPProvider) URL(rel string) string {
	return p.baseURL + strings.TrimPrefix(rel, ModelsDir)
}

func (p *HTTPProvider) fetch(ctx context.Context, rel string) error {
	url := p.URL(rel)
	dst := filepath.Join(p.root, filepath.FromSlash(rel))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	p.log.Debug("downloading model", zap.String("url", url), zap.String("dst", dst))
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + "." + uuid.NewString() + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		os.Remove(tmp)
		return fmt.Errorf("GET %s: short body (%d of %d bytes)", url, n, resp.ContentLength)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	p.log.Debug("model downloaded", zap.String("dst", dst), zap.Int64("bytes", n))
	return nil
}
