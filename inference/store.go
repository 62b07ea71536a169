package inference

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// DefaultCacheTTL is how long a cached model file is trusted before it is
// treated as a miss and fetched again.
const DefaultCacheTTL = 30 * 24 * time.Hour

// ProgressFunc reports transfer progress. total is -1 when the source did
// not advertise a length.
type ProgressFunc func(loaded, total int64)

// Store resolves model names to model bytes through a persistent on-disk
// cache. It is an explicit object with an explicit lifetime, owned by the
// caller or the session that uses it; there is no process-wide model
// cache.
type Store struct {
	dir    string
	client *http.Client
	ttl    time.Duration
	logger *slog.Logger
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithHTTPClient replaces the HTTP client used for fetches.
func WithHTTPClient(c *http.Client) StoreOption {
	return func(s *Store) { s.client = c }
}

// WithCacheTTL replaces the cache expiry window.
func WithCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithStoreLogger replaces the store's logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// defaultCacheDir is where sessions put a store when the caller did not
// supply one.
func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "rembg-go")
	}
	return ".rembg-go"
}

// NewStore creates a model store rooted at dir. The directory is created
// on first use.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:    dir,
		client: http.DefaultClient,
		ttl:    DefaultCacheTTL,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the cache file path for a model name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".onnx")
}

// Resolve returns the bytes for a model, serving from cache when a fresh
// entry exists and fetching otherwise. Entries older than the TTL are
// treated as misses.
//
// Arguments:
//   - ctx: Cancels an in-flight fetch.
//   - cfg: The model configuration naming the bytes and their URL.
//   - progress: Optional transfer progress callback, may be nil.
//
// Returns:
//   - []byte: The serialized model.
//   - error: An error if neither cache nor fetch can produce the bytes.
func (s *Store) Resolve(ctx context.Context, cfg ModelConfig, progress ProgressFunc) ([]byte, error) {
	path := s.Path(cfg.Name)
	if data, ok := s.lookup(path); ok {
		s.logger.Debug("model cache hit", "model", cfg.Name, "path", path)
		if progress != nil {
			progress(int64(len(data)), int64(len(data)))
		}
		return data, nil
	}

	s.logger.Info("fetching model", "model", cfg.Name, "url", cfg.URL)
	data, err := s.fetch(ctx, cfg.URL, progress)
	if err != nil {
		return nil, err
	}
	if err := s.put(path, data); err != nil {
		// The fetch succeeded; a cache write failure only costs the next
		// call a re-download.
		s.logger.Warn("caching model failed", "model", cfg.Name, "error", err)
	}
	return data, nil
}

// DownloadModels verifies or pre-fetches the named models so they are
// cached before first use.
func (s *Store) DownloadModels(ctx context.Context, names []string) error {
	for _, name := range names {
		cfg, err := Lookup(name)
		if err != nil {
			return err
		}
		if _, err := s.Resolve(ctx, cfg, nil); err != nil {
			return &ModelLoadError{Model: name, Err: err}
		}
	}
	return nil
}

// lookup reads a cached entry if it exists and has not expired.
func (s *Store) lookup(path string) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if s.ttl > 0 && time.Since(info.ModTime()) > s.ttl {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

func (s *Store) put(path string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "creating cache directory")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing cache entry")
	}
	return errors.Wrap(os.Rename(tmp, path), "publishing cache entry")
}

func (s *Store) fetch(ctx context.Context, url string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building model request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching model")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching model: unexpected status %s", resp.Status)
	}

	total := resp.ContentLength
	var buf []byte
	if total > 0 {
		buf = make([]byte, 0, total)
	}
	chunk := make([]byte, 64*1024)
	var loaded int64
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			loaded += int64(n)
			if progress != nil {
				progress(loaded, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "reading model body")
		}
	}
	return buf, nil
}
