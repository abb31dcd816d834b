// Package artifact downloads binary artifacts into blob storage.
package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/hash/sha256"
)

const defaultTimeout = 60 * time.Second

// BlobWriter stores a stream under a relative key and returns its location.
type BlobWriter interface {
	PutObject(ctx context.Context, key string, contentType string, r io.Reader) (string, error)
}

// Config controls download behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Result describes a stored artifact.
type Result struct {
	Path      string
	MirrorURI string
	Bytes     int64
	SHA256    string
}

// Fetcher streams artifacts over HTTP into a local blob store and, when a
// mirror is configured, copies them onward.
type Fetcher struct {
	client    *http.Client
	local     BlobWriter
	mirror    BlobWriter
	userAgent string
	logger    *zap.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithMirror uploads each stored artifact to a second blob store.
func WithMirror(mirror BlobWriter) Option {
	return func(f *Fetcher) {
		f.mirror = mirror
	}
}

// WithHTTPClient overrides the HTTP client; its timeout is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// New builds a Fetcher writing into local.
func New(local BlobWriter, cfg Config, logger *zap.Logger, opts ...Option) (*Fetcher, error) {
	if local == nil {
		return nil, fmt.Errorf("local blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	f := &Fetcher{
		client:    &http.Client{Timeout: timeout},
		local:     local,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// KeyFor builds the storage key "<year>/<last URL path segment>".
func KeyFor(year int, artifactURL string) (string, error) {
	u, err := url.Parse(artifactURL)
	if err != nil {
		return "", fmt.Errorf("parse artifact url: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("artifact url %q has no file name", artifactURL)
	}
	if year < 0 {
		year = 0
	}
	return path.Join(strconv.Itoa(year), name), nil
}

// Fetch downloads artifactURL and stores it under key. Only a 200 response
// with a non-empty body succeeds; other statuses return *harvest.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, artifactURL, key string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artifactURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build artifact request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("download %s: %w: %v", artifactURL, harvest.ErrTransient, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("download: %w", &harvest.StatusError{URL: artifactURL, StatusCode: resp.StatusCode})
	}

	contentType := resp.Header.Get("Content-Type")
	body := sha256.NewReader(resp.Body)
	stored, err := f.local.PutObject(ctx, key, contentType, body)
	if err != nil {
		return Result{Bytes: body.N()}, fmt.Errorf("store %s: %w", artifactURL, err)
	}
	result := Result{Path: stored, Bytes: body.N(), SHA256: body.Sum()}

	if f.mirror != nil {
		uri, err := f.mirrorCopy(ctx, stored, key, contentType)
		if err != nil {
			f.logger.Warn("artifact mirror failed",
				zap.String("artifact_url", artifactURL),
				zap.String("path", stored),
				zap.Error(err),
			)
		} else {
			result.MirrorURI = uri
		}
	}
	return result, nil
}

func (f *Fetcher) mirrorCopy(ctx context.Context, stored, key, contentType string) (string, error) {
	// #nosec G304 -- stored is a path the local blob store just produced.
	file, err := os.Open(stored)
	if err != nil {
		return "", fmt.Errorf("open stored artifact: %w", err)
	}
	defer file.Close()
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	uri, err := f.mirror.PutObject(ctx, key, contentType, file)
	if err != nil {
		return "", fmt.Errorf("mirror put: %w", err)
	}
	return uri, nil
}
