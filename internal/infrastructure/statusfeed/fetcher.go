package statusfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// maxDocumentBytes bounds how much of a status document is read
const maxDocumentBytes = 4 << 20

const defaultAccept = "application/atom+xml, application/xml;q=0.9, application/json;q=0.9, */*;q=0.1"

// DocumentFetcher retrieves the status document a status reference points at
type DocumentFetcher interface {
	// Fetch returns the document body and its content type. Any failure,
	// including a timeout or a non-2xx response, wraps ErrResolutionFailed.
	Fetch(ctx context.Context, statusRef string, cfg RepositoryConfig) (body []byte, contentType string, err error)
}

// FetcherConfig tunes the HTTP fetcher
type FetcherConfig struct {
	DefaultTimeout time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	UserAgent      string
}

// HTTPFetcher fetches status documents over HTTP(S) with retries
type HTTPFetcher struct {
	client         *retryablehttp.Client
	defaultTimeout time.Duration
	userAgent      string
}

// NewHTTPFetcher creates a fetcher backed by a pooled retryablehttp client
func NewHTTPFetcher(cfg FetcherConfig, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.HTTPClient = cleanhttp.DefaultPooledClient()
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.Logger = &leveledLogger{s: logger.Named("statusfeed").Sugar()}
	// Hand the last response back so the status code ends up in the error.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: client, defaultTimeout: timeout, userAgent: cfg.UserAgent}
}

// Fetch implements DocumentFetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, statusRef string, cfg RepositoryConfig) ([]byte, string, error) {
	u, err := url.Parse(statusRef)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", fmt.Errorf("%w: unsupported status reference %q", ErrResolutionFailed, statusRef)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, statusRef, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: build request for %s: %w", ErrResolutionFailed, statusRef, err)
	}
	req.Header.Set("Accept", defaultAccept)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if cfg.Auth.Username != "" {
		req.SetBasicAuth(cfg.Auth.Username, cfg.Auth.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %w", ErrResolutionFailed, statusRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: fetch %s: unexpected status %d", ErrResolutionFailed, statusRef, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", ErrResolutionFailed, statusRef, err)
	}
	if len(body) > maxDocumentBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", ErrResolutionFailed, statusRef, maxDocumentBytes)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.s.Warnw(msg, keysAndValues...)
}

var _ retryablehttp.LeveledLogger = (*leveledLogger)(nil)
