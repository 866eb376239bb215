package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MaxDownloadSize bounds a single upstream file (256MB).
const MaxDownloadSize = 256 * 1024 * 1024

// Provider downloads a remote file.
type Provider interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// HTTPConfig holds the retrying client settings.
type HTTPConfig struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultHTTPConfig returns default HTTP provider configuration
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:      60 * time.Second,
		RetryMax:     4,
		RetryWaitMin: time.Second,
		RetryWaitMax: 30 * time.Second,
	}
}

// HTTPProvider downloads files over HTTP, retrying connection errors and
// 5xx/429 responses with exponential backoff.
type HTTPProvider struct {
	client *retryablehttp.Client
	logger ectologger.Logger
}

// NewHTTPProvider creates an HTTP provider.
func NewHTTPProvider(cfg HTTPConfig, logger ectologger.Logger) *HTTPProvider {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = cfg.Timeout
	client.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.Logger = &retryLogger{logger: logger}

	return &HTTPProvider{client: client, logger: logger}
}

// Download fetches url. A 404 response is returned as a 404 error.
func (p *HTTPProvider) Download(ctx context.Context, url string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "datasource.HTTPProvider.Download")
	defer span.End()

	log := p.logger.WithContext(ctx).WithField("url", url)
	start := time.Now()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid url %s: %s", url, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		log.WithError(err).Error("Download failed")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "download %s failed: %s", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "%s not found", url)
	case resp.StatusCode != http.StatusOK:
		log.Errorf("Unexpected status %d", resp.StatusCode)
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "download %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		log.WithError(err).Error("Failed to read response body")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "download %s failed: %s", url, err)
	}
	if len(body) > MaxDownloadSize {
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "download %s: body exceeds %d bytes", url, MaxDownloadSize)
	}

	log.Debugf("Downloaded %d bytes in %s", len(body), time.Since(start))
	return body, nil
}

// retryLogger adapts ectologger to retryablehttp's LeveledLogger.
type retryLogger struct {
	logger ectologger.Logger
}

func (l *retryLogger) with(keysAndValues []interface{}) ectologger.Logger {
	if len(keysAndValues) == 0 {
		return l.logger
	}
	fields := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return l.logger.WithFields(fields)
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Error(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}
