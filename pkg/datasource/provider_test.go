package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_Download(t *testing.T) {
	var failures atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.csv":
			_, _ = w.Write([]byte("gsis_id\n00-1\n"))
		case "/flaky.csv":
			if failures.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("ok"))
		case "/broken.csv":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	provider := NewHTTPProvider(HTTPConfig{
		Timeout:      5 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, logger)
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		body, err := provider.Download(ctx, server.URL+"/ok.csv")
		require.NoError(t, err)
		assert.Equal(t, "gsis_id\n00-1\n", string(body))
	})

	t.Run("retries server errors", func(t *testing.T) {
		body, err := provider.Download(ctx, server.URL+"/flaky.csv")
		require.NoError(t, err)
		assert.Equal(t, "ok", string(body))
		assert.Equal(t, int32(2), failures.Load())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := provider.Download(ctx, server.URL+"/missing.csv")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})

	t.Run("gives up", func(t *testing.T) {
		_, err := provider.Download(ctx, server.URL+"/broken.csv")
		require.Error(t, err)
		assert.Equal(t, http.StatusInternalServerError, httperror.GetStatusCode(err))
	})
}
