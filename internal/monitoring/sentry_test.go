package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_EmptyDSNDisablesReporting(t *testing.T) {
	enabled, err := Init(Config{})
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestInit_RejectsMalformedDSN(t *testing.T) {
	_, err := Init(Config{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestMiddleware_AttachesHub(t *testing.T) {
	var hub *sentry.Hub
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub = sentry.GetHubFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, hub)
	assert.NotSame(t, sentry.CurrentHub(), hub)
}

func TestMiddleware_RepanicsForRecoverer(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestCaptureError_NilIsIgnored(t *testing.T) {
	assert.NotPanics(t, func() {
		CaptureError(context.Background(), nil)
		CaptureError(context.Background(), errors.New("unexpected"))
	})
}
