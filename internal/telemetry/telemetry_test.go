package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/italolelis/loan_downloader/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryPassesThrough(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0

	fn := func(context.Context) error {
		calls++

		return boom
	}

	ctx := context.Background()
	assert.ErrorIs(t, tel.InstrumentOperation(ctx, "op", "test", fn), boom)
	assert.ErrorIs(t, tel.InstrumentLedgerOperation(ctx, "save", fn), boom)
	assert.ErrorIs(t, tel.InstrumentCommand(ctx, "calibredb", "add", fn), boom)
	assert.ErrorIs(t, tel.InstrumentLogin(ctx, fn), boom)
	assert.ErrorIs(t, tel.InstrumentTitle(ctx, "acquire", fn), boom)
	assert.Equal(t, 5, calls)

	tel.RecordIteration("success")
	tel.RecordActiveLoans(3)
	require.NoError(t, tel.Shutdown(ctx))

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNilTelemetryPassesThrough(t *testing.T) {
	var tel *Telemetry

	require.NoError(t, tel.InstrumentTitle(context.Background(), "return", func(context.Context) error { return nil }))
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string

	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		logctx.LoggerFromContext(r.Context()).Info("handled")
	}))

	t.Run("propagates upstream id", func(t *testing.T) {
		buf.Reset()

		req := httptest.NewRequest(http.MethodGet, "/titles", nil)
		req = req.WithContext(logctx.WithLogger(req.Context(), logger))
		req.Header.Set(RequestIDHeader, "abc-123")

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "abc-123", entry["request_id"])
	})

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/titles", nil))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})
}

func TestHTTPLoggingLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "DEBUG"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer

			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))
			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
		})
	}
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(302))
	assert.Equal(t, "4xx", statusClass(401))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "unknown", statusClass(100))
}
