package mergeload_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/mergeload"
)

// =============================================================================
// Test Helpers
// =============================================================================

// recordingServer answers POSTs with the given statuses in turn, repeating the
// last one, and keeps every request body.
type recordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	bodies   []string
	headers  []http.Header
	paths    []string
	statuses []int
}

func newRecordingServer(t *testing.T, statuses ...int) *recordingServer {
	t.Helper()
	s := &recordingServer{statuses: statuses}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		n := len(s.bodies)
		s.bodies = append(s.bodies, string(body))
		s.headers = append(s.headers, r.Header.Clone())
		s.paths = append(s.paths, r.URL.Path)
		status := s.statuses[min(n, len(s.statuses)-1)]
		s.mu.Unlock()

		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"detail":"status `+http.StatusText(status)+`"}`)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *recordingServer) requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

func fastLoader(url string, attempts int) *mergeload.HTTPLoader {
	return mergeload.NewHTTPLoader(mergeload.LoaderOptions{
		APIRoot:      url,
		Headers:      map[string]string{"Authorization": "Token abc"},
		MaxAttempts:  attempts,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Timeout:      5 * time.Second,
		Logger:       zerolog.Nop(),
	})
}

var sampleRecord = mergeload.Record{
	"schema": "schema-1",
	"data":   map[string]any{"driverIncidentDetails": map[string]any{"Numero": 42}},
}

// =============================================================================
// HTTPLoader Tests
// =============================================================================

func TestHTTPLoader_Created(t *testing.T) {
	srv := newRecordingServer(t, http.StatusCreated)
	l := fastLoader(srv.URL+"/api/", 3)

	require.Equal(t, srv.URL+"/api/records/", l.URL())
	require.NoError(t, l.Load(context.Background(), sampleRecord))
	require.Equal(t, 1, srv.requests())
	require.Equal(t, "/api/records/", srv.paths[0])
	require.Equal(t, "application/json", srv.headers[0].Get("Content-Type"))
	require.Equal(t, "Token abc", srv.headers[0].Get("Authorization"))
	require.JSONEq(t, `{"schema":"schema-1","data":{"driverIncidentDetails":{"Numero":42}}}`, srv.bodies[0])
}

func TestHTTPLoader_RetriesTransientFailures(t *testing.T) {
	srv := newRecordingServer(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusCreated)
	l := fastLoader(srv.URL, 10)

	require.NoError(t, l.Load(context.Background(), sampleRecord))
	require.Equal(t, 3, srv.requests())
	require.Equal(t, srv.bodies[0], srv.bodies[1], "retries resend the identical body")
	require.Equal(t, srv.bodies[0], srv.bodies[2])
}

func TestHTTPLoader_RetryableStatuses(t *testing.T) {
	for _, status := range []int{http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := newRecordingServer(t, status, http.StatusCreated)
			require.NoError(t, fastLoader(srv.URL, 3).Load(context.Background(), sampleRecord))
			require.Equal(t, 2, srv.requests())
		})
	}
}

func TestHTTPLoader_PermanentFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusOK, http.StatusNotImplemented} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := newRecordingServer(t, status)
			err := fastLoader(srv.URL, 5).Load(context.Background(), sampleRecord)

			var derr *mergeload.DeliveryError
			require.ErrorAs(t, err, &derr)
			require.NotErrorIs(t, err, mergeload.ErrRetriesExhausted)
			require.Equal(t, 1, srv.requests(), "permanent failures are not retried")
			require.Equal(t, status, derr.Status)
			require.Equal(t, 1, derr.Attempts)
			require.Contains(t, derr.Body, "detail")
			require.JSONEq(t, srv.bodies[0], string(derr.Payload))
		})
	}
}

func TestHTTPLoader_RetriesExhausted(t *testing.T) {
	srv := newRecordingServer(t, http.StatusInternalServerError)
	err := fastLoader(srv.URL, 3).Load(context.Background(), sampleRecord)

	var derr *mergeload.DeliveryError
	require.ErrorAs(t, err, &derr)
	require.ErrorIs(t, err, mergeload.ErrRetriesExhausted)
	require.Equal(t, 3, srv.requests())
	require.Equal(t, 3, derr.Attempts)
	require.Equal(t, http.StatusInternalServerError, derr.Status)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(derr.Payload, &payload))
	require.Equal(t, "schema-1", payload["schema"])
}

func TestHTTPLoader_TransportError(t *testing.T) {
	srv := newRecordingServer(t, http.StatusCreated)
	url := srv.URL
	srv.Close()

	err := fastLoader(url, 2).Load(context.Background(), sampleRecord)
	var derr *mergeload.DeliveryError
	require.ErrorAs(t, err, &derr)
	require.ErrorIs(t, err, mergeload.ErrRetriesExhausted)
	require.Zero(t, derr.Status)
	require.Equal(t, 2, derr.Attempts)
}

func TestHTTPLoader_UnretryableTransportError(t *testing.T) {
	err := fastLoader("ftp://127.0.0.1:1/api", 5).Load(context.Background(), sampleRecord)

	var derr *mergeload.DeliveryError
	require.ErrorAs(t, err, &derr)
	require.NotErrorIs(t, err, mergeload.ErrRetriesExhausted, "a single failed attempt did not spend the budget")
	require.ErrorContains(t, err, "unsupported protocol scheme")
	require.Equal(t, 1, derr.Attempts)
	require.Zero(t, derr.Status)
}

func TestHTTPLoader_ContextCancelledWhileBackingOff(t *testing.T) {
	var hits atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		cancel()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l := mergeload.NewHTTPLoader(mergeload.LoaderOptions{
		APIRoot:      srv.URL,
		MaxAttempts:  5,
		RetryWaitMin: time.Second,
		RetryWaitMax: time.Second,
		Logger:       zerolog.Nop(),
	})
	err := l.Load(ctx, sampleRecord)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int64(1), hits.Load())
}
