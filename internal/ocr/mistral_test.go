package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildflow/invoicepipe/internal/resilience"
)

func newRetryingMistral(serverURL string) *MistralOCR {
	m := NewMistralOCR("test-key", "")
	m.endpoint = serverURL
	m.retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	return m
}

func TestMistralOCR_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"pages":[{"index":0,"markdown":"Recovered"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newRetryingMistral(srv.URL).ExtractText(context.Background(), fakeInvoicePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "Recovered", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMistralOCR_NoRetryOnAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newRetryingMistral(srv.URL).ExtractText(context.Background(), fakeInvoicePDF(t))
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
