package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "jina-embeddings-v3", req.Model)
		assert.Equal(t, []string{"copper pipe", "drywall"}, req.Input)

		resp := embedResponse{Data: []embedDatum{
			{Index: 0, Embedding: []float64{0.1, 0.2}},
			{Index: 1, Embedding: []float64{0.3, 0.4}},
		}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL))
	vecs, err := c.Embed(context.Background(), []string{"copper pipe", "drywall"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float64{0.1, 0.2}, vecs[0])
	assert.Equal(t, []float64{0.3, 0.4}, vecs[1])
}

func TestEmbed_HonorsIndexField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := embedResponse{Data: []embedDatum{
			{Index: 1, Embedding: []float64{1}},
			{Index: 0, Embedding: []float64{0}},
		}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	vecs, err := c.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, vecs[0])
	assert.Equal(t, []float64{1}, vecs[1])
}

func TestEmbed_EmptyInput(t *testing.T) {
	c := NewClient("k")
	vecs, err := c.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbed_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := embedResponse{Data: []embedDatum{{Index: 0, Embedding: []float64{0.5}}}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	_, err := c.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings, got 1")
}

func TestEmbed_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := embedResponse{Data: []embedDatum{{Index: 0, Embedding: []float64{0.9}}}}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient("k", WithBaseURL(srv.URL))
	vecs, err := c.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbed_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	c := NewClient("bad", WithBaseURL(srv.URL))
	_, err := c.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), calls.Load())
}
