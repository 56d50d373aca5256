package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncStartReturnsExternalTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/generations", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "video", req.Kind)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"external_task_id": "ext-42"})
	}))
	defer srv.Close()

	client := NewAsyncClient(srv.URL, "test-key")
	id, err := client.Start(context.Background(), GenerationRequest{Kind: "video", Prompt: "a storm"})
	require.NoError(t, err)
	assert.Equal(t, "ext-42", id)
}

func TestAsyncStatusDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/generations/ext-42", r.URL.Path)
		json.NewEncoder(w).Encode(StatusResult{
			Status:    ProviderStatusCompleted,
			ResultURL: "https://cdn.example.com/out.mp4",
			Duration:  8,
		})
	}))
	defer srv.Close()

	client := NewAsyncClient(srv.URL, "")
	res, err := client.Status(context.Background(), "ext-42")
	require.NoError(t, err)
	assert.Equal(t, ProviderStatusCompleted, res.Status)
	assert.Equal(t, "https://cdn.example.com/out.mp4", res.ResultURL)
	assert.Equal(t, 8.0, res.Duration)
}

func TestSyncSubmitPollDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/operations":
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Operation{ID: "op-7"})
		case r.URL.Path == "/v1/operations/op-7":
			json.NewEncoder(w).Encode(PollResult{Done: true, ResultURL: "RESULT", Duration: 4})
		case r.URL.Path == "/result":
			w.Write([]byte("video bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewSyncClient(srv.URL, "")
	op, err := client.Submit(context.Background(), GenerationRequest{Kind: "video"})
	require.NoError(t, err)
	require.Equal(t, "op-7", op.ID)

	res, err := client.Poll(context.Background(), op)
	require.NoError(t, err)
	assert.True(t, res.Done)

	data, err := client.Download(context.Background(), srv.URL+"/result")
	require.NoError(t, err)
	assert.Equal(t, []byte("video bytes"), data)
}

func TestClassifyContentFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": "prompt violates policy", "filtered": true})
	}))
	defer srv.Close()

	client := NewSyncClient(srv.URL, "")
	_, err := client.Submit(context.Background(), GenerationRequest{})
	var filterErr *ContentFilterError
	require.ErrorAs(t, err, &filterErr)
	assert.Equal(t, "prompt violates policy", filterErr.Reason)
}

func TestClassifyRateLimitHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewAsyncClient(srv.URL, "")
	_, err := client.Start(context.Background(), GenerationRequest{})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, http.StatusTooManyRequests, provErr.StatusCode)
	assert.Contains(t, provErr.Hint, "rate limited")
}

func TestClassifyAuthHint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewAsyncClient(srv.URL, "bad-key")
	_, err := client.Start(context.Background(), GenerationRequest{})
	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Contains(t, provErr.Hint, "API key")
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	client := NewAsyncClient(srv.URL, "")
	_, err := client.Status(context.Background(), "ext-1")
	var netErr *NetworkError
	assert.ErrorAs(t, err, &netErr)
}
