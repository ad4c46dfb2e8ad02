package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmaster/internal/config"
)

func testEndpoint(url string) config.Endpoint {
	return config.Endpoint{Model: "test-model", BaseURL: url, TimeoutSeconds: 5}
}

func TestSendUsesChatFormatFirst(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, 0.3, req.Temperature)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"role": "assistant", "content": "hello"}}},
		})
	}))
	defer srv.Close()

	c := NewClient(testEndpoint(srv.URL), nil)
	out := c.Send(context.Background(), SendRequest{Prompt: "hi", System: "sys", Temperature: 0.3})
	assert.Equal(t, "hello", out)
	assert.Equal(t, []string{"/v1/chat/completions"}, calls)
}

func TestSendFallsBackToGenerate(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/v1/chat/completions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		require.Equal(t, "/api/generate", r.URL.Path)
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "hi", req.Prompt)
		json.NewEncoder(w).Encode(map[string]string{"response": "from generate"})
	}))
	defer srv.Close()

	c := NewClient(testEndpoint(srv.URL), nil)
	out := c.Send(context.Background(), SendRequest{Prompt: "hi"})
	assert.Equal(t, "from generate", out)
	assert.Equal(t, []string{"/v1/chat/completions", "/api/generate"}, calls)
}

func TestSendSentinelOnExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testEndpoint(srv.URL), nil)
	out := c.Send(context.Background(), SendRequest{Prompt: "hi"})
	assert.True(t, IsErrorText(out), "got %q", out)
}

func TestSendEmptyPrompt(t *testing.T) {
	c := NewClient(testEndpoint("http://127.0.0.1:1"), nil)
	out := c.Send(context.Background(), SendRequest{Prompt: "   "})
	assert.True(t, IsErrorText(out))
}

func TestSendBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	ep := testEndpoint(srv.URL)
	ep.APIKey = "secret-key"
	c := NewClient(ep, nil)
	c.Send(context.Background(), SendRequest{Prompt: "hi"})
	assert.Equal(t, "Bearer secret-key", gotAuth)
}

func TestSendEmptyChoicesFallsThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/chat/completions" {
			json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "recovered"})
	}))
	defer srv.Close()

	c := NewClient(testEndpoint(srv.URL), nil)
	out := c.Send(context.Background(), SendRequest{Prompt: "hi"})
	assert.Equal(t, "recovered", out)
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "[LLM Error: connection refused]", ErrorText("connection refused"))
	assert.True(t, IsErrorText("[LLM Error: x]"))
	assert.False(t, IsErrorText("ordinary reply"))
}
