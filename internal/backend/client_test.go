package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/aegis-router/internal/config"
)

func newTestClient(t *testing.T, typ string, handler http.HandlerFunc, timeout time.Duration) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, config.ProviderConfig{
		Type:          typ,
		APIKey:        "secret",
		Timeout:       timeout,
		HealthTimeout: timeout,
	})
	require.NoError(t, err)
	return c
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New("http://localhost:1", config.ProviderConfig{Type: "carrier-pigeon"})
	assert.Error(t, err)

	_, err = New("", config.ProviderConfig{})
	assert.Error(t, err)
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c, err := New("http://localhost:1/", config.ProviderConfig{})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1", c.Endpoint())
	assert.IsType(t, &GenerateClient{}, c)
}

func TestGenerateClient_Generate(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":"hello","eval_count":7}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "code", "say hi", Options{"temperature": 0.2})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hello", res.Response)
	assert.Equal(t, 7, res.EvalCount)
	assert.Equal(t, "code", res.Model)

	assert.Equal(t, "code", got.Model)
	assert.Equal(t, "say hi", got.Prompt)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.2, got.Options["temperature"])
}

func TestGenerateClient_ErrorStatusIsReported(t *testing.T) {
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}, time.Second)

	res, err := c.Generate(context.Background(), "code", "x", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "500")
	assert.Contains(t, res.Error, "model not loaded")
}

func TestGenerateClient_MalformedPayloadIsReported(t *testing.T) {
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not_response": 1}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "code", "x", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "malformed")
}

func TestGenerateClient_TimeoutIsReported(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	start := time.Now()
	res, err := c.Generate(context.Background(), "code", "x", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestGenerateClient_UnreachableIsReported(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, config.ProviderConfig{Timeout: time.Second})
	require.NoError(t, err)
	res, err := c.Generate(context.Background(), "code", "x", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestGenerateClient_CallerCancellationIsRaised(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 5*time.Second)
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Generate(ctx, "code", "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateClient_UnmarshalableOptionsIsRaised(t *testing.T) {
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}, time.Second)

	_, err := c.Generate(context.Background(), "code", "x", Options{"bad": make(chan int)})
	assert.ErrorIs(t, err, errRequest)
}

func TestGenerateClient_ListModels(t *testing.T) {
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.Write([]byte(`{"models":[{"name":"code"},{"name":"analysis"}]}`))
	}, time.Second)

	res := c.ListModels(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, []string{"code", "analysis"}, res.Models)
}

func TestGenerateClient_ListModelsFailure(t *testing.T) {
	c := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, time.Second)

	res := c.ListModels(context.Background())
	assert.False(t, res.Success)
	assert.NotNil(t, res.Models)
	assert.Empty(t, res.Models)
}

func TestCheckHealth(t *testing.T) {
	healthy := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}, time.Second)
	assert.True(t, healthy.CheckHealth(context.Background()))

	failing := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, time.Second)
	assert.False(t, failing.CheckHealth(context.Background()))

	release := make(chan struct{})
	defer close(release)
	slow := newTestClient(t, TypeGenerate, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 30*time.Millisecond)
	assert.False(t, slow.CheckHealth(context.Background()))
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got openAIRequestBody
	c := newTestClient(t, TypeOpenAI, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"gpt","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"completion_tokens":3}}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "gpt", "hello", Options{"max_tokens": 10})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "hi", res.Response)
	assert.Equal(t, 3, res.EvalCount)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
	assert.EqualValues(t, 10, got.MaxTokens)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	c := newTestClient(t, TypeOpenAI, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "gpt", "hello", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestOpenAIClient_ListModels(t *testing.T) {
	c := newTestClient(t, TypeOpenAI, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"gpt-a"},{"id":"gpt-b"}]}`))
	}, time.Second)

	res := c.ListModels(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, []string{"gpt-a", "gpt-b"}, res.Models)
}

func TestAnthropicClient_Generate(t *testing.T) {
	var got anthropicRequestBody
	c := newTestClient(t, TypeAnthropic, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, defaultAnthropicVersion, r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"model":"claude","content":[{"type":"text","text":"bonjour"}],"stop_reason":"end_turn","usage":{"input_tokens":4,"output_tokens":2}}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "claude", "hello", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "bonjour", res.Response)
	assert.Equal(t, 2, res.EvalCount)
	assert.EqualValues(t, defaultAnthropicMaxTokens, got.MaxTokens)
}

func TestAnthropicClient_NoTextBlock(t *testing.T) {
	c := newTestClient(t, TypeAnthropic, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[{"type":"tool_use"}]}`))
	}, time.Second)

	res, err := c.Generate(context.Background(), "claude", "hello", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "text content")
}
