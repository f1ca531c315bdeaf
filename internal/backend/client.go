// Package backend talks to one network endpoint of a model-serving backend.
//
// Clients never return a Go error for ordinary backend failures (error
// status, timeout, unreachable host, malformed payload); those are reported
// in the result with Success=false. An error is returned only when the
// request cannot be built or the caller's context was cancelled.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/aegis-router/internal/config"
)

const (
	TypeGenerate  = "generate"
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"

	maxBodyBytes = 8 << 20
)

// Options are passed through to the backend's generation parameters.
type Options map[string]any

type GenerateResult struct {
	Success   bool   `json:"success"`
	Model     string `json:"model"`
	Response  string `json:"response,omitempty"`
	Error     string `json:"error,omitempty"`
	EvalCount int    `json:"eval_count,omitempty"`
}

type ListResult struct {
	Success bool     `json:"success"`
	Models  []string `json:"models"`
	Error   string   `json:"error,omitempty"`
}

// Client is a stateless adapter for one endpoint.
type Client interface {
	Endpoint() string
	Generate(ctx context.Context, model, prompt string, opts Options) (GenerateResult, error)
	ListModels(ctx context.Context) ListResult
	CheckHealth(ctx context.Context) bool
}

// New builds a client for endpoint using the dialect named by cfg.Type.
// An empty type selects the native generate protocol.
func New(endpoint string, cfg config.ProviderConfig) (Client, error) {
	endpoint = strings.TrimRight(endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 5 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 16
	}

	base := httpBase{
		endpoint: endpoint,
		cfg:      cfg,
		// Per-call deadlines come from contexts, not Client.Timeout.
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}

	switch cfg.Type {
	case "", TypeGenerate:
		return &GenerateClient{httpBase: base}, nil
	case TypeOpenAI:
		return &OpenAIClient{httpBase: base}, nil
	case TypeAnthropic:
		return &AnthropicClient{httpBase: base}, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

// httpBase holds what every dialect shares.
type httpBase struct {
	endpoint string
	cfg      config.ProviderConfig
	client   *http.Client
}

func (b *httpBase) Endpoint() string { return b.endpoint }

// errRequest marks failures that happen before anything is sent.
var errRequest = errors.New("build backend request")

type response struct {
	status int
	body   []byte
}

// call performs one request bounded by timeout. The returned error is
// errRequest-wrapped for build failures, the parent context's error when the
// caller cancelled, and a plain transport error otherwise.
func (b *httpBase) call(ctx context.Context, method, path string, payload any, timeout time.Duration, headers func(http.Header)) (*response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal: %v", errRequest, err)
		}
		body = bytes.NewReader(data)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, b.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errRequest, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range b.cfg.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if headers != nil {
		headers(req.Header)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, fmt.Errorf("timed out after %s", timeout)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// isRaised reports whether err from call should surface as a Go error.
func isRaised(ctx context.Context, err error) bool {
	return errors.Is(err, errRequest) || ctx.Err() != nil
}

func statusError(r *response) string {
	msg := strings.TrimSpace(string(r.body))
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return fmt.Sprintf("backend returned status %d: %s", r.status, msg)
}

func isSuccess(r *response) bool {
	return r.status >= 200 && r.status < 300
}

// generate runs the shared request/decode flow of every dialect.
func (b *httpBase) generate(ctx context.Context, model, path string, payload any, headers func(http.Header), decode func([]byte) (string, int, error)) (GenerateResult, error) {
	res := GenerateResult{Model: model}

	resp, err := b.call(ctx, http.MethodPost, path, payload, b.cfg.Timeout, headers)
	if err != nil {
		if isRaised(ctx, err) {
			return res, err
		}
		res.Error = err.Error()
		return res, nil
	}
	if !isSuccess(resp) {
		res.Error = statusError(resp)
		return res, nil
	}

	text, evalCount, err := decode(resp.body)
	if err != nil {
		res.Error = "malformed backend response: " + err.Error()
		return res, nil
	}
	res.Success = true
	res.Response = text
	res.EvalCount = evalCount
	return res, nil
}

func (b *httpBase) listModels(ctx context.Context, headers func(http.Header), decode func([]byte) ([]string, error)) ListResult {
	res := ListResult{Models: []string{}}

	resp, err := b.call(ctx, http.MethodGet, "/models", nil, b.cfg.HealthTimeout, headers)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if !isSuccess(resp) {
		res.Error = statusError(resp)
		return res
	}
	names, err := decode(resp.body)
	if err != nil {
		res.Error = "malformed backend response: " + err.Error()
		return res
	}
	res.Success = true
	res.Models = names
	return res
}

func (b *httpBase) probe(ctx context.Context, path string, headers func(http.Header)) bool {
	resp, err := b.call(ctx, http.MethodGet, path, nil, b.cfg.HealthTimeout, headers)
	if err != nil {
		return false
	}
	return isSuccess(resp)
}
