package backend

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicClient handles the Anthropic Messages API.
type AnthropicClient struct {
	httpBase
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      any                `json:"system,omitempty"`
	MaxTokens   any                `json:"max_tokens"`
	Temperature any                `json:"temperature,omitempty"`
	TopP        any                `json:"top_p,omitempty"`
	Stop        any                `json:"stop_sequences,omitempty"`
}

type anthropicResponseBody struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) headers(h http.Header) {
	if c.cfg.APIKey != "" {
		h.Set("x-api-key", c.cfg.APIKey)
	}
	version := c.cfg.APIVersion
	if version == "" {
		version = defaultAnthropicVersion
	}
	h.Set("anthropic-version", version)
}

func (c *AnthropicClient) Generate(ctx context.Context, model, prompt string, opts Options) (GenerateResult, error) {
	// Anthropic requires max_tokens
	var maxTokens any = defaultAnthropicMaxTokens
	if v, ok := opts["max_tokens"]; ok {
		maxTokens = v
	}
	body := anthropicRequestBody{
		Model:       model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		System:      opts["system"],
		MaxTokens:   maxTokens,
		Temperature: opts["temperature"],
		TopP:        opts["top_p"],
		Stop:        opts["stop"],
	}
	return c.generate(ctx, model, "/messages", body, c.headers, func(data []byte) (string, int, error) {
		var resp anthropicResponseBody
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", 0, err
		}
		for _, block := range resp.Content {
			if block.Type == "text" {
				return block.Text, resp.Usage.OutputTokens, nil
			}
		}
		return "", 0, errMissing("text content")
	})
}

func (c *AnthropicClient) ListModels(ctx context.Context) ListResult {
	return c.listModels(ctx, c.headers, decodeModelIDs)
}

func (c *AnthropicClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, "/models", c.headers)
}

var _ Client = (*AnthropicClient)(nil)
