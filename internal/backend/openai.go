package backend

import (
	"context"
	"encoding/json"
	"net/http"
)

// OpenAIClient handles OpenAI-compatible APIs. The prompt is sent as a single
// user message.
type OpenAIClient struct {
	httpBase
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequestBody struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature any             `json:"temperature,omitempty"`
	MaxTokens   any             `json:"max_tokens,omitempty"`
	TopP        any             `json:"top_p,omitempty"`
	Stop        any             `json:"stop,omitempty"`
}

type openAIResponseBody struct {
	Model   string `json:"model"`
	Choices []struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *OpenAIClient) auth(h http.Header) {
	if c.cfg.APIKey != "" {
		h.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, model, prompt string, opts Options) (GenerateResult, error) {
	body := openAIRequestBody{
		Model:       model,
		Messages:    []openAIMessage{{Role: "user", Content: prompt}},
		Temperature: opts["temperature"],
		MaxTokens:   opts["max_tokens"],
		TopP:        opts["top_p"],
		Stop:        opts["stop"],
	}
	return c.generate(ctx, model, "/chat/completions", body, c.auth, func(data []byte) (string, int, error) {
		var resp openAIResponseBody
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", 0, err
		}
		if len(resp.Choices) == 0 {
			return "", 0, errMissing("choices")
		}
		return resp.Choices[0].Message.Content, resp.Usage.CompletionTokens, nil
	})
}

func (c *OpenAIClient) ListModels(ctx context.Context) ListResult {
	return c.listModels(ctx, c.auth, decodeModelIDs)
}

func (c *OpenAIClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, "/models", c.auth)
}

func decodeModelIDs(data []byte) ([]string, error) {
	var list openAIModelList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

var _ Client = (*OpenAIClient)(nil)
