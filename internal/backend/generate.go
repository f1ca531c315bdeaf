package backend

import (
	"context"
	"encoding/json"
)

// GenerateClient speaks the native protocol:
// POST /generate, GET /models, health probe GET /models.
type GenerateClient struct {
	httpBase
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options,omitempty"`
}

type generateResponse struct {
	Response  *string `json:"response"`
	EvalCount int     `json:"eval_count"`
}

type modelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *GenerateClient) Generate(ctx context.Context, model, prompt string, opts Options) (GenerateResult, error) {
	body := generateRequest{Model: model, Prompt: prompt, Stream: false, Options: opts}
	return c.generate(ctx, model, "/generate", body, nil, func(data []byte) (string, int, error) {
		var resp generateResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return "", 0, err
		}
		if resp.Response == nil {
			return "", 0, errMissing("response")
		}
		return *resp.Response, resp.EvalCount, nil
	})
}

func (c *GenerateClient) ListModels(ctx context.Context) ListResult {
	return c.listModels(ctx, nil, func(data []byte) ([]string, error) {
		var resp modelsResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(resp.Models))
		for _, m := range resp.Models {
			names = append(names, m.Name)
		}
		return names, nil
	})
}

func (c *GenerateClient) CheckHealth(ctx context.Context) bool {
	return c.probe(ctx, "/models", nil)
}

type errMissing string

func (e errMissing) Error() string { return "missing field " + string(e) }

var _ Client = (*GenerateClient)(nil)
