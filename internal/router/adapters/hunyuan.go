package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/af-corp/muse-gateway/internal/config"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

// HunyuanAdapter talks to Tencent Hunyuan's OpenAI-compatible chat
// endpoint. The only vendor-specific field is enable_enhancement.
type HunyuanAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewHunyuanAdapter(name string, cfg config.ProviderConfig, client *http.Client) *HunyuanAdapter {
	return &HunyuanAdapter{name: name, cfg: cfg, client: client}
}

func (a *HunyuanAdapter) Name() string { return a.name }

func (a *HunyuanAdapter) Info() types.ModelInfo {
	return types.ModelInfo{
		Name:        "Tencent Hunyuan",
		Description: "Tencent Hunyuan large language model with enhancement support",
		Features:    []string{"chat", "stream", "enhancement"},
	}
}

func (a *HunyuanAdapter) SupportsStreaming() bool { return true }

func (a *HunyuanAdapter) ForcesStreaming() bool { return false }

type hunyuanChatBody struct {
	Model             string          `json:"model"`
	Messages          []types.Message `json:"messages"`
	Stream            bool            `json:"stream,omitempty"`
	EnableEnhancement bool            `json:"enable_enhancement"`
}

func (a *HunyuanAdapter) BuildChatRequest(ctx context.Context, messages []types.Message, stream bool) (*http.Request, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}

	body := hunyuanChatBody{
		Model:             a.cfg.Model,
		Messages:          messages,
		Stream:            stream,
		EnableEnhancement: a.cfg.EnableEnhancement,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal hunyuan request: %w", err)
	}

	url := a.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}

func (a *HunyuanAdapter) ParseChatResponse(resp *http.Response) (*types.ChatResponse, error) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &upstream.NetworkError{Provider: a.name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyOpenAIError(a.name, resp.StatusCode, body)
	}

	var parsed openAICompatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal hunyuan response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &upstream.UpstreamError{
			Provider:   a.name,
			HTTPStatus: resp.StatusCode,
			Message:    "response contained no choices",
		}
	}

	return &types.ChatResponse{
		Response: parsed.Choices[0].Message.Content,
		Status:   "success",
		Model:    a.name,
		Source:   a.Info().Name,
		Usage:    parsed.Usage,
	}, nil
}

func (a *HunyuanAdapter) TransformStreamChunk(chunk []byte) (*types.StreamChunk, error) {
	var parsed openAICompatStreamChunk
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return nil, nil
	}

	if len(parsed.Choices) == 0 {
		if parsed.Usage != nil {
			return &types.StreamChunk{Type: types.ChunkUsage, Usage: parsed.Usage, Model: a.name}, nil
		}
		return nil, nil
	}
	if content := parsed.Choices[0].Delta.Content; content != "" {
		return &types.StreamChunk{Type: types.ChunkContent, Content: content, Model: a.name}, nil
	}
	return nil, nil
}

func (a *HunyuanAdapter) Do(req *http.Request) (*http.Response, error) {
	return send(a.client, a.name, req)
}
