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

// QwenAdapter talks to DashScope's OpenAI-compatible chat endpoint. The
// same adapter serves both the standard and the deep-thinking mode; the
// enable_thinking request field selects between them. Thinking mode only
// exists as a stream on the vendor side, so ForcesStreaming is true for it
// and buffered callers aggregate the stream.
type QwenAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
}

func NewQwenAdapter(name string, cfg config.ProviderConfig, client *http.Client) *QwenAdapter {
	return &QwenAdapter{name: name, cfg: cfg, client: client}
}

func (a *QwenAdapter) Name() string { return a.name }

func (a *QwenAdapter) Info() types.ModelInfo {
	if a.cfg.EnableThinking {
		return types.ModelInfo{
			Name:        "Qwen (deep thinking)",
			Description: "Alibaba Cloud Qwen large language model, deep-thinking mode",
			Features:    []string{"chat", "deep_thinking", "reasoning"},
		}
	}
	return types.ModelInfo{
		Name:        "Qwen (standard)",
		Description: "Alibaba Cloud Qwen large language model, fast chat mode",
		Features:    []string{"chat", "stream"},
	}
}

func (a *QwenAdapter) SupportsStreaming() bool { return true }

func (a *QwenAdapter) ForcesStreaming() bool { return a.cfg.EnableThinking }

type qwenChatBody struct {
	Model          string          `json:"model"`
	Messages       []types.Message `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	EnableThinking bool            `json:"enable_thinking"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

func (a *QwenAdapter) BuildChatRequest(ctx context.Context, messages []types.Message, stream bool) (*http.Request, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}

	body := qwenChatBody{
		Model:          a.cfg.Model,
		Messages:       messages,
		Stream:         stream,
		EnableThinking: a.cfg.EnableThinking,
	}
	if stream {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal qwen request: %w", err)
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

// openAICompatResponse covers the buffered chat-completions shape shared by
// the OpenAI-compatible vendors, plus DashScope's reasoning_content.
type openAICompatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *types.Usage `json:"usage"`
}

func (a *QwenAdapter) ParseChatResponse(resp *http.Response) (*types.ChatResponse, error) {
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
		return nil, fmt.Errorf("unmarshal qwen response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, &upstream.UpstreamError{
			Provider:   a.name,
			HTTPStatus: resp.StatusCode,
			Message:    "response contained no choices",
		}
	}

	return &types.ChatResponse{
		Response:  parsed.Choices[0].Message.Content,
		Reasoning: parsed.Choices[0].Message.ReasoningContent,
		Status:    "success",
		Model:     a.name,
		Source:    a.Info().Name,
		Usage:     parsed.Usage,
	}, nil
}

// openAICompatStreamChunk covers the streaming delta shape, including
// DashScope's reasoning_content deltas for thinking mode.
type openAICompatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *types.Usage `json:"usage"`
}

func (a *QwenAdapter) TransformStreamChunk(chunk []byte) (*types.StreamChunk, error) {
	var parsed openAICompatStreamChunk
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return nil, nil // skip unparseable chunks
	}

	if len(parsed.Choices) == 0 {
		if parsed.Usage != nil {
			return &types.StreamChunk{Type: types.ChunkUsage, Usage: parsed.Usage, Model: a.name}, nil
		}
		return nil, nil
	}

	delta := parsed.Choices[0].Delta
	if delta.ReasoningContent != "" {
		return &types.StreamChunk{Type: types.ChunkThinking, Content: delta.ReasoningContent, Model: a.name}, nil
	}
	if delta.Content != "" {
		return &types.StreamChunk{Type: types.ChunkContent, Content: delta.Content, Model: a.name}, nil
	}
	return nil, nil
}

func (a *QwenAdapter) Do(req *http.Request) (*http.Response, error) {
	return send(a.client, a.name, req)
}
