// Package adapters translates between the gateway's normalized contract and
// each vendor's wire format. One adapter per vendor; all vendor-specific
// field names, status vocabularies and error codes stay inside this package.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

// ChatAdapter handles a synchronous chat vendor. BuildChatRequest /
// ParseChatResponse / TransformStreamChunk convert between the canonical
// shapes and the vendor API; Do sends with the vendor's configured client.
type ChatAdapter interface {
	Name() string
	Info() types.ModelInfo
	SupportsStreaming() bool
	// ForcesStreaming reports that the vendor only emits this model's
	// output incrementally; buffered calls must aggregate a stream.
	ForcesStreaming() bool
	BuildChatRequest(ctx context.Context, messages []types.Message, stream bool) (*http.Request, error)
	ParseChatResponse(resp *http.Response) (*types.ChatResponse, error)
	// TransformStreamChunk normalizes one SSE data payload. nil, nil means
	// skip the chunk.
	TransformStreamChunk(chunk []byte) (*types.StreamChunk, error)
	Do(req *http.Request) (*http.Response, error)
}

// TaskQuerier reads the status of an asynchronous generation task.
type TaskQuerier interface {
	Name() string
	QueryTask(ctx context.Context, taskID string) (*types.TaskResult, error)
}

// ImageAdapter handles an asynchronous image-generation vendor.
type ImageAdapter interface {
	TaskQuerier
	Options() ImageOptions
	SubmitImageTask(ctx context.Context, in ImageInput) (*types.TaskHandle, error)
}

// VideoAdapter handles an asynchronous video-generation vendor.
type VideoAdapter interface {
	TaskQuerier
	Options() VideoOptions
	SubmitVideoTask(ctx context.Context, in VideoInput) (*types.TaskHandle, error)
}

// ImageInput is a normalized image-generation request. Zero-valued fields
// fall back to the adapter's configured defaults before validation.
type ImageInput struct {
	Prompt         string
	NegativePrompt string
	Style          string
	Size           string
	N              int
}

// ImageOptions enumerates what the image vendor accepts.
type ImageOptions struct {
	Styles       []string `json:"styles"`
	Sizes        []string `json:"sizes"`
	DefaultStyle string   `json:"default_style"`
	DefaultSize  string   `json:"default_size"`
	MaxImages    int      `json:"max_images"`
}

// VideoInput is a normalized video-generation request. At least one of
// Prompt and ImageURL must be set.
type VideoInput struct {
	Prompt    string
	ImageURL  string
	Quality   string
	Size      string
	FPS       int
	Duration  int
	WithAudio bool
	RequestID string
	UserID    string
}

// VideoOptions enumerates what the video vendor accepts.
type VideoOptions struct {
	Qualities       []string `json:"qualities"`
	Sizes           []string `json:"sizes"`
	FPSOptions      []int    `json:"fps_options"`
	Durations       []int    `json:"durations"`
	MaxPromptLength int      `json:"max_prompt_length"`
	DefaultQuality  string   `json:"default_quality"`
	DefaultSize     string   `json:"default_size"`
	DefaultFPS      int      `json:"default_fps"`
	DefaultDuration int      `json:"default_duration"`
}

// send performs the HTTP call and classifies transport failures onto the
// upstream taxonomy.
func send(client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, upstream.ClassifyTransport(provider, err, time.Since(start))
	}
	return resp, nil
}

// classifyOpenAIError maps a non-2xx OpenAI-compatible error envelope onto
// the taxonomy. The code field is a string for some vendors and a number
// for others, so it is decoded loosely.
func classifyOpenAIError(provider string, status int, body []byte) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)

	msg := envelope.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	code := ""
	if envelope.Error.Code != nil {
		code = fmt.Sprint(envelope.Error.Code)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &upstream.AuthError{Provider: provider, Message: msg}
	case status == http.StatusTooManyRequests:
		return &upstream.RateLimitError{Provider: provider, Message: msg}
	case code == "insufficient_quota" || strings.Contains(code, "Arrearage"):
		return &upstream.QuotaError{Provider: provider, Message: msg}
	default:
		return &upstream.UpstreamError{
			Provider:   provider,
			HTTPStatus: status,
			VendorCode: code,
			Message:    msg,
		}
	}
}

func inSet(value string, set []string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func inIntSet(value int, set []int) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}

func intStrings(set []int) []string {
	out := make([]string, len(set))
	for i, v := range set {
		out[i] = fmt.Sprint(v)
	}
	return out
}
