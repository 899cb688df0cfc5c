package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/af-corp/muse-gateway/internal/config"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

const (
	wanxSubmitPath       = "/services/aigc/text2image/image-synthesis"
	defaultWanxQueryBase = "https://dashscope.aliyuncs.com/api/v1/tasks"

	wanxDefaultStyle = "<auto>"
	wanxDefaultSize  = "1024*1024"
	wanxMaxImages    = 4
)

var wanxStyles = []string{
	"<auto>", "<photography>", "<portrait>", "<3d cartoon>", "<anime>",
	"<oil painting>", "<watercolor>", "<sketch>", "<chinese painting>",
	"<flat illustration>",
}

var wanxSizes = []string{"1024*1024", "720*1280", "768*1152", "1280*720"}

// WanxAdapter talks to DashScope's asynchronous text-to-image synthesis
// API. Submission requires the X-DashScope-Async header; the response and
// query envelopes nest everything under "output".
type WanxAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	retry  upstream.Policy
}

func NewWanxAdapter(name string, cfg config.ProviderConfig, client *http.Client, retry upstream.Policy) *WanxAdapter {
	return &WanxAdapter{name: name, cfg: cfg, client: client, retry: retry}
}

func (a *WanxAdapter) Name() string { return a.name }

func (a *WanxAdapter) Options() ImageOptions {
	opts := ImageOptions{
		Styles:       wanxStyles,
		Sizes:        wanxSizes,
		DefaultStyle: a.cfg.DefaultStyle,
		DefaultSize:  a.cfg.DefaultSize,
		MaxImages:    wanxMaxImages,
	}
	if opts.DefaultStyle == "" {
		opts.DefaultStyle = wanxDefaultStyle
	}
	if opts.DefaultSize == "" {
		opts.DefaultSize = wanxDefaultSize
	}
	return opts
}

// validate fills defaults and checks the input against the declared option
// sets. No network I/O happens here.
func (a *WanxAdapter) validate(in *ImageInput) error {
	opts := a.Options()
	if strings.TrimSpace(in.Prompt) == "" {
		return &upstream.ValidationError{Field: "prompt", Message: "must not be empty"}
	}
	if in.Style == "" {
		in.Style = opts.DefaultStyle
	}
	if in.Size == "" {
		in.Size = opts.DefaultSize
	}
	if in.N == 0 {
		in.N = 1
	}
	if !inSet(in.Style, opts.Styles) {
		return &upstream.ValidationError{Field: "style", Value: in.Style, Allowed: opts.Styles}
	}
	if !inSet(in.Size, opts.Sizes) {
		return &upstream.ValidationError{Field: "size", Value: in.Size, Allowed: opts.Sizes}
	}
	if in.N < 1 || in.N > opts.MaxImages {
		return &upstream.ValidationError{
			Field: "n", Value: in.N,
			Allowed: []string{fmt.Sprintf("1-%d", opts.MaxImages)},
		}
	}
	return nil
}

type wanxSubmitBody struct {
	Model string `json:"model"`
	Input struct {
		Prompt         string `json:"prompt"`
		NegativePrompt string `json:"negative_prompt,omitempty"`
	} `json:"input"`
	Parameters struct {
		Style string `json:"style"`
		Size  string `json:"size"`
		N     int    `json:"n"`
	} `json:"parameters"`
}

// wanxTaskEnvelope is the DashScope task envelope shared by submission and
// query responses.
type wanxTaskEnvelope struct {
	RequestID string `json:"request_id"`
	Output    struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Code       string `json:"code"`
		Message    string `json:"message"`
		Results    []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
	} `json:"output"`
	Usage map[string]any `json:"usage"`
}

func (a *WanxAdapter) SubmitImageTask(ctx context.Context, in ImageInput) (*types.TaskHandle, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}
	if err := a.validate(&in); err != nil {
		return nil, err
	}

	body := wanxSubmitBody{Model: a.cfg.Model}
	body.Input.Prompt = in.Prompt
	body.Input.NegativePrompt = in.NegativePrompt
	body.Parameters.Style = in.Style
	body.Parameters.Size = in.Size
	body.Parameters.N = in.N

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal wanx request: %w", err)
	}

	var handle *types.TaskHandle
	err = a.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+wanxSubmitPath, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
		// Synchronous mode is rejected for image synthesis.
		req.Header.Set("X-DashScope-Async", "enable")

		resp, err := a.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &upstream.NetworkError{Provider: a.name, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return a.classifyError(resp.StatusCode, raw)
		}

		var envelope wanxTaskEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("unmarshal wanx response: %w", err)
		}
		if envelope.Output.TaskID == "" {
			return &upstream.UpstreamError{
				Provider:   a.name,
				HTTPStatus: resp.StatusCode,
				Message:    "task creation response missing task_id",
			}
		}

		handle = &types.TaskHandle{
			TaskID:    envelope.Output.TaskID,
			Status:    dashStatus(envelope.Output.TaskStatus),
			Model:     a.cfg.Model,
			RequestID: envelope.RequestID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (a *WanxAdapter) QueryTask(ctx context.Context, taskID string) (*types.TaskResult, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, &upstream.ValidationError{Field: "task_id", Message: "must not be empty"}
	}

	queryBase := a.cfg.QueryBaseURL
	if queryBase == "" {
		queryBase = defaultWanxQueryBase
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryBase+"/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &upstream.NetworkError{Provider: a.name, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &upstream.NotFoundError{Provider: a.name, TaskID: taskID}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, a.classifyError(resp.StatusCode, raw)
	}

	var envelope wanxTaskEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal wanx task status: %w", err)
	}

	result := &types.TaskResult{TaskID: taskID, Usage: envelope.Usage}
	switch envelope.Output.TaskStatus {
	case "SUCCEEDED":
		var urls []string
		for _, r := range envelope.Output.Results {
			if r.URL != "" {
				urls = append(urls, r.URL)
			}
		}
		if len(urls) == 0 {
			result.Outcome = types.OutcomeFailed
			result.Err = &types.TaskError{Message: "task succeeded but returned no image URLs"}
			return result, nil
		}
		result.Outcome = types.OutcomeCompleted
		result.Image = &types.ImageResult{URLs: urls}
	case "FAILED":
		result.Outcome = types.OutcomeFailed
		msg := envelope.Output.Message
		if msg == "" {
			msg = "image generation failed"
		}
		result.Err = &types.TaskError{Code: envelope.Output.Code, Message: msg}
	case "PENDING", "RUNNING":
		result.Outcome = types.OutcomeProcessing
	case "UNKNOWN":
		return nil, &upstream.NotFoundError{Provider: a.name, TaskID: taskID}
	default:
		return nil, &upstream.UpstreamError{
			Provider:   a.name,
			HTTPStatus: resp.StatusCode,
			Message:    "unrecognized task status: " + envelope.Output.TaskStatus,
		}
	}
	return result, nil
}

// classifyError maps DashScope's native error envelope onto the taxonomy.
func (a *WanxAdapter) classifyError(status int, body []byte) error {
	var envelope struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &envelope)
	msg := envelope.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		envelope.Code == "InvalidApiKey":
		return &upstream.AuthError{Provider: a.name, Message: msg}
	case status == http.StatusTooManyRequests || strings.HasPrefix(envelope.Code, "Throttling"):
		return &upstream.RateLimitError{Provider: a.name, Message: msg}
	case strings.Contains(envelope.Code, "Arrearage") || strings.Contains(envelope.Code, "Quota"):
		return &upstream.QuotaError{Provider: a.name, Message: msg}
	default:
		return &upstream.UpstreamError{
			Provider:   a.name,
			HTTPStatus: status,
			VendorCode: envelope.Code,
			Message:    msg,
		}
	}
}

func (a *WanxAdapter) Do(req *http.Request) (*http.Response, error) {
	return send(a.client, a.name, req)
}

// dashStatus maps DashScope's task vocabulary onto the canonical enum.
func dashStatus(s string) types.TaskStatus {
	switch s {
	case "PENDING", "":
		return types.TaskPending
	case "RUNNING":
		return types.TaskRunning
	case "SUCCEEDED":
		return types.TaskSucceeded
	case "FAILED":
		return types.TaskFailed
	default:
		return types.TaskStatus(s)
	}
}
