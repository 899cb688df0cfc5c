package adapters

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
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
	cogvideoSubmitPath = "/api/paas/v4/videos/generations"
	cogvideoQueryPath  = "/api/paas/v4/async-result"

	cogvideoMaxPrompt = 1500
)

// GLM platform error codes with a fixed classification.
const (
	glmCodeInvalidKey = "1104"
	glmCodeRateLimit  = "1110"
	glmCodeNoBalance  = "1113"
)

var (
	cogvideoQualities = []string{"speed", "quality"}
	cogvideoSizes     = []string{
		"1280x720", "720x1280", "1024x1024",
		"1920x1080", "1080x1920", "2048x1080", "3840x2160",
	}
	cogvideoFPS       = []int{30, 60}
	cogvideoDurations = []int{5, 10}
)

// CogVideoAdapter talks to the GLM CogVideoX asynchronous video-generation
// API. Submission answers with {id, task_status}; results are fetched from
// the async-result endpoint, whose terminal vocabulary is SUCCESS/FAIL.
type CogVideoAdapter struct {
	name   string
	cfg    config.ProviderConfig
	client *http.Client
	retry  upstream.Policy
}

func NewCogVideoAdapter(name string, cfg config.ProviderConfig, client *http.Client, retry upstream.Policy) *CogVideoAdapter {
	return &CogVideoAdapter{name: name, cfg: cfg, client: client, retry: retry}
}

func (a *CogVideoAdapter) Name() string { return a.name }

func (a *CogVideoAdapter) Options() VideoOptions {
	opts := VideoOptions{
		Qualities:       cogvideoQualities,
		Sizes:           cogvideoSizes,
		FPSOptions:      cogvideoFPS,
		Durations:       cogvideoDurations,
		MaxPromptLength: cogvideoMaxPrompt,
		DefaultQuality:  a.cfg.DefaultQuality,
		DefaultSize:     a.cfg.DefaultSize,
		DefaultFPS:      a.cfg.DefaultFPS,
		DefaultDuration: a.cfg.DefaultDuration,
	}
	if opts.DefaultQuality == "" {
		opts.DefaultQuality = "speed"
	}
	if opts.DefaultSize == "" {
		opts.DefaultSize = "1920x1080"
	}
	if opts.DefaultFPS == 0 {
		opts.DefaultFPS = 30
	}
	if opts.DefaultDuration == 0 {
		opts.DefaultDuration = 5
	}
	return opts
}

// validate fills defaults and checks the input against the declared option
// sets before any network call.
func (a *CogVideoAdapter) validate(in *VideoInput) error {
	opts := a.Options()
	if strings.TrimSpace(in.Prompt) == "" && strings.TrimSpace(in.ImageURL) == "" {
		return &upstream.ValidationError{Field: "prompt", Message: "either prompt or image_url is required"}
	}
	if len([]rune(in.Prompt)) > opts.MaxPromptLength {
		return &upstream.ValidationError{
			Field:   "prompt",
			Message: fmt.Sprintf("must not exceed %d characters", opts.MaxPromptLength),
		}
	}
	if in.Quality == "" {
		in.Quality = opts.DefaultQuality
	}
	if in.Size == "" {
		in.Size = opts.DefaultSize
	}
	if in.FPS == 0 {
		in.FPS = opts.DefaultFPS
	}
	if in.Duration == 0 {
		in.Duration = opts.DefaultDuration
	}
	if !inSet(in.Quality, opts.Qualities) {
		return &upstream.ValidationError{Field: "quality", Value: in.Quality, Allowed: opts.Qualities}
	}
	if !inSet(in.Size, opts.Sizes) {
		return &upstream.ValidationError{Field: "size", Value: in.Size, Allowed: opts.Sizes}
	}
	if !inIntSet(in.FPS, opts.FPSOptions) {
		return &upstream.ValidationError{Field: "fps", Value: in.FPS, Allowed: intStrings(opts.FPSOptions)}
	}
	if !inIntSet(in.Duration, opts.Durations) {
		return &upstream.ValidationError{Field: "duration", Value: in.Duration, Allowed: intStrings(opts.Durations)}
	}
	return nil
}

type cogvideoSubmitBody struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Quality   string `json:"quality"`
	WithAudio bool   `json:"with_audio"`
	Size      string `json:"size"`
	FPS       int    `json:"fps"`
	Duration  int    `json:"duration"`
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id,omitempty"`
}

type cogvideoSubmitResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	RequestID  string `json:"request_id"`
	TaskStatus string `json:"task_status"`
}

type cogvideoQueryResponse struct {
	Model       string `json:"model"`
	RequestID   string `json:"request_id"`
	TaskStatus  string `json:"task_status"`
	VideoResult []struct {
		URL           string `json:"url"`
		CoverImageURL string `json:"cover_image_url"`
	} `json:"video_result"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Usage map[string]any `json:"usage"`
}

func (a *CogVideoAdapter) SubmitVideoTask(ctx context.Context, in VideoInput) (*types.TaskHandle, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}
	if err := a.validate(&in); err != nil {
		return nil, err
	}
	if in.RequestID == "" {
		in.RequestID = newRequestID()
	}

	body := cogvideoSubmitBody{
		Model:     a.cfg.Model,
		Prompt:    in.Prompt,
		ImageURL:  in.ImageURL,
		Quality:   in.Quality,
		WithAudio: in.WithAudio,
		Size:      in.Size,
		FPS:       in.FPS,
		Duration:  in.Duration,
		RequestID: in.RequestID,
		UserID:    in.UserID,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal cogvideo request: %w", err)
	}

	var handle *types.TaskHandle
	err = a.retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+cogvideoSubmitPath, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create http request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

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

		var parsed cogvideoSubmitResponse
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return fmt.Errorf("unmarshal cogvideo response: %w", err)
		}
		if parsed.ID == "" {
			return &upstream.UpstreamError{
				Provider:   a.name,
				HTTPStatus: resp.StatusCode,
				Message:    "task creation response missing id",
			}
		}

		handle = &types.TaskHandle{
			TaskID:    parsed.ID,
			Status:    glmStatus(parsed.TaskStatus),
			Model:     parsed.Model,
			RequestID: parsed.RequestID,
		}
		if handle.Model == "" {
			handle.Model = a.cfg.Model
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (a *CogVideoAdapter) QueryTask(ctx context.Context, taskID string) (*types.TaskResult, error) {
	if a.cfg.APIKey == "" {
		return nil, &upstream.ConfigError{Provider: a.name, Missing: "api_key"}
	}
	if strings.TrimSpace(taskID) == "" {
		return nil, &upstream.ValidationError{Field: "task_id", Message: "must not be empty"}
	}

	queryBase := a.cfg.QueryBaseURL
	if queryBase == "" {
		queryBase = a.cfg.BaseURL + cogvideoQueryPath
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

	var parsed cogvideoQueryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal cogvideo task status: %w", err)
	}

	result := &types.TaskResult{TaskID: taskID, Usage: parsed.Usage}
	switch parsed.TaskStatus {
	case "SUCCESS":
		if len(parsed.VideoResult) == 0 || parsed.VideoResult[0].URL == "" {
			result.Outcome = types.OutcomeFailed
			result.Err = &types.TaskError{Message: "task succeeded but returned no video URL"}
			return result, nil
		}
		result.Outcome = types.OutcomeCompleted
		result.Video = &types.VideoResult{
			URL:           parsed.VideoResult[0].URL,
			CoverImageURL: parsed.VideoResult[0].CoverImageURL,
		}
	case "FAIL":
		result.Outcome = types.OutcomeFailed
		taskErr := &types.TaskError{Message: "video generation failed"}
		if parsed.Error != nil {
			taskErr.Code = parsed.Error.Code
			if parsed.Error.Message != "" {
				taskErr.Message = parsed.Error.Message
			}
		}
		result.Err = taskErr
	default:
		// PROCESSING and any status the vendor adds later.
		result.Outcome = types.OutcomeProcessing
	}
	return result, nil
}

// classifyError maps the GLM error envelope onto the taxonomy using the
// platform error codes.
func (a *CogVideoAdapter) classifyError(status int, body []byte) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	code := envelope.Error.Code
	msg := envelope.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	switch {
	case code == glmCodeInvalidKey || status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &upstream.AuthError{Provider: a.name, Message: msg}
	case code == glmCodeNoBalance:
		return &upstream.QuotaError{Provider: a.name, Message: msg}
	case code == glmCodeRateLimit || status == http.StatusTooManyRequests:
		return &upstream.RateLimitError{Provider: a.name, Message: msg}
	default:
		return &upstream.UpstreamError{
			Provider:   a.name,
			HTTPStatus: status,
			VendorCode: code,
			Message:    msg,
		}
	}
}

func (a *CogVideoAdapter) Do(req *http.Request) (*http.Response, error) {
	return send(a.client, a.name, req)
}

// glmStatus maps GLM's task vocabulary onto the canonical enum.
func glmStatus(s string) types.TaskStatus {
	switch s {
	case "PROCESSING", "":
		return types.TaskRunning
	case "SUCCESS":
		return types.TaskSucceeded
	case "FAIL":
		return types.TaskFailed
	default:
		return types.TaskStatus(s)
	}
}

func newRequestID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return "req_" + hex.EncodeToString(b)
}
