// Package gateway holds the HTTP handlers: decode and validate the client
// request, route it to the right adapter, and write the normalized reply.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/af-corp/muse-gateway/internal/httputil"
	"github.com/af-corp/muse-gateway/internal/router"
	"github.com/af-corp/muse-gateway/internal/router/adapters"
	"github.com/af-corp/muse-gateway/internal/taskcache"
	"github.com/af-corp/muse-gateway/internal/telemetry"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

// Handler holds dependencies for the gateway HTTP handlers. registry is a
// getter so a config reload swaps the adapter set without restarting the
// listener.
type Handler struct {
	registry func() *router.Registry
	health   *router.Health
	cache    *taskcache.Cache
	metrics  *telemetry.Metrics
	validate *validator.Validate
	retry    upstream.Policy
}

func NewHandler(registry func() *router.Registry, health *router.Health, cache *taskcache.Cache, metrics *telemetry.Metrics, retry upstream.Policy) *Handler {
	return &Handler{
		registry: registry,
		health:   health,
		cache:    cache,
		metrics:  metrics,
		validate: validator.New(),
		retry:    retry,
	}
}

// Routes mounts every gateway endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/chat", h.Chat)
	r.Get("/models", h.Models)
	r.Post("/text-to-image", h.TextToImage)
	r.Get("/task-status/{taskID}", h.ImageTaskStatus)
	r.Get("/image-styles", h.ImageStyles)
	r.Post("/create-video", h.CreateVideo)
	r.Get("/video-task-status/{taskID}", h.VideoTaskStatus)
	r.Get("/video-options", h.VideoOptions)
	r.Get("/muse/v1/health", h.Healthz)
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	var req types.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}

	reg := h.registry()
	modelKey := req.Model
	if modelKey == "" {
		modelKey = reg.DefaultChat()
	}
	adapter, ok := reg.Chat(modelKey)
	if !ok {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "unknown_model", "unknown model: "+modelKey)
		return
	}

	if h.health != nil && !h.health.Allow(modelKey) {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "model temporarily unavailable, retry later")
		return
	}

	messages := req.Messages()

	if req.WantsStream() && adapter.SupportsStreaming() {
		status := h.chatStream(w, r, reqID, modelKey, adapter, messages)
		h.recordRequest("/chat", modelKey, status, receivedAt)
		return
	}

	resp, err := h.chatBuffered(r, adapter, messages)
	if err != nil {
		if h.health != nil && upstream.Retryable(err) {
			h.health.ReportFailure(modelKey)
		}
		slog.Error("chat request failed",
			"request_id", reqID,
			"model", modelKey,
			"reason", upstream.Reason(err),
			"error", err)
		httputil.WriteForError(w, reqID, err)
		h.recordRequest("/chat", modelKey, httputil.StatusForError(err), receivedAt)
		return
	}
	if h.health != nil {
		h.health.ReportSuccess(modelKey)
	}

	resp.Model = modelKey
	slog.Info("chat completed",
		"request_id", reqID,
		"model", modelKey,
		"stream", false,
		"duration_ms", time.Since(receivedAt).Milliseconds())

	httputil.WriteJSON(w, http.StatusOK, resp)
	h.recordRequest("/chat", modelKey, http.StatusOK, receivedAt)
}

// chatBuffered returns the full reply in one piece. Vendors that only emit
// incrementally are streamed upstream and aggregated here; the client sees
// no difference.
func (h *Handler) chatBuffered(r *http.Request, adapter adapters.ChatAdapter, messages []types.Message) (*types.ChatResponse, error) {
	var resp *types.ChatResponse
	err := h.retry.Do(r.Context(), func() error {
		upstreamReq, err := adapter.BuildChatRequest(r.Context(), messages, adapter.ForcesStreaming())
		if err != nil {
			return err
		}
		upstreamResp, err := adapter.Do(upstreamReq)
		if err != nil {
			return err
		}
		if adapter.ForcesStreaming() {
			resp, err = aggregateStream(adapter, upstreamResp)
		} else {
			resp, err = adapter.ParseChatResponse(upstreamResp)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Models handles GET /models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	reg := h.registry()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"models":        reg.ChatModels(),
		"default_model": reg.DefaultChat(),
	})
}

// imageRequest is the body of POST /text-to-image.
type imageRequest struct {
	Prompt         string `json:"prompt" validate:"required"`
	NegativePrompt string `json:"negative_prompt"`
	Style          string `json:"style"`
	Size           string `json:"size"`
	N              int    `json:"n"`
}

// TextToImage handles POST /text-to-image: submits the generation task and
// returns its id immediately. The client polls /task-status/{id}.
func (h *Handler) TextToImage(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	img, ok := h.registry().Image()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "image generation is not configured")
		return
	}

	var req imageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}

	opts := img.Options()
	if req.Style == "" {
		req.Style = opts.DefaultStyle
	}
	if req.Size == "" {
		req.Size = opts.DefaultSize
	}

	handle, err := img.SubmitImageTask(r.Context(), adapters.ImageInput{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Style:          req.Style,
		Size:           req.Size,
		N:              req.N,
	})
	if err != nil {
		slog.Error("image task submit failed",
			"request_id", reqID,
			"provider", img.Name(),
			"reason", upstream.Reason(err),
			"error", err)
		if h.metrics != nil {
			h.metrics.RecordSubmit(img.Name(), "error")
		}
		httputil.WriteForError(w, reqID, err)
		return
	}

	slog.Info("image task submitted",
		"request_id", reqID,
		"provider", img.Name(),
		"task_id", handle.TaskID,
		"duration_ms", time.Since(receivedAt).Milliseconds())
	if h.metrics != nil {
		h.metrics.RecordSubmit(img.Name(), "ok")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"task_id": handle.TaskID,
		"status":  "pending",
		"prompt":  req.Prompt,
		"style":   req.Style,
		"size":    req.Size,
	})
}

// imageStatusBody is the reply of GET /task-status/{id}.
type imageStatusBody struct {
	Success   bool             `json:"success"`
	Status    string           `json:"status"`
	ImageURLs []string         `json:"image_urls,omitempty"`
	Usage     map[string]any   `json:"usage,omitempty"`
	Error     *types.TaskError `json:"error,omitempty"`
}

// ImageTaskStatus handles GET /task-status/{taskID}.
func (h *Handler) ImageTaskStatus(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	taskID := chi.URLParam(r, "taskID")

	img, ok := h.registry().Image()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "image generation is not configured")
		return
	}

	if cached := h.cache.Get(r.Context(), img.Name(), taskID); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	res, err := img.QueryTask(r.Context(), taskID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordPoll(img.Name(), "error")
		}
		httputil.WriteForError(w, reqID, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordPoll(img.Name(), string(res.Outcome))
	}

	body := imageStatusBody{
		Success: res.Outcome != types.OutcomeFailed,
		Status:  string(res.Outcome),
		Usage:   res.Usage,
		Error:   res.Err,
	}
	if res.Image != nil {
		body.ImageURLs = res.Image.URLs
	}

	h.cacheTerminal(r, img.Name(), taskID, res, body)
	httputil.WriteJSON(w, http.StatusOK, body)
}

// ImageStyles handles GET /image-styles.
func (h *Handler) ImageStyles(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	img, ok := h.registry().Image()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "image generation is not configured")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, img.Options())
}

// videoRequest is the body of POST /create-video.
type videoRequest struct {
	Prompt    string `json:"prompt"`
	ImageURL  string `json:"image_url"`
	Quality   string `json:"quality"`
	Size      string `json:"size"`
	FPS       int    `json:"fps"`
	Duration  int    `json:"duration"`
	WithAudio bool   `json:"with_audio"`
	UserID    string `json:"user_id"`
}

// CreateVideo handles POST /create-video.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	vid, ok := h.registry().Video()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "video generation is not configured")
		return
	}

	var req videoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, reqID, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}

	handle, err := vid.SubmitVideoTask(r.Context(), adapters.VideoInput{
		Prompt:    req.Prompt,
		ImageURL:  req.ImageURL,
		Quality:   req.Quality,
		Size:      req.Size,
		FPS:       req.FPS,
		Duration:  req.Duration,
		WithAudio: req.WithAudio,
		UserID:    req.UserID,
	})
	if err != nil {
		slog.Error("video task submit failed",
			"request_id", reqID,
			"provider", vid.Name(),
			"reason", upstream.Reason(err),
			"error", err)
		if h.metrics != nil {
			h.metrics.RecordSubmit(vid.Name(), "error")
		}
		httputil.WriteForError(w, reqID, err)
		return
	}

	slog.Info("video task submitted",
		"request_id", reqID,
		"provider", vid.Name(),
		"task_id", handle.TaskID,
		"duration_ms", time.Since(receivedAt).Milliseconds())
	if h.metrics != nil {
		h.metrics.RecordSubmit(vid.Name(), "ok")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"task_id":    handle.TaskID,
		"status":     "processing",
		"request_id": handle.RequestID,
	})
}

// videoStatusBody is the reply of GET /video-task-status/{id}.
type videoStatusBody struct {
	Success       bool             `json:"success"`
	Status        string           `json:"status"`
	VideoURL      string           `json:"video_url,omitempty"`
	CoverImageURL string           `json:"cover_image_url,omitempty"`
	Usage         map[string]any   `json:"usage,omitempty"`
	Error         *types.TaskError `json:"error,omitempty"`
}

// VideoTaskStatus handles GET /video-task-status/{taskID}.
func (h *Handler) VideoTaskStatus(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	taskID := chi.URLParam(r, "taskID")

	vid, ok := h.registry().Video()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "video generation is not configured")
		return
	}

	if cached := h.cache.Get(r.Context(), vid.Name(), taskID); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(cached)
		return
	}

	res, err := vid.QueryTask(r.Context(), taskID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordPoll(vid.Name(), "error")
		}
		httputil.WriteForError(w, reqID, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordPoll(vid.Name(), string(res.Outcome))
	}

	body := videoStatusBody{
		Success: res.Outcome != types.OutcomeFailed,
		Status:  string(res.Outcome),
		Usage:   res.Usage,
		Error:   res.Err,
	}
	if res.Video != nil {
		body.VideoURL = res.Video.URL
		body.CoverImageURL = res.Video.CoverImageURL
	}

	h.cacheTerminal(r, vid.Name(), taskID, res, body)
	httputil.WriteJSON(w, http.StatusOK, body)
}

// VideoOptions handles GET /video-options.
func (h *Handler) VideoOptions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	vid, ok := h.registry().Video()
	if !ok {
		httputil.WriteError(w, reqID, http.StatusServiceUnavailable, "provider_unavailable", "video generation is not configured")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, vid.Options())
}

// Healthz handles GET /muse/v1/health.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.health != nil {
		body["providers"] = h.health.States()
	}
	httputil.WriteJSON(w, http.StatusOK, body)
}

// cacheTerminal memoizes a terminal status body so later polls for the same
// task are answered without a vendor call.
func (h *Handler) cacheTerminal(r *http.Request, provider, taskID string, res *types.TaskResult, body any) {
	if !res.Terminal() {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return
	}
	h.cache.Put(r.Context(), provider, taskID, raw)
}

func (h *Handler) recordRequest(route, model string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(route, model, strconv.Itoa(status), float64(time.Since(start).Milliseconds()))
}
