package gateway

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/af-corp/muse-gateway/internal/httputil"
	"github.com/af-corp/muse-gateway/internal/router/adapters"
	"github.com/af-corp/muse-gateway/internal/types"
	"github.com/af-corp/muse-gateway/internal/upstream"
)

// chatStream proxies the vendor's SSE stream to the client, transforming
// each chunk into a normalized frame. Failures before the first byte map to
// a plain error response; once streaming has started they become a terminal
// error frame instead, because the 200 is already on the wire. Returns the
// HTTP status written to the client.
func (h *Handler) chatStream(w http.ResponseWriter, r *http.Request, reqID, modelKey string, adapter adapters.ChatAdapter, messages []types.Message) int {
	upstreamReq, err := adapter.BuildChatRequest(r.Context(), messages, true)
	if err != nil {
		httputil.WriteForError(w, reqID, err)
		return httputil.StatusForError(err)
	}

	upstreamResp, err := adapter.Do(upstreamReq)
	if err != nil {
		if h.health != nil {
			h.health.ReportFailure(modelKey)
		}
		slog.Error("stream request failed",
			"request_id", reqID,
			"model", modelKey,
			"reason", upstream.Reason(err),
			"error", err)
		httputil.WriteForError(w, reqID, err)
		return httputil.StatusForError(err)
	}

	if upstreamResp.StatusCode != http.StatusOK {
		// ParseChatResponse classifies the vendor error envelope.
		_, perr := adapter.ParseChatResponse(upstreamResp)
		if h.health != nil && upstream.Retryable(perr) {
			h.health.ReportFailure(modelKey)
		}
		slog.Error("stream rejected by vendor",
			"request_id", reqID,
			"model", modelKey,
			"status", upstreamResp.StatusCode,
			"error", perr)
		httputil.WriteForError(w, reqID, perr)
		return httputil.StatusForError(perr)
	}
	defer upstreamResp.Body.Close()

	if h.health != nil {
		h.health.ReportSuccess(modelKey)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, reqID, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return http.StatusInternalServerError
	}

	if h.metrics != nil {
		h.metrics.ActiveStreams.Inc()
		defer h.metrics.ActiveStreams.Dec()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	slog.Info("streaming started", "request_id", reqID, "model", modelKey)

	writeFrame := func(chunk *types.StreamChunk) {
		raw, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}

	scanner := bufio.NewScanner(upstreamResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			writeFrame(&types.StreamChunk{Type: types.ChunkDone, Model: modelKey})
			return http.StatusOK
		}

		chunk, err := adapter.TransformStreamChunk([]byte(data))
		if err != nil {
			slog.Warn("skipping malformed stream chunk",
				"request_id", reqID,
				"model", modelKey,
				"error", err)
			continue
		}
		if chunk == nil {
			continue
		}
		writeFrame(chunk)
	}

	if err := scanner.Err(); err != nil {
		// Client gone: nothing left to write to.
		if r.Context().Err() != nil {
			slog.Info("client disconnected mid-stream", "request_id", reqID, "model", modelKey)
			return http.StatusOK
		}
		slog.Error("stream read failed", "request_id", reqID, "model", modelKey, "error", err)
		writeFrame(&types.StreamChunk{Type: types.ChunkError, Error: "stream interrupted", Model: modelKey})
		return http.StatusOK
	}

	// Vendor closed without [DONE]; the stream is still complete.
	writeFrame(&types.StreamChunk{Type: types.ChunkDone, Model: modelKey})
	return http.StatusOK
}

// aggregateStream consumes a vendor SSE stream and folds it into a single
// buffered reply. Used for models that only speak in streams.
func aggregateStream(adapter adapters.ChatAdapter, upstreamResp *http.Response) (*types.ChatResponse, error) {
	if upstreamResp.StatusCode != http.StatusOK {
		_, err := adapter.ParseChatResponse(upstreamResp)
		return nil, err
	}
	defer upstreamResp.Body.Close()

	var (
		content   strings.Builder
		reasoning strings.Builder
		usage     *types.Usage
	)

	scanner := bufio.NewScanner(upstreamResp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		chunk, err := adapter.TransformStreamChunk([]byte(data))
		if err != nil || chunk == nil {
			continue
		}
		switch chunk.Type {
		case types.ChunkThinking:
			reasoning.WriteString(chunk.Content)
		case types.ChunkContent:
			content.WriteString(chunk.Content)
		case types.ChunkUsage:
			usage = chunk.Usage
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, &upstream.NetworkError{Provider: adapter.Name(), Err: err}
	}

	return &types.ChatResponse{
		Response:  content.String(),
		Reasoning: reasoning.String(),
		Status:    "success",
		Source:    adapter.Info().Name,
		Usage:     usage,
	}, nil
}
