package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/af-corp/muse-gateway/internal/types"
)

// sseVendor serves the given SSE data payloads, then [DONE] unless
// truncated.
func sseVendor(t *testing.T, payloads []string, truncate bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
		if !truncate {
			fmt.Fprintf(w, "data: [DONE]\n\n")
			flusher.Flush()
		}
	}))
}

// parseFrames decodes every data: line of an SSE body.
func parseFrames(t *testing.T, body string) []types.StreamChunk {
	t.Helper()
	var frames []types.StreamChunk
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var chunk types.StreamChunk
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk))
		frames = append(frames, chunk)
	}
	return frames
}

func TestChatStreamNormalizesFrames(t *testing.T) {
	vendor := sseVendor(t, []string{
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"delta":{"content":" world"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`,
	}, false)
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_normal"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 4, "role-only and empty deltas are dropped")

	assert.Equal(t, types.ChunkContent, frames[0].Type)
	assert.Equal(t, "Hello", frames[0].Content)
	assert.Equal(t, " world", frames[1].Content)

	assert.Equal(t, types.ChunkUsage, frames[2].Type)
	require.NotNil(t, frames[2].Usage)
	assert.Equal(t, 7, frames[2].Usage.TotalTokens)

	assert.Equal(t, types.ChunkDone, frames[3].Type)
}

func TestChatStreamEmitsThinkingFrames(t *testing.T) {
	vendor := sseVendor(t, []string{
		`{"choices":[{"delta":{"reasoning_content":"Let me think."}}]}`,
		`{"choices":[{"delta":{"content":"Answer."}}]}`,
	}, false)
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_thinking"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 3)

	assert.Equal(t, types.ChunkThinking, frames[0].Type)
	assert.Equal(t, "Let me think.", frames[0].Content)
	assert.Equal(t, types.ChunkContent, frames[1].Type)
	assert.Equal(t, types.ChunkDone, frames[2].Type)
}

func TestChatStreamDoneWithoutVendorSentinel(t *testing.T) {
	vendor := sseVendor(t, []string{
		`{"choices":[{"delta":{"content":"partial"}}]}`,
	}, true)
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_normal"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	frames := parseFrames(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, types.ChunkDone, frames[len(frames)-1].Type, "a clean EOF still terminates the stream")
}

func TestChatStreamVendorRejectionIsPlainError(t *testing.T) {
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error": {"message": "rate limited", "type": "rate_limit_error", "code": "rate_limit_exceeded"}}`)
	}))
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_normal"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "upstream_rate_limited", decodeMap(t, rec)["error_code"])
}

func TestChatStreamSkipsMalformedChunks(t *testing.T) {
	vendor := sseVendor(t, []string{
		`{not json`,
		`{"choices":[{"delta":{"content":"ok"}}]}`,
	}, false)
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_normal"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "ok", frames[0].Content)
	assert.Equal(t, types.ChunkDone, frames[1].Type)
}

// notifyRecorder signals once the first body byte is written.
type notifyRecorder struct {
	*httptest.ResponseRecorder
	wrote chan struct{}
	once  sync.Once
}

func (n *notifyRecorder) Write(p []byte) (int, error) {
	n.once.Do(func() { close(n.wrote) })
	return n.ResponseRecorder.Write(p)
}

func TestChatStreamStopsOnClientDisconnect(t *testing.T) {
	vendorStopped := make(chan struct{})
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(vendorStopped)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: %s\n\n", `{"choices":[{"delta":{"content":"first"}}]}`)
		flusher.Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
			t.Error("vendor read kept going after the client went away")
		}
	}))
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	mux := chi.NewRouter()
	h.Routes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/chat",
		strings.NewReader(`{"message": "hi", "model": "qwen_normal"}`)).WithContext(ctx)

	rec := &notifyRecorder{ResponseRecorder: httptest.NewRecorder(), wrote: make(chan struct{})}
	served := make(chan struct{})
	go func() {
		defer close(served)
		mux.ServeHTTP(rec, req)
	}()

	<-rec.wrote
	cancel()
	<-served
	<-vendorStopped

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 1, "no terminal frame after a disconnect")
	assert.Equal(t, types.ChunkContent, frames[0].Type)
	assert.Equal(t, "first", frames[0].Content)
}

func TestBufferedThinkingModelAggregatesStream(t *testing.T) {
	var gotStream bool
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotStream = req.Stream

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, p := range []string{
			`{"choices":[{"delta":{"reasoning_content":"step one. "}}]}`,
			`{"choices":[{"delta":{"reasoning_content":"step two."}}]}`,
			`{"choices":[{"delta":{"content":"Final "}}]}`,
			`{"choices":[{"delta":{"content":"answer."}}]}`,
			`{"choices":[],"usage":{"prompt_tokens":9,"completion_tokens":4,"total_tokens":13}}`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", p)
			flusher.Flush()
		}
		fmt.Fprintf(w, "data: [DONE]\n\n")
	}))
	defer vendor.Close()

	h, _ := newTestHandler(t, vendor.URL)
	rec := serve(t, h, http.MethodPost, "/chat", `{"message": "hi", "model": "qwen_thinking", "stream": false}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotStream, "thinking mode always streams upstream")

	body := decodeMap(t, rec)
	assert.Equal(t, "Final answer.", body["response"])
	assert.Equal(t, "step one. step two.", body["reasoning"])
	assert.Equal(t, "success", body["status"])

	usage, ok := body["usage"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(13), usage["total_tokens"])
}
