package types

// Message is one turn of a conversation in the OpenAI-compatible wire format
// shared by all chat vendors.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryTurn is how the front end submits prior conversation turns: a user
// utterance paired with the assistant reply it received.
type HistoryTurn struct {
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string        `json:"message" validate:"required"`
	History []HistoryTurn `json:"history"`
	Model   string        `json:"model"`
	// Stream defaults to true when omitted, matching the front end.
	Stream *bool `json:"stream"`
}

// Messages flattens history plus the current message into an ordered
// conversation. Empty sides of a turn are skipped.
func (r *ChatRequest) Messages() []Message {
	msgs := make([]Message, 0, 2*len(r.History)+1)
	for _, h := range r.History {
		if h.User != "" {
			msgs = append(msgs, Message{Role: "user", Content: h.User})
		}
		if h.Assistant != "" {
			msgs = append(msgs, Message{Role: "assistant", Content: h.Assistant})
		}
	}
	return append(msgs, Message{Role: "user", Content: r.Message})
}

// WantsStream reports whether the caller asked for an event stream.
func (r *ChatRequest) WantsStream() bool {
	return r.Stream == nil || *r.Stream
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the buffered (non-streaming) reply of POST /chat.
type ChatResponse struct {
	Response  string `json:"response"`
	Reasoning string `json:"reasoning,omitempty"`
	Status    string `json:"status"`
	Model     string `json:"model"`
	Source    string `json:"source,omitempty"`
	Usage     *Usage `json:"usage,omitempty"`
}

// Stream chunk kinds. A stream is a sequence of thinking/content/usage
// frames followed by exactly one done or error frame.
const (
	ChunkThinking = "thinking"
	ChunkContent  = "content"
	ChunkUsage    = "usage"
	ChunkDone     = "done"
	ChunkError    = "error"
)

// StreamChunk is one SSE frame of a streamed chat response. Type
// discriminates which of the optional fields is populated.
type StreamChunk struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
	Error   string `json:"error,omitempty"`
	Model   string `json:"model,omitempty"`
}

// ModelInfo describes one chat model for GET /models.
type ModelInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}
