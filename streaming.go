package ollama

import (
	"encoding/json"
	"time"
)

// GenerateChunk is one decoded line of the completion stream.
//
// Chunks before the terminal one may omit Context; only the terminal chunk's
// Context is authoritative.
type GenerateChunk struct {
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Response is the generated text fragment (may be empty)
	Response string `json:"response"`

	// Done marks the terminal chunk
	Done bool `json:"done"`

	// DoneReason is "stop", "length", etc. on the terminal chunk
	DoneReason string `json:"done_reason,omitempty"`

	// Context is the opaque continuation token
	Context json.RawMessage `json:"context,omitempty"`

	// Durations are nanoseconds on the wire
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// metadata extracts the terminal statistics carried by c.
func (c *GenerateChunk) metadata() *GenerateMetadata {
	return &GenerateMetadata{
		Model:              c.Model,
		CreatedAt:          c.CreatedAt,
		DoneReason:         c.DoneReason,
		TotalDuration:      time.Duration(c.TotalDuration),
		LoadDuration:       time.Duration(c.LoadDuration),
		PromptEvalCount:    c.PromptEvalCount,
		PromptEvalDuration: time.Duration(c.PromptEvalDuration),
		EvalCount:          c.EvalCount,
		EvalDuration:       time.Duration(c.EvalDuration),
	}
}

// StreamEvent represents a single event emitted by Client.Stream.
// Each event contains either a chunk, the final result, or an error.
type StreamEvent struct {
	// Chunk is a decoded stream line, for incremental display (nil if result/error)
	Chunk *GenerateChunk

	// Result is the assembled outcome, sent once after the terminal chunk (nil until end)
	Result *GenerateResult

	// Error is the failure that ended the stream (nil if successful)
	Error error
}
