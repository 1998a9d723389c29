package ollama

import (
	"bytes"
	"encoding/json"
	"time"
)

// GenerateResult is the assembled outcome of one successful stream.
type GenerateResult struct {
	// Text is the concatenation of every chunk's response piece, in stream order
	Text string

	// Context is the terminal chunk's continuation token.
	// nil when the terminal chunk carried none.
	Context json.RawMessage

	// Metadata holds the terminal chunk's statistics
	Metadata *GenerateMetadata

	// Chunks is the number of decoded stream lines, terminal chunk included
	Chunks int
}

// GenerateMetadata contains completion information sent on the terminal chunk.
// Fields the service did not send are left at their zero value.
type GenerateMetadata struct {
	Model              string
	CreatedAt          time.Time
	DoneReason         string
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalCount    int
	PromptEvalDuration time.Duration
	EvalCount          int
	EvalDuration       time.Duration
}

// HasContext reports whether the result carries a continuation token.
func (r *GenerateResult) HasContext() bool {
	return r != nil && contextPresent(r.Context)
}

// contextPresent reports whether raw holds an actual token rather than
// nothing or an explicit JSON null.
func contextPresent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
