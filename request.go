package ollama

import "encoding/json"

// Message roles accepted by the generate endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// GenerateRequest contains the parameters for one completion call.
//
// Optional fields use nil to mean "absent"; absent fields are never sent on
// the wire (see BuildPayload).
type GenerateRequest struct {
	// Model is the model identifier (e.g., "llama3", "lorem-fast"). Required.
	Model string

	// Prompt is the user prompt. Always sent, even when empty.
	Prompt string

	// System overrides the model's system instruction
	System *string

	// Messages is prior conversation history, in order.
	// nil is absent; a non-nil empty slice is sent as [].
	Messages []Message

	// Format constrains the output shape: a string such as "json" or a
	// JSON schema value.
	Format any

	// Context is the opaque continuation token returned by a previous call.
	// It is passed through untouched. nil, empty and the literal null are absent.
	Context json.RawMessage

	// Options contains model tuning parameters (see ModelOptions.Map).
	Options map[string]any
}

// Message represents a single turn of prior conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Validate checks the fields the remote service cannot do without.
func (r *GenerateRequest) Validate() error {
	if r == nil {
		return &InputError{Field: "request", Reason: "request is nil", Err: ErrInvalidInput}
	}
	if r.Model == "" {
		return &InputError{Field: "model", Value: r.Model, Reason: "model must be non-empty", Err: ErrInvalidInput}
	}
	if contextPresent(r.Context) && !json.Valid(r.Context) {
		return &InputError{Field: "context", Value: string(r.Context), Reason: "context must be valid JSON", Err: ErrInvalidInput}
	}
	return nil
}

// withContext returns a shallow copy of r carrying ctx as its continuation token.
func (r *GenerateRequest) withContext(ctx json.RawMessage) *GenerateRequest {
	cp := *r
	cp.Context = ctx
	return &cp
}

// StringPtr returns a pointer to s, for optional string fields such as System.
func StringPtr(s string) *string {
	return &s
}
