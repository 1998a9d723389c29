package ollama

import (
	"encoding/json"
	"fmt"
)

// ModelOptions represents the common model tuning parameters of the generate endpoint.
// All fields are optional pointers to distinguish "not set" from "set to zero value".
type ModelOptions struct {
	// Temperature controls randomness (0.0-2.0)
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0)
	TopP *float64 `json:"top_p,omitempty"`

	// TopK limits sampling to top K tokens
	TopK *int `json:"top_k,omitempty"`

	// Seed for deterministic sampling
	Seed *int `json:"seed,omitempty"`

	// NumPredict caps generated tokens (-1 = unlimited, -2 = fill context)
	NumPredict *int `json:"num_predict,omitempty"`

	// NumCtx sets the context window size
	NumCtx *int `json:"num_ctx,omitempty"`

	// RepeatPenalty penalizes repetition (1.0 = off)
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty"`

	// Stop sequences - generation stops if any of these are generated
	Stop []string `json:"stop,omitempty"`

	// Extra holds parameters without a typed field. Typed fields win on conflict.
	Extra map[string]any `json:"-"`
}

// Validate range-checks the set fields.
func (o *ModelOptions) Validate() error {
	if o == nil {
		return nil
	}

	if o.Temperature != nil && (*o.Temperature < 0.0 || *o.Temperature > 2.0) {
		return optionError("temperature", *o.Temperature, "must be between 0.0 and 2.0")
	}
	if o.TopP != nil && (*o.TopP < 0.0 || *o.TopP > 1.0) {
		return optionError("top_p", *o.TopP, "must be between 0.0 and 1.0")
	}
	if o.TopK != nil && *o.TopK < 0 {
		return optionError("top_k", *o.TopK, "must be non-negative")
	}
	if o.NumPredict != nil && *o.NumPredict < -2 {
		return optionError("num_predict", *o.NumPredict, "must be -2, -1 or non-negative")
	}
	if o.NumCtx != nil && *o.NumCtx < 1 {
		return optionError("num_ctx", *o.NumCtx, "must be positive")
	}
	if o.RepeatPenalty != nil && *o.RepeatPenalty < 0.0 {
		return optionError("repeat_penalty", *o.RepeatPenalty, "must be non-negative")
	}

	return nil
}

// Map converts o into the options mapping of GenerateRequest.
// A nil receiver yields nil, which keeps options off the wire.
func (o *ModelOptions) Map() (map[string]any, error) {
	if o == nil {
		return nil, nil
	}

	jsonBytes, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %w", err)
	}

	out := make(map[string]any, len(o.Extra))
	for k, v := range o.Extra {
		out[k] = v
	}

	var typed map[string]any
	if err := json.Unmarshal(jsonBytes, &typed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	for k, v := range typed {
		out[k] = v
	}

	return out, nil
}

// OptionsFromMap parses an options mapping into ModelOptions.
// Keys without a typed field are kept in Extra.
func OptionsFromMap(m map[string]any) (*ModelOptions, error) {
	if m == nil {
		return &ModelOptions{}, nil
	}

	jsonBytes, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %w", err)
	}

	var opts ModelOptions
	if err := json.Unmarshal(jsonBytes, &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}

	for k, v := range m {
		if knownOptions[k] {
			continue
		}
		if opts.Extra == nil {
			opts.Extra = make(map[string]any)
		}
		opts.Extra[k] = v
	}

	return &opts, nil
}

var knownOptions = map[string]bool{
	"temperature":    true,
	"top_p":          true,
	"top_k":          true,
	"seed":           true,
	"num_predict":    true,
	"num_ctx":        true,
	"repeat_penalty": true,
	"stop":           true,
}

func optionError(field string, value any, reason string) error {
	return &InputError{Field: "options." + field, Value: value, Reason: reason, Err: ErrInvalidInput}
}

// Float64Ptr returns a pointer to f.
func Float64Ptr(f float64) *float64 {
	return &f
}

// IntPtr returns a pointer to i.
func IntPtr(i int) *int {
	return &i
}
