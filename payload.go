package ollama

// Wire field names of the generate request.
const (
	fieldModel    = "model"
	fieldPrompt   = "prompt"
	fieldSystem   = "system"
	fieldFormat   = "format"
	fieldMessages = "messages"
	fieldContext  = "context"
	fieldOptions  = "options"
)

// BuildPayload turns req into the JSON body of a generate call.
//
// Only present fields are emitted: model and prompt always, the rest when
// non-nil. Nothing is validated here; see GenerateRequest.Validate.
func BuildPayload(req *GenerateRequest) map[string]any {
	payload := map[string]any{
		fieldModel:  req.Model,
		fieldPrompt: req.Prompt,
	}

	if req.System != nil {
		payload[fieldSystem] = *req.System
	}
	if req.Format != nil {
		payload[fieldFormat] = req.Format
	}
	if req.Messages != nil {
		payload[fieldMessages] = req.Messages
	}
	if contextPresent(req.Context) {
		payload[fieldContext] = req.Context
	}
	if req.Options != nil {
		payload[fieldOptions] = req.Options
	}

	return payload
}
