package ollama

import (
	"context"
)

// Generator defines a single completion attempt.
// *Client implements it; the retry orchestrator wraps any Generator.
type Generator interface {
	// Generate performs one attempt and returns the assembled result.
	// It never retries. A nil error always comes with a non-nil result.
	//
	// Usage:
	//   result, err := gen.Generate(ctx, req)
	//   if err != nil { classify with IsRetryable / IsInputError }
	//   fmt.Print(result.Text)
	//   next.Context = result.Context
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

// GeneratorFunc adapts an ordinary function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	return f(ctx, req)
}

// Compile-time checks.
var (
	_ Generator = (*Client)(nil)
	_ Generator = (*Retrier)(nil)
	_ Generator = GeneratorFunc(nil)
)
