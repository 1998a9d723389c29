// Package lorem provides a mock generate service that streams lorem ipsum text.
// Used for testing and development without a real model server.
package lorem

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	loremgen "github.com/bozaro/golorem"

	ollama "github.com/haowjy/meridian-ollama-go"
)

// DefaultWords is the response length when the request sets no num_predict.
const DefaultWords = 20

// Model name suffixes that inject faults.
const (
	SuffixError     = "-error"     // respond with HTTP 500
	SuffixMalformed = "-malformed" // corrupt line after the first chunk
	SuffixTruncated = "-truncated" // close the stream without a done chunk
	SuffixNoContext = "-nocontext" // terminal chunk without context
)

// Server is an http.Handler implementing POST /api/generate with NDJSON streaming.
// Model names must start with "lorem-"; the rest of the name selects speed and faults.
type Server struct {
	mu        sync.Mutex
	generator *loremgen.Lorem
	requests  []map[string]any
	failFirst int
	wordDelay *time.Duration
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithFailFirst makes the first n requests fail with HTTP 503.
func WithFailFirst(n int) Option {
	return func(s *Server) {
		s.failFirst = n
	}
}

// WithWordDelay overrides the per-word delay derived from the model name.
func WithWordDelay(d time.Duration) Option {
	return func(s *Server) {
		s.wordDelay = &d
	}
}

// WithLogger sets the logger for request records.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new lorem ipsum generate server.
func NewServer(opts ...Option) *Server {
	s := &Server{
		generator: loremgen.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SupportsModel returns true if the model name starts with "lorem-".
// Example models: "lorem-fast", "lorem-slow", "lorem-fast-truncated"
func SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

// Requests returns the decoded payloads received so far, in arrival order.
func (s *Server) Requests() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestCount returns the number of generate requests received.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Context json.RawMessage `json:"context"`
	Options map[string]any  `json:"options"`
}

// ServeHTTP handles one generate call.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != ollama.GeneratePath {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	req, err := parseRequest(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, raw)
	count := len(s.requests)
	s.mu.Unlock()

	s.logger.Debug("lorem generate request", "model", req.Model, "request", count, "has_context", len(req.Context) > 0)

	if count <= s.failFirst {
		writeError(w, http.StatusServiceUnavailable, "lorem: warming up")
		return
	}

	switch {
	case req.Model == "":
		writeError(w, http.StatusBadRequest, "model is required")
		return
	case !SupportsModel(req.Model):
		writeError(w, http.StatusNotFound, fmt.Sprintf("model '%s' not found", req.Model))
		return
	case strings.HasSuffix(req.Model, SuffixError):
		writeError(w, http.StatusInternalServerError, "lorem: simulated failure")
		return
	}

	s.stream(w, r, req)
}

// stream writes one chunk per word, then the terminal chunk.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, req *generateRequest) {
	start := time.Now()
	words := strings.Fields(s.generateTextWords(wordCount(req.Options)))
	delay := s.delayFor(req.Model)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for i, word := range words {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		piece := word
		if i > 0 {
			piece = " " + word
		}
		_ = enc.Encode(ollama.GenerateChunk{
			Model:     req.Model,
			CreatedAt: time.Now().UTC(),
			Response:  piece,
		})

		if i == 0 && strings.HasSuffix(req.Model, SuffixMalformed) {
			_, _ = w.Write([]byte("{\"response\": \"dolor\", \"done\":\n"))
		}
		if flusher != nil {
			flusher.Flush()
		}

		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if strings.HasSuffix(req.Model, SuffixTruncated) {
		return
	}

	final := ollama.GenerateChunk{
		Model:           req.Model,
		CreatedAt:       time.Now().UTC(),
		Done:            true,
		DoneReason:      "stop",
		TotalDuration:   int64(time.Since(start)),
		PromptEvalCount: len(strings.Fields(req.Prompt)),
		EvalCount:       len(words),
	}
	if !strings.HasSuffix(req.Model, SuffixNoContext) {
		final.Context = nextContext(req.Context, len(words))
	}
	_ = enc.Encode(final)
	if flusher != nil {
		flusher.Flush()
	}
}

// delayFor returns the delay between words based on the model name.
// - lorem-slow: 2 words/second (500ms per word)
// - lorem-fast: 30 words/second (33ms per word)
// - lorem-medium: 10 words/second (100ms per word)
// - lorem-instant: no delay
// - default: 10 words/second
func (s *Server) delayFor(model string) time.Duration {
	if s.wordDelay != nil {
		return *s.wordDelay
	}
	switch {
	case strings.Contains(model, "instant"):
		return 0
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

// generateTextWords generates lorem ipsum text with exactly targetWords words.
func (s *Server) generateTextWords(targetWords int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	words := make([]string, 0, targetWords)
	for len(words) < targetWords {
		words = append(words, strings.Fields(s.generator.Sentence(5, 15))...)
	}
	return strings.Join(words[:targetWords], " ")
}

// nextContext extends an int-array context with one token per turn.
// Contexts of any other shape are replaced.
func nextContext(prev json.RawMessage, token int) json.RawMessage {
	var tokens []int
	if len(prev) > 0 {
		_ = json.Unmarshal(prev, &tokens)
	}
	tokens = append(tokens, token)

	out, _ := json.Marshal(tokens)
	return out
}

func parseRequest(raw map[string]any) (*generateRequest, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var req generateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &req, nil
}

// wordCount reads options.num_predict, defaulting to DefaultWords.
func wordCount(options map[string]any) int {
	n, ok := options["num_predict"].(float64)
	if !ok || n < 1 {
		return DefaultWords
	}
	return int(n)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
