package ollama_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	ollama "github.com/haowjy/meridian-ollama-go"
	"github.com/haowjy/meridian-ollama-go/lorem"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startLorem serves a lorem server and returns a Config pointing at it.
func startLorem(t *testing.T, opts ...lorem.Option) (*lorem.Server, ollama.Config) {
	t.Helper()

	opts = append([]lorem.Option{lorem.WithWordDelay(0), lorem.WithLogger(discardLogger())}, opts...)
	srv := lorem.NewServer(opts...)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := ollama.DefaultConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.RetryDelay = time.Millisecond
	return srv, cfg
}

func wordsOption(n int) map[string]any {
	return map[string]any{"num_predict": n}
}

func TestGenerateWithRetry_Lorem(t *testing.T) {
	srv, cfg := startLorem(t)

	result, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
		Model:   "lorem-instant",
		Prompt:  "hello",
		Options: wordsOption(5),
	}, ollama.WithRetryLogger(discardLogger()))
	require.NoError(t, err)

	assert.Len(t, strings.Fields(result.Text), 5)
	assert.JSONEq(t, `[5]`, string(result.Context))
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "stop", result.Metadata.DoneReason)
	assert.Equal(t, 6, result.Chunks)
	assert.Equal(t, 1, srv.RequestCount())
}

func TestGenerateWithRetry_RecoversFromWarmup(t *testing.T) {
	srv, cfg := startLorem(t, lorem.WithFailFirst(2))
	cfg.MaxRetries = 3

	result, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
		Model:   "lorem-instant",
		Context: json.RawMessage(`[1,2]`),
		Options: wordsOption(2),
	}, ollama.WithRetryLogger(discardLogger()))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)

	reqs := srv.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0], "context")
	assert.Contains(t, reqs[1], "context")
	assert.NotContains(t, reqs[2], "context", "final attempt drops the context")
	assert.JSONEq(t, `[2]`, string(result.Context))
}

func TestGenerateWithRetry_ExhaustsOnServerError(t *testing.T) {
	srv, cfg := startLorem(t)
	cfg.MaxRetries = 3

	result, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
		Model: "lorem-instant-error",
	}, ollama.WithRetryLogger(discardLogger()))

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ollama.ErrRetriesExhausted)

	var transportErr *ollama.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, 500, transportErr.StatusCode)
	assert.Equal(t, "lorem: simulated failure", transportErr.Message)
	assert.Equal(t, 3, srv.RequestCount())
}

func TestGenerateWithRetry_StreamFaults(t *testing.T) {
	tests := []struct {
		model string
		want  error
	}{
		{"lorem-instant-malformed", ollama.ErrMalformedStream},
		{"lorem-instant-truncated", ollama.ErrIncompleteStream},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			srv, cfg := startLorem(t)
			cfg.MaxRetries = 2

			_, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
				Model:   tt.model,
				Options: wordsOption(3),
			}, ollama.WithRetryLogger(discardLogger()))

			assert.ErrorIs(t, err, ollama.ErrRetriesExhausted)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 2, srv.RequestCount())
		})
	}
}

func TestGenerateWithRetry_NoContextIsSuccess(t *testing.T) {
	_, cfg := startLorem(t)

	result, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
		Model:   "lorem-instant-nocontext",
		Options: wordsOption(2),
	}, ollama.WithRetryLogger(discardLogger()))
	require.NoError(t, err)
	assert.False(t, result.HasContext())
	assert.Nil(t, result.Context)
}

func TestGenerateWithRetry_ProbeGate(t *testing.T) {
	srv, cfg := startLorem(t)
	cfg.ProbeTimeout = 500 * time.Millisecond

	_, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{
		Model:   "lorem-instant",
		Options: wordsOption(1),
	}, ollama.WithRetryLogger(discardLogger()))
	require.NoError(t, err)
	assert.Equal(t, 1, srv.RequestCount())
}

func TestGenerateWithRetry_UsesConfigModel(t *testing.T) {
	srv, cfg := startLorem(t)
	cfg.Model = "lorem-instant"

	req := &ollama.GenerateRequest{Prompt: "p", Options: wordsOption(1)}
	_, err := ollama.GenerateWithRetry(context.Background(), cfg, req, ollama.WithRetryLogger(discardLogger()))
	require.NoError(t, err)

	assert.Equal(t, "lorem-instant", srv.Requests()[0]["model"])
	assert.Empty(t, req.Model, "caller request is not modified")
}

func TestGenerateWithRetry_InvalidConfig(t *testing.T) {
	cfg := ollama.DefaultConfig()
	cfg.Port = 70000

	_, err := ollama.GenerateWithRetry(context.Background(), cfg, &ollama.GenerateRequest{Model: "m"})
	assert.True(t, ollama.IsInputError(err))
}

func TestMultiTurnContinuation(t *testing.T) {
	srv, cfg := startLorem(t)
	client := ollama.NewClient(cfg.BaseURL(), ollama.WithLogger(discardLogger()))

	req := &ollama.GenerateRequest{Model: "lorem-instant", Prompt: "turn one", Options: wordsOption(3)}
	first, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	req = ollama.ContinueWith(req, first)
	req.Prompt = "turn two"
	req.Options = wordsOption(4)
	second, err := client.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.JSONEq(t, `[3]`, string(first.Context))
	assert.JSONEq(t, `[3,4]`, string(second.Context))

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.NotContains(t, reqs[0], "context")
	assert.Equal(t, []any{float64(3)}, reqs[1]["context"])
}

func TestConcurrentGenerate(t *testing.T) {
	srv, cfg := startLorem(t, lorem.WithWordDelay(time.Millisecond))
	client := ollama.NewClient(cfg.BaseURL(), ollama.WithLogger(discardLogger()))

	const calls = 16
	results := make([]*ollama.GenerateResult, calls)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(8)
	for i := range calls {
		g.Go(func() error {
			res, err := client.Generate(ctx, &ollama.GenerateRequest{
				Model:   "lorem-fast",
				Prompt:  fmt.Sprintf("call %d", i),
				Context: json.RawMessage(fmt.Sprintf(`[%d]`, i*100)),
				Options: wordsOption(i + 1),
			})
			if err != nil {
				return fmt.Errorf("call %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i, res := range results {
		assert.Len(t, strings.Fields(res.Text), i+1, "call %d", i)
		assert.JSONEq(t, fmt.Sprintf(`[%d,%d]`, i*100, i+1), string(res.Context), "call %d", i)
	}
	assert.Equal(t, calls, srv.RequestCount())
}

func TestClientStream_Lorem(t *testing.T) {
	_, cfg := startLorem(t)
	client := ollama.NewClient(cfg.BaseURL(), ollama.WithLogger(discardLogger()))

	events, err := client.Stream(context.Background(), &ollama.GenerateRequest{
		Model:   "lorem-instant",
		Options: wordsOption(4),
	})
	require.NoError(t, err)

	var text strings.Builder
	var result *ollama.GenerateResult
	chunks := 0
	for ev := range events {
		require.NoError(t, ev.Error)
		if ev.Chunk != nil {
			chunks++
			text.WriteString(ev.Chunk.Response)
		}
		if ev.Result != nil {
			result = ev.Result
		}
	}

	require.NotNil(t, result)
	assert.Equal(t, 5, chunks)
	assert.Equal(t, text.String(), result.Text)
}

func TestClientStream_CancelClosesChannel(t *testing.T) {
	_, cfg := startLorem(t, lorem.WithWordDelay(50*time.Millisecond))
	client := ollama.NewClient(cfg.BaseURL(), ollama.WithLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := client.Stream(ctx, &ollama.GenerateRequest{Model: "lorem-slow", Options: wordsOption(100)})
	require.NoError(t, err)

	first := <-events
	require.NotNil(t, first.Chunk)
	cancel()

	done := make(chan struct{})
	go func() {
		for range events {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel not closed after cancel")
	}
}
