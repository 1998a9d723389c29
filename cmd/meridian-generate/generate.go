package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	ollama "github.com/haowjy/meridian-ollama-go"
)

// Generate-specific flag values.
var (
	genPrompt      string
	genSystem      string
	genModel       string
	genFormat      string
	genContextFile string
	genContextOut  string
	genMessages    []string
	genOptions     []string
	genHost        string
	genPort        int
	genMaxRetries  int
	genRetryDelay  time.Duration
	genProbe       time.Duration
	genConfigPath  string
	genLoadEnv     bool
)

// generateCmd sends one prompt through the retry orchestrator.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a completion with automatic retry",
	Long: `Send a prompt to the generate endpoint and print the assembled text.

Settings are resolved from defaults, then --config, then OLLAMA_* environment
variables (with --env loading the nearest .env file first), then flags.

Failed attempts are retried with the original context; the last attempt is
sent without context. Use --context-out to save the returned context and
--context-file to continue from it.`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genPrompt, "prompt", "p", "", "prompt text")
	f.StringVar(&genSystem, "system", "", "system prompt")
	f.StringVarP(&genModel, "model", "m", "", "model name (default from config or OLLAMA_MODEL)")
	f.StringVar(&genFormat, "format", "", `output format: "json" or a JSON schema object`)
	f.StringVar(&genContextFile, "context-file", "", "file holding a context returned by a previous call")
	f.StringVar(&genContextOut, "context-out", "", "write the returned context to this file")
	f.StringArrayVar(&genMessages, "message", nil, "prior conversation turn as role=content (repeatable)")
	f.StringArrayVar(&genOptions, "option", nil, "model option as key=value, value parsed as JSON when possible (repeatable)")
	f.StringVar(&genHost, "host", ollama.DefaultHost, "service host")
	f.IntVar(&genPort, "port", ollama.DefaultPort, "service port")
	f.IntVar(&genMaxRetries, "max-retries", ollama.DefaultMaxRetries, "total number of attempts")
	f.DurationVar(&genRetryDelay, "retry-delay", ollama.DefaultRetryDelay, "pause between attempts")
	f.DurationVar(&genProbe, "probe", 0, "probe reachability before each attempt with this timeout (0 disables)")
	f.StringVar(&genConfigPath, "config", "", "YAML config file")
	f.BoolVar(&genLoadEnv, "env", false, "load the nearest .env file before reading the environment")
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return exitError(ExitInvalidArgs, "meridian-generate: %v", err)
	}

	req, err := buildRequest(cmd, cfg)
	if err != nil {
		return exitError(ExitInvalidArgs, "meridian-generate: %v", err)
	}

	slog.Debug("generating", "url", cfg.BaseURL(), "model", req.Model, "max_retries", cfg.MaxRetries)

	result, err := ollama.GenerateWithRetry(cmd.Context(), cfg, req)
	if err != nil {
		return generateFailure(err)
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprint(w, result.Text)
	if !strings.HasSuffix(result.Text, "\n") {
		_, _ = fmt.Fprintln(w)
	}

	if genContextOut != "" {
		if !result.HasContext() {
			slog.Warn("service returned no context, nothing written", "path", genContextOut)
		} else if err := os.WriteFile(genContextOut, result.Context, 0o600); err != nil {
			return exitError(ExitGenerationFailed, "meridian-generate: writing context: %v", err)
		}
	}

	if !quiet {
		printSummary(cmd, result)
	}
	return nil
}

// resolveConfig layers defaults, config file, environment and changed flags.
func resolveConfig(cmd *cobra.Command) (ollama.Config, error) {
	cfg := ollama.DefaultConfig()
	if genConfigPath != "" {
		loaded, err := ollama.LoadConfigFromFile(genConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if genLoadEnv {
		if err := ollama.LoadEnv(); err != nil {
			return cfg, err
		}
	}
	cfg, err := cfg.ApplyEnv(os.LookupEnv)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = genHost
	}
	if f.Changed("port") {
		cfg.Port = genPort
	}
	if f.Changed("model") {
		cfg.Model = genModel
	}
	if f.Changed("max-retries") {
		cfg.MaxRetries = genMaxRetries
	}
	if f.Changed("retry-delay") {
		cfg.RetryDelay = genRetryDelay
	}
	if f.Changed("probe") {
		cfg.ProbeTimeout = genProbe
	}

	return cfg, cfg.Validate()
}

// buildRequest assembles the generate request from flags.
func buildRequest(cmd *cobra.Command, cfg ollama.Config) (*ollama.GenerateRequest, error) {
	req := &ollama.GenerateRequest{
		Model:  cfg.Model,
		Prompt: genPrompt,
	}
	if req.Model == "" {
		return nil, errors.New("no model: pass --model or set " + ollama.EnvModel)
	}

	if cmd.Flags().Changed("system") {
		req.System = ollama.StringPtr(genSystem)
	}
	if genFormat != "" {
		req.Format = parseFormat(genFormat)
	}

	if genContextFile != "" {
		data, err := os.ReadFile(genContextFile)
		if err != nil {
			return nil, fmt.Errorf("reading context: %w", err)
		}
		if !json.Valid(data) {
			return nil, fmt.Errorf("context file %s is not valid JSON", genContextFile)
		}
		req.Context = json.RawMessage(data)
	}

	for _, m := range genMessages {
		role, content, ok := strings.Cut(m, "=")
		if !ok || role == "" {
			return nil, fmt.Errorf("invalid --message %q: want role=content", m)
		}
		req.Messages = append(req.Messages, ollama.Message{Role: role, Content: content})
	}

	if len(genOptions) > 0 {
		options, err := parseOptions(genOptions)
		if err != nil {
			return nil, err
		}
		req.Options = options
	}

	return req, nil
}

// parseFormat keeps bare words such as "json" as strings and decodes JSON values.
func parseFormat(s string) any {
	var v any
	if strings.HasPrefix(strings.TrimSpace(s), "{") && json.Unmarshal([]byte(s), &v) == nil {
		return v
	}
	return s
}

// parseOptions converts key=value pairs into a validated options mapping.
func parseOptions(pairs []string) (map[string]any, error) {
	raw := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --option %q: want key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		raw[key] = v
	}

	opts, err := ollama.OptionsFromMap(raw)
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts.Map()
}

// generateFailure maps a library error to an exit code.
func generateFailure(err error) error {
	switch {
	case ollama.IsInputError(err):
		return exitError(ExitInvalidArgs, "meridian-generate: %v", err)
	case errors.Is(err, ollama.ErrUnreachable):
		return exitError(ExitUnreachable, "meridian-generate: %v", err)
	default:
		return exitError(ExitGenerationFailed, "meridian-generate: %v", err)
	}
}

func printSummary(cmd *cobra.Command, result *ollama.GenerateResult) {
	w := cmd.ErrOrStderr()
	green := color.New(color.FgGreen)
	dim := color.New(color.Faint)

	summary := fmt.Sprintf("%d chunks", result.Chunks)
	if md := result.Metadata; md != nil {
		if md.DoneReason != "" {
			summary += ", " + md.DoneReason
		}
		if md.TotalDuration > 0 {
			summary += ", " + md.TotalDuration.Round(time.Millisecond).String()
		}
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", green.Sprint("done"), dim.Sprintf("(%s)", summary))
}
