package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"screen-chat-llm/src/config"
	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/logutil"
	"screen-chat-llm/src/runtimeinit"
	"screen-chat-llm/src/session"
	"screen-chat-llm/src/singleinstance"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

var (
	pngMagic       = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	errNoResident  = errors.New("no resident screen-chat-llm is running")
	errNeedsSource = errors.New("either --file or --run-once is required")
)

type cliOptions struct {
	filePath   string
	prompt     string
	noStream   bool
	jsonOutput bool
	runOnce    bool
	verbose    bool
	apiKeyPath string
	model      string
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runWithArgs(ctx, normalizeLegacyArgs(os.Args), os.Stdin, os.Stdout, os.Stderr)
}

func runWithArgs(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		args = []string{"screen-chat"}
	}
	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-chat",
		Short:         "Ask a vision model about a PNG image, or about a screen region via the resident app",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithOptions(cmd.Context(), *opts, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.filePath, "file", "", "Path to PNG file (use '-' for stdin)")
	cmd.Flags().StringVarP(&opts.prompt, "prompt", "p", "", "Question about the image (default: describe it)")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "Wait for the whole answer instead of streaming")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().BoolVar(&opts.runOnce, "run-once", false, "Ask the resident app to capture a region and stream its answer")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")
	cmd.Flags().StringVar(&opts.apiKeyPath, "api-key-path", "", "Path to API key file (highest precedence)")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name (overrides OPENAI_MODEL)")
	cmd.MarkFlagsMutuallyExclusive("file", "run-once")

	return cmd
}

func runWithOptions(ctx context.Context, opts cliOptions, stdin io.Reader, stdout, stderr io.Writer) error {
	// Configure logging BEFORE any other operations.
	if opts.verbose {
		log.SetOutput(stderr)
		fmt.Fprintf(stderr, "[verbose] Starting screen-chat\n")
	} else {
		log.SetOutput(io.Discard)
	}

	loadOptions := config.LoadOptions{APIKeyPathOverride: opts.apiKeyPath, ModelOverride: opts.model}
	if opts.runOnce {
		return delegate(ctx, loadOptions, opts.prompt, stdout)
	}
	if opts.filePath == "" {
		return errNeedsSource
	}

	rt, err := runtimeinit.Bootstrap(runtimeinit.Options{LoadOptions: loadOptions})
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Config loaded: Model=%s BaseURL=%s\n", rt.Config.Model, rt.Config.BaseURL)
		fmt.Fprintf(stderr, "[verbose] Effective API key path: %s (key %s)\n", rt.Config.APIKeyPath, logutil.RedactKey(rt.Config.APIKey))
	}

	imageData, err := readImage(opts.filePath, stdin)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Read %d bytes of PNG\n", len(imageData))
	}
	return ask(ctx, rt.Client, imageData, opts, stdout, stderr)
}

// delegate hands the request to a resident, which runs the selection overlay.
func delegate(ctx context.Context, loadOptions config.LoadOptions, prompt string, stdout io.Writer) error {
	// Load .env so SINGLEINSTANCE_PORT_* apply to the scan
	_, _ = config.LoadWithOptions(loadOptions)
	delegated, err := singleinstance.NewClient().TryRunOnce(ctx, prompt, stdout)
	if err != nil {
		return err
	}
	if !delegated {
		return errNoResident
	}
	fmt.Fprintln(stdout)
	return nil
}

func readImage(filePath string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}
	if err := validatePNG(data); err != nil {
		return nil, err
	}
	return data, nil
}

func validatePNG(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if len(data) < len(pngMagic) || !bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return fmt.Errorf("input is not a valid PNG file (invalid magic number)")
	}
	return nil
}

// collector keeps the answer for --json output.
type collector struct{ b strings.Builder }

func (c *collector) OnDelta(text string)               { c.b.WriteString(text) }
func (c *collector) OnSuccess(llm.StreamSummary) error { return nil }
func (c *collector) OnFailure(error) error             { return nil }

func ask(ctx context.Context, client *llm.Client, imageData []byte, opts cliOptions, stdout, stderr io.Writer) error {
	prompt := strings.TrimSpace(opts.prompt)
	if prompt == "" {
		prompt = session.DefaultPrompt
	}
	start := time.Now()

	var (
		answer  string
		summary llm.StreamSummary
		err     error
	)
	switch {
	case opts.noStream:
		answer, err = client.Ask(ctx, llm.BuildImageMessage(prompt, imageData))
		summary.Done = err == nil
	case opts.jsonOutput:
		c := &collector{}
		summary, err = session.Ask(ctx, client, imageData, prompt, c)
		answer = c.b.String()
	default:
		summary, err = session.Ask(ctx, client, imageData, prompt, session.StdoutTarget{Writer: stdout, Trailer: "\n"})
	}
	elapsed := time.Since(start)
	if err != nil {
		if opts.verbose {
			fmt.Fprintf(stderr, "[verbose] Request failed after %v: %v\n", elapsed, err)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "[verbose] Completed in %v (%d deltas, complete=%v)\n", elapsed, summary.Deltas, summary.Done)
	}
	if !opts.noStream && !opts.jsonOutput {
		return nil
	}
	return outputResult(stdout, Result{
		Answer:    answer,
		Prompt:    prompt,
		Source:    opts.filePath,
		Model:     client.Model(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  elapsed.Seconds(),
		Complete:  summary.Done,
	}, opts.jsonOutput)
}

type Result struct {
	Answer    string  `json:"answer"`
	Prompt    string  `json:"prompt"`
	Source    string  `json:"source"`
	Model     string  `json:"model"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	Complete  bool    `json:"complete"`
}

func outputResult(w io.Writer, r Result, jsonOutput bool) error {
	if !jsonOutput {
		_, err := fmt.Fprintln(w, r.Answer)
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}

// normalizeLegacyArgs keeps Go-flag style invocations (-file x) working.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}
	normalized := make([]string, len(args))
	copy(normalized, args)
	long := []string{"file", "prompt", "no-stream", "json", "run-once", "verbose", "api-key-path", "model"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		for _, name := range long {
			switch {
			case arg == "-"+name:
				normalized[i] = "--" + name
			case strings.HasPrefix(arg, "-"+name+"="):
				normalized[i] = "-" + arg
			}
		}
	}
	return normalized
}
