package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"screen-chat-llm/src/session"
	"screen-chat-llm/src/singleinstance"
)

type stressOptions struct {
	n        int
	prompt   string
	deadline time.Duration
}

// tally counts outcomes; only one client at a time can hold the resident's
// single worker slot, the rest should come back busy.
type tally struct {
	ok, busy, noResident, err, bytes int64
}

func (t *tally) String() string {
	return fmt.Sprintf("ok=%d busy=%d no-resident=%d err=%d streamed=%dB", t.ok, t.busy, t.noResident, t.err, t.bytes)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	return cmd.Execute()
}

func newRootCmd(opts *stressOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stress-runonce",
		Short:         "Stress test run-once delegation",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			start := time.Now()
			t := runWithOptions(cmd.Context(), *opts, singleinstance.NewClient)
			fmt.Fprintf(cmd.OutOrStdout(), "launched=%d %s elapsed=%s\n", opts.n, t, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.n, "n", 50, "number of clients to launch")
	cmd.Flags().StringVar(&opts.prompt, "prompt", "", "prompt each client sends (empty for the default)")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 5*time.Second, "per-client timeout")

	return cmd
}

type countingWriter struct{ n *int64 }

func (w countingWriter) Write(p []byte) (int, error) {
	atomic.AddInt64(w.n, int64(len(p)))
	return len(p), nil
}

func runWithOptions(ctx context.Context, opts stressOptions, newClient func() singleinstance.Client) *tally {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &tally{}
	var wg sync.WaitGroup
	for i := 0; i < opts.n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(ctx, opts.deadline)
			defer cancel()
			var out io.Writer = countingWriter{n: &t.bytes}
			delegated, err := newClient().TryRunOnce(ctx, opts.prompt, out)
			switch {
			case err != nil && isBusy(err):
				atomic.AddInt64(&t.busy, 1)
			case err != nil:
				atomic.AddInt64(&t.err, 1)
			case delegated:
				atomic.AddInt64(&t.ok, 1)
			default:
				atomic.AddInt64(&t.noResident, 1)
			}
		}()
	}
	wg.Wait()
	return t
}

// isBusy matches the resident's busy reply, which arrives as plain text.
func isBusy(err error) bool {
	return errors.Is(err, session.ErrBusy) || strings.Contains(err.Error(), session.ErrBusy.Error())
}
