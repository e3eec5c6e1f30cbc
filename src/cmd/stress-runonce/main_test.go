package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"screen-chat-llm/src/session"
	"screen-chat-llm/src/singleinstance"
)

func TestNewRootCmdDefaults(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 50 {
		t.Fatalf("Expected default n=50, got %d", opts.n)
	}
	if opts.prompt != "" {
		t.Fatalf("Expected empty default prompt, got %q", opts.prompt)
	}
	if opts.deadline != 5*time.Second {
		t.Fatalf("Expected default deadline=5s, got %v", opts.deadline)
	}
}

func TestNewRootCmdCustomFlags(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--n", "3", "--prompt", "what?", "--deadline", "7s"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 3 || opts.prompt != "what?" || opts.deadline != 7*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
}

// firstWins answers the first caller and reports busy to everyone else.
type firstWins struct{ taken *int32 }

func (f firstWins) TryRunOnce(ctx context.Context, prompt string, out io.Writer) (bool, error) {
	if atomic.CompareAndSwapInt32(f.taken, 0, 1) {
		_, _ = io.WriteString(out, "answer")
		return true, nil
	}
	return true, errors.New(session.ErrBusy.Error())
}

func TestRunWithOptionsTallies(t *testing.T) {
	var taken int32
	got := runWithOptions(context.Background(), stressOptions{n: 5, deadline: time.Second}, func() singleinstance.Client {
		return firstWins{taken: &taken}
	})
	if got.ok != 1 || got.busy != 4 || got.err != 0 || got.bytes != int64(len("answer")) {
		t.Fatalf("tally = %s", got)
	}
}

type absent struct{}

func (absent) TryRunOnce(context.Context, string, io.Writer) (bool, error) { return false, nil }

func TestRunWithOptionsNoResident(t *testing.T) {
	got := runWithOptions(context.Background(), stressOptions{n: 2, deadline: time.Second}, func() singleinstance.Client { return absent{} })
	if got.noResident != 2 {
		t.Fatalf("tally = %s", got)
	}
}
