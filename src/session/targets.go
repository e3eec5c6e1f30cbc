package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/singleinstance"
)

// StdoutTarget writes deltas as they arrive.
type StdoutTarget struct {
	Writer io.Writer
	// Trailer is printed after a complete answer.
	Trailer string
}

func (t StdoutTarget) writer() io.Writer {
	if t.Writer == nil {
		return os.Stdout
	}
	return t.Writer
}

func (t StdoutTarget) OnDelta(text string) {
	_, _ = fmt.Fprint(t.writer(), text)
}

func (t StdoutTarget) OnSuccess(summary llm.StreamSummary) error {
	if t.Trailer == "" {
		return nil
	}
	_, err := fmt.Fprint(t.writer(), t.Trailer)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// DelegatedTarget streams the answer back to a run-once client.
type DelegatedTarget struct {
	Conn singleinstance.Conn
}

func (t DelegatedTarget) OnDelta(text string) {
	if t.Conn == nil {
		return
	}
	if err := t.Conn.WriteDelta(text); err != nil {
		log.Printf("session: run-once client went away: %v", err)
	}
}

func (t DelegatedTarget) OnSuccess(summary llm.StreamSummary) error {
	if t.Conn == nil {
		return errors.New("delegated target missing connection")
	}
	return t.Conn.Finish()
}

func (t DelegatedTarget) OnFailure(err error) error {
	if t.Conn == nil {
		return nil
	}
	if err == nil {
		return t.Conn.RespondError("unknown session error")
	}
	return t.Conn.RespondError(err.Error())
}
