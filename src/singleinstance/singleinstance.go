package singleinstance

// This file defines the API for single-instance ownership and run-once delegation.

import (
	"context"
	"io"
)

// Server owns the TCP endpoint and answers run-once requests.
type Server interface {
	// Start listens on the first port of the configured range and accepts client requests.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
// A response is either a stream (WriteDelta... then Finish) or one RespondError.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// WriteDelta forwards one answer fragment, sending the STREAM header first if needed.
	WriteDelta(text string) error
	// Finish ends a successful answer. An answer with no deltas still gets a STREAM header.
	Finish() error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Request represents a single run-once client request.
type Request struct {
	// Prompt is empty when the client wants the default prompt.
	Prompt string
}

// Client attempts to delegate run-once invocation to a resident server.
type Client interface {
	// TryRunOnce finds a resident, sends the prompt and copies the streamed answer to out.
	// If no resident is found, returns delegated=false, err=nil.
	TryRunOnce(ctx context.Context, prompt string, out io.Writer) (delegated bool, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
