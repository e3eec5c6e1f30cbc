package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryRunOnce(ctx context.Context, prompt string, out io.Writer) (bool, error) {
	// connect timeout only; the answer itself is bounded by ctx
	timeout := boundedTimeout(ctx, connectTimeout)
	_, addr, ok := findResident(Ports(), timeout)
	if !ok {
		return false, nil
	}
	conn, err := dialResident(addr, formatAsk(prompt), timeout)
	if err != nil {
		return false, fmt.Errorf("resident at %s went away: %w", addr, err)
	}
	defer conn.Close()
	return true, readAnswer(ctx, conn, out)
}

// readAnswer copies a STREAM answer to out or turns ERROR into an error.
func readAnswer(ctx context.Context, conn net.Conn, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return fmt.Errorf("resident closed connection: %w", err)
	}
	switch status {
	case streamResponse:
		if _, err := io.Copy(out, br); err != nil {
			return fmt.Errorf("stream interrupted: %w", err)
		}
		return nil
	case errorResponse:
		msg, _ := io.ReadAll(br)
		return errors.New(strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("unexpected resident response %q", status)
	}
}
