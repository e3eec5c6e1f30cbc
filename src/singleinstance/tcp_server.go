package singleinstance

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	lis       net.Listener
	incoming  chan *tcpConn
	done      chan struct{}
	closeOnce sync.Once
	port      int
}

func newTcpServer() Server {
	return &tcpServer{incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	if s.lis != nil {
		return nil
	}
	start := Ports().Start
	addr := residentAddr(start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return err
	}
	s.lis = lis
	s.port = start
	log.Printf("singleinstance: listening on %s", addr)
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int { return s.port }

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		remote := c.RemoteAddr().String()
		_ = c.SetDeadline(time.Now().Add(3 * time.Second))
		br := bufio.NewReader(c)
		line, _ := br.ReadString('\n')
		bw := bufio.NewWriter(c)
		if line == pingRequest {
			log.Printf("singleinstance: PING from %s -> PONG", remote)
			_, _ = bw.WriteString(pongResponse)
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		prompt, ok := parseAsk(line)
		if !ok {
			log.Printf("singleinstance: unknown request %q from %s", line, remote)
			_, _ = bw.WriteString(errorResponse + "unknown request")
			_ = bw.Flush()
			_ = c.Close()
			continue
		}
		// answers stream for as long as the model talks
		_ = c.SetDeadline(time.Time{})
		log.Printf("singleinstance: ASK from %s, prompt %d chars", remote, len(prompt))
		select {
		case s.incoming <- &tcpConn{c: c, r: Request{Prompt: prompt}, w: bw}:
		case <-ctx.Done():
			_ = c.Close()
			return
		case <-s.done:
			_ = c.Close()
			return
		}
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, net.ErrClosed
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.lis != nil {
			_ = s.lis.Close()
		}
	})
	return nil
}

type tcpConn struct {
	c       net.Conn
	r       Request
	w       *bufio.Writer
	started bool
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) begin() error {
	if tc.started {
		return nil
	}
	tc.started = true
	_, err := tc.w.WriteString(streamResponse)
	return err
}

func (tc *tcpConn) WriteDelta(text string) error {
	if err := tc.begin(); err != nil {
		return err
	}
	if _, err := tc.w.WriteString(text); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Finish() error {
	if err := tc.begin(); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) RespondError(msg string) error {
	if tc.started {
		// too late for a status line; append the message to the stream
		if _, err := tc.w.WriteString("\n[error] " + msg + "\n"); err != nil {
			return err
		}
		return tc.w.Flush()
	}
	tc.started = true
	if _, err := tc.w.WriteString(errorResponse + msg); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
