package eventloop

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"

	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/overlay"
	"screen-chat-llm/src/session"
	"screen-chat-llm/src/singleinstance"
	"screen-chat-llm/src/worker"
)

// ChatView is the chat window as the loop sees it. The ResultTarget methods
// are only called on the loop goroutine.
type ChatView interface {
	session.ResultTarget
	Show()
	Hide()
	// ShowCapture replaces the preview and clears the previous answer.
	ShowCapture(img image.Image)
	// BeginAnswer locks the prompt box until OnSuccess or OnFailure.
	BeginAnswer()
}

type Options struct {
	Client           session.Streamer
	Selector         overlay.Selector
	Snapshot         session.SnapshotFunc
	DevicePixelRatio float64
	// Server answers run-once clients. Nil disables delegation.
	Server        singleinstance.Server
	Chat          ChatView
	OpenQuickEdit func()
	Notify        func(title, message string)
	// Pool defaults to a single-slot pool.
	Pool *worker.Pool
}

type requestKind int

const (
	captureRegion requestKind = iota
	captureFullScreen
	showChat
	quickEdit
	send
)

func (k requestKind) String() string {
	switch k {
	case captureRegion:
		return "capture-region"
	case captureFullScreen:
		return "capture-full"
	case showChat:
		return "show-chat"
	case quickEdit:
		return "quick-edit"
	case send:
		return "send"
	}
	return fmt.Sprintf("request(%d)", int(k))
}

type request struct {
	kind   requestKind
	prompt string
}

// Loop is the single-goroutine coordinator. Selection and all UI state
// changes happen on the goroutine running Run; network work goes to the pool.
type Loop struct {
	opts     Options
	pool     *worker.Pool
	requests chan request
	posts    chan func()
	done     chan struct{}

	current session.Capture
}

func New(opts Options) *Loop {
	pool := opts.Pool
	if pool == nil {
		pool = worker.New(1)
	}
	return &Loop{
		opts:     opts,
		pool:     pool,
		requests: make(chan request, 8),
		posts:    make(chan func(), 64),
		done:     make(chan struct{}),
	}
}

// CaptureRegion opens the selection overlay and shows the result in the chat window.
func (l *Loop) CaptureRegion() { l.enqueue(request{kind: captureRegion}) }

// CaptureFullScreen captures the whole virtual screen without the overlay.
func (l *Loop) CaptureFullScreen() { l.enqueue(request{kind: captureFullScreen}) }

func (l *Loop) ShowChat() { l.enqueue(request{kind: showChat}) }

func (l *Loop) QuickEdit() { l.enqueue(request{kind: quickEdit}) }

// Send asks about the current capture.
func (l *Loop) Send(prompt string) { l.enqueue(request{kind: send, prompt: prompt}) }

// Go runs fn on the worker pool. It returns false when a request is already
// running.
func (l *Loop) Go(name string, fn worker.Job) bool {
	return l.pool.Submit(context.Background(), name, fn)
}

// enqueue never blocks the caller (hotkey listener, UI goroutine).
func (l *Loop) enqueue(r request) {
	select {
	case l.requests <- r:
	default:
		log.Printf("eventloop: queue full, dropping %s", r.kind)
	}
}

// post schedules fn on the loop goroutine. It is a no-op once Run returned.
func (l *Loop) post(fn func()) {
	select {
	case l.posts <- fn:
	case <-l.done:
	}
}

// Run processes requests until ctx is cancelled. Background jobs are drained
// before it returns.
func (l *Loop) Run(ctx context.Context) error {
	defer l.pool.Close()
	// jobs blocked in post must be released before the pool drains
	defer close(l.done)

	var conns <-chan singleinstance.Conn
	if l.opts.Server != nil {
		if err := l.opts.Server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start resident server: %w", err)
		}
		defer l.opts.Server.Close()
		if p := l.opts.Server.Port(); p > 0 {
			log.Printf("Resident listening on 127.0.0.1:%d", p)
		}
		ch := make(chan singleinstance.Conn, 4)
		go func() {
			defer close(ch)
			for {
				conn, err := l.opts.Server.Next(ctx)
				if err != nil {
					return
				}
				select {
				case ch <- conn:
				case <-ctx.Done():
					_ = conn.Close()
					return
				}
			}
		}()
		conns = ch
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.posts:
			fn()
		case r := <-l.requests:
			l.handle(ctx, r)
		case conn, ok := <-conns:
			if !ok {
				conns = nil
				continue
			}
			l.handleConn(ctx, conn)
		}
	}
}

func (l *Loop) handle(ctx context.Context, r request) {
	log.Printf("eventloop: %s", r.kind)
	switch r.kind {
	case captureRegion:
		l.handleCapture(ctx, true)
	case captureFullScreen:
		l.handleCapture(ctx, false)
	case showChat:
		if l.opts.Chat != nil {
			l.opts.Chat.Show()
		}
	case quickEdit:
		if l.opts.OpenQuickEdit != nil {
			l.opts.OpenQuickEdit()
		}
	case send:
		l.handleSend(ctx, r.prompt)
	}
}

func (l *Loop) capture(ctx context.Context, interactive bool) (session.Capture, error) {
	opts := session.CaptureOptions{
		Snapshot:         l.opts.Snapshot,
		DevicePixelRatio: l.opts.DevicePixelRatio,
	}
	if interactive {
		opts.Selector = l.opts.Selector
	}
	return session.CaptureRegion(ctx, opts)
}

func (l *Loop) handleCapture(ctx context.Context, interactive bool) {
	if l.pool.Busy() {
		l.notify("Busy", session.ErrBusy.Error())
		return
	}
	if l.opts.Chat != nil {
		l.opts.Chat.Hide()
	}
	capture, err := l.capture(ctx, interactive)
	switch {
	case errors.Is(err, session.ErrSelectionCancelled):
		log.Printf("eventloop: selection cancelled")
		if l.opts.Chat != nil && len(l.current.PNG) > 0 {
			l.opts.Chat.Show()
		}
		return
	case err != nil:
		log.Printf("eventloop: capture failed: %v", err)
		l.notify("Capture failed", err.Error())
		return
	}
	l.current = capture
	if l.opts.Chat != nil {
		l.opts.Chat.ShowCapture(capture.Image)
	}
}

func (l *Loop) handleSend(ctx context.Context, prompt string) {
	chat := l.opts.Chat
	if chat == nil {
		return
	}
	if len(l.current.PNG) == 0 {
		_ = chat.OnFailure(errors.New("capture a region first"))
		return
	}
	png := l.current.PNG
	target := postingTarget{post: l.post, dst: chat}
	chat.BeginAnswer()
	ok := l.pool.Submit(ctx, "chat", func(jobCtx context.Context) {
		_, _ = session.Ask(jobCtx, l.opts.Client, png, prompt, target)
	})
	if !ok {
		_ = chat.OnFailure(session.ErrBusy)
	}
}

// handleConn serves one run-once client: selection on the loop, streaming on
// the worker straight to the socket.
func (l *Loop) handleConn(ctx context.Context, conn singleinstance.Conn) {
	target := session.DelegatedTarget{Conn: conn}
	fail := func(err error) {
		log.Printf("eventloop: run-once request failed: %v", err)
		_ = target.OnFailure(err)
		_ = conn.Close()
	}
	if l.pool.Busy() {
		fail(session.ErrBusy)
		return
	}
	capture, err := l.capture(ctx, true)
	if err != nil {
		fail(err)
		return
	}
	prompt := conn.Request().Prompt
	ok := l.pool.Submit(ctx, "run-once", func(jobCtx context.Context) {
		defer conn.Close()
		_, _ = session.Ask(jobCtx, l.opts.Client, capture.PNG, prompt, target)
	})
	if !ok {
		fail(session.ErrBusy)
	}
}

func (l *Loop) notify(title, message string) {
	if l.opts.Notify != nil {
		l.opts.Notify(title, message)
		return
	}
	log.Printf("eventloop: %s: %s", title, message)
}

// postingTarget is handed to the worker and replays every callback on the
// loop goroutine, preserving order.
type postingTarget struct {
	post func(func())
	dst  session.ResultTarget
}

func (t postingTarget) OnDelta(text string) {
	t.post(func() { t.dst.OnDelta(text) })
}

func (t postingTarget) OnSuccess(summary llm.StreamSummary) error {
	t.post(func() { _ = t.dst.OnSuccess(summary) })
	return nil
}

func (t postingTarget) OnFailure(err error) error {
	t.post(func() { _ = t.dst.OnFailure(err) })
	return nil
}
