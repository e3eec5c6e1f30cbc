package popup

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"

	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/quickedit"
	"screen-chat-llm/src/worker"
)

func TestChatWindowStreamsAnswer(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	var sent []string
	w := NewChatWindow(a, func(p string) { sent = append(sent, p) }, nil)
	if !w.send.Disabled() {
		t.Fatal("Send must be disabled before the first capture")
	}

	w.ShowCapture(image.NewRGBA(image.Rect(0, 0, 10, 10)))
	w.prompt.SetText("  what is it? ")
	test.Tap(w.send)
	if len(sent) != 1 || sent[0] != "what is it?" {
		t.Fatalf("sent = %q", sent)
	}
	if !w.send.Disabled() {
		t.Fatal("Send must stay disabled while streaming")
	}

	w.BeginAnswer()
	w.OnDelta("a ")
	w.OnDelta("cat")
	_ = w.OnSuccess(llm.StreamSummary{Deltas: 2, Done: true})

	if !strings.Contains(w.transcript.Text, "You: what is it?\n\na cat") {
		t.Fatalf("transcript = %q", w.transcript.Text)
	}
	if w.send.Disabled() {
		t.Fatal("Send must be enabled after the answer")
	}
}

func TestChatWindowShowsErrorsAndIncompleteAnswers(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	w := NewChatWindow(a, func(string) {}, nil)
	w.ShowCapture(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	w.BeginAnswer()
	w.OnDelta("partial")
	_ = w.OnSuccess(llm.StreamSummary{Deltas: 1})
	if !strings.Contains(w.transcript.Text, "[answer may be incomplete]") {
		t.Fatalf("transcript = %q", w.transcript.Text)
	}

	w.BeginAnswer()
	_ = w.OnFailure(errors.New("boom"))
	if !strings.Contains(w.transcript.Text, "[error] boom") {
		t.Fatalf("transcript = %q", w.transcript.Text)
	}

	w.ShowCapture(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if w.transcript.Text != "" {
		t.Fatalf("new capture must clear the transcript, got %q", w.transcript.Text)
	}
}

func TestChatWindowHideAndShow(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	captures := 0
	w := NewChatWindow(a, nil, func() { captures++ })
	w.Show()
	w.Hide()
	w.Show()
	test.Tap(w.capture)
	if captures != 1 {
		t.Fatalf("captures = %d", captures)
	}
}

type fakeAsker struct {
	out string
	err error
}

func (f fakeAsker) Ask(ctx context.Context, messages []llm.Message) (string, error) {
	return f.out, f.err
}

type fakeClipboard struct {
	selection string
	pasted    chan string
}

func (f *fakeClipboard) CopySelection() (string, error) { return f.selection, nil }
func (f *fakeClipboard) PasteToFront(text string) error {
	f.pasted <- text
	return nil
}

func inline(name string, fn worker.Job) bool {
	fn(context.Background())
	return true
}

func TestQuickEditWindowAppliesPresetAndPastes(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	clip := &fakeClipboard{selection: "hello", pasted: make(chan string, 1)}
	q := NewQuickEditWindow(a, quickedit.NewEditor(fakeAsker{out: "  Hello there.  "}, clip), inline)
	q.Open()
	if q.entry.Text != "hello" {
		t.Fatalf("entry = %q", q.entry.Text)
	}

	test.Tap(q.presets[0])
	if q.entry.Text != "Hello there." {
		t.Fatalf("entry after preset = %q", q.entry.Text)
	}

	q.entry.SetText("Hello there, edited.")
	test.Tap(q.accept)
	select {
	case got := <-clip.pasted:
		if got != "Hello there, edited." {
			t.Fatalf("pasted %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept never pasted")
	}
}

func TestQuickEditWindowBusyAndErrors(t *testing.T) {
	a := test.NewApp()
	defer a.Quit()

	clip := &fakeClipboard{selection: "text", pasted: make(chan string, 1)}
	busy := func(string, worker.Job) bool { return false }
	q := NewQuickEditWindow(a, quickedit.NewEditor(fakeAsker{out: "x"}, clip), busy)
	q.Open()
	test.Tap(q.presets[1])
	if !strings.HasPrefix(q.status.Text, "Busy") || q.entry.Disabled() {
		t.Fatalf("status=%q disabled=%v", q.status.Text, q.entry.Disabled())
	}

	failing := NewQuickEditWindow(a, quickedit.NewEditor(fakeAsker{err: errors.New("down")}, clip), inline)
	failing.Open()
	test.Tap(failing.presets[1])
	if failing.entry.Text != "text" || !strings.Contains(failing.status.Text, "down") {
		t.Fatalf("entry=%q status=%q", failing.entry.Text, failing.status.Text)
	}
}
