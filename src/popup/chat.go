package popup

import (
	"image"
	"log"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"screen-chat-llm/src/llm"
)

const (
	statusReady     = "Ask about this capture."
	statusStreaming = "Thinking..."
	statusEmpty     = "Capture a region to start."
)

// ChatWindow shows one capture, a prompt box and the streamed answer.
// The exported methods may be called from any goroutine.
type ChatWindow struct {
	win        fyne.Window
	preview    *canvas.Image
	transcript *widget.Label
	scroll     *container.Scroll
	prompt     *widget.Entry
	send       *widget.Button
	capture    *widget.Button
	status     *widget.Label

	// owned by the fyne goroutine
	text      strings.Builder
	streaming bool
	hasImage  bool

	onSend func(prompt string)
}

// NewChatWindow builds the hidden window. onSend receives the trimmed prompt
// (possibly empty) and onCapture starts a new selection.
func NewChatWindow(app fyne.App, onSend func(prompt string), onCapture func()) *ChatWindow {
	w := &ChatWindow{onSend: onSend}
	w.win = app.NewWindow("Screen Chat")

	w.preview = canvas.NewImageFromImage(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	w.preview.FillMode = canvas.ImageFillContain
	w.preview.SetMinSize(fyne.NewSize(360, 200))

	w.transcript = widget.NewLabel("")
	w.transcript.Wrapping = fyne.TextWrapWord
	w.scroll = container.NewVScroll(w.transcript)
	w.scroll.SetMinSize(fyne.NewSize(360, 220))

	w.prompt = widget.NewMultiLineEntry()
	w.prompt.SetPlaceHolder("Ask about the capture (empty for a description)")
	w.prompt.SetMinRowsVisible(2)

	w.send = widget.NewButton("Send", w.submit)
	w.send.Importance = widget.HighImportance
	w.send.Disable()
	w.capture = widget.NewButton("New capture", func() {
		if onCapture != nil {
			onCapture()
		}
	})
	w.status = widget.NewLabel(statusEmpty)

	buttons := container.NewHBox(w.capture, w.status)
	input := container.NewBorder(nil, nil, nil, w.send, w.prompt)
	w.win.SetContent(container.NewBorder(w.preview, container.NewVBox(input, buttons), nil, nil, w.scroll))
	w.win.Resize(fyne.NewSize(480, 640))
	w.win.SetCloseIntercept(w.win.Hide)
	return w
}

func (w *ChatWindow) Show() {
	fyne.DoAndWait(func() {
		w.win.Show()
		w.win.RequestFocus()
	})
}

// Hide returns once the window is off screen.
func (w *ChatWindow) Hide() {
	fyne.DoAndWait(w.win.Hide)
	time.Sleep(hideSettle)
}

// ShowCapture replaces the preview and starts a fresh conversation.
func (w *ChatWindow) ShowCapture(img image.Image) {
	fyne.DoAndWait(func() {
		w.preview.Image = img
		w.preview.Refresh()
		w.hasImage = true
		w.streaming = false
		w.text.Reset()
		w.transcript.SetText("")
		w.status.SetText(statusReady)
		w.prompt.Enable()
		w.send.Enable()
		w.win.Show()
		w.win.RequestFocus()
		w.win.Canvas().Focus(w.prompt)
	})
}

func (w *ChatWindow) BeginAnswer() {
	fyne.Do(func() {
		w.streaming = true
		w.send.Disable()
		w.prompt.Disable()
		w.status.SetText(statusStreaming)
	})
}

func (w *ChatWindow) OnDelta(text string) {
	fyne.Do(func() { w.appendText(text) })
}

func (w *ChatWindow) OnSuccess(summary llm.StreamSummary) error {
	fyne.Do(func() {
		if !summary.Done {
			w.appendText("\n[answer may be incomplete]")
		}
		w.finish(statusReady)
	})
	return nil
}

func (w *ChatWindow) OnFailure(err error) error {
	fyne.Do(func() {
		if err != nil {
			w.appendText("\n[error] " + err.Error())
		}
		w.finish("Request failed.")
	})
	return nil
}

func (w *ChatWindow) appendText(s string) {
	w.text.WriteString(s)
	w.transcript.SetText(w.text.String())
	w.scroll.ScrollToBottom()
}

func (w *ChatWindow) finish(status string) {
	w.streaming = false
	w.text.WriteString("\n\n")
	w.status.SetText(status)
	if w.hasImage {
		w.prompt.Enable()
		w.send.Enable()
	}
}

// submit runs on the fyne goroutine when Send is tapped.
func (w *ChatWindow) submit() {
	if w.streaming || !w.hasImage {
		return
	}
	prompt := strings.TrimSpace(w.prompt.Text)
	shown := prompt
	if shown == "" {
		shown = "(describe)"
	}
	w.appendText("You: " + shown + "\n\n")
	w.prompt.SetText("")
	w.streaming = true
	w.send.Disable()
	w.prompt.Disable()
	log.Printf("popup: sending prompt (%d chars)", len(prompt))
	if w.onSend != nil {
		w.onSend(prompt)
	}
}
