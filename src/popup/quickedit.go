package popup

import (
	"context"
	"log"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"screen-chat-llm/src/notification"
	"screen-chat-llm/src/quickedit"
)

// QuickEditWindow edits the focused app's selection with the rewrite presets
// and pastes the result back on Accept.
type QuickEditWindow struct {
	win     fyne.Window
	editor  *quickedit.Editor
	run     Runner
	entry   *widget.Entry
	presets []*widget.Button
	accept  *widget.Button
	status  *widget.Label
}

func NewQuickEditWindow(app fyne.App, editor *quickedit.Editor, run Runner) *QuickEditWindow {
	q := &QuickEditWindow{editor: editor, run: run}
	q.win = app.NewWindow("Quick Edit")

	q.entry = widget.NewMultiLineEntry()
	q.entry.Wrapping = fyne.TextWrapWord
	q.entry.SetMinRowsVisible(8)

	row := container.NewHBox()
	for i, p := range quickedit.Presets {
		i := i
		b := widget.NewButton(p.Label, func() { q.applyPreset(i) })
		q.presets = append(q.presets, b)
		row.Add(b)
	}
	q.accept = widget.NewButton("Accept", q.acceptEdit)
	q.accept.Importance = widget.HighImportance
	cancel := widget.NewButton("Cancel", q.win.Hide)
	q.status = widget.NewLabel("")

	bottom := container.NewBorder(nil, nil, q.status, container.NewHBox(cancel, q.accept))
	q.win.SetContent(container.NewBorder(row, bottom, nil, nil, q.entry))
	q.win.Resize(fyne.NewSize(560, 320))
	q.win.SetCloseIntercept(q.win.Hide)
	q.win.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		if ev.Name == fyne.KeyEscape {
			q.win.Hide()
		}
	})
	return q
}

// Open copies the current selection and shows it. It must not run on the fyne
// goroutine because it synthesizes the copy shortcut and waits for it.
func (q *QuickEditWindow) Open() {
	text := q.editor.Open()
	fyne.DoAndWait(func() {
		q.entry.SetText(text)
		q.setBusy(false)
		if text == "" {
			q.status.SetText("No selection, type or paste text.")
		} else {
			q.status.SetText("")
		}
		q.win.Show()
		q.win.RequestFocus()
		q.win.Canvas().Focus(q.entry)
	})
}

func (q *QuickEditWindow) setBusy(busy bool) {
	for _, b := range q.presets {
		if busy {
			b.Disable()
		} else {
			b.Enable()
		}
	}
	if busy {
		q.accept.Disable()
		q.entry.Disable()
	} else {
		q.accept.Enable()
		q.entry.Enable()
	}
}

// applyPreset runs on the fyne goroutine; the rewrite itself runs on the worker.
func (q *QuickEditWindow) applyPreset(i int) {
	q.editor.SetText(q.entry.Text)
	q.setBusy(true)
	q.status.SetText(quickedit.Presets[i].Label + "...")
	ok := q.run("quickedit", func(ctx context.Context) {
		out, err := q.editor.Apply(ctx, i)
		fyne.Do(func() {
			q.setBusy(false)
			if err != nil {
				log.Printf("quickedit: %s failed: %v", quickedit.Presets[i].Label, err)
				q.status.SetText("Failed: " + err.Error())
				return
			}
			q.entry.SetText(out)
			q.status.SetText("")
		})
	})
	if !ok {
		q.setBusy(false)
		q.status.SetText("Busy, try again when the current request finishes.")
	}
}

// acceptEdit hides the panel so focus returns to the source app, then pastes.
func (q *QuickEditWindow) acceptEdit() {
	q.editor.SetText(q.entry.Text)
	q.win.Hide()
	go func() {
		time.Sleep(hideSettle)
		if err := q.editor.Accept(); err != nil {
			log.Printf("quickedit: paste failed: %v", err)
			notification.Error("Quick edit", err)
		}
	}()
}
