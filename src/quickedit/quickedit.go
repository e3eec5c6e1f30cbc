// Package quickedit rewrites a text selection taken from the focused app and
// pastes the result back.
package quickedit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"screen-chat-llm/src/llm"
	"screen-chat-llm/src/logutil"
)

const systemPrompt = "You are a writing assistant. Only return the transformed text without quotes."

var (
	ErrEmptyText   = errors.New("nothing to transform")
	ErrEmptyResult = errors.New("model returned no text")
)

type Preset struct {
	Label       string
	Instruction string
}

// Presets are offered as buttons in the order listed.
var Presets = []Preset{
	{Label: "Expand", Instruction: "Expand and elaborate while keeping the original meaning."},
	{Label: "Summarize", Instruction: "Summarize concisely."},
	{Label: "Rephrase (Professional)", Instruction: "Rephrase to a professional tone."},
	{Label: "Rephrase (Casual)", Instruction: "Rephrase to a casual, friendly tone."},
}

type Asker interface {
	Ask(ctx context.Context, messages []llm.Message) (string, error)
}

// Clipboard is the selection round-trip the editor needs.
type Clipboard interface {
	CopySelection() (string, error)
	PasteToFront(text string) error
}

// Messages builds the request for one rewrite.
func Messages(instruction, text string) []llm.Message {
	return llm.BuildTextMessages(systemPrompt, fmt.Sprintf("Instruction: %s\n\nText:\n%s", instruction, text))
}

// Transform asks for one rewrite and returns the trimmed result.
func Transform(ctx context.Context, asker Asker, instruction, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyText
	}
	out, err := asker.Ask(ctx, Messages(instruction, text))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", ErrEmptyResult
	}
	return out, nil
}

// Editor holds the text being edited between Open and Accept. It is safe
// to use from the UI and worker goroutines.
type Editor struct {
	asker Asker
	clip  Clipboard

	mu   sync.Mutex
	text string
}

func NewEditor(asker Asker, clip Clipboard) *Editor {
	return &Editor{asker: asker, clip: clip}
}

func (e *Editor) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// SetText replaces the buffer with user edits.
func (e *Editor) SetText(s string) {
	e.mu.Lock()
	e.text = s
	e.mu.Unlock()
}

// Open copies the focused app's selection into the buffer. An empty selection
// leaves an empty buffer for the user to type into.
func (e *Editor) Open() string {
	text, err := e.clip.CopySelection()
	if err != nil {
		log.Printf("quickedit: no selection copied: %v", err)
		text = ""
	}
	e.SetText(text)
	return text
}

// Apply runs preset i on the buffer. On error the buffer is unchanged.
func (e *Editor) Apply(ctx context.Context, i int) (string, error) {
	if i < 0 || i >= len(Presets) {
		return "", fmt.Errorf("unknown preset %d", i)
	}
	out, err := Transform(ctx, e.asker, Presets[i].Instruction, e.Text())
	if err != nil {
		return "", err
	}
	log.Printf("quickedit: %s produced %d chars: %s", Presets[i].Label, len(out), logutil.Sanitize(out, 60))
	e.SetText(out)
	return out, nil
}

// Accept pastes the buffer into the focused app.
func (e *Editor) Accept() error {
	return e.clip.PasteToFront(e.Text())
}
