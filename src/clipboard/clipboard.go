package clipboard

import (
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	"golang.design/x/clipboard"
)

// copySettle is how long the foreground app gets to publish its selection
// after the synthesized copy.
const copySettle = 200 * time.Millisecond

var (
	writeMu sync.Mutex

	// ErrNoSelection means the synthesized copy left no text on the clipboard.
	ErrNoSelection = errors.New("no text selected")
)

func Init() error {
	return clipboard.Init()
}

// Read returns the current text content of the clipboard.
func Read() string {
	return string(clipboard.Read(clipboard.FmtText))
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// CopySelection sends the platform copy shortcut to the focused app and
// returns the text it put on the clipboard.
func CopySelection() (string, error) {
	if err := robotgo.KeyTap("c", shortcutModifier(runtime.GOOS)); err != nil {
		return "", fmt.Errorf("synthesize copy: %w", err)
	}
	time.Sleep(copySettle)
	text := Read()
	if strings.TrimSpace(text) == "" {
		return "", ErrNoSelection
	}
	log.Printf("clipboard: copied selection, %d chars", len(text))
	return text, nil
}

// PasteToFront puts text on the clipboard and pastes it into the focused app.
func PasteToFront(text string) error {
	if err := Write(text); err != nil {
		return err
	}
	if err := robotgo.KeyTap("v", shortcutModifier(runtime.GOOS)); err != nil {
		return fmt.Errorf("synthesize paste: %w", err)
	}
	return nil
}

func shortcutModifier(goos string) string {
	if goos == "darwin" {
		return "cmd"
	}
	return "ctrl"
}

// System exposes the package functions as a value for callers that take an interface.
type System struct{}

func (System) CopySelection() (string, error) { return CopySelection() }
func (System) PasteToFront(text string) error { return PasteToFront(text) }
