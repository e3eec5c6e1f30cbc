// Package popup holds the fyne windows of the resident app: the chat window
// that shows a capture and its streamed answer, and the quick edit panel.
package popup

import (
	"time"

	"screen-chat-llm/src/worker"
)

// hideSettle gives the compositor time to remove a hidden window before the
// screen is captured or keys are sent to the app underneath.
const hideSettle = 100 * time.Millisecond

// Runner submits a background job and reports whether it was accepted.
type Runner func(name string, fn worker.Job) bool
