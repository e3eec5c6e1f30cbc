package notification

import (
	"errors"
	"testing"
)

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ééééé", 3); got != "ééé..." {
		t.Errorf("truncate = %q", got)
	}
}

func TestNotifyWithoutApp(t *testing.T) {
	// no fyne app in tests: must only log
	Notify("title", "message")
	Error("capture", errors.New("boom"))
	Error("capture", nil)
}
