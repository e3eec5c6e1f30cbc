package tray

import (
	"fmt"
	"log"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/driver/desktop"
)

// Actions are the tray menu callbacks. Nil entries are left out of the menu.
type Actions struct {
	CaptureRegion     func()
	CaptureFullScreen func()
	QuickEdit         func()
	ShowChat          func()
	About             func()
	Quit              func()
}

// Install sets the tray icon and menu. It returns false when the driver has
// no system tray.
func Install(a fyne.App, actions Actions) bool {
	desk, ok := a.(desktop.App)
	if !ok {
		log.Printf("tray: driver has no system tray")
		return false
	}
	desk.SetSystemTrayMenu(Menu(actions))
	desk.SetSystemTrayIcon(Icon)
	return true
}

func Menu(actions Actions) *fyne.Menu {
	var items []*fyne.MenuItem
	add := func(label string, fn func()) {
		if fn != nil {
			items = append(items, fyne.NewMenuItem(label, fn))
		}
	}
	add("Capture Region", actions.CaptureRegion)
	add("Capture Full Screen", actions.CaptureFullScreen)
	add("Quick Edit", actions.QuickEdit)
	add("Show Chat", actions.ShowChat)
	items = append(items, fyne.NewMenuItemSeparator())
	add("About", actions.About)
	if actions.Quit != nil {
		quit := fyne.NewMenuItem("Quit", actions.Quit)
		quit.IsQuit = true
		items = append(items, quit)
	}
	return fyne.NewMenu("Screen Chat", items...)
}

// AboutText describes the hotkeys and the run-once port.
func AboutText(captureHotkey, editHotkey string, port int) string {
	s := fmt.Sprintf("Capture: %s\nQuick edit: %s", captureHotkey, editHotkey)
	if port > 0 {
		s += fmt.Sprintf("\nResident TCP port: %d", port)
	}
	return s
}
