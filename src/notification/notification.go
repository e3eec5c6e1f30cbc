package notification

import (
	"log"

	"fyne.io/fyne/v2"
)

const maxBodyRunes = 200

// Notify shows a desktop notification through the running fyne app, or logs
// when no app is running (CLI, tests).
func Notify(title, message string) {
	body := truncate(message, maxBodyRunes)
	log.Printf("notification: %s: %s", title, body)
	app := fyne.CurrentApp()
	if app == nil {
		return
	}
	app.SendNotification(fyne.NewNotification(title, body))
}

// Error is Notify for failures.
func Error(context string, err error) {
	if err == nil {
		return
	}
	Notify("Screen Chat: "+context, err.Error())
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
