package tray

import "testing"

func TestMenuItems(t *testing.T) {
	var fired []string
	rec := func(name string) func() { return func() { fired = append(fired, name) } }
	m := Menu(Actions{
		CaptureRegion: rec("region"),
		ShowChat:      rec("chat"),
		Quit:          rec("quit"),
	})

	var labels []string
	for _, it := range m.Items {
		if it.IsSeparator {
			continue
		}
		labels = append(labels, it.Label)
		it.Action()
	}
	want := []string{"Capture Region", "Show Chat", "Quit"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %q, want %q", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %q, want %q", labels, want)
		}
	}
	if len(fired) != 3 || fired[2] != "quit" {
		t.Fatalf("fired = %q", fired)
	}
	if !m.Items[len(m.Items)-1].IsQuit {
		t.Fatal("Quit item must be marked IsQuit")
	}
}

func TestAboutText(t *testing.T) {
	if got := AboutText("Cmd+Shift+C", "Cmd+Shift+E", 0); got != "Capture: Cmd+Shift+C\nQuick edit: Cmd+Shift+E" {
		t.Fatalf("AboutText = %q", got)
	}
	if got := AboutText("a", "b", 54321); got != "Capture: a\nQuick edit: b\nResident TCP port: 54321" {
		t.Fatalf("AboutText = %q", got)
	}
}

func TestIconResource(t *testing.T) {
	if Icon.Name() == "" || len(Icon.Content()) == 0 {
		t.Fatal("icon resource is empty")
	}
}
