package hotkey

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Registrar is the global-hotkey capability handed to the event loop.
type Registrar interface {
	Register(combo string, callback func()) error
	Unregister()
}

// Manager runs one gohook listener and dispatches to every registered combo.
// Callbacks run on the listener goroutine and must not block.
type Manager struct {
	mu       sync.Mutex
	bindings []*binding
	running  bool
	stopped  chan struct{}
}

func NewManager() *Manager { return &Manager{} }

// Register parses combo ("Cmd+Shift+C") and starts listening if needed.
func (m *Manager) Register(combo string, callback func()) error {
	b, err := newBinding(combo, callback)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, b)
	log.Printf("Hotkey listener configured for: %s", combo)
	if !m.running {
		m.running = true
		m.stopped = make(chan struct{})
		go m.listen(m.stopped)
	}
	return nil
}

// Unregister drops every binding and stops the hook.
func (m *Manager) Unregister() {
	m.mu.Lock()
	running := m.running
	stopped := m.stopped
	m.bindings = nil
	m.running = false
	m.mu.Unlock()
	if !running {
		return
	}
	gohook.End()
	<-stopped
	log.Printf("Hotkey listener stopped")
}

func (m *Manager) listen(stopped chan struct{}) {
	defer close(stopped)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in hotkey goroutine: %v", r)
		}
	}()

	evChan := gohook.Start()
	if evChan == nil {
		log.Printf("ERROR: gohook.Start() returned nil channel")
		return
	}
	for ev := range evChan {
		if ev.Kind != gohook.KeyDown && ev.Kind != gohook.KeyUp && ev.Kind != gohook.KeyHold {
			continue
		}
		m.mu.Lock()
		var fire []func()
		for _, b := range m.bindings {
			if b.handle(ev) && b.callback != nil {
				fire = append(fire, b.callback)
			}
		}
		m.mu.Unlock()
		for _, cb := range fire {
			cb()
		}
	}
	log.Printf("Event channel closed")
}

type keyState struct {
	name     string
	keycodes []uint16
	rawcodes []uint16
	pressed  bool
}

func (k *keyState) matches(ev gohook.Event) bool {
	for _, c := range k.keycodes {
		if ev.Keycode == c {
			return true
		}
	}
	for _, c := range k.rawcodes {
		if ev.Rawcode == c {
			return true
		}
	}
	return false
}

type binding struct {
	combo    string
	keys     []*keyState
	callback func()
}

func newBinding(combo string, callback func()) (*binding, error) {
	b := &binding{combo: combo, callback: callback}
	for _, name := range parseHotkey(combo) {
		k := &keyState{name: name, keycodes: keyNameToKeycodes(name)}
		if runtime.GOOS == "windows" {
			// gohook reports virtual-key codes as rawcodes on Windows
			k.rawcodes = keyNameToRawcodes(name)
		}
		if len(k.keycodes) == 0 && len(k.rawcodes) == 0 {
			return nil, fmt.Errorf("hotkey %q: unknown key %q", combo, name)
		}
		b.keys = append(b.keys, k)
	}
	if len(b.keys) == 0 {
		return nil, fmt.Errorf("hotkey %q: no keys", combo)
	}
	return b, nil
}

// handle updates the pressed set and reports whether the combo just completed.
func (b *binding) handle(ev gohook.Event) bool {
	switch ev.Kind {
	case gohook.KeyDown, gohook.KeyHold:
		for _, k := range b.keys {
			if k.matches(ev) {
				k.pressed = true
			}
		}
		for _, k := range b.keys {
			if !k.pressed {
				return false
			}
		}
		log.Printf("HOTKEY COMBINATION DETECTED! %s", b.combo)
		for _, k := range b.keys {
			k.pressed = false
		}
		return true
	case gohook.KeyUp:
		for _, k := range b.keys {
			if k.matches(ev) {
				k.pressed = false
			}
		}
	}
	return false
}

// parseHotkey converts a hotkey string like "Ctrl+Alt+q" to normalized key names
func parseHotkey(hotkeyConfig string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(hotkeyConfig), "+") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "control":
			part = "ctrl"
		case "option", "opt":
			part = "alt"
		case "win", "super", "command", "meta":
			part = "cmd"
		}
		keys = append(keys, part)
	}
	return keys
}
