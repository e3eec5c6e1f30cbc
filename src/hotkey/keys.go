package hotkey

import (
	"strconv"
	"strings"

	gohook "github.com/robotn/gohook"
)

var modifiers = map[string]bool{"ctrl": true, "alt": true, "shift": true, "cmd": true}

// keyNameToKeycodes resolves a key name through gohook's portable keycode
// table. Modifiers match either the left or the right key.
func keyNameToKeycodes(name string) []uint16 {
	names := []string{name}
	if modifiers[name] {
		names = append(names, "l"+name, "r"+name)
	}
	switch name {
	case "esc":
		names = append(names, "escape")
	case "return":
		names = append(names, "enter")
	}
	var codes []uint16
	seen := map[uint16]bool{}
	for _, n := range names {
		if c, ok := gohook.Keycode[n]; ok && !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}
	return codes
}

// keyNameToRawcodes maps a key name to Windows virtual-key codes.
func keyNameToRawcodes(keyName string) []uint16 {
	keyName = strings.ToLower(strings.TrimSpace(keyName))

	switch keyName {
	case "ctrl":
		return []uint16{162, 163} // VK_LCONTROL, VK_RCONTROL
	case "alt":
		return []uint16{164, 165} // VK_LMENU, VK_RMENU
	case "shift":
		return []uint16{160, 161} // VK_LSHIFT, VK_RSHIFT
	case "cmd":
		return []uint16{91, 92} // VK_LWIN, VK_RWIN
	case "space":
		return []uint16{32}
	case "enter", "return":
		return []uint16{13}
	case "esc", "escape":
		return []uint16{27}
	case "tab":
		return []uint16{9}
	case "backspace":
		return []uint16{8}
	case "delete", "del":
		return []uint16{46}
	case "insert", "ins":
		return []uint16{45}
	case "home":
		return []uint16{36}
	case "end":
		return []uint16{35}
	case "pageup", "pgup":
		return []uint16{33}
	case "pagedown", "pgdn":
		return []uint16{34}
	case "left":
		return []uint16{37}
	case "up":
		return []uint16{38}
	case "right":
		return []uint16{39}
	case "down":
		return []uint16{40}
	}

	if len(keyName) == 1 {
		c := keyName[0]
		switch {
		case c >= 'a' && c <= 'z':
			return []uint16{uint16(c-'a') + 65}
		case c >= '0' && c <= '9':
			return []uint16{uint16(c-'0') + 48}
		}
	}
	if n, ok := strings.CutPrefix(keyName, "f"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 1 && i <= 24 {
			return []uint16{uint16(111 + i)} // VK_F1 = 112
		}
	}
	return nil
}
