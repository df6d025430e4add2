// internal/desktop/keys.go
package desktop

import "strings"

// keyMap translates spoken or planner key names into the names Desktop
// backends understand.
var keyMap = map[string]string{
	"ctrl":      "Control",
	"control":   "Control",
	"cmd":       "Meta",
	"command":   "Meta",
	"meta":      "Meta",
	"win":       "Meta",
	"alt":       "Alt",
	"option":    "Alt",
	"shift":     "Shift",
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"escape":    "Escape",
	"esc":       "Escape",
	"space":     "Space",
	"backspace": "Backspace",
	"delete":    "Delete",
	"del":       "Delete",
	"up":        "ArrowUp",
	"down":      "ArrowDown",
	"left":      "ArrowLeft",
	"right":     "ArrowRight",
	"home":      "Home",
	"end":       "End",
	"pageup":    "PageUp",
	"pagedown":  "PageDown",
	"insert":    "Insert",
}

// MapKey returns the backend name for a key. Function keys are upper-cased
// and unknown names pass through unchanged.
func MapKey(name string) string {
	trimmed := strings.TrimSpace(name)
	lower := strings.ToLower(trimmed)
	if mapped, ok := keyMap[lower]; ok {
		return mapped
	}
	if len(lower) >= 2 && len(lower) <= 3 && lower[0] == 'f' && strings.Trim(lower[1:], "0123456789") == "" {
		return "F" + lower[1:]
	}
	return trimmed
}
