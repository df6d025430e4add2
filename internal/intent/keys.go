// File: internal/intent/keys.go
package intent

import (
	"strings"
)

var modifierNames = map[string]string{
	"ctrl":    "ctrl",
	"control": "ctrl",
	"alt":     "alt",
	"option":  "alt",
	"shift":   "shift",
	"cmd":     "cmd",
	"command": "cmd",
	"meta":    "cmd",
	"win":     "cmd",
}

var keyNames = map[string]string{
	"enter":     "Enter",
	"return":    "Enter",
	"tab":       "Tab",
	"escape":    "Escape",
	"esc":       "Escape",
	"space":     "Space",
	"spacebar":  "Space",
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

// fillers are dropped from spoken key expressions ("press the enter key").
var fillers = map[string]bool{
	"the": true, "key": true, "keys": true, "button": true, "and": true, "then": true,
}

// CanonicalKey returns the canonical name of a spoken key: "enter" -> "Enter",
// "f4" -> "F4". Single characters and unknown names are returned unchanged.
func CanonicalKey(token string) string {
	t := strings.ToLower(strings.TrimSpace(token))
	if name, ok := keyNames[t]; ok {
		return name
	}
	if len(t) >= 2 && len(t) <= 3 && t[0] == 'f' && isDigits(t[1:]) {
		return "F" + t[1:]
	}
	return strings.TrimSpace(token)
}

// CanonicalModifier maps modifier aliases to ctrl, alt, shift or cmd.
// ok is false when token is not a modifier.
func CanonicalModifier(token string) (string, bool) {
	m, ok := modifierNames[strings.ToLower(strings.TrimSpace(token))]
	return m, ok
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SplitKeyExpression splits "alt ctrl delete" or "ctrl+s" into the main key and
// its ordered modifiers. The main key is the last non-modifier token. An
// expression made only of modifiers uses the last one as the key. An empty
// expression yields "Enter".
func SplitKeyExpression(expr string) (string, []string) {
	normalized := strings.ToLower(expr)
	normalized = strings.ReplaceAll(normalized, "page up", "pageup")
	normalized = strings.ReplaceAll(normalized, "page down", "pagedown")
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '+' || r == '\t' || r == ','
	})

	var mods []string
	var key string
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".!?\"'")
		if tok == "" || fillers[tok] {
			continue
		}
		if m, ok := CanonicalModifier(tok); ok {
			if !containsString(mods, m) {
				mods = append(mods, m)
			}
			continue
		}
		key = CanonicalKey(tok)
	}

	if key == "" {
		if len(mods) == 0 {
			return defaultKey, nil
		}
		key = modifierKeyName(mods[len(mods)-1])
		mods = mods[:len(mods)-1]
	}
	if len(mods) == 0 {
		mods = nil
	}
	return key, mods
}

func modifierKeyName(mod string) string {
	switch mod {
	case "ctrl":
		return "Control"
	case "alt":
		return "Alt"
	case "shift":
		return "Shift"
	}
	return "Meta"
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
