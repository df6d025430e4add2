// internal/safety/describe.go
package safety

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

const describeTextLimit = 50

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Describe renders a short, deterministic description of an action.
func Describe(a schemas.Action) string {
	switch v := a.(type) {
	case schemas.Click:
		return fmt.Sprintf("Click at position (%s, %s)", num(v.X), num(v.Y))
	case schemas.DoubleClick:
		return fmt.Sprintf("Double-click at position (%s, %s)", num(v.X), num(v.Y))
	case schemas.RightClick:
		return fmt.Sprintf("Right-click at position (%s, %s)", num(v.X), num(v.Y))
	case schemas.MoveMouse:
		return fmt.Sprintf("Move mouse to (%s, %s)", num(v.X), num(v.Y))
	case schemas.TypeText:
		text := v.Text
		if utf8.RuneCountInString(text) > describeTextLimit {
			text = string([]rune(text)[:describeTextLimit]) + "..."
		}
		return fmt.Sprintf("Type: %q", text)
	case schemas.KeyPress:
		mods := ""
		if len(v.Modifiers) > 0 {
			mods = strings.Join(v.Modifiers, "+") + "+"
		}
		return "Press " + mods + v.Key
	case schemas.Scroll:
		return "Scroll " + v.Direction
	case schemas.Drag:
		return fmt.Sprintf("Drag from (%s, %s) to (%s, %s)", num(v.FromX), num(v.FromY), num(v.ToX), num(v.ToY))
	case nil:
		return "Execute unknown action"
	}
	return fmt.Sprintf("Execute %s", a.Kind())
}

// Summarize returns the client-facing summary, preferring the planner label.
func Summarize(a schemas.Action) schemas.ActionSummary {
	desc := a.Label()
	if desc == "" {
		desc = Describe(a)
	}
	return schemas.ActionSummary{Type: string(a.Kind()), Description: desc}
}
