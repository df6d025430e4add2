// File: internal/intent/parser.go
package intent

import (
	"regexp"
	"strings"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// Kind is the classified action of a command.
type Kind string

const (
	KindNone        Kind = ""
	KindOpen        Kind = "open"
	KindClose       Kind = "close"
	KindClick       Kind = "click"
	KindDoubleClick Kind = "double_click"
	KindRightClick  Kind = "right_click"
	KindType        Kind = "type"
	KindScroll      Kind = "scroll"
	KindSearch      Kind = "search"
	KindScreenshot  Kind = "screenshot"
	KindKeyPress    Kind = "key_press"
	KindGeneric     Kind = "generic"
)

// Parameter keys used in Intent.Parameters.
const (
	ParamText      = "text"
	ParamDirection = "direction"
	ParamQuery     = "query"
	ParamKey       = "key"
	ParamModifiers = "modifiers"
)

const (
	defaultConfidence    = 0.7
	screenshotConfidence = 0.9
	genericConfidence    = 0.5
	defaultKey           = "Enter"
	simpleScrollAmount   = 3
)

// Intent is the structured interpretation of a raw command.
type Intent struct {
	RequiresControl bool              `json:"requiresComputerControl"`
	Confidence      float64           `json:"confidence"`
	Action          Kind              `json:"action,omitempty"`
	Target          *string           `json:"target,omitempty"`
	Parameters      map[string]string `json:"parameters,omitempty"`
	Raw             string            `json:"rawCommand,omitempty"`
}

// Param returns a parameter or the empty string.
func (i Intent) Param(key string) string {
	if i.Parameters == nil {
		return ""
	}
	return i.Parameters[key]
}

// controlKeywords are matched as substrings of the lower-cased command.
var controlKeywords = []string{
	// application
	"open", "launch", "start", "close", "quit", "minimize", "maximize",
	// pointer
	"click", "double click", "right click", "select", "drag",
	// keyboard
	"type", "write", "enter", "press", "delete", "backspace",
	// navigation
	"scroll", "navigate", "go to", "switch to", "move to",
	// screen
	"screenshot", "capture", "screen",
	// search
	"search", "find", "look for", "browse",
	// files
	"save", "copy", "paste", "cut",
}

type appAliases struct {
	name    string
	aliases []string
}

// applications is ordered; the first alias found in the command wins.
var applications = []appAliases{
	{"chrome", []string{"chrome", "google chrome"}},
	{"firefox", []string{"firefox", "mozilla firefox"}},
	{"safari", []string{"safari"}},
	{"edge", []string{"edge", "microsoft edge"}},
	{"vscode", []string{"vscode", "visual studio code", "vs code", "code"}},
	{"terminal", []string{"terminal", "command prompt", "cmd", "powershell"}},
	{"finder", []string{"finder", "file explorer", "explorer"}},
	{"notes", []string{"notes", "notepad"}},
	{"mail", []string{"mail", "email"}},
	{"calendar", []string{"calendar"}},
	{"slack", []string{"slack"}},
	{"discord", []string{"discord"}},
	{"spotify", []string{"spotify"}},
	{"zoom", []string{"zoom"}},
}

var questionPrefixes = []string{"what", "why", "how", "when", "where", "who", "can you", "could you"}

var (
	clickTargetPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)click (?:on )?(?:the )?(.+?)(?:\s|$)`),
		regexp.MustCompile(`(?i)click (.+)`),
	}
	typeTextPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)type\s+"([^"]+)"`),
		regexp.MustCompile(`(?i)type\s+'([^']+)'`),
		regexp.MustCompile(`(?i)type\s+(.+)`),
		regexp.MustCompile(`(?i)write\s+"([^"]+)"`),
		regexp.MustCompile(`(?i)write\s+'([^']+)'`),
		regexp.MustCompile(`(?i)write\s+(.+)`),
	}
	searchQueryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:search|find|look) for\s+(.+)`),
		regexp.MustCompile(`(?i)(?:search|find)\s+"([^"]+)"`),
		regexp.MustCompile(`(?i)(?:search|find)\s+'([^']+)'`),
		regexp.MustCompile(`(?i)(?:search|find)\s+(.+)`),
	}
	keyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)press\s+(.+)`),
	}
)

// Parser interprets free-form commands. It holds no mutable state and is safe
// for concurrent use.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

func hasControlKeyword(lower string) bool {
	for _, kw := range controlKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Analyze classifies a command. It never fails: commands without a control
// keyword yield RequiresControl=false and zero confidence.
func (p *Parser) Analyze(text string) Intent {
	lower := strings.ToLower(text)
	if !hasControlKeyword(lower) {
		return Intent{RequiresControl: false, Confidence: 0}
	}

	in := Intent{
		RequiresControl: true,
		Confidence:      defaultConfidence,
		Parameters:      map[string]string{},
		Raw:             text,
	}

	switch {
	case containsAny(lower, "open", "launch", "start"):
		in.Action = KindOpen
		in.Target = extractApplication(lower)
	case containsAny(lower, "close", "quit"):
		in.Action = KindClose
		in.Target = extractApplication(lower)
	case strings.Contains(lower, "click"):
		switch {
		case strings.Contains(lower, "double"):
			in.Action = KindDoubleClick
		case strings.Contains(lower, "right"):
			in.Action = KindRightClick
		default:
			in.Action = KindClick
		}
		if target, ok := firstMatch(clickTargetPatterns, lower); ok {
			in.Target = &target
		}
	case containsAny(lower, "type", "write"):
		in.Action = KindType
		in.Parameters[ParamText], _ = firstMatch(typeTextPatterns, lower)
	case strings.Contains(lower, "scroll"):
		in.Action = KindScroll
		in.Parameters[ParamDirection] = "down"
		if strings.Contains(lower, "up") {
			in.Parameters[ParamDirection] = "up"
		}
	case containsAny(lower, "search", "find"):
		in.Action = KindSearch
		in.Parameters[ParamQuery], _ = firstMatch(searchQueryPatterns, lower)
	case containsAny(lower, "screenshot", "capture"):
		in.Action = KindScreenshot
		in.Confidence = screenshotConfidence
	case strings.Contains(lower, "press"):
		in.Action = KindKeyPress
		expr, ok := firstMatch(keyPatterns, lower)
		if !ok {
			expr = defaultKey
		}
		key, mods := SplitKeyExpression(expr)
		in.Parameters[ParamKey] = key
		if len(mods) > 0 {
			in.Parameters[ParamModifiers] = strings.Join(mods, ",")
		}
	default:
		in.Action = KindGeneric
		in.Confidence = genericConfidence
	}
	return in
}

func extractApplication(lower string) *string {
	for _, app := range applications {
		for _, alias := range app.aliases {
			if strings.Contains(lower, alias) {
				name := app.name
				return &name
			}
		}
	}
	return nil
}

// firstMatch returns the trimmed first capture group of the first matching pattern.
func firstMatch(patterns []*regexp.Regexp, s string) (string, bool) {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// IsQuestion reports whether the command reads as a question rather than an
// instruction: it starts with a question word and carries no control keyword.
func (p *Parser) IsQuestion(text string) bool {
	lower := strings.ToLower(text)
	starts := false
	for _, w := range questionPrefixes {
		if strings.HasPrefix(lower, w) {
			starts = true
			break
		}
	}
	return starts && !hasControlKeyword(lower)
}

// NeedsVision reports whether the intent can only be resolved by looking at the screen.
func (p *Parser) NeedsVision(in Intent) bool {
	switch in.Action {
	case KindClick, KindDoubleClick, KindRightClick, KindSearch, KindOpen, KindClose, KindGeneric:
		return true
	}
	return false
}

// TaskDescription renders the instruction handed to the vision planner.
func (p *Parser) TaskDescription(in Intent) string {
	target := func(fallback string) string {
		if in.Target != nil && *in.Target != "" {
			return *in.Target
		}
		return fallback
	}

	switch in.Action {
	case KindOpen:
		return "Open " + target("the application")
	case KindClose:
		return "Close " + target("the current application")
	case KindClick, KindDoubleClick, KindRightClick:
		return strings.Replace(string(in.Action), "_", " ", 1) + " on " + target("the element")
	case KindType:
		return `Type the text: "` + in.Param(ParamText) + `"`
	case KindScroll:
		return "Scroll " + in.Param(ParamDirection)
	case KindSearch:
		return `Search for "` + in.Param(ParamQuery) + `"`
	case KindScreenshot:
		return "Take a screenshot"
	case KindKeyPress:
		return "Press " + keyCombo(in.Param(ParamKey), splitModifiers(in.Param(ParamModifiers)))
	}
	if in.Raw != "" {
		return in.Raw
	}
	return "Perform the requested action"
}

// SimpleActions builds a single-action plan for intents that need no vision.
// It returns nil for every other kind.
func (p *Parser) SimpleActions(in Intent) []schemas.Action {
	switch in.Action {
	case KindType:
		text := in.Param(ParamText)
		return []schemas.Action{schemas.TypeText{Text: text, Description: "Type: " + text}}
	case KindScroll:
		dir := in.Param(ParamDirection)
		return []schemas.Action{schemas.Scroll{Direction: dir, Amount: simpleScrollAmount, Description: "Scroll " + dir}}
	case KindKeyPress:
		key := in.Param(ParamKey)
		if key == "" {
			key = defaultKey
		}
		mods := splitModifiers(in.Param(ParamModifiers))
		return []schemas.Action{schemas.KeyPress{Key: key, Modifiers: mods, Description: "Press " + keyCombo(key, mods)}}
	}
	return nil
}

func splitModifiers(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func keyCombo(key string, mods []string) string {
	if len(mods) == 0 {
		return key
	}
	return strings.Join(mods, "+") + "+" + key
}
