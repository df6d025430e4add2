// api/schemas/actions.go
package schemas

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ActionKind is the wire tag of an Action variant.
type ActionKind string

const (
	KindClick       ActionKind = "click"
	KindDoubleClick ActionKind = "double_click"
	KindRightClick  ActionKind = "right_click"
	KindType        ActionKind = "type"
	KindKeyPress    ActionKind = "key_press"
	KindMoveMouse   ActionKind = "move_mouse"
	KindScroll      ActionKind = "scroll"
	KindDrag        ActionKind = "drag"
)

// AllKinds lists every kind the execution engine knows how to dispatch.
var AllKinds = []ActionKind{
	KindClick, KindDoubleClick, KindRightClick, KindType,
	KindKeyPress, KindMoveMouse, KindScroll, KindDrag,
}

// Action is one primitive desktop operation. The set of implementations is
// closed: only the types in this file satisfy it.
type Action interface {
	Kind() ActionKind
	// Label returns the human readable description attached by the planner, if any.
	Label() string
	isAction()
}

// Click presses and releases the left button at (X, Y).
type Click struct {
	X           float64
	Y           float64
	Description string
}

// DoubleClick performs two left clicks at (X, Y).
type DoubleClick struct {
	X           float64
	Y           float64
	Description string
}

// RightClick presses and releases the right button at (X, Y).
type RightClick struct {
	X           float64
	Y           float64
	Description string
}

// TypeText injects Text into the focused window.
type TypeText struct {
	Text        string
	Description string
}

// KeyPress holds Modifiers in order, taps Key, then releases the modifiers in
// reverse order.
type KeyPress struct {
	Key         string
	Modifiers   []string
	Description string
}

// MoveMouse moves the pointer to (X, Y) without clicking.
type MoveMouse struct {
	X           float64
	Y           float64
	Description string
}

// Scroll scrolls Amount notches in Direction (up, down, left, right).
type Scroll struct {
	Direction   string
	Amount      int
	Description string
}

// Drag presses the left button at (FromX, FromY), moves to (ToX, ToY) and releases.
type Drag struct {
	FromX       float64
	FromY       float64
	ToX         float64
	ToY         float64
	Description string
}

// Unsupported carries an action kind received from a planner that is outside
// the closed set. It is never executed; validation blocks it.
type Unsupported struct {
	RawKind     string
	Description string
}

// Malformed carries an action of a known kind that arrived without a field its
// kind requires, such as a click with no coordinates. Validation blocks it.
type Malformed struct {
	RawKind     ActionKind
	Missing     []string
	Description string
}

func (Click) Kind() ActionKind       { return KindClick }
func (DoubleClick) Kind() ActionKind { return KindDoubleClick }
func (RightClick) Kind() ActionKind  { return KindRightClick }
func (TypeText) Kind() ActionKind    { return KindType }
func (KeyPress) Kind() ActionKind    { return KindKeyPress }
func (MoveMouse) Kind() ActionKind   { return KindMoveMouse }
func (Scroll) Kind() ActionKind      { return KindScroll }
func (Drag) Kind() ActionKind        { return KindDrag }
func (u Unsupported) Kind() ActionKind {
	return ActionKind(u.RawKind)
}
func (m Malformed) Kind() ActionKind { return m.RawKind }

func (a Click) Label() string       { return a.Description }
func (a DoubleClick) Label() string { return a.Description }
func (a RightClick) Label() string  { return a.Description }
func (a TypeText) Label() string    { return a.Description }
func (a KeyPress) Label() string    { return a.Description }
func (a MoveMouse) Label() string   { return a.Description }
func (a Scroll) Label() string      { return a.Description }
func (a Drag) Label() string        { return a.Description }
func (a Unsupported) Label() string { return a.Description }
func (a Malformed) Label() string   { return a.Description }

func (Click) isAction()       {}
func (DoubleClick) isAction() {}
func (RightClick) isAction()  {}
func (TypeText) isAction()    {}
func (KeyPress) isAction()    {}
func (MoveMouse) isAction()   {}
func (Scroll) isAction()      {}
func (Drag) isAction()        {}
func (Unsupported) isAction() {}
func (Malformed) isAction()   {}

// Point returns the pointer target of click-like and move actions.
// ok is false for actions that do not address a single point.
func Point(a Action) (x, y float64, ok bool) {
	switch v := a.(type) {
	case Click:
		return v.X, v.Y, true
	case DoubleClick:
		return v.X, v.Y, true
	case RightClick:
		return v.X, v.Y, true
	case MoveMouse:
		return v.X, v.Y, true
	}
	return 0, 0, false
}

// wireAction is the flat JSON shape used by the planner grammar and the client protocol.
type wireAction struct {
	Type        string   `json:"type"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Text        *string  `json:"text,omitempty"`
	Key         string   `json:"key,omitempty"`
	Modifiers   []string `json:"modifiers,omitempty"`
	Direction   string   `json:"direction,omitempty"`
	Amount      *int     `json:"amount,omitempty"`
	FromX       *float64 `json:"fromX,omitempty"`
	FromY       *float64 `json:"fromY,omitempty"`
	ToX         *float64 `json:"toX,omitempty"`
	ToY         *float64 `json:"toY,omitempty"`
	Description string   `json:"description,omitempty"`
}

func f64(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func ptr[T any](v T) *T { return &v }

// toWire flattens a typed action.
func toWire(a Action) wireAction {
	w := wireAction{Type: string(a.Kind()), Description: a.Label()}
	switch v := a.(type) {
	case Click:
		w.X, w.Y = ptr(v.X), ptr(v.Y)
	case DoubleClick:
		w.X, w.Y = ptr(v.X), ptr(v.Y)
	case RightClick:
		w.X, w.Y = ptr(v.X), ptr(v.Y)
	case MoveMouse:
		w.X, w.Y = ptr(v.X), ptr(v.Y)
	case TypeText:
		w.Text = ptr(v.Text)
	case KeyPress:
		w.Key = v.Key
		w.Modifiers = v.Modifiers
	case Scroll:
		w.Direction = v.Direction
		w.Amount = ptr(v.Amount)
	case Drag:
		w.FromX, w.FromY, w.ToX, w.ToY = ptr(v.FromX), ptr(v.FromY), ptr(v.ToX), ptr(v.ToY)
	}
	return w
}

// requiredMissing names the coordinate fields a pointer kind lacks, in wire order.
func requiredMissing(kind ActionKind, w wireAction) []string {
	var names []string
	var vals []*float64
	switch kind {
	case KindClick, KindDoubleClick, KindRightClick, KindMoveMouse:
		names, vals = []string{"x", "y"}, []*float64{w.X, w.Y}
	case KindDrag:
		names, vals = []string{"fromX", "fromY", "toX", "toY"}, []*float64{w.FromX, w.FromY, w.ToX, w.ToY}
	}
	var missing []string
	for i, v := range vals {
		if v == nil {
			missing = append(missing, names[i])
		}
	}
	return missing
}

// fromWire builds the typed variant for a flat action. Kinds outside the
// closed set become Unsupported; pointer kinds without coordinates become
// Malformed rather than defaulting to the screen origin.
func fromWire(w wireAction) Action {
	kind := ActionKind(strings.ToLower(strings.TrimSpace(w.Type)))
	if missing := requiredMissing(kind, w); len(missing) > 0 {
		return Malformed{RawKind: kind, Missing: missing, Description: w.Description}
	}
	switch kind {
	case KindClick:
		return Click{X: f64(w.X), Y: f64(w.Y), Description: w.Description}
	case KindDoubleClick:
		return DoubleClick{X: f64(w.X), Y: f64(w.Y), Description: w.Description}
	case KindRightClick:
		return RightClick{X: f64(w.X), Y: f64(w.Y), Description: w.Description}
	case KindMoveMouse:
		return MoveMouse{X: f64(w.X), Y: f64(w.Y), Description: w.Description}
	case KindType:
		text := ""
		if w.Text != nil {
			text = *w.Text
		}
		return TypeText{Text: text, Description: w.Description}
	case KindKeyPress:
		mods := append([]string(nil), w.Modifiers...)
		return KeyPress{Key: w.Key, Modifiers: mods, Description: w.Description}
	case KindScroll:
		amount := 3
		if w.Amount != nil {
			amount = *w.Amount
		}
		return Scroll{Direction: strings.ToLower(w.Direction), Amount: amount, Description: w.Description}
	case KindDrag:
		return Drag{FromX: f64(w.FromX), FromY: f64(w.FromY), ToX: f64(w.ToX), ToY: f64(w.ToY), Description: w.Description}
	}
	return Unsupported{RawKind: w.Type, Description: w.Description}
}

// MarshalAction encodes a single action in its wire form.
func MarshalAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("schemas: cannot marshal nil action")
	}
	return json.Marshal(toWire(a))
}

// UnmarshalAction decodes a single action from its wire form.
func UnmarshalAction(data []byte) (Action, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("schemas: failed to decode action: %w", err)
	}
	return fromWire(w), nil
}

// ActionList is an ordered list of actions that knows how to encode itself.
type ActionList []Action

// MarshalJSON implements json.Marshaler.
func (l ActionList) MarshalJSON() ([]byte, error) {
	out := make([]wireAction, 0, len(l))
	for _, a := range l {
		if a == nil {
			continue
		}
		out = append(out, toWire(a))
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ActionList) UnmarshalJSON(data []byte) error {
	var raw []wireAction
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("schemas: failed to decode action list: %w", err)
	}
	list := make(ActionList, 0, len(raw))
	for _, w := range raw {
		list = append(list, fromWire(w))
	}
	*l = list
	return nil
}
