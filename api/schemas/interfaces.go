// api/schemas/interfaces.go
package schemas

import "context"

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	MaxTokens       int     `json:"max_tokens"`        // Upper bound on the completion length. Zero means provider default.
}

// ImagePart is an inline image attached to a generation request.
type ImagePart struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts, any attached images, the desired model tier, and
// generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Images       []ImagePart       `json:"images,omitempty"`
	Tier         ModelTier         `json:"tier"`    // The desired model tier (fast or powerful).
	Options      GenerationOptions `json:"options"` // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider (e.g., Gemini).
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client (e.g., network connections, SDK resources).
	Close() error
}

// -- Desktop Automation Interface --

// MouseButton names a pointer button.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ScrollDirection names a scroll axis and sign.
type ScrollDirection string

const (
	ScrollUp    ScrollDirection = "up"
	ScrollDown  ScrollDirection = "down"
	ScrollLeft  ScrollDirection = "left"
	ScrollRight ScrollDirection = "right"
)

// Desktop is the OS automation capability the execution engine drives. All
// coordinates are screen pixels. Implementations need not be safe for
// concurrent use; the engine serializes calls.
type Desktop interface {
	// MoveMouse places the pointer at (x, y).
	MoveMouse(ctx context.Context, x, y float64) error
	// Click clicks button count times at the current pointer position.
	Click(ctx context.Context, button MouseButton, count int) error
	PressButton(ctx context.Context, button MouseButton) error
	ReleaseButton(ctx context.Context, button MouseButton) error
	// TypeText injects text as keystrokes into the focused window.
	TypeText(ctx context.Context, text string) error
	// PressKey holds a key (typically a modifier) down until ReleaseKey.
	PressKey(ctx context.Context, key string) error
	ReleaseKey(ctx context.Context, key string) error
	// TapKey presses and releases a key.
	TapKey(ctx context.Context, key string) error
	Scroll(ctx context.Context, direction ScrollDirection, amount int) error
	CaptureScreen(ctx context.Context) (*Screenshot, error)
	ScreenSize(ctx context.Context) (Dimensions, error)
	PointerPosition(ctx context.Context) (Position, error)
}
