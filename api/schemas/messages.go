// api/schemas/messages.go
package schemas

import "fmt"

// MessageType identifies a client protocol message by its "type" field.
type MessageType string

const (
	// -- Outbound (orchestrator -> client) --
	MsgStatus              MessageType = "computer_control_status"
	MsgAction              MessageType = "computer_control_action"
	MsgPlan                MessageType = "computer_control_plan"
	MsgConfirmationRequest MessageType = "confirmation_request"
	MsgMode                MessageType = "computer_control_mode"
	MsgScreenshotCaptured  MessageType = "screenshot_captured"

	// -- Inbound (client -> orchestrator) --
	MsgToggle       MessageType = "computer_control_toggle"
	MsgConfirmation MessageType = "computer_control_confirmation"
	MsgVoiceCommand MessageType = "voice_command"
)

// ControlStatus is the status field of a computer_control_status message.
type ControlStatus string

const (
	ControlAnalyzing ControlStatus = "analyzing"
	ControlBlocked   ControlStatus = "blocked"
	ControlCancelled ControlStatus = "cancelled"
	ControlError     ControlStatus = "error"
	ControlCompleted ControlStatus = "completed"
	ControlFailed    ControlStatus = "failed"
)

// Terminal reports whether the status ends a command.
func (s ControlStatus) Terminal() bool {
	return s != ControlAnalyzing
}

// Message is any outbound message. The concrete types below implement it.
type Message interface {
	MessageType() MessageType
}

// Sender delivers one outbound message to the client. Implementations must
// be safe to call from the orchestrator goroutine while inbound messages are
// being processed elsewhere.
type Sender func(msg Message)

// StatusMessage reports a pipeline state change.
type StatusMessage struct {
	Status  ControlStatus     `json:"status"`
	Message string            `json:"message"`
	Results []ExecutionResult `json:"results,omitempty"`
}

// ActionSummary is the short form of an action shown to the user.
type ActionSummary struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// ActionMessage is emitted before each action in a plan executes.
type ActionMessage struct {
	ActionIndex  int           `json:"actionIndex"`
	TotalActions int           `json:"totalActions"`
	Action       ActionSummary `json:"action"`
}

// PlanSummary is the plan body of a computer_control_plan message.
type PlanSummary struct {
	Reasoning  string     `json:"reasoning"`
	Actions    ActionList `json:"actions"`
	Confidence float64    `json:"confidence"`
}

// PlanMessage shares a validated plan with the client.
type PlanMessage struct {
	Plan PlanSummary `json:"plan"`
}

// ConfirmationRequestMessage asks the user to approve an action or plan.
type ConfirmationRequestMessage struct {
	ConfirmationID string        `json:"confirmationId"`
	Action         ActionSummary `json:"action"`
	// Timeout is expressed in milliseconds.
	Timeout int64 `json:"timeout"`
}

// ModeMessage acknowledges a computer mode toggle.
type ModeMessage struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// ScreenshotMessage carries a base64 encoded capture.
type ScreenshotMessage struct {
	Image      string     `json:"image"`
	Dimensions Dimensions `json:"dimensions"`
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64 `json:"timestamp"`
}

func (StatusMessage) MessageType() MessageType              { return MsgStatus }
func (ActionMessage) MessageType() MessageType              { return MsgAction }
func (PlanMessage) MessageType() MessageType                { return MsgPlan }
func (ConfirmationRequestMessage) MessageType() MessageType { return MsgConfirmationRequest }
func (ModeMessage) MessageType() MessageType                { return MsgMode }
func (ScreenshotMessage) MessageType() MessageType          { return MsgScreenshotCaptured }

// EncodeMessage renders a message with its type tag merged into the body.
func EncodeMessage(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("schemas: failed to encode %s: %w", msg.MessageType(), err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("schemas: failed to re-read %s: %w", msg.MessageType(), err)
	}
	fields["type"] = string(msg.MessageType())
	return json.Marshal(fields)
}

// InboundMessage is the union of every client -> orchestrator message.
type InboundMessage struct {
	Type           MessageType `json:"type"`
	Enabled        *bool       `json:"enabled,omitempty"`
	ConfirmationID string      `json:"confirmationId,omitempty"`
	Approved       bool        `json:"approved,omitempty"`
	Text           string      `json:"text,omitempty"`
}

// DecodeInbound parses a raw client message.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("schemas: malformed inbound message: %w", err)
	}
	if msg.Type == "" {
		return InboundMessage{}, fmt.Errorf("schemas: inbound message has no type")
	}
	return msg, nil
}
