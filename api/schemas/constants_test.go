package schemas_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// TestConstants pins the wire values clients depend on.
func TestConstants(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		constant interface{}
		expected string
	}{
		// Outbound message types
		{"MsgStatus", schemas.MsgStatus, "computer_control_status"},
		{"MsgAction", schemas.MsgAction, "computer_control_action"},
		{"MsgPlan", schemas.MsgPlan, "computer_control_plan"},
		{"MsgConfirmationRequest", schemas.MsgConfirmationRequest, "confirmation_request"},
		{"MsgMode", schemas.MsgMode, "computer_control_mode"},
		{"MsgScreenshotCaptured", schemas.MsgScreenshotCaptured, "screenshot_captured"},

		// Inbound message types
		{"MsgToggle", schemas.MsgToggle, "computer_control_toggle"},
		{"MsgConfirmation", schemas.MsgConfirmation, "computer_control_confirmation"},
		{"MsgVoiceCommand", schemas.MsgVoiceCommand, "voice_command"},

		// Control statuses
		{"ControlAnalyzing", schemas.ControlAnalyzing, "analyzing"},
		{"ControlBlocked", schemas.ControlBlocked, "blocked"},
		{"ControlCancelled", schemas.ControlCancelled, "cancelled"},
		{"ControlError", schemas.ControlError, "error"},
		{"ControlCompleted", schemas.ControlCompleted, "completed"},
		{"ControlFailed", schemas.ControlFailed, "failed"},

		// Action kinds
		{"KindClick", schemas.KindClick, "click"},
		{"KindDoubleClick", schemas.KindDoubleClick, "double_click"},
		{"KindRightClick", schemas.KindRightClick, "right_click"},
		{"KindType", schemas.KindType, "type"},
		{"KindKeyPress", schemas.KindKeyPress, "key_press"},
		{"KindMoveMouse", schemas.KindMoveMouse, "move_mouse"},
		{"KindScroll", schemas.KindScroll, "scroll"},
		{"KindDrag", schemas.KindDrag, "drag"},

		// Execution statuses
		{"StatusSuccess", schemas.StatusSuccess, "success"},
		{"StatusRateLimited", schemas.StatusRateLimited, "rate_limited"},
		{"StatusDisabled", schemas.StatusDisabled, "disabled"},
		{"StatusError", schemas.StatusError, "error"},

		// Error kinds
		{"ErrParseAmbiguous", schemas.ErrParseAmbiguous, "PARSE_AMBIGUOUS"},
		{"ErrPlannerUnavailable", schemas.ErrPlannerUnavailable, "PLANNER_UNAVAILABLE"},
		{"ErrConfirmationTimeout", schemas.ErrConfirmationTimeout, "CONFIRMATION_TIMEOUT"},
		{"ErrRateLimited", schemas.ErrRateLimited, "RATE_LIMITED"},
		{"ErrCaptureFailed", schemas.ErrCaptureFailed, "CAPTURE_FAILED"},

		// LLM ModelTiers
		{"TierFast", schemas.TierFast, "fast"},
		{"TierPowerful", schemas.TierPowerful, "powerful"},

		// Desktop enums
		{"ButtonLeft", schemas.ButtonLeft, "left"},
		{"ScrollDown", schemas.ScrollDown, "down"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var actual string
			if stringer, ok := tt.constant.(fmt.Stringer); ok {
				actual = stringer.String()
			} else {
				actual = fmt.Sprintf("%v", tt.constant)
			}
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.False(t, schemas.ControlAnalyzing.Terminal())
	for _, s := range []schemas.ControlStatus{
		schemas.ControlBlocked, schemas.ControlCancelled, schemas.ControlError,
		schemas.ControlCompleted, schemas.ControlFailed,
	} {
		assert.True(t, s.Terminal(), s)
	}
}
