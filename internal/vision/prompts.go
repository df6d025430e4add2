// internal/vision/prompts.go
package vision

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// MaxPlanSteps is the action count the model is asked to stay within.
const MaxPlanSteps = 5

var systemPrompt = fmt.Sprintf(`You are a computer vision AI agent that helps users control their computer.

Your role:
1. Analyze screenshots to understand the current screen state
2. Plan a sequence of mouse and keyboard actions to accomplish user tasks
3. Provide clear, safe, and efficient action plans

Action Types Available:
- click: Click at coordinates {"type": "click", "x": 100, "y": 200, "description": "Click login button"}
- double_click: Double click at coordinates {"type": "double_click", "x": 100, "y": 200}
- right_click: Right click at coordinates {"type": "right_click", "x": 100, "y": 200}
- type: Type text {"type": "type", "text": "Hello World", "description": "Type message"}
- key_press: Press key combination {"type": "key_press", "key": "Enter", "modifiers": ["ctrl"], "description": "Save file"}
- move_mouse: Move mouse {"type": "move_mouse", "x": 100, "y": 200}
- scroll: Scroll screen {"type": "scroll", "direction": "down", "amount": 3}
- drag: Drag from one point to another {"type": "drag", "fromX": 100, "fromY": 100, "toX": 200, "toY": 200}

Response Format (JSON):
{
  "reasoning": "Explain what you see and your plan",
  "confidence": 0.9,
  "actions": [
    {"type": "click", "x": 100, "y": 200, "description": "Click the submit button"}
  ]
}

Safety Rules:
- Never suggest actions that modify system settings without explicit user request
- Avoid actions on sensitive areas (password fields, payment info) unless clearly intended
- If uncertain about element location, estimate conservatively
- Limit action sequences to %d steps maximum per request
- Always provide clear descriptions of each action

Be precise with coordinates and provide accurate action plans.`, MaxPlanSteps)

const describePrompt = "Describe what you see on this screen in 2-3 sentences. Focus on the main application, visible UI elements, and any notable content."

func findElementPrompt(description string) string {
	return fmt.Sprintf("Find the location of: %q\n\nProvide the approximate center coordinates as JSON: {\"x\": 100, \"y\": 200, \"confidence\": 0.9, \"found\": true}", description)
}

// buildUserPrompt renders the task, screen size and recent history.
func buildUserPrompt(task string, pc PlanContext) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n\n", task)

	if pc.Screen.Width > 0 && pc.Screen.Height > 0 {
		fmt.Fprintf(&b, "Screen Size: %dx%d\n", pc.Screen.Width, pc.Screen.Height)
	}

	if len(pc.PreviousActions) > 0 {
		recent := pc.PreviousActions
		if len(recent) > maxPreviousActions {
			recent = recent[len(recent)-maxPreviousActions:]
		}
		encoded, err := json.Marshal(recent)
		if err != nil {
			return "", fmt.Errorf("failed to encode previous actions: %w", err)
		}
		fmt.Fprintf(&b, "Previous Actions: %s\n", encoded)
	}

	if pc.AdditionalInfo != "" {
		fmt.Fprintf(&b, "Additional Info: %s\n", pc.AdditionalInfo)
	}

	b.WriteString("\nAnalyze the screenshot and provide a JSON response with the actions needed to accomplish this task.")
	return b.String(), nil
}

func imageOf(s *schemas.Screenshot) []schemas.ImagePart {
	if s == nil || len(s.Image) == 0 {
		return nil
	}
	return []schemas.ImagePart{{Data: s.Image, MIMEType: s.MIMEType()}}
}
