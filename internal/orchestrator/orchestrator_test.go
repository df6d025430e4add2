// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/desktop"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/mocks"
	"github.com/xkilldash9x/voicepilot/internal/safety"
	"github.com/xkilldash9x/voicepilot/internal/vision"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// manualTimers records confirmation timeouts so tests decide when they fire.
type manualTimers struct {
	mu  sync.Mutex
	fns []func()
}

func (m *manualTimers) after(_ time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fns = append(m.fns, f)
	return func() bool { return true }
}

func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	f := m.fns[i]
	m.mu.Unlock()
	f()
}

// recorder collects outbound messages and signals confirmation requests.
type recorder struct {
	mu       sync.Mutex
	msgs     []schemas.Message
	requests chan schemas.ConfirmationRequestMessage
}

func newRecorder() *recorder {
	return &recorder{requests: make(chan schemas.ConfirmationRequestMessage, 4)}
}

func (r *recorder) send(msg schemas.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	if req, ok := msg.(schemas.ConfirmationRequestMessage); ok {
		r.requests <- req
	}
}

func (r *recorder) messages() []schemas.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.Message(nil), r.msgs...)
}

func (r *recorder) types() []schemas.MessageType {
	var out []schemas.MessageType
	for _, m := range r.messages() {
		out = append(out, m.MessageType())
	}
	return out
}

// terminal returns the single terminal status message.
func (r *recorder) terminal(t *testing.T) schemas.StatusMessage {
	t.Helper()
	var found []schemas.StatusMessage
	for _, m := range r.messages() {
		if s, ok := m.(schemas.StatusMessage); ok && s.Status.Terminal() {
			found = append(found, s)
		}
	}
	require.Len(t, found, 1, "exactly one terminal status per command")
	return found[0]
}

func (r *recorder) nextRequest(t *testing.T) schemas.ConfirmationRequestMessage {
	t.Helper()
	select {
	case req := <-r.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no confirmation request was sent")
	}
	return schemas.ConfirmationRequestMessage{}
}

type fixture struct {
	orch    *Orchestrator
	desktop *mocks.MockDesktop
	llm     *mocks.MockLLMClient
	gate    *safety.Gate
	engine  *desktop.Engine
	timers  *manualTimers
	rec     *recorder
}

func setup(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ExecutionCfg.MouseSpeed = 0
	cfg.ExecutionCfg.ActionTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}
	logger := zaptest.NewLogger(t)

	f := &fixture{
		desktop: &mocks.MockDesktop{},
		llm:     &mocks.MockLLMClient{},
		timers:  &manualTimers{},
		rec:     newRecorder(),
	}
	var err error
	f.gate, err = safety.NewGate(cfg.Safety(), logger, safety.WithAfterFunc(f.timers.after))
	require.NoError(t, err)
	f.engine = desktop.NewEngine(f.desktop, cfg, logger)
	planner := vision.NewPlanner(f.llm, logger, 0.2, 1000)

	f.orch, err = New(cfg, logger, intent.NewParser(), planner, f.gate, f.engine,
		WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	require.NoError(t, err)
	return f
}

func (f *fixture) expectCapture() {
	f.desktop.On("CaptureScreen", mock.Anything).Return(&schemas.Screenshot{
		Image:      []byte("png"),
		Format:     "png",
		Dimensions: schemas.Dimensions{Width: 1920, Height: 1080},
		Timestamp:  time.Unix(1700000000, 0),
	}, nil)
}

func (f *fixture) expectPlan(raw string) {
	f.llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierPowerful
	})).Return(raw, nil).Once()
}

func TestNew_RejectsNilDependencies(t *testing.T) {
	_, err := New(nil, zaptest.NewLogger(t), intent.NewParser(), nil, nil, nil)
	assert.Error(t, err)
}

func TestProcessCommand_VisionPlanCompletes(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.expectPlan(`{"reasoning":"Chrome icon is in the dock","confidence":0.9,"actions":[{"type":"click","x":100,"y":200,"description":"Click Chrome"}]}`)
	f.desktop.On("MoveMouse", mock.Anything, 100.0, 200.0).Return(nil).Once()
	f.desktop.On("Click", mock.Anything, schemas.ButtonLeft, 1).Return(nil).Once()

	out := f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)

	require.True(t, out.Handled)
	assert.True(t, out.Success)
	assert.NoError(t, out.Err)
	assert.Equal(t, schemas.ControlCompleted, out.Status)
	require.Len(t, out.Results, 1)

	assert.Equal(t, []schemas.MessageType{
		schemas.MsgStatus, // analyzing
		schemas.MsgPlan,
		schemas.MsgAction,
		schemas.MsgStatus, // completed
	}, f.rec.types())
	assert.Equal(t, "Successfully completed 1 action(s)", f.rec.terminal(t).Message)

	msgs := f.rec.messages()
	action := msgs[2].(schemas.ActionMessage)
	assert.Equal(t, 1, action.ActionIndex)
	assert.Equal(t, 1, action.TotalActions)
	assert.Equal(t, "Click Chrome", action.Action.Description)

	assert.Equal(t, StateIdle, f.orch.State())
	f.desktop.AssertExpectations(t)
	f.llm.AssertExpectations(t)
}

func TestProcessCommand_DangerousTextIsBlocked(t *testing.T) {
	f := setup(t, nil)

	out := f.orch.ProcessCommand(context.Background(), "type sudo rm -rf /", f.rec.send)

	require.True(t, out.Handled)
	assert.False(t, out.Success)
	assert.Equal(t, schemas.ControlBlocked, out.Status)
	assert.Equal(t, "Action 1 blocked: Text contains potentially dangerous command", f.rec.terminal(t).Message)

	var cmdErr *CommandError
	require.ErrorAs(t, out.Err, &cmdErr)
	assert.Equal(t, schemas.ErrValidationBlocked, cmdErr.Kind)

	assert.Empty(t, f.desktop.Calls, "a blocked action never reaches the desktop")
	assert.Empty(t, f.engine.History(0))
}

func TestProcessCommand_ConfirmationTimeoutCancels(t *testing.T) {
	f := setup(t, nil)

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.ProcessCommand(context.Background(), "press alt ctrl delete", f.rec.send)
	}()

	req := f.rec.nextRequest(t)
	assert.NotEmpty(t, req.ConfirmationID)
	assert.Equal(t, "key_press", req.Action.Type)
	assert.Equal(t, StateConfirming, f.orch.State())

	f.timers.fire(0)

	var out Outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("command did not finish after the timeout fired")
	}

	assert.Equal(t, schemas.ControlCancelled, out.Status)
	assert.Equal(t, "Action 1 cancelled", f.rec.terminal(t).Message)
	var cmdErr *CommandError
	require.ErrorAs(t, out.Err, &cmdErr)
	assert.Equal(t, schemas.ErrConfirmationTimeout, cmdErr.Kind)
	assert.Empty(t, f.desktop.Calls)
}

func TestProcessCommand_ConfirmationApprovedExecutes(t *testing.T) {
	f := setup(t, nil)
	f.desktop.On("PressKey", mock.Anything, mock.Anything).Return(nil)
	f.desktop.On("TapKey", mock.Anything, mock.Anything).Return(nil)
	f.desktop.On("ReleaseKey", mock.Anything, mock.Anything).Return(nil)

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.ProcessCommand(context.Background(), "press enter", f.rec.send)
	}()

	req := f.rec.nextRequest(t)
	raw := []byte(`{"type":"computer_control_confirmation","confirmationId":"` + req.ConfirmationID + `","approved":true}`)
	require.NoError(t, f.orch.HandleMessage(context.Background(), raw, f.rec.send))

	out := <-done
	assert.True(t, out.Success)
	assert.Equal(t, schemas.ControlCompleted, out.Status)
	assert.Contains(t, f.desktop.CallNames(), "TapKey")
	assert.Zero(t, f.gate.Pending())
}

func TestProcessCommand_ContextCancelledDuringConfirmation(t *testing.T) {
	f := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.ProcessCommand(ctx, "press enter", f.rec.send)
	}()
	f.rec.nextRequest(t)
	cancel()

	out := <-done
	assert.Equal(t, schemas.ControlCancelled, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Zero(t, f.gate.Pending())
}

func TestProcessCommand_NotHandled(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"question", "what is the weather like", "Command is a question, not an action"},
		{"small talk", "tell me a joke", "Command does not require computer control"},
		{"generic below threshold", "select everything", "Confidence too low"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := setup(t, nil)
			out := f.orch.ProcessCommand(context.Background(), tc.text, f.rec.send)
			assert.False(t, out.Handled)
			assert.Equal(t, tc.reason, out.Reason)
			assert.Empty(t, f.rec.messages())
			assert.Empty(t, f.desktop.Calls)
		})
	}
}

func TestProcessCommand_BlockedApplication(t *testing.T) {
	f := setup(t, nil)

	out := f.orch.ProcessCommand(context.Background(), "open terminal", f.rec.send)

	assert.Equal(t, schemas.ControlBlocked, out.Status)
	assert.Equal(t, "Action blocked: Application 'terminal' is blocked", f.rec.terminal(t).Message)
	f.llm.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestProcessCommand_Screenshot(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()

	out := f.orch.ProcessCommand(context.Background(), "take a screenshot", f.rec.send)

	require.True(t, out.Success)
	msgs := f.rec.messages()
	require.Len(t, msgs, 1)
	shot, ok := msgs[0].(schemas.ScreenshotMessage)
	require.True(t, ok)
	assert.Equal(t, "cG5n", shot.Image)
	assert.Equal(t, int64(1700000000000), shot.Timestamp)
}

func TestProcessCommand_ScreenshotFailure(t *testing.T) {
	f := setup(t, nil)
	f.desktop.On("CaptureScreen", mock.Anything).Return(nil, errors.New("no display"))

	out := f.orch.ProcessCommand(context.Background(), "take a screenshot", f.rec.send)

	assert.Equal(t, schemas.ControlError, out.Status)
	assert.Contains(t, f.rec.terminal(t).Message, "Screenshot failed:")
}

func TestProcessCommand_PlannerFailure(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("quota exhausted")).Once()

	out := f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)

	assert.Equal(t, schemas.ControlError, out.Status)
	assert.Contains(t, f.rec.terminal(t).Message, "Error: ")
	var cmdErr *CommandError
	require.ErrorAs(t, out.Err, &cmdErr)
	assert.Equal(t, schemas.ErrPlannerUnavailable, cmdErr.Kind)
}

func TestProcessCommand_EmptyPlan(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.expectPlan(`I am not sure what to do here.`)

	out := f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)

	assert.Equal(t, schemas.ControlFailed, out.Status)
	assert.Equal(t, "Could not determine actions for this task", f.rec.terminal(t).Message)
}

func TestProcessCommand_PlanWithoutCoordinatesIsBlocked(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.expectPlan(`{"reasoning":"icon somewhere","confidence":0.9,"actions":[{"type":"click","description":"Click the icon"}]}`)

	out := f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)

	assert.Equal(t, schemas.ControlBlocked, out.Status)
	assert.Equal(t, "Action blocked: 1 action(s) blocked: Action 'click' is missing x, y", f.rec.terminal(t).Message)
	assert.NotContains(t, f.desktop.CallNames(), "MoveMouse")
	assert.NotContains(t, f.desktop.CallNames(), "Click")
}

func TestProcessCommand_PlanNeedsConfirmationDenied(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.expectPlan(`{"reasoning":"close with the shortcut","confidence":0.8,"actions":[{"type":"key_press","key":"q","modifiers":["cmd"]}]}`)

	done := make(chan Outcome, 1)
	go func() {
		done <- f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)
	}()

	req := f.rec.nextRequest(t)
	assert.Equal(t, safety.SubjectTypePlan, req.Action.Type)
	assert.True(t, f.orch.HandleConfirmationResponse(req.ConfirmationID, false))

	out := <-done
	assert.Equal(t, schemas.ControlCancelled, out.Status)
	assert.Equal(t, "Task cancelled by user", f.rec.terminal(t).Message)
	var cmdErr *CommandError
	require.ErrorAs(t, out.Err, &cmdErr)
	assert.Equal(t, schemas.ErrConfirmationDenied, cmdErr.Kind)
	assert.NotContains(t, f.desktop.CallNames(), "TapKey")
}

func TestProcessCommand_FailureHaltsPlan(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.expectPlan(`{"reasoning":"two clicks","confidence":0.9,"actions":[{"type":"click","x":10,"y":10},{"type":"click","x":20,"y":20}]}`)
	f.desktop.On("MoveMouse", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.desktop.On("Click", mock.Anything, schemas.ButtonLeft, 1).Return(errors.New("target closed")).Once()

	out := f.orch.ProcessCommand(context.Background(), "open chrome", f.rec.send)

	assert.Equal(t, schemas.ControlError, out.Status)
	require.Len(t, out.Results, 1)
	assert.Contains(t, f.rec.terminal(t).Message, "Action 1 failed: ")
	assert.Equal(t, []string{"CaptureScreen", "MoveMouse", "Click"}, f.desktop.CallNames())
}

func TestProcessCommand_DisabledEngine(t *testing.T) {
	f := setup(t, nil)
	f.orch.SetComputerMode(false)

	out := f.orch.ProcessCommand(context.Background(), "type hello", f.rec.send)

	assert.Equal(t, schemas.ControlError, out.Status)
	assert.Equal(t, "Action 1 failed: Computer control is disabled", f.rec.terminal(t).Message)
	assert.Empty(t, f.desktop.Calls)
}

func TestProcessCommand_RateLimited(t *testing.T) {
	f := setup(t, func(c *config.Config) { c.RateLimitCfg.MaxActionsPerMinute = 1 })
	f.desktop.On("TypeText", mock.Anything, "hello").Return(nil).Once()

	first := f.orch.ProcessCommand(context.Background(), "type hello", f.rec.send)
	require.True(t, first.Success)

	second := f.orch.ProcessCommand(context.Background(), "type hello", newRecorder().send)
	var cmdErr *CommandError
	require.ErrorAs(t, second.Err, &cmdErr)
	assert.Equal(t, schemas.ErrRateLimited, cmdErr.Kind)
	assert.Contains(t, second.Reason, "Too many actions")
}

func TestHandleMessage(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, f.orch.HandleMessage(ctx, []byte(`{"type":"computer_control_toggle","enabled":false}`), f.rec.send))
	require.Len(t, f.rec.messages(), 1)
	assert.Equal(t, schemas.ModeMessage{Enabled: false, Message: "Computer control disabled"}, f.rec.messages()[0])
	assert.False(t, f.engine.Enabled())

	assert.Error(t, f.orch.HandleMessage(ctx, []byte(`{"type":"computer_control_toggle"}`), f.rec.send))
	assert.Error(t, f.orch.HandleMessage(ctx, []byte(`{"type":"computer_control_confirmation"}`), f.rec.send))
	assert.NoError(t, f.orch.HandleMessage(ctx, []byte(`{"type":"computer_control_confirmation","confirmationId":"confirm_gone","approved":true}`), f.rec.send))
	assert.ErrorIs(t, f.orch.HandleMessage(ctx, []byte(`{"type":"chat"}`), f.rec.send), ErrUnknownMessage)
	assert.Error(t, f.orch.HandleMessage(ctx, []byte(`not json`), f.rec.send))

	require.NoError(t, f.orch.HandleMessage(ctx, []byte(`{"type":"voice_command","text":"what time is it"}`), f.rec.send))
	assert.Len(t, f.rec.messages(), 1, "questions produce no messages")
}

func TestDescribeAndFind(t *testing.T) {
	f := setup(t, nil)
	f.expectCapture()
	f.llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast && !req.Options.ForceJSONFormat
	})).Return("  A browser window with a search box.  ", nil).Once()
	f.llm.On("Generate", mock.Anything, mock.MatchedBy(func(req schemas.GenerationRequest) bool {
		return req.Tier == schemas.TierFast && req.Options.ForceJSONFormat
	})).Return(`{"x":640,"y":120,"confidence":0.8,"found":true}`, nil).Once()

	desc, err := f.orch.DescribeScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A browser window with a search box.", desc)

	loc, err := f.orch.FindElement(context.Background(), "search box")
	require.NoError(t, err)
	assert.Equal(t, vision.ElementLocation{X: 640, Y: 120, Confidence: 0.8, Found: true}, loc)
}

func TestHistoryPassThrough(t *testing.T) {
	f := setup(t, nil)
	f.desktop.On("TypeText", mock.Anything, "hello").Return(nil)

	f.orch.ProcessCommand(context.Background(), "type hello", f.rec.send)
	require.Len(t, f.orch.History(5), 1)
	f.orch.ClearHistory()
	assert.Empty(t, f.orch.History(5))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "short_circuit_executing", StateShortCircuitExecuting.String())
	assert.Equal(t, "unknown", State(99).String())
}
