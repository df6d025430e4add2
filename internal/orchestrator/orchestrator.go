// File: internal/orchestrator/orchestrator.go
// Description: Sequences a command through interpretation, planning,
// validation, confirmation and execution. Components are injected through
// small interfaces so the pipeline can be tested without a desktop or model.

package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/safety"
	"github.com/xkilldash9x/voicepilot/internal/vision"
)

const recentActionContext = 3

// Planner produces action plans from screenshots.
type Planner interface {
	AnalyzeAndPlan(ctx context.Context, screenshot *schemas.Screenshot, task string, pc vision.PlanContext) (schemas.ActionPlan, error)
	DescribeScreen(ctx context.Context, screenshot *schemas.Screenshot) (string, error)
	FindElement(ctx context.Context, screenshot *schemas.Screenshot, description string) (vision.ElementLocation, error)
}

// Gate validates actions and runs the confirmation protocol.
type Gate interface {
	ValidateAction(action schemas.Action, activity schemas.ActivityContext) schemas.ValidationResult
	ValidateApplication(name string) schemas.ValidationResult
	ValidatePlan(actions schemas.ActionList) schemas.PlanValidation
	RequestDecision(ctx context.Context, subject safety.ConfirmationSubject, send schemas.Sender) (safety.Decision, error)
	HandleConfirmationResponse(id string, approved bool) bool
}

// Engine executes actions against the desktop.
type Engine interface {
	Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult
	CaptureScreen(ctx context.Context) (*schemas.Screenshot, error)
	History(n int) []schemas.HistoryEntry
	ClearHistory()
	RecentActivity(window time.Duration) schemas.ActivityContext
	SetEnabled(enabled bool)
	Enabled() bool
}

// Outcome is the result of processing one command.
type Outcome struct {
	// Handled is false when the command was not meant for computer control.
	Handled bool
	Success bool
	// Status is the terminal status sent to the client, if any.
	Status  schemas.ControlStatus
	Reason  string
	Results []schemas.ExecutionResult
	Err     error
}

// Orchestrator runs one command at a time through the pipeline.
type Orchestrator struct {
	cfg     config.Interface
	logger  *zap.Logger
	parser  *intent.Parser
	planner Planner
	gate    Gate
	engine  Engine
	sleep   func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state atomic.Int32
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the inter-action delay, for tests.
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = fn }
}

// New creates an Orchestrator.
func New(
	cfg config.Interface,
	logger *zap.Logger,
	parser *intent.Parser,
	planner Planner,
	gate Gate,
	engine Engine,
	opts ...Option,
) (*Orchestrator, error) {
	if cfg == nil || logger == nil || parser == nil || planner == nil || gate == nil || engine == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	o := &Orchestrator{
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
		parser:  parser,
		planner: planner,
		gate:    gate,
		engine:  engine,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev != s {
		o.logger.Debug("State transition", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// run carries the per-command context through the pipeline.
type run struct {
	ctx    context.Context
	send   schemas.Sender
	logger *zap.Logger
}

// finish emits the single terminal status of a command and builds its outcome.
func (o *Orchestrator) finish(r *run, state State, status schemas.ControlStatus, msg string, results []schemas.ExecutionResult, err error) Outcome {
	o.setState(state)
	r.send(schemas.StatusMessage{Status: status, Message: msg, Results: results})

	out := Outcome{
		Handled: true,
		Success: state == StateCompleted,
		Status:  status,
		Reason:  msg,
		Results: results,
		Err:     err,
	}
	if err != nil {
		r.logger.Warn("Command halted", zap.String("status", string(status)), zap.Error(err))
	} else {
		r.logger.Info("Command finished", zap.String("status", string(status)), zap.Int("actions", len(results)))
	}
	return out
}

// ProcessCommand runs text through the pipeline, sending progress to send.
// Commands are serialized; a concurrent call waits for the current one.
func (o *Orchestrator) ProcessCommand(ctx context.Context, text string, send schemas.Sender) Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.setState(StateIdle)

	r := &run{
		ctx:    ctx,
		send:   send,
		logger: o.logger.With(zap.String("command_id", uuid.NewString())),
	}
	o.setState(StateInterpreting)

	if o.parser.IsQuestion(text) {
		return Outcome{Reason: "Command is a question, not an action"}
	}
	in := o.parser.Analyze(text)
	if !in.RequiresControl {
		return Outcome{Reason: "Command does not require computer control"}
	}
	if threshold := o.cfg.CommandParsing().ConfidenceThreshold; in.Confidence < threshold {
		r.logger.Debug("Command ignored: confidence too low", zap.Float64("confidence", in.Confidence), zap.Float64("threshold", threshold))
		return Outcome{
			Reason: "Confidence too low",
			Err:    commandError(schemas.ErrParseAmbiguous, fmt.Sprintf("confidence %.2f below %.2f", in.Confidence, threshold), nil),
		}
	}
	r.logger.Info("Command accepted", zap.String("action", string(in.Action)), zap.Float64("confidence", in.Confidence))

	if in.Action == intent.KindScreenshot {
		return o.takeScreenshot(r)
	}

	if (in.Action == intent.KindOpen || in.Action == intent.KindClose) && in.Target != nil {
		if v := o.gate.ValidateApplication(*in.Target); v.Blocked {
			return o.finish(r, StateBlocked, schemas.ControlBlocked, "Action blocked: "+v.Reason, nil,
				commandError(schemas.ErrValidationBlocked, v.Reason, nil))
		}
	}

	if !o.parser.NeedsVision(in) {
		if actions := o.parser.SimpleActions(in); len(actions) > 0 {
			o.setState(StateShortCircuitExecuting)
			return o.executeActions(r, actions)
		}
	}
	return o.visionGuidedTask(r, in)
}

func (o *Orchestrator) visionGuidedTask(r *run, in intent.Intent) Outcome {
	o.setState(StatePlanning)
	r.send(schemas.StatusMessage{Status: schemas.ControlAnalyzing, Message: "Analyzing screen..."})

	shot, err := o.engine.CaptureScreen(r.ctx)
	if err != nil {
		return o.finish(r, StateFailed, schemas.ControlError, "Error: "+err.Error(), nil,
			commandError(schemas.ErrCaptureFailed, "screen capture failed", err))
	}

	task := o.parser.TaskDescription(in)
	plan, err := o.planner.AnalyzeAndPlan(r.ctx, shot, task, vision.PlanContext{
		Screen:          shot.Dimensions,
		PreviousActions: o.engine.History(recentActionContext),
	})
	if err != nil {
		return o.finish(r, StateFailed, schemas.ControlError, "Error: "+err.Error(), nil,
			commandError(schemas.ErrPlannerUnavailable, "planning failed", err))
	}
	if !plan.Success || len(plan.Actions) == 0 {
		return o.finish(r, StateFailed, schemas.ControlFailed, "Could not determine actions for this task", nil,
			commandError(schemas.ErrPlanEmpty, "no actions planned", nil))
	}

	o.setState(StateValidating)
	validation := o.gate.ValidatePlan(plan.Actions)
	if !validation.Valid {
		return o.finish(r, StateBlocked, schemas.ControlBlocked, "Action blocked: "+validation.Reason, nil,
			commandError(schemas.ErrValidationBlocked, validation.Reason, nil))
	}

	r.send(schemas.PlanMessage{Plan: schemas.PlanSummary{
		Reasoning:  plan.Reasoning,
		Actions:    plan.Actions,
		Confidence: plan.Confidence,
	}})

	if validation.NeedsConfirmation {
		o.setState(StateConfirming)
		if out, ok := o.confirm(r, safety.SubjectForPlan(task, plan.Actions), "Task cancelled by user", nil); !ok {
			return out
		}
	}
	return o.executeActions(r, plan.Actions)
}

// confirm runs the confirmation protocol. When the answer is not an approval
// it returns the cancelled outcome and false.
func (o *Orchestrator) confirm(r *run, subject safety.ConfirmationSubject, cancelMsg string, results []schemas.ExecutionResult) (Outcome, bool) {
	d, err := o.gate.RequestDecision(r.ctx, subject, r.send)
	if err == nil && d.Approved() {
		return Outcome{}, true
	}

	kind := schemas.ErrConfirmationDenied
	if d == safety.DecisionExpired {
		kind = schemas.ErrConfirmationTimeout
	}
	return o.finish(r, StateCancelled, schemas.ControlCancelled, cancelMsg, results,
		commandError(kind, "confirmation "+d.String(), err)), false
}

// executeActions runs actions in order and halts at the first action that is
// blocked, declined or fails. Completed actions are not undone.
func (o *Orchestrator) executeActions(r *run, actions []schemas.Action) Outcome {
	o.setState(StateExecuting)
	safetyCfg := o.cfg.Safety()
	delay := o.cfg.Execution().ActionDelay

	total := len(actions)
	results := make([]schemas.ExecutionResult, 0, total)
	for i, action := range actions {
		idx := i + 1

		validation := o.gate.ValidateAction(action, o.engine.RecentActivity(safetyCfg.BurstWindow))
		if validation.Blocked {
			return o.finish(r, StateBlocked, schemas.ControlBlocked,
				fmt.Sprintf("Action %d blocked: %s", idx, validation.Reason), results,
				commandError(schemas.ErrValidationBlocked, validation.Reason, nil))
		}

		if validation.RequiresConfirmation {
			o.setState(StateConfirming)
			if out, ok := o.confirm(r, safety.SubjectForAction(action), fmt.Sprintf("Action %d cancelled", idx), results); !ok {
				return out
			}
			o.setState(StateExecuting)
		}

		r.send(schemas.ActionMessage{ActionIndex: idx, TotalActions: total, Action: safety.Summarize(action)})

		result := o.engine.Execute(r.ctx, action)
		results = append(results, result)
		if !result.OK() {
			reason := result.Error
			if reason == "" {
				reason = result.Message
			}
			if reason == "" {
				reason = "Unknown error"
			}
			kind := schemas.ErrExecutionFailed
			if result.Status == schemas.StatusRateLimited {
				kind = schemas.ErrRateLimited
			}
			return o.finish(r, StateFailed, schemas.ControlError,
				fmt.Sprintf("Action %d failed: %s", idx, reason), results,
				commandError(kind, reason, nil))
		}

		if idx < total {
			if err := o.sleep(r.ctx, delay); err != nil {
				return o.finish(r, StateCancelled, schemas.ControlCancelled,
					fmt.Sprintf("Task interrupted after action %d", idx), results,
					commandError(schemas.ErrExecutionFailed, "interrupted", err))
			}
		}
	}

	return o.finish(r, StateCompleted, schemas.ControlCompleted,
		fmt.Sprintf("Successfully completed %d action(s)", len(results)), results, nil)
}

func (o *Orchestrator) takeScreenshot(r *run) Outcome {
	shot, err := o.engine.CaptureScreen(r.ctx)
	if err != nil {
		return o.finish(r, StateFailed, schemas.ControlError, "Screenshot failed: "+err.Error(), nil,
			commandError(schemas.ErrCaptureFailed, "screen capture failed", err))
	}
	r.send(schemas.ScreenshotMessage{
		Image:      base64.StdEncoding.EncodeToString(shot.Image),
		Dimensions: shot.Dimensions,
		Timestamp:  shot.Timestamp.UnixMilli(),
	})
	o.setState(StateCompleted)
	r.logger.Info("Screenshot captured", zap.Int("bytes", len(shot.Image)))
	return Outcome{Handled: true, Success: true, Reason: "Screenshot captured"}
}

// SetComputerMode flips the engine's master switch. It does not wait for an
// in-flight command; the next action of that command sees the new state.
func (o *Orchestrator) SetComputerMode(enabled bool) schemas.ModeMessage {
	o.engine.SetEnabled(enabled)
	msg := "Computer control disabled"
	if enabled {
		msg = "Computer control enabled"
	}
	return schemas.ModeMessage{Enabled: enabled, Message: msg}
}

// HandleConfirmationResponse forwards a client answer to the gate.
func (o *Orchestrator) HandleConfirmationResponse(id string, approved bool) bool {
	return o.gate.HandleConfirmationResponse(id, approved)
}

// ErrUnknownMessage is returned by HandleMessage for unrecognized types.
var ErrUnknownMessage = errors.New("unknown message type")

// HandleMessage routes one inbound client message. Voice commands block until
// the command finishes; callers that must keep reading confirmations should
// run it on its own goroutine.
func (o *Orchestrator) HandleMessage(ctx context.Context, raw []byte, send schemas.Sender) error {
	msg, err := schemas.DecodeInbound(raw)
	if err != nil {
		return err
	}

	switch msg.Type {
	case schemas.MsgToggle:
		if msg.Enabled == nil {
			return fmt.Errorf("%s requires an enabled field", msg.Type)
		}
		send(o.SetComputerMode(*msg.Enabled))
	case schemas.MsgConfirmation:
		if msg.ConfirmationID == "" {
			return fmt.Errorf("%s requires a confirmationId", msg.Type)
		}
		o.HandleConfirmationResponse(msg.ConfirmationID, msg.Approved)
	case schemas.MsgVoiceCommand:
		out := o.ProcessCommand(ctx, msg.Text, send)
		if !out.Handled {
			o.logger.Debug("Voice command not handled", zap.String("reason", out.Reason))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
	return nil
}

// DescribeScreen captures the screen and asks the planner to describe it.
func (o *Orchestrator) DescribeScreen(ctx context.Context) (string, error) {
	shot, err := o.engine.CaptureScreen(ctx)
	if err != nil {
		return "", commandError(schemas.ErrCaptureFailed, "screen capture failed", err)
	}
	return o.planner.DescribeScreen(ctx, shot)
}

// FindElement captures the screen and asks the planner to locate an element.
func (o *Orchestrator) FindElement(ctx context.Context, description string) (vision.ElementLocation, error) {
	shot, err := o.engine.CaptureScreen(ctx)
	if err != nil {
		return vision.ElementLocation{}, commandError(schemas.ErrCaptureFailed, "screen capture failed", err)
	}
	return o.planner.FindElement(ctx, shot, description)
}

// History returns up to n recent engine entries.
func (o *Orchestrator) History(n int) []schemas.HistoryEntry {
	return o.engine.History(n)
}

// ClearHistory drops the engine history.
func (o *Orchestrator) ClearHistory() {
	o.engine.ClearHistory()
}
