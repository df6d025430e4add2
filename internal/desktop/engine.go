// internal/desktop/engine.go
package desktop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/humanoid"
)

const (
	rateWindow          = time.Minute
	defaultHistoryLimit = 10
	defaultScrollAmount = 3

	msgDisabled    = "Computer control is disabled"
	msgRateLimited = "Too many actions. Please wait."
	msgHourlyLimit = "Hourly action limit reached. Please wait."
)

// Engine dispatches validated actions to a Desktop. It enforces the enabled
// switch and the rate ceilings, and keeps a bounded history of what it did.
// All methods are safe for concurrent use.
type Engine struct {
	desktop schemas.Desktop
	logger  *zap.Logger
	glider  *humanoid.Glider
	timeout time.Duration
	now     func() time.Time

	enabled atomic.Bool

	mu      sync.Mutex
	limiter *windowLimiter
	hourly  *rate.Limiter
	history *history
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithGlider overrides the pointer glider built from configuration. A nil
// glider disables gliding.
func WithGlider(g *humanoid.Glider) EngineOption {
	return func(e *Engine) { e.glider = g }
}

// NewEngine creates an Engine on top of d.
func NewEngine(d schemas.Desktop, cfg config.Interface, logger *zap.Logger, opts ...EngineOption) *Engine {
	log := logger.Named("engine")
	exec := cfg.Execution()

	e := &Engine{
		desktop: d,
		logger:  log,
		timeout: exec.ActionTimeout,
		now:     time.Now,
	}
	if exec.MouseSpeed > 0 {
		e.glider = humanoid.NewGlider(exec.Humanoid, exec.MouseSpeed, log)
	}
	for _, opt := range opts {
		opt(e)
	}

	e.enabled.Store(cfg.Control().Enabled)
	e.limiter = newWindowLimiter(cfg.RateLimit().MaxActionsPerMinute, rateWindow, e.now())
	e.hourly = newHourlyLimiter(cfg.RateLimit().MaxActionsPerHour)
	capacity := exec.HistoryCapacity
	if capacity <= 0 {
		capacity = 100
	}
	e.history = newHistory(capacity)
	return e
}

// SetEnabled flips the master switch.
func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
	e.logger.Info("Computer control toggled", zap.Bool("enabled", enabled))
}

// Enabled reports the master switch.
func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// Execute runs a single action. It never returns an error: every outcome,
// including backend failures, is reported in the result.
func (e *Engine) Execute(ctx context.Context, action schemas.Action) schemas.ExecutionResult {
	now := e.now()
	res := schemas.ExecutionResult{Timestamp: now}
	if action != nil {
		res.Action = action.Kind()
	}

	if !e.enabled.Load() {
		res.Status = schemas.StatusDisabled
		res.Message = msgDisabled
		return res
	}

	if msg, ok := e.admit(now); !ok {
		res.Status = schemas.StatusRateLimited
		res.Message = msg
		e.logger.Warn("Action rate limited", zap.String("action", string(res.Action)), zap.String("reason", msg))
		return res
	}

	if action == nil {
		res.Status = schemas.StatusError
		res.Error = "no action supplied"
		return res
	}

	actionCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	result, err := e.dispatch(actionCtx, action)
	if err != nil {
		res.Status = schemas.StatusError
		res.Error = err.Error()
		e.logger.Error("Action failed", zap.String("action", string(res.Action)), zap.Error(err))
	} else {
		res.Status = schemas.StatusSuccess
		res.Result = result
		e.logger.Debug("Action executed", zap.String("action", string(res.Action)), zap.Any("result", result))
	}

	e.mu.Lock()
	e.history.add(schemas.HistoryEntry{Action: action, Result: res, Timestamp: now})
	e.mu.Unlock()
	return res
}

// admit applies the per-minute window and then the per-hour ceiling.
func (e *Engine) admit(now time.Time) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.limiter.allow(now) {
		return msgRateLimited, false
	}
	if e.hourly != nil && !e.hourly.AllowN(now, 1) {
		e.limiter.refund()
		return msgHourlyLimit, false
	}
	return "", true
}

// dispatch translates one action into backend primitives. A panic in the
// backend is converted into an error.
func (e *Engine) dispatch(ctx context.Context, action schemas.Action) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic in desktop backend", zap.Any("panic_value", r), zap.Stack("stack"))
			result = nil
			err = fmt.Errorf("panic during %s: %v", action.Kind(), r)
		}
	}()

	switch a := action.(type) {
	case schemas.Click:
		return e.click(ctx, a.X, a.Y, schemas.ButtonLeft, 1)
	case schemas.DoubleClick:
		return e.click(ctx, a.X, a.Y, schemas.ButtonLeft, 2)
	case schemas.RightClick:
		return e.click(ctx, a.X, a.Y, schemas.ButtonRight, 1)
	case schemas.TypeText:
		if err := e.desktop.TypeText(ctx, a.Text); err != nil {
			return nil, fmt.Errorf("type text: %w", err)
		}
		return map[string]interface{}{"text": a.Text, "length": len(a.Text)}, nil
	case schemas.KeyPress:
		return e.keyPress(ctx, a)
	case schemas.MoveMouse:
		if err := e.moveTo(ctx, a.X, a.Y); err != nil {
			return nil, err
		}
		return map[string]interface{}{"x": a.X, "y": a.Y}, nil
	case schemas.Scroll:
		return e.scroll(ctx, a)
	case schemas.Drag:
		return e.drag(ctx, a)
	case schemas.Malformed:
		return nil, fmt.Errorf("%s action is missing %s", a.RawKind, strings.Join(a.Missing, ", "))
	}
	return nil, fmt.Errorf("unknown action type: %s", action.Kind())
}

func (e *Engine) click(ctx context.Context, x, y float64, button schemas.MouseButton, count int) (map[string]interface{}, error) {
	if err := e.moveTo(ctx, x, y); err != nil {
		return nil, err
	}
	if err := e.desktop.Click(ctx, button, count); err != nil {
		return nil, fmt.Errorf("%s click at (%v, %v): %w", button, x, y, err)
	}
	return map[string]interface{}{"x": x, "y": y, "button": string(button), "clicks": count}, nil
}

// moveTo places the pointer, gliding when a glider is configured.
func (e *Engine) moveTo(ctx context.Context, x, y float64) error {
	if e.glider != nil {
		pos, err := e.desktop.PointerPosition(ctx)
		if err == nil {
			start := humanoid.Vector2D{X: pos.X, Y: pos.Y}
			if err := e.glider.Glide(ctx, e.desktop, start, humanoid.Vector2D{X: x, Y: y}); err != nil {
				return fmt.Errorf("move pointer to (%v, %v): %w", x, y, err)
			}
			return nil
		}
		e.logger.Debug("Pointer position unavailable; moving directly", zap.Error(err))
	}
	if err := e.desktop.MoveMouse(ctx, x, y); err != nil {
		return fmt.Errorf("move pointer to (%v, %v): %w", x, y, err)
	}
	return nil
}

// keyPress holds the modifiers in order, taps the key and releases the
// modifiers in reverse order. Releases run even when the tap fails.
func (e *Engine) keyPress(ctx context.Context, a schemas.KeyPress) (map[string]interface{}, error) {
	key := MapKey(a.Key)
	if key == "" {
		return nil, errors.New("key_press requires a key")
	}

	pressed := make([]string, 0, len(a.Modifiers))
	var errs []error
	for _, mod := range a.Modifiers {
		name := MapKey(mod)
		if err := e.desktop.PressKey(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("press modifier %s: %w", name, err))
			break
		}
		pressed = append(pressed, name)
	}

	if len(errs) == 0 {
		if err := e.desktop.TapKey(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("tap key %s: %w", key, err))
		}
	}

	// Release with a fresh context so a timed-out tap does not leave keys held.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	for i := len(pressed) - 1; i >= 0; i-- {
		if err := e.desktop.ReleaseKey(releaseCtx, pressed[i]); err != nil {
			errs = append(errs, fmt.Errorf("release modifier %s: %w", pressed[i], err))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return map[string]interface{}{"key": key, "modifiers": append([]string(nil), a.Modifiers...)}, nil
}

const releaseTimeout = 2 * time.Second

func (e *Engine) scroll(ctx context.Context, a schemas.Scroll) (map[string]interface{}, error) {
	dir := schemas.ScrollDirection(strings.ToLower(a.Direction))
	switch dir {
	case schemas.ScrollUp, schemas.ScrollDown, schemas.ScrollLeft, schemas.ScrollRight:
	default:
		return nil, fmt.Errorf("unknown scroll direction: %q", a.Direction)
	}
	amount := a.Amount
	if amount <= 0 {
		amount = defaultScrollAmount
	}
	if err := e.desktop.Scroll(ctx, dir, amount); err != nil {
		return nil, fmt.Errorf("scroll %s: %w", dir, err)
	}
	return map[string]interface{}{"direction": string(dir), "amount": amount}, nil
}

// drag presses at the origin, moves to the destination and releases. The
// button is released even if the move fails.
func (e *Engine) drag(ctx context.Context, a schemas.Drag) (map[string]interface{}, error) {
	if err := e.moveTo(ctx, a.FromX, a.FromY); err != nil {
		return nil, err
	}
	if err := e.desktop.PressButton(ctx, schemas.ButtonLeft); err != nil {
		return nil, fmt.Errorf("press button for drag: %w", err)
	}

	moveErr := e.moveTo(ctx, a.ToX, a.ToY)

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := e.desktop.ReleaseButton(releaseCtx, schemas.ButtonLeft); err != nil {
		return nil, errors.Join(moveErr, fmt.Errorf("release button after drag: %w", err))
	}
	if moveErr != nil {
		return nil, moveErr
	}
	return map[string]interface{}{
		"from": map[string]interface{}{"x": a.FromX, "y": a.FromY},
		"to":   map[string]interface{}{"x": a.ToX, "y": a.ToY},
	}, nil
}

// -- Queries --

// CaptureScreen returns a screenshot. Capture is not subject to the rate
// ceilings or the enabled switch.
func (e *Engine) CaptureScreen(ctx context.Context) (*schemas.Screenshot, error) {
	shot, err := e.desktop.CaptureScreen(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return shot, nil
}

// ScreenDimensions returns the desktop size in pixels.
func (e *Engine) ScreenDimensions(ctx context.Context) (schemas.Dimensions, error) {
	return e.desktop.ScreenSize(ctx)
}

// PointerPosition returns the current pointer location.
func (e *Engine) PointerPosition(ctx context.Context) (schemas.Position, error) {
	return e.desktop.PointerPosition(ctx)
}

// History returns up to n of the most recent entries, oldest first. A
// non-positive n returns the default of 10.
func (e *Engine) History(n int) []schemas.HistoryEntry {
	if n <= 0 {
		n = defaultHistoryLimit
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.last(n)
}

// ClearHistory drops every recorded entry.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.clear()
}

// RecentActivity reports how many actions ran within window of now and the
// span they cover.
func (e *Engine) RecentActivity(window time.Duration) schemas.ActivityContext {
	now := e.now()
	e.mu.Lock()
	count, oldest := e.history.since(now.Add(-window))
	e.mu.Unlock()
	ac := schemas.ActivityContext{RecentActionCount: count, TimeWindow: window}
	if count > 0 {
		ac.TimeWindow = now.Sub(oldest)
	}
	return ac
}
