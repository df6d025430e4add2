// internal/safety/gate.go
package safety

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/observability"
)

// MaxCoordinate bounds pointer coordinates on either axis.
const MaxCoordinate = 10000

// defaultBlockedPatterns are always applied to typed text.
var defaultBlockedPatterns = []string{
	`rm\s+-rf`,
	`format`,
	`delete.*system`,
	`sudo`,
	`admin`,
	`password`,
	`credit.*card`,
	`bank`,
}

// dangerousCombo is a key chord that can close applications or the session.
type dangerousCombo struct {
	key       string
	modifiers []string
}

var dangerousCombos = []dangerousCombo{
	{key: "Delete", modifiers: []string{"alt", "ctrl"}},
	{key: "F4", modifiers: []string{"alt"}},
}

const (
	reasonDangerousText = "Text contains potentially dangerous command"
	reasonOutOfBounds   = "Coordinates out of reasonable bounds"
	warnDangerousCombo  = "This key combination may close applications"
	warnHighFrequency   = "High action frequency detected"
)

// Security event names recorded on the audit channel.
const (
	eventActionBlocked   = "action_blocked"
	eventPlanBlocked     = "plan_blocked"
	eventAppBlocked      = "application_blocked"
	eventConfirmRequest  = "confirmation_requested"
	eventConfirmResolved = "confirmation_resolved"
)

// Gate validates actions and plans against static rules and runs the
// confirmation protocol. It is safe for concurrent use.
type Gate struct {
	cfg      config.SafetyConfig
	patterns []*regexp.Regexp
	allowed  []string
	blocked  []string

	logger   *zap.Logger
	security *zap.Logger

	newID     func() string
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) (stop func() bool)

	mu      sync.Mutex
	pending map[string]*pendingConfirmation
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the gate's time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithIDGenerator overrides confirmation id generation.
func WithIDGenerator(fn func() string) Option {
	return func(g *Gate) { g.newID = fn }
}

// WithAfterFunc overrides how confirmation timers are scheduled.
func WithAfterFunc(fn func(d time.Duration, f func()) (stop func() bool)) Option {
	return func(g *Gate) { g.afterFunc = fn }
}

func realAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// NewGate compiles the rule set in cfg. Extra patterns that do not compile
// are reported as errors.
func NewGate(cfg config.SafetyConfig, logger *zap.Logger, opts ...Option) (*Gate, error) {
	patterns := make([]*regexp.Regexp, 0, len(defaultBlockedPatterns)+len(cfg.BlockedPatterns))
	for _, p := range append(append([]string{}, defaultBlockedPatterns...), cfg.BlockedPatterns...) {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid blocked pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	if cfg.MaxStepsPerPlan <= 0 {
		cfg.MaxStepsPerPlan = 10
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = 30 * time.Second
	}

	log := logger.Named("safety")
	g := &Gate{
		cfg:       cfg,
		patterns:  patterns,
		allowed:   lowerAll(cfg.AllowedApplications),
		blocked:   lowerAll(cfg.BlockedApplications),
		logger:    log,
		security:  observability.SecurityLogger(log),
		newID:     func() string { return "confirm_" + uuid.NewString() },
		now:       time.Now,
		afterFunc: realAfterFunc,
		pending:   make(map[string]*pendingConfirmation),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (g *Gate) settings() config.SafetyConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

func isAllowedKind(k schemas.ActionKind) bool {
	for _, allowed := range schemas.AllKinds {
		if k == allowed {
			return true
		}
	}
	return false
}

// ValidateAction applies the rule set to one action. It is pure with respect
// to its inputs and the gate's configuration.
func (g *Gate) ValidateAction(action schemas.Action, activity schemas.ActivityContext) schemas.ValidationResult {
	res := g.validate(action, activity)
	if res.Blocked {
		g.security.Warn("Action blocked",
			zap.String("security_event", eventActionBlocked),
			zap.String("action", string(kindOf(action))),
			zap.String("reason", res.Reason),
		)
	}
	return res
}

func kindOf(a schemas.Action) schemas.ActionKind {
	if a == nil {
		return ""
	}
	return a.Kind()
}

func blockedResult(reason string) schemas.ValidationResult {
	return schemas.ValidationResult{Safe: false, Blocked: true, Reason: reason, Warnings: []string{}}
}

func (g *Gate) validate(action schemas.Action, activity schemas.ActivityContext) schemas.ValidationResult {
	cfg := g.settings()
	res := schemas.ValidationResult{Safe: true, Warnings: []string{}}

	if action == nil {
		return blockedResult("Action type '' is not allowed")
	}
	if m, ok := action.(schemas.Malformed); ok {
		return blockedResult(fmt.Sprintf("Action '%s' is missing %s", m.RawKind, strings.Join(m.Missing, ", ")))
	}
	kind := action.Kind()
	if !isAllowedKind(kind) {
		return blockedResult(fmt.Sprintf("Action type '%s' is not allowed", kind))
	}

	if t, ok := action.(schemas.TypeText); ok && !g.IsSafeText(t.Text) {
		return blockedResult(reasonDangerousText)
	}

	if kp, ok := action.(schemas.KeyPress); ok {
		for _, combo := range dangerousCombos {
			if strings.EqualFold(intent.CanonicalKey(kp.Key), combo.key) && hasModifiers(kp.Modifiers, combo.modifiers) {
				res.RequiresConfirmation = true
				res.Warnings = append(res.Warnings, warnDangerousCombo)
			}
		}
	}

	if cfg.SafetyMode && (kind == schemas.KindKeyPress || kind == schemas.KindDrag) {
		res.RequiresConfirmation = true
	}

	if x, y, ok := schemas.Point(action); ok && !inBounds(x, y) {
		return blockedResult(reasonOutOfBounds)
	}
	if d, ok := action.(schemas.Drag); ok && (!inBounds(d.FromX, d.FromY) || !inBounds(d.ToX, d.ToY)) {
		return blockedResult(reasonOutOfBounds)
	}

	if activity.RecentActionCount > cfg.BurstThreshold && activity.TimeWindow < cfg.BurstWindow {
		res.RequiresConfirmation = true
		res.Warnings = append(res.Warnings, warnHighFrequency)
	}
	return res
}

func inBounds(x, y float64) bool {
	return x >= 0 && y >= 0 && x <= MaxCoordinate && y <= MaxCoordinate
}

// hasModifiers reports whether every required modifier is present in actual,
// comparing canonical names.
func hasModifiers(actual, required []string) bool {
	if len(actual) == 0 {
		return false
	}
	present := make(map[string]bool, len(actual))
	for _, m := range actual {
		if c, ok := intent.CanonicalModifier(m); ok {
			present[c] = true
		}
	}
	for _, m := range required {
		if !present[m] {
			return false
		}
	}
	return true
}

// IsSafeText reports whether text matches none of the blocked patterns.
func (g *Gate) IsSafeText(text string) bool {
	for _, re := range g.patterns {
		if re.MatchString(text) {
			return false
		}
	}
	return true
}

// ValidateApplication applies the application policy. The blocked list wins
// over the allowed list; an empty allowed list allows everything else.
func (g *Gate) ValidateApplication(name string) schemas.ValidationResult {
	app := strings.ToLower(strings.TrimSpace(name))
	res := schemas.ValidationResult{Safe: true, Warnings: []string{}}

	for _, b := range g.blocked {
		if app == b || strings.Contains(app, b) {
			res = blockedResult(fmt.Sprintf("Application '%s' is blocked", name))
			break
		}
	}
	if !res.Blocked && len(g.allowed) > 0 {
		allowed := false
		for _, a := range g.allowed {
			if app == a {
				allowed = true
				break
			}
		}
		if !allowed {
			res = blockedResult(fmt.Sprintf("Application '%s' is not in the allowed list", name))
		}
	}

	if res.Blocked {
		g.security.Warn("Application blocked",
			zap.String("security_event", eventAppBlocked),
			zap.String("application", name),
			zap.String("reason", res.Reason),
		)
	}
	return res
}

// ValidatePlan validates every action without activity context and
// aggregates the verdicts.
func (g *Gate) ValidatePlan(actions schemas.ActionList) schemas.PlanValidation {
	cfg := g.settings()
	out := g.validatePlan(actions, cfg.MaxStepsPerPlan)
	if !out.Valid {
		g.security.Warn("Plan rejected",
			zap.String("security_event", eventPlanBlocked),
			zap.Int("actions", len(actions)),
			zap.String("reason", out.Reason),
		)
	}
	return out
}

func (g *Gate) validatePlan(actions schemas.ActionList, maxSteps int) schemas.PlanValidation {
	if actions == nil {
		return schemas.PlanValidation{Valid: false, Reason: "Actions must be an array", Warnings: []string{}}
	}
	if len(actions) == 0 {
		return schemas.PlanValidation{Valid: false, Reason: "Action plan is empty", Warnings: []string{}}
	}
	if len(actions) > maxSteps {
		return schemas.PlanValidation{Valid: false, Reason: fmt.Sprintf("Action plan too long (max %d actions)", maxSteps), Warnings: []string{}}
	}

	results := make([]schemas.ValidationResult, 0, len(actions))
	var blocked []schemas.ValidationResult
	for _, a := range actions {
		r := g.validate(a, schemas.ActivityContext{})
		results = append(results, r)
		if r.Blocked {
			blocked = append(blocked, r)
		}
	}
	if len(blocked) > 0 {
		return schemas.PlanValidation{
			Valid:    false,
			Reason:   fmt.Sprintf("%d action(s) blocked: %s", len(blocked), blocked[0].Reason),
			Warnings: []string{},
		}
	}

	out := schemas.PlanValidation{Valid: true, Warnings: []string{}}
	for _, r := range results {
		out.NeedsConfirmation = out.NeedsConfirmation || r.RequiresConfirmation
		out.Warnings = append(out.Warnings, r.Warnings...)
	}
	return out
}
