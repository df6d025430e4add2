// api/schemas/plan.go
package schemas

import "time"

// ActionPlan is the ordered list of actions a planner proposes for one task.
type ActionPlan struct {
	Reasoning  string     `json:"reasoning"`
	Actions    ActionList `json:"actions"`
	Confidence float64    `json:"confidence"`
	// Success is false when the planner could not produce a plan at all.
	Success bool `json:"success"`
	// RawResponse is the unparsed collaborator reply, kept for logging.
	RawResponse string `json:"-"`
}

// ValidationResult is the Safety Gate verdict for a single action.
type ValidationResult struct {
	Safe                 bool     `json:"safe"`
	Blocked              bool     `json:"blocked"`
	RequiresConfirmation bool     `json:"requiresConfirmation"`
	Reason               string   `json:"reason,omitempty"`
	Warnings             []string `json:"warnings"`
}

// PlanValidation is the aggregated verdict for a whole plan.
type PlanValidation struct {
	Valid             bool     `json:"valid"`
	NeedsConfirmation bool     `json:"needsConfirmation"`
	Warnings          []string `json:"warnings"`
	Reason            string   `json:"reason,omitempty"`
}

// ExecutionStatus is the outcome of one engine attempt.
type ExecutionStatus string

const (
	StatusSuccess     ExecutionStatus = "success"
	StatusRateLimited ExecutionStatus = "rate_limited"
	StatusDisabled    ExecutionStatus = "disabled"
	StatusError       ExecutionStatus = "error"
)

// ExecutionResult is what the execution engine reports for one action.
type ExecutionResult struct {
	Status    ExecutionStatus        `json:"status"`
	Action    ActionKind             `json:"action,omitempty"`
	Result    map[string]interface{} `json:"result,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// OK reports whether the action was dispatched successfully.
func (r ExecutionResult) OK() bool { return r.Status == StatusSuccess }

// HistoryEntry records one dispatched action and its outcome.
type HistoryEntry struct {
	Action    Action          `json:"-"`
	Result    ExecutionResult `json:"result"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON renders the entry with the action in its wire form.
func (h HistoryEntry) MarshalJSON() ([]byte, error) {
	var action *wireAction
	if h.Action != nil {
		w := toWire(h.Action)
		action = &w
	}
	return json.Marshal(struct {
		Action    *wireAction     `json:"action"`
		Result    ExecutionResult `json:"result"`
		Timestamp time.Time       `json:"timestamp"`
	}{action, h.Result, h.Timestamp})
}

// Dimensions is a screen size in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Position is a pointer location in screen pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Screenshot is an encoded capture of the screen.
type Screenshot struct {
	Image      []byte     `json:"-"`
	Format     string     `json:"format"`
	Dimensions Dimensions `json:"dimensions"`
	Timestamp  time.Time  `json:"timestamp"`
}

// MIMEType returns the media type of the encoded image.
func (s Screenshot) MIMEType() string {
	switch s.Format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	}
	return "image/png"
}

// ErrorKind classifies pipeline failures. Every kind is recoverable at the
// command level.
type ErrorKind string

const (
	ErrParseAmbiguous      ErrorKind = "PARSE_AMBIGUOUS"
	ErrPlannerUnavailable  ErrorKind = "PLANNER_UNAVAILABLE"
	ErrPlanEmpty           ErrorKind = "PLAN_EMPTY"
	ErrValidationBlocked   ErrorKind = "VALIDATION_BLOCKED"
	ErrConfirmationDenied  ErrorKind = "CONFIRMATION_DENIED"
	ErrConfirmationTimeout ErrorKind = "CONFIRMATION_TIMEOUT"
	ErrRateLimited         ErrorKind = "RATE_LIMITED"
	ErrExecutionFailed     ErrorKind = "EXECUTION_FAILED"
	ErrCaptureFailed       ErrorKind = "CAPTURE_FAILED"
)

// ActivityContext summarizes recent engine activity for the burst heuristic.
type ActivityContext struct {
	RecentActionCount int           `json:"recentActionCount"`
	TimeWindow        time.Duration `json:"timeWindow"`
}
