// internal/safety/confirm.go
package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

// Decision is how a confirmation request was resolved.
type Decision int

const (
	DecisionApproved Decision = iota
	DecisionDenied
	DecisionExpired
	DecisionCancelled
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionDenied:
		return "denied"
	case DecisionExpired:
		return "expired"
	case DecisionCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Approved reports whether the action may proceed.
func (d Decision) Approved() bool { return d == DecisionApproved }

// SubjectTypePlan is the subject type used when a whole plan is confirmed at once.
const SubjectTypePlan = "action_plan"

// ConfirmationSubject is what the user is asked to approve.
type ConfirmationSubject struct {
	Type        string
	Description string
	Actions     schemas.ActionList
}

// SubjectForAction builds the subject for a single action, using its planner
// label when present.
func SubjectForAction(a schemas.Action) ConfirmationSubject {
	desc := a.Label()
	if desc == "" {
		desc = Describe(a)
	}
	return ConfirmationSubject{Type: string(a.Kind()), Description: desc, Actions: schemas.ActionList{a}}
}

// SubjectForPlan builds the subject for a whole plan.
func SubjectForPlan(task string, actions schemas.ActionList) ConfirmationSubject {
	return ConfirmationSubject{Type: SubjectTypePlan, Description: task, Actions: actions}
}

type pendingConfirmation struct {
	subject ConfirmationSubject
	created time.Time
	// result is buffered so the single resolver never blocks.
	result chan Decision
	stop   func() bool
}

// RequestConfirmation asks the client to approve subject and waits for the
// answer. It returns true at once when confirmation is disabled.
func (g *Gate) RequestConfirmation(ctx context.Context, subject ConfirmationSubject, send schemas.Sender) (bool, error) {
	d, err := g.RequestDecision(ctx, subject, send)
	return d.Approved(), err
}

// RequestDecision is RequestConfirmation with the resolution reason. The
// error is non-nil only when ctx ends before a resolution.
func (g *Gate) RequestDecision(ctx context.Context, subject ConfirmationSubject, send schemas.Sender) (Decision, error) {
	cfg := g.settings()
	if !cfg.RequireConfirmation {
		return DecisionApproved, nil
	}

	id := g.newID()
	p := &pendingConfirmation{
		subject: subject,
		created: g.now(),
		result:  make(chan Decision, 1),
	}

	g.mu.Lock()
	g.pending[id] = p
	p.stop = g.afterFunc(cfg.ConfirmationTimeout, func() { g.resolve(id, DecisionExpired) })
	g.mu.Unlock()

	g.security.Info("Confirmation requested",
		zap.String("security_event", eventConfirmRequest),
		zap.String("confirmation_id", id),
		zap.String("subject", subject.Type),
		zap.String("description", subject.Description),
	)

	send(schemas.ConfirmationRequestMessage{
		ConfirmationID: id,
		Action:         schemas.ActionSummary{Type: subject.Type, Description: subject.Description},
		Timeout:        cfg.ConfirmationTimeout.Milliseconds(),
	})

	select {
	case d := <-p.result:
		return d, nil
	case <-ctx.Done():
		g.resolve(id, DecisionCancelled)
		return DecisionCancelled, ctx.Err()
	}
}

// HandleConfirmationResponse resolves a pending confirmation. It returns
// false when id is unknown or already resolved; late answers are no-ops.
func (g *Gate) HandleConfirmationResponse(id string, approved bool) bool {
	d := DecisionDenied
	if approved {
		d = DecisionApproved
	}
	if !g.resolve(id, d) {
		g.logger.Debug("Confirmation response for unknown id ignored", zap.String("confirmation_id", id))
		return false
	}
	return true
}

// resolve removes id from the table and delivers d. Only the first caller
// for a given id wins.
func (g *Gate) resolve(id string, d Decision) bool {
	g.mu.Lock()
	p, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	g.mu.Unlock()
	if !ok {
		return false
	}

	if p.stop != nil {
		p.stop()
	}
	p.result <- d

	g.security.Info("Confirmation resolved",
		zap.String("security_event", eventConfirmResolved),
		zap.String("confirmation_id", id),
		zap.String("subject", p.subject.Type),
		zap.Stringer("decision", d),
	)
	return true
}

// SweepExpired denies every pending confirmation older than the timeout and
// returns how many were resolved.
func (g *Gate) SweepExpired(now time.Time) int {
	timeout := g.settings().ConfirmationTimeout

	g.mu.Lock()
	var expired []string
	for id, p := range g.pending {
		if now.Sub(p.created) > timeout {
			expired = append(expired, id)
		}
	}
	g.mu.Unlock()

	n := 0
	for _, id := range expired {
		if g.resolve(id, DecisionExpired) {
			n++
		}
	}
	return n
}

// Pending returns the number of unresolved confirmations.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
