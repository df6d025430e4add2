// internal/vision/planner.go
package vision

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxPreviousActions = 3

	fallbackConfidence = 0.3
	defaultConfidence  = 0.5
	defaultReasoning   = "No reasoning provided"

	describeMaxTokens = 150
	findMaxTokens     = 100
)

// PlanContext is the situational input that accompanies a planning request.
type PlanContext struct {
	Screen schemas.Dimensions
	// PreviousActions is trimmed to the most recent three entries.
	PreviousActions []schemas.HistoryEntry
	AdditionalInfo  string
}

// ElementLocation is where the model believes a described element is.
type ElementLocation struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Confidence float64 `json:"confidence"`
	Found      bool    `json:"found"`
}

// Planner turns a screenshot and a task into an ActionPlan using a
// vision-capable model.
type Planner struct {
	llm         schemas.LLMClient
	logger      *zap.Logger
	temperature float64
	maxTokens   int
}

// NewPlanner creates a planner backed by llm.
func NewPlanner(llm schemas.LLMClient, logger *zap.Logger, temperature float64, maxTokens int) *Planner {
	return &Planner{
		llm:         llm,
		logger:      logger.Named("vision"),
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// planReply is the decoded model reply. Pointers distinguish missing fields.
type planReply struct {
	Reasoning  string             `json:"reasoning"`
	Confidence *float64           `json:"confidence"`
	Actions    schemas.ActionList `json:"actions"`
}

// AnalyzeAndPlan asks the powerful model for a plan. A reply that cannot be
// decoded still yields a successful, empty plan carrying the raw text.
func (p *Planner) AnalyzeAndPlan(ctx context.Context, screenshot *schemas.Screenshot, task string, pc PlanContext) (schemas.ActionPlan, error) {
	userPrompt, err := buildUserPrompt(task, pc)
	if err != nil {
		return schemas.ActionPlan{}, err
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Images:       imageOf(screenshot),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature: p.temperature,
			MaxTokens:   p.maxTokens,
		},
	}

	p.logger.Debug("Requesting action plan", zap.String("task", task), zap.Int("previous_actions", len(pc.PreviousActions)))
	raw, err := p.llm.Generate(ctx, req)
	if err != nil {
		p.logger.Error("Vision analysis failed", zap.String("task", task), zap.Error(err))
		return schemas.ActionPlan{}, &PlannerError{Op: "analysis", Err: err}
	}

	plan := ParsePlan(raw)
	p.logger.Info("Action plan received",
		zap.Int("actions", len(plan.Actions)),
		zap.Float64("confidence", plan.Confidence),
		zap.String("reasoning", llmutil.Truncate(plan.Reasoning, 200)),
	)
	return plan, nil
}

// ParsePlan decodes a model reply, falling back to an empty plan with low
// confidence when the reply is not the expected JSON.
func ParsePlan(raw string) schemas.ActionPlan {
	reply, err := llmutil.ParseJSONResponse[planReply](raw)
	if err != nil {
		return schemas.ActionPlan{
			Reasoning:   raw,
			Actions:     schemas.ActionList{},
			Confidence:  fallbackConfidence,
			Success:     true,
			RawResponse: raw,
		}
	}

	plan := schemas.ActionPlan{
		Reasoning:   reply.Reasoning,
		Actions:     reply.Actions,
		Confidence:  defaultConfidence,
		Success:     true,
		RawResponse: raw,
	}
	if strings.TrimSpace(plan.Reasoning) == "" {
		plan.Reasoning = defaultReasoning
	}
	if reply.Confidence != nil && *reply.Confidence != 0 {
		plan.Confidence = *reply.Confidence
	}
	if plan.Actions == nil {
		plan.Actions = schemas.ActionList{}
	}
	return plan
}

// DescribeScreen returns a short description of the screenshot from the fast model.
func (p *Planner) DescribeScreen(ctx context.Context, screenshot *schemas.Screenshot) (string, error) {
	raw, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: describePrompt,
		Images:     imageOf(screenshot),
		Tier:       schemas.TierFast,
		Options:    schemas.GenerationOptions{MaxTokens: describeMaxTokens},
	})
	if err != nil {
		p.logger.Error("Screen description failed", zap.Error(err))
		return "", &PlannerError{Op: "description", Err: err}
	}
	return strings.TrimSpace(raw), nil
}

// FindElement asks the fast model for the center of the described element.
// Any failure yields a not-found location alongside the error.
func (p *Planner) FindElement(ctx context.Context, screenshot *schemas.Screenshot, description string) (ElementLocation, error) {
	raw, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: findElementPrompt(description),
		Images:     imageOf(screenshot),
		Tier:       schemas.TierFast,
		Options:    schemas.GenerationOptions{MaxTokens: findMaxTokens, ForceJSONFormat: true},
	})
	if err != nil {
		p.logger.Error("Element finding failed", zap.String("element", description), zap.Error(err))
		return ElementLocation{}, &PlannerError{Op: "element search", Err: err}
	}

	loc, err := llmutil.ParseJSONResponse[ElementLocation](raw)
	if err != nil {
		p.logger.Warn("Element reply was not valid JSON", zap.String("element", description), zap.Error(err))
		return ElementLocation{}, fmt.Errorf("failed to parse element location: %w", err)
	}
	return *loc, nil
}
