// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// generateFunc matches genai's Models.GenerateContent so tests can stand in
// for the network.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient implements schemas.LLMClient for a single Gemini model.
type GeminiClient struct {
	model    string
	generate generateFunc
	logger   *zap.Logger

	temperature float64
	maxTokens   int
	apiTimeout  time.Duration
	// maxElapsed bounds the total time spent retrying transient failures.
	maxElapsed time.Duration
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// NewGeminiClient initializes a client for one model of the configured provider.
func NewGeminiClient(ctx context.Context, cfg config.VisionConfig, model string, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("Gemini model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.APITimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return newGeminiClient(client.Models.GenerateContent, cfg, model, logger), nil
}

func newGeminiClient(generate generateFunc, cfg config.VisionConfig, model string, logger *zap.Logger) *GeminiClient {
	return &GeminiClient{
		model:       model,
		generate:    generate,
		logger:      logger.Named("llm_client.gemini").With(zap.String("model", model)),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		apiTimeout:  cfg.APITimeout,
		maxElapsed:  2 * time.Minute,
	}
}

// Generate sends the prompts and any attached images to Gemini and returns
// the text of the first candidate. Transient API failures are retried with
// exponential backoff.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	contents := []*genai.Content{buildUserContent(req)}
	genConfig := c.buildConfig(req)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.maxElapsed
	b.MaxInterval = 30 * time.Second

	var responseContent string
	operation := func() error {
		attemptCtx := ctx
		if c.apiTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, c.apiTimeout)
			defer cancel()
		}

		startTime := time.Now()
		resp, err := c.generate(attemptCtx, c.model, contents, genConfig)
		duration := time.Since(startTime)
		if err != nil {
			return c.classifyError(ctx, err)
		}

		text, err := extractText(resp)
		if err != nil {
			return err
		}

		fields := []zap.Field{zap.Duration("duration", duration), zap.Int("images", len(req.Images))}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		c.logger.Info("LLM generation complete (Gemini)", fields...)

		responseContent = text
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return responseContent, nil
}

// Close is a no-op; the genai client holds no resources beyond its HTTP client.
func (c *GeminiClient) Close() error { return nil }

func buildUserContent(req schemas.GenerationRequest) *genai.Content {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}
	parts = append(parts, genai.NewPartFromText(req.UserPrompt))
	return genai.NewContentFromParts(parts, genai.RoleUser)
}

func (c *GeminiClient) buildConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temperature := req.Options.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.Options.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if maxTokens > 0 {
		cfg.MaxOutputTokens = int32(maxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Options.ForceJSONFormat {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", backoff.Permanent(fmt.Errorf("gemini API returned an empty response"))
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) == 0 {
		return "", backoff.Permanent(fmt.Errorf("gemini API returned no candidates"))
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		switch candidate.FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonBlocklist:
			return "", backoff.Permanent(fmt.Errorf("gemini API blocked the request (Reason: %s)", candidate.FinishReason))
		}
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}
	return resp.Text(), nil
}

// classifyError marks everything except throttling, server faults and
// per-attempt timeouts as permanent.
func (c *GeminiClient) classifyError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return backoff.Permanent(ctx.Err())
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("Gemini API returned error status", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
		wrapped := fmt.Errorf("gemini API error: status %d: %w", apiErr.Code, err)
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusGatewayTimeout:
			return wrapped
		default:
			return backoff.Permanent(wrapped)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("LLM request attempt timed out, retrying...", zap.Error(err))
		return fmt.Errorf("gemini request timed out: %w", err)
	}

	c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
	return fmt.Errorf("failed to execute Gemini request: %w", err)
}
