// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// NewClient builds a tiered LLM client for the vision provider in cfg.
func NewClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini, "":
		fast, err := NewGeminiClient(ctx, cfg, cfg.FastModel, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fast tier client: %w", err)
		}
		powerful, err := NewGeminiClient(ctx, cfg, cfg.PowerfulModel, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create powerful tier client: %w", err)
		}
		return NewLLMRouter(logger, fast, powerful)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
