// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/desktop/cdp"
	"github.com/xkilldash9x/voicepilot/internal/llmclient"
)

// InitializeLLMClient creates the tiered vision model client.
func InitializeLLMClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	llmClient, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client. Vision planning will be unavailable.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llmClient, nil
}

// InitializeDesktop starts the configured automation backend.
func InitializeDesktop(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (DesktopBackend, error) {
	switch cfg.Backend {
	case "", "cdp":
		backend, err := cdp.New(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to start cdp desktop backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unsupported desktop backend: '%s'. Supported: [cdp]", cfg.Backend)
	}
}

// sweeper is the part of the safety gate the sweep loop needs.
type sweeper interface {
	SweepExpired(now time.Time) int
}

// StartConfirmationSweeper launches a goroutine that expires abandoned
// confirmations every interval until ctx is done. It manages its lifecycle
// using the provided WaitGroup.
func StartConfirmationSweeper(ctx context.Context, wg *sync.WaitGroup, gate sweeper, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Second
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Debug("Starting confirmation sweeper.", zap.Duration("interval", interval))
		defer logger.Debug("Confirmation sweeper shut down.")

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if n := gate.SweepExpired(now); n > 0 {
					logger.Info("Expired abandoned confirmations.", zap.Int("count", n))
				}
			}
		}
	}()
}
