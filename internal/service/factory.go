// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/desktop"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/orchestrator"
	"github.com/xkilldash9x/voicepilot/internal/safety"
	"github.com/xkilldash9x/voicepilot/internal/vision"
)

// ComponentFactory creates the set of components behind every command.
// The abstraction keeps the commands testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

type (
	llmInitializer     func(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (schemas.LLMClient, error)
	desktopInitializer func(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (DesktopBackend, error)
)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	newLLM     llmInitializer
	newDesktop desktopInitializer
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{newLLM: InitializeLLMClient, newDesktop: InitializeDesktop}
}

// Create handles the dependency injection and initialization of the pipeline.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{Config: cfg, logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Vision model client
	llm, err := f.newLLM(ctx, cfg.Vision(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.LLM = llm
	logger.Debug("LLM client initialized.")

	// 2. Desktop backend
	backend, err := f.newDesktop(ctx, cfg.Desktop(), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Desktop = backend
	logger.Debug("Desktop backend initialized.", zap.String("backend", cfg.Desktop().Backend))

	// 3. Execution engine
	components.Engine = desktop.NewEngine(backend, cfg, logger)
	logger.Debug("Execution engine initialized.")

	// 4. Safety gate
	gate, err := safety.NewGate(cfg.Safety(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize safety gate: %w", err)
		return nil, initializationErr
	}
	components.Gate = gate
	logger.Debug("Safety gate initialized.")

	// 5. Vision planner
	visionCfg := cfg.Vision()
	components.Planner = vision.NewPlanner(llm, logger, visionCfg.Temperature, visionCfg.MaxTokens)
	logger.Debug("Vision planner initialized.")

	// 6. Orchestrator
	orch, err := orchestrator.New(cfg, logger, intent.NewParser(), components.Planner, gate, components.Engine)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	logger.Info("All components initialized successfully.")
	return components, nil
}
