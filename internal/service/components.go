// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/desktop"
	"github.com/xkilldash9x/voicepilot/internal/orchestrator"
	"github.com/xkilldash9x/voicepilot/internal/safety"
	"github.com/xkilldash9x/voicepilot/internal/vision"
)

// DesktopBackend is a desktop that holds resources until closed.
type DesktopBackend interface {
	schemas.Desktop
	Close()
}

// Components holds every initialized service of the control pipeline and
// centralizes their lifecycle.
type Components struct {
	Config       config.Interface
	LLM          schemas.LLMClient
	Desktop      DesktopBackend
	Engine       *desktop.Engine
	Gate         *safety.Gate
	Planner      *vision.Planner
	Orchestrator *orchestrator.Orchestrator

	logger *zap.Logger
}

// Shutdown releases the model client and the desktop backend. It is safe to
// call on partially initialized components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error while closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	if c.Desktop != nil {
		c.Desktop.Close()
		logger.Debug("Desktop backend closed.")
	}

	logger.Info("All components shut down successfully.")
}
