// File: cmd/helpers_test.go
package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/desktop"
	"github.com/xkilldash9x/voicepilot/internal/intent"
	"github.com/xkilldash9x/voicepilot/internal/mocks"
	"github.com/xkilldash9x/voicepilot/internal/orchestrator"
	"github.com/xkilldash9x/voicepilot/internal/safety"
	"github.com/xkilldash9x/voicepilot/internal/service"
	"github.com/xkilldash9x/voicepilot/internal/vision"
)

// closableDesktop adds Close to the desktop mock.
type closableDesktop struct {
	mocks.MockDesktop
	closed bool
}

func (d *closableDesktop) Close() { d.closed = true }

// fakeFactory hands out prebuilt components.
type fakeFactory struct {
	components *service.Components
	err        error
	calls      int
	seen       config.Interface
}

func (f *fakeFactory) Create(_ context.Context, cfg config.Interface, _ *zap.Logger) (*service.Components, error) {
	f.calls++
	f.seen = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.components, nil
}

type testRig struct {
	cfg     *config.Config
	desktop *closableDesktop
	llm     *mocks.MockLLMClient
	factory *fakeFactory
}

// newTestRig assembles the real pipeline over mocked desktop and model.
func newTestRig(t *testing.T, mutate func(*config.Config)) *testRig {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ExecutionCfg.MouseSpeed = 0
	cfg.ExecutionCfg.ActionDelay = 0
	cfg.ExecutionCfg.ActionTimeout = time.Second
	if mutate != nil {
		mutate(cfg)
	}
	logger := zaptest.NewLogger(t)

	rig := &testRig{cfg: cfg, desktop: &closableDesktop{}, llm: new(mocks.MockLLMClient)}
	rig.llm.On("Close").Return(nil).Maybe()

	engine := desktop.NewEngine(rig.desktop, cfg, logger)
	gate, err := safety.NewGate(cfg.Safety(), logger)
	require.NoError(t, err)
	planner := vision.NewPlanner(rig.llm, logger, 0.2, 1000)
	orch, err := orchestrator.New(cfg, logger, intent.NewParser(), planner, gate, engine)
	require.NoError(t, err)

	rig.factory = &fakeFactory{components: &service.Components{
		Config:       cfg,
		LLM:          rig.llm,
		Desktop:      rig.desktop,
		Engine:       engine,
		Gate:         gate,
		Planner:      planner,
		Orchestrator: orch,
	}}
	return rig
}
