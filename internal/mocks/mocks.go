// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/voicepilot/api/schemas"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Control() config.ControlConfig {
	return m.Called().Get(0).(config.ControlConfig)
}

func (m *MockConfig) Safety() config.SafetyConfig {
	return m.Called().Get(0).(config.SafetyConfig)
}

func (m *MockConfig) RateLimit() config.RateLimitConfig {
	return m.Called().Get(0).(config.RateLimitConfig)
}

func (m *MockConfig) Execution() config.ExecutionConfig {
	return m.Called().Get(0).(config.ExecutionConfig)
}

func (m *MockConfig) CommandParsing() config.CommandParsingConfig {
	return m.Called().Get(0).(config.CommandParsingConfig)
}

func (m *MockConfig) Vision() config.VisionConfig {
	return m.Called().Get(0).(config.VisionConfig)
}

func (m *MockConfig) Desktop() config.DesktopConfig {
	return m.Called().Get(0).(config.DesktopConfig)
}

func (m *MockConfig) Transport() config.TransportConfig {
	return m.Called().Get(0).(config.TransportConfig)
}

// --- Setters ---

func (m *MockConfig) SetControlEnabled(b bool)            { m.Called(b) }
func (m *MockConfig) SetSafetyRequireConfirmation(b bool) { m.Called(b) }
func (m *MockConfig) SetSafetySafetyMode(b bool)          { m.Called(b) }
func (m *MockConfig) SetDesktopTargetURL(u string)        { m.Called(u) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

var _ schemas.LLMClient = (*MockLLMClient)(nil)

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close provides a mock function for releasing client resources.
func (m *MockLLMClient) Close() error {
	return m.Called().Error(0)
}

// -- Desktop Mock --

// MockDesktop mocks the schemas.Desktop interface. The recorded m.Calls keep
// dispatch order, which tests use to assert primitive sequencing.
type MockDesktop struct {
	mock.Mock
}

var _ schemas.Desktop = (*MockDesktop)(nil)

func (m *MockDesktop) MoveMouse(ctx context.Context, x, y float64) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockDesktop) Click(ctx context.Context, button schemas.MouseButton, count int) error {
	return m.Called(ctx, button, count).Error(0)
}

func (m *MockDesktop) PressButton(ctx context.Context, button schemas.MouseButton) error {
	return m.Called(ctx, button).Error(0)
}

func (m *MockDesktop) ReleaseButton(ctx context.Context, button schemas.MouseButton) error {
	return m.Called(ctx, button).Error(0)
}

func (m *MockDesktop) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockDesktop) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDesktop) ReleaseKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDesktop) TapKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDesktop) Scroll(ctx context.Context, direction schemas.ScrollDirection, amount int) error {
	return m.Called(ctx, direction, amount).Error(0)
}

func (m *MockDesktop) CaptureScreen(ctx context.Context) (*schemas.Screenshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Screenshot), args.Error(1)
}

func (m *MockDesktop) ScreenSize(ctx context.Context) (schemas.Dimensions, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Dimensions), args.Error(1)
}

func (m *MockDesktop) PointerPosition(ctx context.Context) (schemas.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.Position), args.Error(1)
}

// CallNames returns the method names of every recorded call in order. Call it
// only after the code under test has finished.
func (m *MockDesktop) CallNames() []string {
	names := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		names = append(names, c.Method)
	}
	return names
}
