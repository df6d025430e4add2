// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Control() ControlConfig
	Safety() SafetyConfig
	RateLimit() RateLimitConfig
	Execution() ExecutionConfig
	CommandParsing() CommandParsingConfig
	Vision() VisionConfig
	Desktop() DesktopConfig
	Transport() TransportConfig

	SetControlEnabled(bool)
	SetSafetyRequireConfirmation(bool)
	SetSafetySafetyMode(bool)
	SetDesktopTargetURL(string)
}

// Config holds the entire application configuration. Sections are reached
// through the Interface getters.
type Config struct {
	LoggerCfg         LoggerConfig         `mapstructure:"logger" yaml:"logger"`
	ControlCfg        ControlConfig        `mapstructure:"control" yaml:"control"`
	SafetyCfg         SafetyConfig         `mapstructure:"safety" yaml:"safety"`
	RateLimitCfg      RateLimitConfig      `mapstructure:"rate_limit" yaml:"rate_limit"`
	ExecutionCfg      ExecutionConfig      `mapstructure:"execution" yaml:"execution"`
	CommandParsingCfg CommandParsingConfig `mapstructure:"command_parsing" yaml:"command_parsing"`
	VisionCfg         VisionConfig         `mapstructure:"vision" yaml:"vision"`
	DesktopCfg        DesktopConfig        `mapstructure:"desktop" yaml:"desktop"`
	TransportCfg      TransportConfig      `mapstructure:"transport" yaml:"transport"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig                 { return c.LoggerCfg }
func (c *Config) Control() ControlConfig               { return c.ControlCfg }
func (c *Config) Safety() SafetyConfig                 { return c.SafetyCfg }
func (c *Config) RateLimit() RateLimitConfig           { return c.RateLimitCfg }
func (c *Config) Execution() ExecutionConfig           { return c.ExecutionCfg }
func (c *Config) CommandParsing() CommandParsingConfig { return c.CommandParsingCfg }
func (c *Config) Vision() VisionConfig                 { return c.VisionCfg }
func (c *Config) Desktop() DesktopConfig               { return c.DesktopCfg }
func (c *Config) Transport() TransportConfig           { return c.TransportCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetControlEnabled(b bool)            { c.ControlCfg.Enabled = b }
func (c *Config) SetSafetyRequireConfirmation(b bool) { c.SafetyCfg.RequireConfirmation = b }
func (c *Config) SetSafetySafetyMode(b bool)          { c.SafetyCfg.SafetyMode = b }
func (c *Config) SetDesktopTargetURL(u string)        { c.DesktopCfg.TargetURL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ControlConfig is the master switch for desktop control.
type ControlConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// SafetyConfig configures the Safety Gate.
type SafetyConfig struct {
	RequireConfirmation bool          `mapstructure:"require_confirmation" yaml:"require_confirmation"`
	SafetyMode          bool          `mapstructure:"safety_mode" yaml:"safety_mode"`
	AllowedApplications []string      `mapstructure:"allowed_applications" yaml:"allowed_applications"`
	BlockedApplications []string      `mapstructure:"blocked_applications" yaml:"blocked_applications"`
	BlockedPatterns     []string      `mapstructure:"blocked_patterns" yaml:"blocked_patterns"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" yaml:"confirmation_timeout"`
	MaxStepsPerPlan     int           `mapstructure:"max_steps_per_plan" yaml:"max_steps_per_plan"`
	BurstThreshold      int           `mapstructure:"burst_threshold" yaml:"burst_threshold"`
	BurstWindow         time.Duration `mapstructure:"burst_window" yaml:"burst_window"`
}

// RateLimitConfig holds the action throughput ceilings.
type RateLimitConfig struct {
	MaxActionsPerMinute int `mapstructure:"max_actions_per_minute" yaml:"max_actions_per_minute"`
	MaxActionsPerHour   int `mapstructure:"max_actions_per_hour" yaml:"max_actions_per_hour"`
}

// ExecutionConfig tunes how the engine dispatches primitives.
type ExecutionConfig struct {
	ActionDelay     time.Duration  `mapstructure:"action_delay" yaml:"action_delay"`
	ActionTimeout   time.Duration  `mapstructure:"action_timeout" yaml:"action_timeout"`
	MouseSpeed      float64        `mapstructure:"mouse_speed" yaml:"mouse_speed"`
	HistoryCapacity int            `mapstructure:"history_capacity" yaml:"history_capacity"`
	Humanoid        HumanoidConfig `mapstructure:"humanoid" yaml:"humanoid"`
}

// CommandParsingConfig configures the Intent Parser gate.
type CommandParsingConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// VisionConfig configures the vision collaborator.
type VisionConfig struct {
	Provider      LLMProvider   `mapstructure:"provider" yaml:"provider"`
	APIKey        string        `mapstructure:"api_key" yaml:"-"`
	FastModel     string        `mapstructure:"fast_model" yaml:"fast_model"`
	PowerfulModel string        `mapstructure:"powerful_model" yaml:"powerful_model"`
	Temperature   float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens     int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	APITimeout    time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
}

// DesktopConfig selects and configures the automation backend.
type DesktopConfig struct {
	Backend            string `mapstructure:"backend" yaml:"backend"`
	RemoteURL          string `mapstructure:"remote_url" yaml:"remote_url"`
	TargetURL          string `mapstructure:"target_url" yaml:"target_url"`
	Headless           bool   `mapstructure:"headless" yaml:"headless"`
	MaxScreenshotWidth int    `mapstructure:"max_screenshot_width" yaml:"max_screenshot_width"`
}

// TransportConfig configures the websocket endpoint.
type TransportConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Path       string `mapstructure:"path" yaml:"path"`
	JWTSecret  string `mapstructure:"jwt_secret" yaml:"-"`
	// AllowedOrigins restricts websocket handshakes; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// NewDefaultConfig creates a configuration populated with all defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg := &Config{}
	// Defaults are well-formed; an error here is a programming mistake.
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not unmarshal: %v", err))
	}
	return cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "voicepilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Control --
	v.SetDefault("control.enabled", true)

	// -- Safety --
	v.SetDefault("safety.require_confirmation", true)
	v.SetDefault("safety.safety_mode", true)
	v.SetDefault("safety.allowed_applications", []string{})
	v.SetDefault("safety.blocked_applications", []string{
		"system preferences",
		"system settings",
		"keychain",
		"activity monitor",
		"terminal",
		"command prompt",
		"powershell",
	})
	v.SetDefault("safety.blocked_patterns", []string{})
	v.SetDefault("safety.confirmation_timeout", "30s")
	v.SetDefault("safety.max_steps_per_plan", 10)
	v.SetDefault("safety.burst_threshold", 10)
	v.SetDefault("safety.burst_window", "5s")

	// -- Rate Limit --
	v.SetDefault("rate_limit.max_actions_per_minute", 20)
	v.SetDefault("rate_limit.max_actions_per_hour", 500)

	// -- Execution --
	v.SetDefault("execution.action_delay", "100ms")
	v.SetDefault("execution.action_timeout", "5s")
	v.SetDefault("execution.mouse_speed", 1000.0)
	v.SetDefault("execution.history_capacity", 100)
	setHumanoidDefaults(v.SetDefault)

	// -- Command Parsing --
	v.SetDefault("command_parsing.confidence_threshold", 0.6)

	// -- Vision --
	v.SetDefault("vision.provider", string(ProviderGemini))
	v.SetDefault("vision.fast_model", "gemini-2.5-flash")
	v.SetDefault("vision.powerful_model", "gemini-2.5-pro")
	v.SetDefault("vision.temperature", 0.2)
	v.SetDefault("vision.max_tokens", 1000)
	v.SetDefault("vision.api_timeout", "60s")

	// -- Desktop --
	v.SetDefault("desktop.backend", "cdp")
	v.SetDefault("desktop.headless", false)
	v.SetDefault("desktop.max_screenshot_width", 2000)

	// -- Transport --
	v.SetDefault("transport.listen_addr", "127.0.0.1:8765")
	v.SetDefault("transport.path", "/ws")
	v.SetDefault("transport.allowed_origins", []string{})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("vision.api_key", "VOICEPILOT_VISION_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("transport.jwt_secret", "VOICEPILOT_JWT_SECRET")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.VisionCfg.APIKey == "" {
		cfg.VisionCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if cfg.LoggerCfg.LogFile != "" {
		expanded, err := homedir.Expand(cfg.LoggerCfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("invalid logger.log_file: %w", err)
		}
		cfg.LoggerCfg.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.SafetyCfg.Validate(); err != nil {
		return fmt.Errorf("safety configuration invalid: %w", err)
	}
	if c.RateLimitCfg.MaxActionsPerMinute <= 0 {
		return fmt.Errorf("rate_limit.max_actions_per_minute must be a positive integer")
	}
	if c.RateLimitCfg.MaxActionsPerHour < 0 {
		return fmt.Errorf("rate_limit.max_actions_per_hour must not be negative")
	}
	if c.ExecutionCfg.HistoryCapacity <= 0 {
		return fmt.Errorf("execution.history_capacity must be a positive integer")
	}
	if c.ExecutionCfg.ActionDelay < 0 || c.ExecutionCfg.ActionTimeout < 0 {
		return fmt.Errorf("execution durations must not be negative")
	}
	if c.ExecutionCfg.MouseSpeed > 0 {
		if err := c.ExecutionCfg.Humanoid.Validate(); err != nil {
			return err
		}
	}
	t := c.CommandParsingCfg.ConfidenceThreshold
	if t < 0.0 || t > 1.0 {
		return fmt.Errorf("command_parsing.confidence_threshold must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the Safety configuration.
func (s *SafetyConfig) Validate() error {
	if s.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation_timeout must be a positive duration")
	}
	if s.MaxStepsPerPlan <= 0 {
		return fmt.Errorf("max_steps_per_plan must be greater than 0")
	}
	for _, p := range s.BlockedPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("blocked pattern %q does not compile: %w", p, err)
		}
	}
	return nil
}
