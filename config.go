package authflow

import (
	"errors"
	"fmt"
	"time"
)

// Config holds client-wide settings. Build copies it, so later mutation of
// the caller's value has no effect on built flows.
type Config struct {
	Cooldown   CooldownConfig   `yaml:"cooldown"`
	Validation ValidationConfig `yaml:"validation"`
	Login      LoginConfig      `yaml:"login"`
	Audit      AuditConfig      `yaml:"audit"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

/*
====================================
COOLDOWN CONFIG
====================================
*/

// CooldownConfig controls the resend throttle shown on code-entry steps.
type CooldownConfig struct {
	// Window is armed after every successful code send. Whole seconds only.
	Window time.Duration `yaml:"window"`
	// Tick is the countdown resolution.
	Tick time.Duration `yaml:"tick"`
}

/*
====================================
VALIDATION CONFIG
====================================
*/

// ValidationConfig holds the local shape checks applied before any call.
type ValidationConfig struct {
	CodeLength        int `yaml:"code_length"`
	MinPasswordLength int `yaml:"min_password_length"`
}

// LoginConfig controls the human challenge of the login flow.
type LoginConfig struct {
	// ChallengeEnabled requires a challenge answer on every login.
	ChallengeEnabled bool `yaml:"challenge_enabled"`
	// RefreshChallengeOnFailure fetches a new challenge after any failed login
	// that carried an answer, since the service consumes challenges on check.
	RefreshChallengeOnFailure bool `yaml:"refresh_challenge_on_failure"`
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the settings used when Builder.WithConfig is not called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Cooldown: CooldownConfig{
			Window: 60 * time.Second,
			Tick:   time.Second,
		},
		Validation: ValidationConfig{
			CodeLength:        6,
			MinPasswordLength: 6,
		},
		Login: LoginConfig{
			ChallengeEnabled:          false,
			RefreshChallengeOnFailure: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.Cooldown.Window <= 0 {
		return errors.New("Cooldown Window must be > 0")
	}
	if c.Cooldown.Window%time.Second != 0 {
		return errors.New("Cooldown Window must be whole seconds")
	}
	if c.Cooldown.Tick <= 0 {
		return errors.New("Cooldown Tick must be > 0")
	}
	if c.Cooldown.Tick > c.Cooldown.Window {
		return errors.New("Cooldown Tick must not exceed Window")
	}

	if c.Validation.CodeLength <= 0 {
		return errors.New("Validation CodeLength must be > 0")
	}
	if c.Validation.CodeLength > 32 {
		return errors.New("Validation CodeLength must be <= 32")
	}
	if c.Validation.MinPasswordLength < 1 {
		return errors.New("Validation MinPasswordLength must be >= 1")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

// LintWarning is an advisory finding about a valid configuration.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in report order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but probably unintended.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings

	if c.Cooldown.Window < 30*time.Second {
		ws = append(ws, LintWarning{
			Code:    "cooldown_short",
			Message: fmt.Sprintf("resend cooldown %s is shorter than most services enforce; resends may be rejected remotely", c.Cooldown.Window),
		})
	}
	if c.Cooldown.Window > 10*time.Minute {
		ws = append(ws, LintWarning{
			Code:    "cooldown_long",
			Message: fmt.Sprintf("resend cooldown %s outlives a typical code lifetime", c.Cooldown.Window),
		})
	}
	if c.Validation.CodeLength < 6 {
		ws = append(ws, LintWarning{
			Code:    "code_length_short",
			Message: "verification codes shorter than 6 characters are easy to guess",
		})
	}
	if c.Validation.MinPasswordLength < 6 {
		ws = append(ws, LintWarning{
			Code:    "password_min_short",
			Message: "minimum password length below 6 is weaker than the identity service default",
		})
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		ws = append(ws, LintWarning{
			Code:    "audit_blocking",
			Message: "audit dispatcher blocks flow transitions when the sink falls behind",
		})
	}
	if c.Metrics.Enabled && !c.Metrics.EnableLatencyHistograms {
		ws = append(ws, LintWarning{
			Code:    "latency_disabled",
			Message: "gateway latency histograms are disabled",
		})
	}

	return ws
}
