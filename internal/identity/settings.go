package identity

import (
	"errors"
	"time"
)

// Settings are the site policies of the identity service.
type Settings struct {
	SiteName string `yaml:"site_name"`

	// RequireEmailVerification leaves new accounts unverified and refuses
	// logins until the emailed code was confirmed. The superuser is exempt.
	RequireEmailVerification bool `yaml:"require_email_verification"`

	MinUsernameLength int `yaml:"min_username_length"`
	MaxUsernameLength int `yaml:"max_username_length"`
	MinPasswordLength int `yaml:"min_password_length"`

	CodeLength      int           `yaml:"code_length"`
	CodeTTL         time.Duration `yaml:"code_ttl"`
	MaxCodeAttempts int           `yaml:"max_code_attempts"`
	SendCooldown    time.Duration `yaml:"send_cooldown"`
	HourlySendLimit int           `yaml:"hourly_send_limit"`

	// CaptchaEnabled demands a captcha on every login. Otherwise a captcha is
	// demanded once CaptchaAfterFailures logins from one IP failed.
	CaptchaEnabled       bool          `yaml:"captcha_enabled"`
	CaptchaAfterFailures int           `yaml:"captcha_after_failures"`
	CaptchaTTL           time.Duration `yaml:"captcha_ttl"`
	FailureWindow        time.Duration `yaml:"failure_window"`

	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LockoutDuration  time.Duration `yaml:"lockout_duration"`

	RegistrationsPerIP     int           `yaml:"registrations_per_ip"`
	RegistrationIPCooldown time.Duration `yaml:"registration_ip_cooldown"`
}

// DefaultSettings returns the policies identityd starts with.
func DefaultSettings() Settings {
	return Settings{
		SiteName:                 "authflow",
		RequireEmailVerification: true,
		MinUsernameLength:        3,
		MaxUsernameLength:        50,
		MinPasswordLength:        6,
		CodeLength:               6,
		CodeTTL:                  10 * time.Minute,
		MaxCodeAttempts:          5,
		SendCooldown:             60 * time.Second,
		HourlySendLimit:          10,
		CaptchaEnabled:           false,
		CaptchaAfterFailures:     3,
		CaptchaTTL:               5 * time.Minute,
		FailureWindow:            time.Hour,
		MaxLoginAttempts:         5,
		LockoutDuration:          15 * time.Minute,
		RegistrationsPerIP:       20,
		RegistrationIPCooldown:   time.Hour,
	}
}

// Validate reports settings the service cannot run with.
func (s Settings) Validate() error {
	if s.MinUsernameLength < 1 || s.MaxUsernameLength < s.MinUsernameLength {
		return errors.New("identity: invalid username length bounds")
	}
	if s.MinPasswordLength < 1 {
		return errors.New("identity: min_password_length must be >= 1")
	}
	if s.CodeLength < 4 || s.CodeLength > 10 {
		return errors.New("identity: code_length must be within [4,10]")
	}
	if s.CodeTTL <= 0 {
		return errors.New("identity: code_ttl must be > 0")
	}
	if s.MaxCodeAttempts < 1 {
		return errors.New("identity: max_code_attempts must be >= 1")
	}
	if s.SendCooldown < 0 || s.HourlySendLimit < 0 {
		return errors.New("identity: send limits must be >= 0")
	}
	if s.CaptchaTTL <= 0 {
		return errors.New("identity: captcha_ttl must be > 0")
	}
	if s.CaptchaAfterFailures < 0 {
		return errors.New("identity: captcha_after_failures must be >= 0")
	}
	if s.MaxLoginAttempts > 0 && s.LockoutDuration <= 0 {
		return errors.New("identity: lockout_duration must be > 0 when lockout is enabled")
	}
	if s.RegistrationsPerIP > 0 && s.RegistrationIPCooldown <= 0 {
		return errors.New("identity: registration_ip_cooldown must be > 0 when throttling sign-ups")
	}
	return nil
}
