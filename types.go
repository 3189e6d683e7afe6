package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/internal/flows"
)

// Purpose selects which code family a verification request belongs to.
type Purpose string

const (
	// PurposeRegister proves control of the email of a new account.
	PurposeRegister Purpose = "register"
	// PurposePasswordReset authorizes a password reset.
	PurposePasswordReset Purpose = "reset_password"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	return p == PurposeRegister || p == PurposePasswordReset
}

// Step names the active step of a flow.
type Step = flows.Step

const (
	StepForm         = flows.StepForm
	StepVerification = flows.StepVerification
	StepIdentify     = flows.StepIdentify
	StepReset        = flows.StepReset
	StepSuccess      = flows.StepSuccess
)

// Field keys used in FieldErrors.
const (
	FieldUsername        = flows.FieldUsername
	FieldEmail           = flows.FieldEmail
	FieldIdentifier      = flows.FieldIdentifier
	FieldPassword        = flows.FieldPassword
	FieldNewPassword     = flows.FieldNewPassword
	FieldConfirmPassword = flows.FieldConfirmPassword
	FieldCode            = flows.FieldCode
	FieldCaptcha         = flows.FieldCaptcha
)

// UserRecord is the account returned by a successful registration.
type UserRecord struct {
	ID            string
	Username      string
	Email         string
	IsPrivileged  bool
	EmailVerified bool
}

// RegisterRequest is the payload of Gateway.Register.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// LoginRequest is the payload of Gateway.Login. ChallengeID and
// ChallengeAnswer are empty when no challenge was presented.
type LoginRequest struct {
	Username        string
	Password        string
	ChallengeID     string
	ChallengeAnswer string
}

// Token is the result of a successful login.
type Token struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Challenge is an opaque human challenge (CAPTCHA) issued by the service.
type Challenge struct {
	ID       string
	Question string
}

// Gateway is the remote identity service as seen by the flows.
//
// Implementations report failures as *GatewayError so that flows can tell
// validation failures from semantic and transport ones.
type Gateway interface {
	Register(ctx context.Context, req RegisterRequest) (UserRecord, error)
	RequestCode(ctx context.Context, identifier string, purpose Purpose) error
	VerifyCode(ctx context.Context, identifier, code string, purpose Purpose) error
	ResetPassword(ctx context.Context, identifier, code, newSecret string) error
	Login(ctx context.Context, req LoginRequest) (Token, error)
	Challenge(ctx context.Context) (Challenge, error)
}

// RegistrationForm is the input of the registration form step.
type RegistrationForm struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// LoginForm is the input of a login submit.
type LoginForm struct {
	Username        string
	Password        string
	ChallengeAnswer string
}

// Snapshot is a read-only view of a flow for rendering.
type Snapshot struct {
	Step              Step
	Submitting        bool
	CanSubmit         bool
	CanResend         bool
	Errors            FieldErrors
	CooldownRemaining int
	// Session is nil outside the code-entry step.
	Session *VerificationSession
	// Prefill is the identifier to show on the entry step.
	Prefill string
}
