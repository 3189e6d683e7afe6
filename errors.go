package authflow

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned when local shape checks reject a submit.
	// The offending field is available through the flow's Errors.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSubmitDisabled is returned when the active step's submit action is
	// disabled, for example a verification code that is not complete yet.
	ErrSubmitDisabled = errors.New("submit disabled")
	// ErrSubmitInProgress is returned while another call of the same flow is outstanding.
	ErrSubmitInProgress = errors.New("submit in progress")
	// ErrStepMismatch is returned when an action does not belong to the active step.
	ErrStepMismatch = errors.New("action not available on current step")
	// ErrResendCooldown is returned when a resend is attempted before the cooldown ran out.
	ErrResendCooldown = errors.New("resend cooling down")
	// ErrStepAbandoned is returned when the user left the step before its call finished.
	// The late response has been discarded.
	ErrStepAbandoned = errors.New("step abandoned before response")
	// ErrFlowClosed is returned by any action on a closed flow.
	ErrFlowClosed = errors.New("flow closed")
	// ErrClientNotReady is returned when a flow is used without a built client.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrChallengeUnavailable is returned when no human challenge could be fetched.
	ErrChallengeUnavailable = errors.New("challenge unavailable")

	// ErrRemoteValidation matches gateway failures that carry field messages.
	ErrRemoteValidation = errors.New("remote validation failed")
	// ErrCodeInvalid matches a verification code the service did not accept.
	ErrCodeInvalid = errors.New("verification code invalid")
	// ErrCodeExpired matches a verification code that was already used or expired.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrChallengeInvalid matches a wrong human challenge answer.
	ErrChallengeInvalid = errors.New("challenge answer invalid")
	// ErrChallengeRequired matches a login the service refuses without a challenge.
	ErrChallengeRequired = errors.New("challenge required")
	// ErrRemoteRateLimited matches requests the service rejected as too frequent.
	ErrRemoteRateLimited = errors.New("remote rate limited")
	// ErrInvalidCredentials matches a login with a wrong username or password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked matches a login against a locked account.
	ErrAccountLocked = errors.New("account locked")
	// ErrEmailNotVerified matches a login by an account whose email is not verified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrDeliveryFailed matches a code the service could not deliver.
	ErrDeliveryFailed = errors.New("code delivery failed")
	// ErrGatewayUnavailable matches transport failures reaching the service.
	ErrGatewayUnavailable = errors.New("identity service unavailable")
	// ErrGatewayFailure matches any other failure reported by the service.
	ErrGatewayFailure = errors.New("identity service failure")
)

// FailureKind classifies a gateway failure.
type FailureKind uint8

const (
	FailureUnknown FailureKind = iota
	FailureValidation
	FailureCodeInvalid
	FailureCodeExpired
	FailureChallengeInvalid
	FailureChallengeRequired
	FailureRateLimited
	FailureCredentials
	FailureLocked
	FailureEmailNotVerified
	FailureDelivery
	FailureTransport
)

var failureKindNames = [...]string{
	FailureUnknown:           "unknown",
	FailureValidation:        "validation",
	FailureCodeInvalid:       "code_invalid",
	FailureCodeExpired:       "code_expired",
	FailureChallengeInvalid:  "challenge_invalid",
	FailureChallengeRequired: "challenge_required",
	FailureRateLimited:       "rate_limited",
	FailureCredentials:       "invalid_credentials",
	FailureLocked:            "account_locked",
	FailureEmailNotVerified:  "email_not_verified",
	FailureDelivery:          "delivery_failed",
	FailureTransport:         "transport",
}

func (k FailureKind) String() string {
	if int(k) < len(failureKindNames) {
		return failureKindNames[k]
	}
	return "unknown"
}

func (k FailureKind) sentinel() error {
	switch k {
	case FailureValidation:
		return ErrRemoteValidation
	case FailureCodeInvalid:
		return ErrCodeInvalid
	case FailureCodeExpired:
		return ErrCodeExpired
	case FailureChallengeInvalid:
		return ErrChallengeInvalid
	case FailureChallengeRequired:
		return ErrChallengeRequired
	case FailureRateLimited:
		return ErrRemoteRateLimited
	case FailureCredentials:
		return ErrInvalidCredentials
	case FailureLocked:
		return ErrAccountLocked
	case FailureEmailNotVerified:
		return ErrEmailNotVerified
	case FailureDelivery:
		return ErrDeliveryFailed
	case FailureTransport:
		return ErrGatewayUnavailable
	default:
		return ErrGatewayFailure
	}
}

// GatewayError is the failure shape every Gateway implementation returns.
//
// Code is the service's machine-readable code (0 when the failure never
// reached the service). Fields is only meaningful for FailureValidation.
type GatewayError struct {
	Kind    FailureKind
	Code    int
	Message string
	Fields  map[string]string
	Err     error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s (code %d): %s", e.Kind, e.Code, msg)
	}
	if msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match a GatewayError against the sentinel of its kind.
func (e *GatewayError) Is(target error) bool {
	if e == nil {
		return false
	}
	return e.Kind.sentinel() == target
}

// FailureKindOf classifies any error returned by a Gateway. Context
// cancellation and deadline errors count as transport failures.
func FailureKindOf(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}
	if gwErr := asGatewayError(err); gwErr != nil {
		return gwErr.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureTransport
	}
	return FailureUnknown
}

func asGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return nil
}
