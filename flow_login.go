package authflow

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// LoginFlow submits credentials and manages the optional human challenge.
// It has no steps; it shares the field error contract of the step flows.
type LoginFlow struct {
	client *Client
	logger *zap.Logger

	mu         sync.Mutex
	closed     bool
	submitting bool
	errors     FieldErrors
	challenge  *Challenge
	// required is set once the service demanded a challenge.
	required bool
}

func (c *Client) NewLoginFlow() *LoginFlow {
	return &LoginFlow{
		client: c,
		logger: c.logger.Named("login"),
		errors: FieldErrors{},
	}
}

// ChallengeRequired reports whether the next Submit needs a challenge answer.
func (f *LoginFlow) ChallengeRequired() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.challengeRequiredLocked()
}

func (f *LoginFlow) challengeRequiredLocked() bool {
	return f.client.config.Login.ChallengeEnabled || f.required
}

// Challenge returns the challenge to show, if one has been fetched.
func (f *LoginFlow) Challenge() (Challenge, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challenge == nil {
		return Challenge{}, false
	}
	return *f.challenge, true
}

// RefreshChallenge fetches a new challenge, replacing the current one.
func (f *LoginFlow) RefreshChallenge(ctx context.Context) (Challenge, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Challenge{}, ErrFlowClosed
	}
	f.mu.Unlock()

	ch, err := f.client.challenge(ctx)
	if err != nil {
		f.logger.Warn("challenge fetch failed", zap.Error(err))
		f.client.emitAudit(ctx, auditRecord{flow: "login", eventType: AuditChallengeFailure, err: err})
		return Challenge{}, fmt.Errorf("%w: %w", ErrChallengeUnavailable, err)
	}
	f.client.metricInc(MetricChallengeFetched)

	f.mu.Lock()
	f.challenge = &ch
	f.mu.Unlock()

	f.client.emitAudit(ctx, auditRecord{flow: "login", eventType: AuditChallengeIssued, success: true})
	return ch, nil
}

// Submit validates form and logs in. When a challenge is required but none
// has been fetched yet, Submit fetches one and returns ErrChallengeRequired
// so the caller can show it.
func (f *LoginFlow) Submit(ctx context.Context, form LoginForm) (Token, error) {
	c := f.client

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Token{}, ErrFlowClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return Token{}, ErrSubmitInProgress
	}
	required := f.challengeRequiredLocked()
	if v := validateLogin(form, required && f.challenge != nil); v != nil {
		f.errors = v.fields(ctx, c.localizer)
		f.mu.Unlock()
		c.metricInc(MetricLocalValidationRejected)
		c.emitAudit(ctx, auditRecord{flow: "login", eventType: AuditSubmitRejected, metadata: map[string]string{"field": v.field}})
		return Token{}, fmt.Errorf("%w: %s", ErrInvalidInput, v.field)
	}
	if required && f.challenge == nil {
		f.errors = FieldErrors{FieldCaptcha: c.localizer.Localize(ctx, MsgChallengeRequired)}
		f.mu.Unlock()
		c.metricInc(MetricChallengeRequired)
		if _, err := f.RefreshChallenge(ctx); err != nil {
			return Token{}, err
		}
		return Token{}, ErrChallengeRequired
	}

	req := LoginRequest{
		Username: strings.TrimSpace(form.Username),
		Password: form.Password,
	}
	if required {
		req.ChallengeID = f.challenge.ID
		req.ChallengeAnswer = strings.TrimSpace(form.ChallengeAnswer)
	}
	f.errors = FieldErrors{}
	f.submitting = true
	f.mu.Unlock()

	tok, err := c.login(ctx, req)

	f.mu.Lock()
	f.submitting = false
	if f.closed {
		f.mu.Unlock()
		return Token{}, ErrFlowClosed
	}
	if req.ChallengeID != "" {
		// The service consumes a challenge on every check.
		f.challenge = nil
	}
	if err == nil {
		f.required = false
		f.mu.Unlock()
		c.metricInc(MetricLoginSuccess)
		c.emitAudit(ctx, auditRecord{flow: "login", eventType: AuditLoginSucceeded, identifier: req.Username, success: true})
		return tok, nil
	}

	c.metricInc(MetricLoginFailure)
	fields, mapped := translateFailure(ctx, c.localizer, err)
	kind := FailureKindOf(err)
	challengeFailure := kind == FailureChallengeInvalid || kind == FailureChallengeRequired
	if challengeFailure {
		f.required = true
	}
	if mapped {
		f.errors = fields
	}
	refetch := challengeFailure || (req.ChallengeID != "" && c.config.Login.RefreshChallengeOnFailure)
	f.mu.Unlock()

	c.emitAudit(ctx, auditRecord{flow: "login", eventType: AuditSubmitFailed, identifier: req.Username, err: err})
	if !mapped {
		c.reportUnmapped(ctx, f.logger, auditRecord{flow: "login", identifier: req.Username, err: err})
	}
	if challengeFailure {
		c.metricInc(MetricChallengeRequired)
	}
	if refetch {
		// A failed refetch leaves no challenge; the next Submit tries again.
		_, _ = f.RefreshChallenge(ctx)
	}
	return Token{}, err
}

func (f *LoginFlow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

func (f *LoginFlow) Errors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.Clone()
}

// ClearFieldError drops the error of one field.
func (f *LoginFlow) ClearFieldError(field string) {
	f.mu.Lock()
	f.errors.Clear(field)
	f.mu.Unlock()
}

func (f *LoginFlow) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}
