package authflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authflow/internal/flows"
)

// RecoveryFlow drives identify -> reset -> success for a forgotten password.
// Concurrency rules are those of RegistrationFlow.
type RecoveryFlow struct {
	*flowCore
	model flows.Recovery
}

// NewRecoveryFlow returns a flow on the identify step.
func (c *Client) NewRecoveryFlow() *RecoveryFlow {
	f := &RecoveryFlow{
		model: flows.NewRecovery(c.config.Validation.CodeLength),
	}
	f.flowCore = c.newFlowCore("recovery", f.Snapshot)
	return f
}

// SubmitIdentify requests a reset code for identifier and, once sent, moves
// to the reset step with the cooldown armed.
func (f *RecoveryFlow) SubmitIdentify(ctx context.Context, identifier string) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepIdentify); err != nil {
		f.mu.Unlock()
		return err
	}
	if v := validateIdentifier(identifier); v != nil {
		f.model, _ = f.model.Next(flows.Rejected{Fields: flows.Fields(v.fields(ctx, c.localizer))})
		f.mu.Unlock()
		f.rejected(ctx, v)
		return fmt.Errorf("%w: %s", ErrInvalidInput, v.field)
	}
	identifier = strings.TrimSpace(identifier)
	f.model, _ = f.model.Next(flows.IdentifySubmitted{Identifier: identifier})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	err := c.requestCode(callCtx, identifier, PurposePasswordReset)
	if err != nil {
		c.metricInc(MetricRecoveryIdentifyFailure)
		return f.failed(ctx, epoch, StepIdentify, identifier, err)
	}
	c.metricInc(MetricRecoveryIdentifySuccess)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepIdentify, identifier, nil)
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.CodeSent{Epoch: epoch})
	f.endLocked()
	f.mu.Unlock()

	f.applyEffectsArm(eff.ArmCooldown)
	c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditCodeSent, step: StepReset, identifier: identifier, success: true})
	c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditStepEntered, step: StepReset, identifier: identifier, success: true})
	f.notify()
	return nil
}

// SetCode replaces the pending code, truncated to the configured length.
func (f *RecoveryFlow) SetCode(code string) error {
	return f.edit(flows.CodeEdited{Code: code})
}

// SetNewPassword replaces the new password candidate.
func (f *RecoveryFlow) SetNewPassword(secret string) error {
	return f.edit(flows.NewSecretEdited{Secret: secret})
}

// SetConfirmPassword replaces the confirmation of the new password.
func (f *RecoveryFlow) SetConfirmPassword(secret string) error {
	return f.edit(flows.ConfirmSecretEdited{Secret: secret})
}

func (f *RecoveryFlow) edit(ev flows.Event) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.model.Step() != StepReset {
		f.mu.Unlock()
		return ErrStepMismatch
	}
	f.model, _ = f.model.Next(ev)
	f.mu.Unlock()
	f.notify()
	return nil
}

// SubmitReset checks the passwords match, the new one is long enough and the
// code is complete, in that order, then resets the password.
func (f *RecoveryFlow) SubmitReset(ctx context.Context) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepReset); err != nil {
		f.mu.Unlock()
		return err
	}
	session, _ := recoverySession(f.model)
	if v := validateReset(session, c.config.Validation); v != nil {
		f.model, _ = f.model.Next(flows.Rejected{Fields: flows.Fields(v.fields(ctx, c.localizer))})
		f.mu.Unlock()
		f.rejected(ctx, v)
		return fmt.Errorf("%w: %s", ErrInvalidInput, v.field)
	}
	f.model, _ = f.model.Next(flows.SubmitStarted{})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	err := c.resetPassword(callCtx, session.Identifier, session.PendingCode, session.NewSecret)
	if err != nil {
		c.metricInc(MetricPasswordResetFailure)
		return f.failed(ctx, epoch, StepReset, session.Identifier, err)
	}
	c.metricInc(MetricPasswordResetSuccess)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepReset, session.Identifier, nil)
	}
	f.model, _ = f.model.Next(flows.PasswordReset{Epoch: epoch})
	f.endLocked()
	f.mu.Unlock()

	c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditStepEntered, step: StepSuccess, identifier: session.Identifier, success: true})
	f.notify()
	return nil
}

// Resend requests a new reset code under the same rules as
// RegistrationFlow.Resend.
func (f *RecoveryFlow) Resend(ctx context.Context) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepReset); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.cooldown.IsActive() {
		f.mu.Unlock()
		c.metricInc(MetricResendThrottled)
		return ErrResendCooldown
	}
	identifier := f.model.State.(flows.RecoverReset).Identifier
	f.model, _ = f.model.Next(flows.ResendStarted{})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	err := c.requestCode(callCtx, identifier, PurposePasswordReset)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepReset, identifier, err)
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.ResendFinished{Epoch: epoch, Sent: err == nil})
	f.endLocked()
	f.mu.Unlock()

	f.applyEffectsArm(eff.ArmCooldown)
	if err != nil {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditResendFailed, step: StepReset, identifier: identifier, err: err})
		c.reportUnmapped(ctx, f.logger, auditRecord{flow: f.name, step: StepReset, identifier: identifier, err: err})
	} else {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditCodeSent, step: StepReset, identifier: identifier, success: true})
	}
	f.notify()
	return err
}

// Back returns from reset to identify with the identifier kept as prefill.
// The code, both passwords and field errors are dropped.
func (f *RecoveryFlow) Back() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.model.Step() != StepReset {
		f.mu.Unlock()
		return ErrStepMismatch
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.BackRequested{})
	if eff.CancelInFlight {
		f.endLocked()
	}
	identifier := f.model.State.(flows.RecoverIdentify).Identifier
	f.mu.Unlock()

	f.client.metricInc(MetricStepBack)
	f.client.emitAudit(context.Background(), auditRecord{flow: f.name, eventType: AuditStepEntered, step: StepIdentify, identifier: identifier, success: true})
	f.notify()
	return nil
}

// ClearFieldError drops the error of one field.
func (f *RecoveryFlow) ClearFieldError(field string) {
	f.mu.Lock()
	f.model, _ = f.model.Next(flows.FieldEdited{Field: field})
	f.mu.Unlock()
	f.notify()
}

func (f *RecoveryFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Step()
}

func (f *RecoveryFlow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Submitting
}

func (f *RecoveryFlow) Errors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FieldErrors(f.model.Errors).Clone()
}

// Session returns the verification session while on the reset step.
func (f *RecoveryFlow) Session() (VerificationSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return recoverySession(f.model)
}

// Prefill returns the identifier to show on the identify step.
func (f *RecoveryFlow) Prefill() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.model.State.(flows.RecoverIdentify); ok {
		return id.Identifier
	}
	return ""
}

func (f *RecoveryFlow) Snapshot() Snapshot {
	remaining := f.cooldown.Remaining()

	f.mu.Lock()
	defer f.mu.Unlock()

	snap := Snapshot{
		Step:              f.model.Step(),
		Submitting:        f.model.Submitting,
		CanSubmit:         !f.closed && f.model.CanSubmit(),
		Errors:            FieldErrors(f.model.Errors).Clone(),
		CooldownRemaining: remaining,
	}
	snap.CanResend = snap.Step == StepReset && !f.closed && !f.model.Submitting && remaining == 0
	if s, ok := recoverySession(f.model); ok {
		snap.Session = &s
	}
	if id, ok := f.model.State.(flows.RecoverIdentify); ok {
		snap.Prefill = id.Identifier
	}
	return snap
}

func (f *RecoveryFlow) checkLocked(step Step) error {
	if f.closed {
		return ErrFlowClosed
	}
	if f.model.Step() != step {
		return ErrStepMismatch
	}
	if f.model.Submitting {
		return ErrSubmitInProgress
	}
	return nil
}

func (f *RecoveryFlow) rejected(ctx context.Context, v *violation) {
	f.client.metricInc(MetricLocalValidationRejected)
	f.client.emitAudit(ctx, auditRecord{
		flow:      f.name,
		eventType: AuditSubmitRejected,
		step:      f.Step(),
		metadata:  map[string]string{"field": v.field},
	})
	f.notify()
}

func (f *RecoveryFlow) failed(ctx context.Context, epoch uint64, step Step, identifier string, err error) error {
	fields, mapped := translateFailure(ctx, f.client.localizer, err)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, step, identifier, err)
	}
	f.model, _ = f.model.Next(flows.Failed{Epoch: epoch, Fields: flows.Fields(fields)})
	f.endLocked()
	f.mu.Unlock()

	f.client.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditSubmitFailed, step: step, identifier: identifier, err: err})
	if !mapped {
		f.client.reportUnmapped(ctx, f.logger, auditRecord{flow: f.name, step: step, identifier: identifier, err: err})
	}
	f.notify()
	return err
}

func recoverySession(m flows.Recovery) (VerificationSession, bool) {
	r, ok := m.State.(flows.RecoverReset)
	if !ok {
		return VerificationSession{}, false
	}
	return VerificationSession{
		Identifier:    r.Identifier,
		Purpose:       PurposePasswordReset,
		PendingCode:   r.PendingCode,
		NewSecret:     r.NewSecret,
		ConfirmSecret: r.ConfirmSecret,
	}, true
}
