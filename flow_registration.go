package authflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authflow/internal/flows"
)

// RegistrationFlow drives form -> verification -> success.
//
// All methods are safe for concurrent use. Submit methods block for the
// duration of the gateway call; the flow stays interactive meanwhile, so a
// concurrent Back abandons the call.
type RegistrationFlow struct {
	*flowCore
	model flows.Registration
}

// NewRegistrationFlow returns a flow on the form step.
func (c *Client) NewRegistrationFlow() *RegistrationFlow {
	f := &RegistrationFlow{
		model: flows.NewRegistration(c.config.Validation.CodeLength),
	}
	f.flowCore = c.newFlowCore("registration", f.Snapshot)
	return f
}

// SubmitForm validates form locally, registers the account and, when the
// account must verify its email, requests a code and moves to the
// verification step. Privileged or already verified accounts finish at once.
//
// A failed code send does not keep the flow on the form: the account exists,
// so the flow moves on and the user resends once the cooldown allows.
func (f *RegistrationFlow) SubmitForm(ctx context.Context, form RegistrationForm) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepForm); err != nil {
		f.mu.Unlock()
		return err
	}
	if v := validateRegistrationForm(form, c.config.Validation); v != nil {
		f.model, _ = f.model.Next(flows.Rejected{Fields: flows.Fields(v.fields(ctx, c.localizer))})
		f.mu.Unlock()
		f.rejected(ctx, v)
		return fmt.Errorf("%w: %s", ErrInvalidInput, v.field)
	}
	username := strings.TrimSpace(form.Username)
	email := strings.TrimSpace(form.Email)
	f.model, _ = f.model.Next(flows.FormSubmitted{Username: username, Email: email})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	user, err := c.register(callCtx, RegisterRequest{
		Username: username,
		Email:    email,
		Password: form.Password,
	})
	if err != nil {
		c.metricInc(MetricRegisterFailure)
		return f.failed(ctx, epoch, StepForm, email, err)
	}
	c.metricInc(MetricRegisterSuccess)

	account := accountFromUser(user)
	identifier := email
	if account.Email != "" {
		identifier = account.Email
	}

	var sendErr error
	if flows.NeedsVerification(account) {
		sendErr = c.requestCode(callCtx, identifier, PurposeRegister)
	} else {
		c.metricInc(MetricRegisterFastPath)
	}

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepForm, identifier, nil)
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.Registered{Epoch: epoch, Account: account})
	f.endLocked()
	step := f.model.Step()
	f.mu.Unlock()

	f.applyEffectsArm(eff.ArmCooldown)
	if sendErr != nil {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditCodeSendFailed, step: step, identifier: identifier, err: sendErr})
		c.reportUnmapped(ctx, f.logger, auditRecord{flow: f.name, step: step, identifier: identifier, err: sendErr})
	} else if step == StepVerification {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditCodeSent, step: step, identifier: identifier, success: true})
	}
	c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditStepEntered, step: step, identifier: identifier, success: true})
	f.notify()
	return nil
}

// SetCode replaces the pending code, truncated to the configured length, and
// clears the code error.
func (f *RegistrationFlow) SetCode(code string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.model.Step() != StepVerification {
		f.mu.Unlock()
		return ErrStepMismatch
	}
	f.model, _ = f.model.Next(flows.CodeEdited{Code: code})
	f.mu.Unlock()
	f.notify()
	return nil
}

// SubmitVerification sends the pending code. It is disabled, without a call
// and without a field error, until the code has the configured length.
func (f *RegistrationFlow) SubmitVerification(ctx context.Context) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepVerification); err != nil {
		f.mu.Unlock()
		return err
	}
	if !f.model.CanSubmit() {
		f.mu.Unlock()
		return ErrSubmitDisabled
	}
	state := f.model.State.(flows.RegisterVerification)
	f.model, _ = f.model.Next(flows.SubmitStarted{})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	err := c.verifyCode(callCtx, state.Identifier, state.PendingCode, PurposeRegister)
	if err != nil {
		c.metricInc(MetricVerifyFailure)
		return f.failed(ctx, epoch, StepVerification, state.Identifier, err)
	}
	c.metricInc(MetricVerifySuccess)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepVerification, state.Identifier, nil)
	}
	f.model, _ = f.model.Next(flows.CodeVerified{Epoch: epoch})
	f.endLocked()
	f.mu.Unlock()

	c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditStepEntered, step: StepSuccess, identifier: state.Identifier, success: true})
	f.notify()
	return nil
}

// Resend requests a new code. It is refused while the cooldown runs. A
// failed resend changes nothing visible: no field error and no new cooldown.
// The error is returned for information only.
func (f *RegistrationFlow) Resend(ctx context.Context) error {
	c := f.client

	f.mu.Lock()
	if err := f.checkLocked(StepVerification); err != nil {
		f.mu.Unlock()
		return err
	}
	if f.cooldown.IsActive() {
		f.mu.Unlock()
		c.metricInc(MetricResendThrottled)
		return ErrResendCooldown
	}
	identifier := f.model.State.(flows.RegisterVerification).Identifier
	f.model, _ = f.model.Next(flows.ResendStarted{})
	epoch := f.model.Epoch
	callCtx := f.beginLocked(ctx)
	f.mu.Unlock()
	f.notify()

	err := c.requestCode(callCtx, identifier, PurposeRegister)

	f.mu.Lock()
	if f.closed || f.model.Epoch != epoch {
		f.mu.Unlock()
		return f.abandoned(ctx, StepVerification, identifier, err)
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.ResendFinished{Epoch: epoch, Sent: err == nil})
	f.endLocked()
	f.mu.Unlock()

	f.applyEffectsArm(eff.ArmCooldown)
	if err != nil {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditResendFailed, step: StepVerification, identifier: identifier, err: err})
		c.reportUnmapped(ctx, f.logger, auditRecord{flow: f.name, step: StepVerification, identifier: identifier, err: err})
	} else {
		c.emitAudit(ctx, auditRecord{flow: f.name, eventType: AuditCodeSent, step: StepVerification, identifier: identifier, success: true})
	}
	f.notify()
	return err
}

// Back returns from verification to the form, prefilled with the username
// and email. The pending code and field errors are dropped and an
// outstanding call is abandoned. The cooldown keeps running.
func (f *RegistrationFlow) Back() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlowClosed
	}
	if f.model.Step() != StepVerification {
		f.mu.Unlock()
		return ErrStepMismatch
	}
	var eff flows.Effects
	f.model, eff = f.model.Next(flows.BackRequested{})
	if eff.CancelInFlight {
		f.endLocked()
	}
	form := f.model.State.(flows.RegisterForm)
	f.mu.Unlock()

	f.client.metricInc(MetricStepBack)
	f.client.emitAudit(context.Background(), auditRecord{flow: f.name, eventType: AuditStepEntered, step: StepForm, identifier: form.Email, success: true})
	f.notify()
	return nil
}

// ClearFieldError drops the error of one field, typically when the user edits it.
func (f *RegistrationFlow) ClearFieldError(field string) {
	f.mu.Lock()
	f.model, _ = f.model.Next(flows.FieldEdited{Field: field})
	f.mu.Unlock()
	f.notify()
}

func (f *RegistrationFlow) Step() Step {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Step()
}

func (f *RegistrationFlow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Submitting
}

// Errors returns a copy of the current field errors.
func (f *RegistrationFlow) Errors() FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FieldErrors(f.model.Errors).Clone()
}

// Session returns the verification session while on the verification step.
func (f *RegistrationFlow) Session() (VerificationSession, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return registrationSession(f.model)
}

// Registered returns the account created by the flow, once there is one.
func (f *RegistrationFlow) Registered() (UserRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch s := f.model.State.(type) {
	case flows.RegisterVerification:
		return userFromAccount(s.Account), true
	case flows.RegisterDone:
		return userFromAccount(s.Account), true
	default:
		return UserRecord{}, false
	}
}

// FormPrefill returns the username and email to show on the form step.
func (f *RegistrationFlow) FormPrefill() (username, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if form, ok := f.model.State.(flows.RegisterForm); ok {
		return form.Username, form.Email
	}
	return "", ""
}

// Snapshot returns a consistent view for rendering.
func (f *RegistrationFlow) Snapshot() Snapshot {
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
	snap.CanResend = snap.Step == StepVerification && !f.closed && !f.model.Submitting && remaining == 0
	if s, ok := registrationSession(f.model); ok {
		snap.Session = &s
	}
	if form, ok := f.model.State.(flows.RegisterForm); ok {
		snap.Prefill = form.Email
	}
	return snap
}

func (f *RegistrationFlow) checkLocked(step Step) error {
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

func (f *RegistrationFlow) rejected(ctx context.Context, v *violation) {
	f.client.metricInc(MetricLocalValidationRejected)
	f.client.emitAudit(ctx, auditRecord{
		flow:      f.name,
		eventType: AuditSubmitRejected,
		step:      f.Step(),
		metadata:  map[string]string{"field": v.field},
	})
	f.notify()
}

// failed applies a gateway failure of the call started at epoch.
func (f *RegistrationFlow) failed(ctx context.Context, epoch uint64, step Step, identifier string, err error) error {
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

func registrationSession(m flows.Registration) (VerificationSession, bool) {
	v, ok := m.State.(flows.RegisterVerification)
	if !ok {
		return VerificationSession{}, false
	}
	return VerificationSession{
		Identifier:  v.Identifier,
		Purpose:     PurposeRegister,
		PendingCode: v.PendingCode,
	}, true
}

func accountFromUser(u UserRecord) flows.Account {
	return flows.Account{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Privileged:    u.IsPrivileged,
		EmailVerified: u.EmailVerified,
	}
}

func userFromAccount(a flows.Account) UserRecord {
	return UserRecord{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		IsPrivileged:  a.Privileged,
		EmailVerified: a.EmailVerified,
	}
}
