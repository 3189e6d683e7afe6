package authflow

import (
	"context"
	"errors"
	"testing"
	"time"
)

func verifyingFlow(t *testing.T, env *testEnv) *RegistrationFlow {
	t.Helper()
	f := env.client.NewRegistrationFlow()
	if err := f.SubmitForm(context.Background(), validForm()); err != nil {
		t.Fatalf("SubmitForm: %v", err)
	}
	if f.Step() != StepVerification {
		t.Fatalf("expected verification step, got %s", f.Step())
	}
	return f
}

func TestRegistrationFirstUserGoesStraightToSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.user = UserRecord{ID: "u1", Username: "admin", Email: "a@b.com", IsPrivileged: true}

	f := env.client.NewRegistrationFlow()
	err := f.SubmitForm(context.Background(), RegistrationForm{
		Username: "admin", Email: "a@b.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	if err != nil {
		t.Fatalf("SubmitForm: %v", err)
	}
	if f.Step() != StepSuccess {
		t.Fatalf("expected success, got %s", f.Step())
	}
	if n := env.gw.count("request_code"); n != 0 {
		t.Fatalf("expected no code request, got %d", n)
	}
	if f.Cooldown() != 0 {
		t.Fatalf("cooldown must not run on the fast path, got %d", f.Cooldown())
	}
	user, ok := f.Registered()
	if !ok || !user.IsPrivileged {
		t.Fatalf("expected privileged user, got %+v %v", user, ok)
	}
	if got := env.client.MetricsSnapshot().Counters[MetricRegisterFastPath]; got != 1 {
		t.Fatalf("expected fast path metric 1, got %d", got)
	}
}

func TestRegistrationVerifiedEmailSkipsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.user.EmailVerified = true

	f := env.client.NewRegistrationFlow()
	if err := f.SubmitForm(context.Background(), validForm()); err != nil {
		t.Fatalf("SubmitForm: %v", err)
	}
	if f.Step() != StepSuccess || env.gw.count("request_code") != 0 {
		t.Fatalf("expected direct success, step=%s sends=%d", f.Step(), env.gw.count("request_code"))
	}
}

func TestRegistrationOrdinaryUserVerifies(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.verifyErr = &GatewayError{Kind: FailureCodeInvalid, Code: 5005, Message: "bad code"}

	f := verifyingFlow(t, env)
	if f.Cooldown() != 60 {
		t.Fatalf("expected cooldown 60, got %d", f.Cooldown())
	}
	if len(env.gw.sends) != 1 || env.gw.sends[0] != (sendCall{identifier: "a@b.com", purpose: PurposeRegister}) {
		t.Fatalf("unexpected sends %+v", env.gw.sends)
	}

	if err := f.SetCode("123456"); err != nil {
		t.Fatalf("SetCode: %v", err)
	}
	err := f.SubmitVerification(context.Background())
	if !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}
	if f.Step() != StepVerification || f.Submitting() {
		t.Fatalf("expected idle verification, got %s/%v", f.Step(), f.Submitting())
	}
	errs := f.Errors()
	if len(errs) != 1 || errs.Get(FieldCode) != "Invalid verification code" {
		t.Fatalf("expected only the code error, got %v", errs)
	}
	session, ok := f.Session()
	if !ok || session.PendingCode != "123456" {
		t.Fatalf("pending code must be untouched, got %+v", session)
	}
	want := verifyCall{identifier: "a@b.com", code: "123456", purpose: PurposeRegister}
	if len(env.gw.verifies) != 1 || env.gw.verifies[0] != want {
		t.Fatalf("unexpected verify calls %+v", env.gw.verifies)
	}

	env.gw.verifyErr = nil
	if err := f.SubmitVerification(context.Background()); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if f.Step() != StepSuccess {
		t.Fatalf("expected success, got %s", f.Step())
	}
	if _, ok := f.Session(); ok {
		t.Fatal("session must end on success")
	}
}

func TestRegistrationSemanticFailureIgnoresPayloadFields(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.verifyErr = &GatewayError{
		Kind:   FailureCodeExpired,
		Fields: map[string]string{"verification_code": "gone"},
	}

	f := verifyingFlow(t, env)
	_ = f.SetCode("654321")
	_ = f.SubmitVerification(context.Background())

	errs := f.Errors()
	if errs.Has("verification_code") || !errs.Has(FieldCode) || len(errs) != 1 {
		t.Fatalf("expected only the fixed code key, got %v", errs)
	}
}

func TestRegistrationShortCodeNeverCallsGateway(t *testing.T) {
	env := newTestEnv(t, nil)
	f := verifyingFlow(t, env)

	for _, code := range []string{"", "1", "12", "123", "1234", "12345"} {
		_ = f.SetCode(code)
		if err := f.SubmitVerification(context.Background()); !errors.Is(err, ErrSubmitDisabled) {
			t.Fatalf("code %q: expected ErrSubmitDisabled, got %v", code, err)
		}
		if !f.Errors().Empty() {
			t.Fatalf("code %q: disabled submit must not set errors, got %v", code, f.Errors())
		}
	}
	if n := env.gw.count("verify_code"); n != 0 {
		t.Fatalf("expected no verify calls, got %d", n)
	}
}

func TestRegistrationCodeIsTruncated(t *testing.T) {
	env := newTestEnv(t, nil)
	f := verifyingFlow(t, env)

	_ = f.SetCode("12345678")
	s, _ := f.Session()
	if s.PendingCode != "123456" {
		t.Fatalf("expected truncation to 6, got %q", s.PendingCode)
	}
	if !f.Snapshot().CanSubmit {
		t.Fatal("expected submit enabled")
	}
}

func TestRegistrationLocalValidationOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name  string
		form  RegistrationForm
		field string
	}{
		{"username", RegistrationForm{Email: "a@b.com", Password: "abc", ConfirmPassword: "abcd"}, FieldUsername},
		{"email", RegistrationForm{Username: "alice", Email: "  ", Password: "abc", ConfirmPassword: "abcd"}, FieldEmail},
		{"mismatch before length", RegistrationForm{Username: "alice", Email: "a@b.com", Password: "abc", ConfirmPassword: "abcd"}, FieldConfirmPassword},
		{"length", RegistrationForm{Username: "alice", Email: "a@b.com", Password: "abc", ConfirmPassword: "abc"}, FieldPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := env.client.NewRegistrationFlow()
			err := f.SubmitForm(context.Background(), tt.form)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			errs := f.Errors()
			if len(errs) != 1 || !errs.Has(tt.field) {
				t.Fatalf("expected single error on %s, got %v", tt.field, errs)
			}
			if f.Step() != StepForm || f.Submitting() {
				t.Fatalf("expected idle form, got %s/%v", f.Step(), f.Submitting())
			}
		})
	}
	if n := env.gw.count("register"); n != 0 {
		t.Fatalf("local failures must not call the gateway, got %d", n)
	}
}

func TestRegistrationPasswordTooShortMessage(t *testing.T) {
	env := newTestEnv(t, nil)
	f := env.client.NewRegistrationFlow()

	form := validForm()
	form.Password, form.ConfirmPassword = "abc", "abc"
	_ = f.SubmitForm(context.Background(), form)

	if got := f.Errors().Get(FieldPassword); got != "Password must be at least 6 characters" {
		t.Fatalf("unexpected message %q", got)
	}

	zh := WithLocale(context.Background(), "zh-CN")
	_ = f.SubmitForm(zh, form)
	if got := f.Errors().Get(FieldPassword); got != "密码长度至少为 6 个字符" {
		t.Fatalf("unexpected localized message %q", got)
	}
}

func TestRegistrationRemoteValidationCopiesFields(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.registerErr = &GatewayError{
		Kind:   FailureValidation,
		Code:   1001,
		Fields: map[string]string{"email": "already registered", "username": "too plain"},
	}

	f := env.client.NewRegistrationFlow()
	err := f.SubmitForm(context.Background(), validForm())
	if !errors.Is(err, ErrRemoteValidation) {
		t.Fatalf("expected ErrRemoteValidation, got %v", err)
	}
	errs := f.Errors()
	if errs.Get("email") != "already registered" || errs.Get("username") != "too plain" || len(errs) != 2 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if f.Step() != StepForm || f.Submitting() {
		t.Fatalf("expected idle form, got %s/%v", f.Step(), f.Submitting())
	}

	// The next submit starts from a clean map.
	env.gw.registerErr = nil
	if err := f.SubmitForm(context.Background(), validForm()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !f.Errors().Empty() {
		t.Fatalf("expected errors cleared, got %v", f.Errors())
	}
}

func TestRegistrationTransportFailureGoesToSideChannel(t *testing.T) {
	sink := NewChannelSink(32)
	gw := newFakeGateway()
	gw.registerErr = &GatewayError{Kind: FailureTransport, Err: errors.New("connection refused")}
	cfg := defaultConfig()
	cfg.Audit.Enabled = true
	client, err := New().WithConfig(cfg).WithGateway(gw).WithScheduler(&manualScheduler{}).WithAuditSink(sink).WithMetricsEnabled(true).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	f := client.NewRegistrationFlow()
	err = f.SubmitForm(context.Background(), validForm())
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
	if !f.Errors().Empty() || f.Step() != StepForm || f.Submitting() {
		t.Fatalf("transport failure must not touch fields: %v %s %v", f.Errors(), f.Step(), f.Submitting())
	}
	if got := client.MetricsSnapshot().Counters[MetricUnmappedFailure]; got != 1 {
		t.Fatalf("expected one unmapped failure, got %d", got)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sink.Events():
			if ev.EventType != AuditUnmappedFailure {
				continue
			}
			if ev.Kind != "transport" || ev.Flow != "registration" || ev.Identifier != "a***@b.com" {
				t.Fatalf("unexpected event %+v", ev)
			}
			if ev.ID == "" || ev.Timestamp.IsZero() {
				t.Fatalf("dispatcher must stamp id and time: %+v", ev)
			}
			return
		case <-deadline:
			t.Fatal("expected an unmapped failure event")
		}
	}
}

func TestRegistrationSendFailureStillEntersVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.sendErrs = []error{&GatewayError{Kind: FailureDelivery, Code: 5007}}

	f := verifyingFlow(t, env)
	if f.Cooldown() != 60 {
		t.Fatalf("cooldown is armed whatever the send outcome, got %d", f.Cooldown())
	}
	if !f.Errors().Empty() {
		t.Fatalf("send failure must not set field errors, got %v", f.Errors())
	}
}

func TestRegistrationResendArmsOnlyOnSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	f := verifyingFlow(t, env)

	if err := f.Resend(context.Background()); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("expected ErrResendCooldown, got %v", err)
	}
	if n := env.gw.count("request_code"); n != 1 {
		t.Fatalf("throttled resend must not call the gateway, got %d calls", n)
	}

	env.clock.Advance(60 * time.Second)
	if f.Cooldown() != 0 || !f.Snapshot().CanResend {
		t.Fatalf("expected resend available, remaining=%d", f.Cooldown())
	}

	env.gw.sendErrs = []error{&GatewayError{Kind: FailureRateLimited, Code: 5008}}
	err := f.Resend(context.Background())
	if !errors.Is(err, ErrRemoteRateLimited) {
		t.Fatalf("expected ErrRemoteRateLimited, got %v", err)
	}
	if f.Cooldown() != 0 {
		t.Fatalf("failed resend must leave the cooldown alone, got %d", f.Cooldown())
	}
	if !f.Errors().Empty() || f.Submitting() || f.Step() != StepVerification {
		t.Fatalf("failed resend must be invisible: %v %v %s", f.Errors(), f.Submitting(), f.Step())
	}

	if err := f.Resend(context.Background()); err != nil {
		t.Fatalf("resend: %v", err)
	}
	if f.Cooldown() != 60 {
		t.Fatalf("expected cooldown 60 after resend, got %d", f.Cooldown())
	}
}

func TestRegistrationBackKeepsIdentifierAndClearsCode(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.verifyErr = &GatewayError{Kind: FailureCodeInvalid}
	f := verifyingFlow(t, env)
	_ = f.SetCode("123456")
	_ = f.SubmitVerification(context.Background())

	if err := f.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}
	snap := f.Snapshot()
	if snap.Step != StepForm || snap.Session != nil || !snap.Errors.Empty() {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	username, email := f.FormPrefill()
	if username != "alice" || email != "a@b.com" || snap.Prefill != "a@b.com" {
		t.Fatalf("expected prefill, got %q %q %q", username, email, snap.Prefill)
	}
	if err := f.Back(); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("back on the form must be refused, got %v", err)
	}

	// Re-entering verification starts with an empty code.
	if err := f.SubmitForm(context.Background(), validForm()); err != nil {
		t.Fatalf("SubmitForm: %v", err)
	}
	s, _ := f.Session()
	if s.PendingCode != "" {
		t.Fatalf("expected empty code, got %q", s.PendingCode)
	}
}

func TestRegistrationBackAbandonsInFlightVerify(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gw.verifyErr = &GatewayError{Kind: FailureCodeInvalid}
	f := verifyingFlow(t, env)
	_ = f.SetCode("123456")

	release := env.gw.hold("verify_code")
	defer release()

	done := make(chan error, 1)
	go func() { done <- f.SubmitVerification(context.Background()) }()
	waitStarted(t, env.gw, "verify_code")

	if !f.Submitting() {
		t.Fatal("expected submitting while the call is outstanding")
	}
	if err := f.SubmitVerification(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected ErrSubmitInProgress, got %v", err)
	}

	if err := f.Back(); err != nil {
		t.Fatalf("Back: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrStepAbandoned) {
			t.Fatalf("expected ErrStepAbandoned, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned call did not return")
	}

	if f.Step() != StepForm || !f.Errors().Empty() || f.Submitting() {
		t.Fatalf("late response leaked into the form: %s %v %v", f.Step(), f.Errors(), f.Submitting())
	}
	if got := env.client.MetricsSnapshot().Counters[MetricStaleResponseDropped]; got != 1 {
		t.Fatalf("expected one dropped response, got %d", got)
	}
}

func TestRegistrationActionsOnWrongStep(t *testing.T) {
	env := newTestEnv(t, nil)
	f := env.client.NewRegistrationFlow()

	if err := f.SubmitVerification(context.Background()); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("expected ErrStepMismatch, got %v", err)
	}
	if err := f.Resend(context.Background()); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("expected ErrStepMismatch, got %v", err)
	}
	if err := f.SetCode("1"); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("expected ErrStepMismatch, got %v", err)
	}
}

func TestRegistrationCloseStopsEverything(t *testing.T) {
	env := newTestEnv(t, nil)
	f := verifyingFlow(t, env)

	f.Close()
	if f.Cooldown() != 0 || env.clock.Active() != 0 {
		t.Fatalf("close must cancel the cooldown: remaining=%d scheduled=%d", f.Cooldown(), env.clock.Active())
	}
	if err := f.Resend(context.Background()); !errors.Is(err, ErrFlowClosed) {
		t.Fatalf("expected ErrFlowClosed, got %v", err)
	}
}

func TestRegistrationSnapshotsFollowTicks(t *testing.T) {
	env := newTestEnv(t, nil)
	f := verifyingFlow(t, env)

	var last Snapshot
	calls := 0
	f.OnChange(func(s Snapshot) {
		calls++
		last = s
	})
	env.clock.Advance(3 * time.Second)

	if calls != 3 || last.CooldownRemaining != 57 || last.Step != StepVerification {
		t.Fatalf("unexpected snapshots: calls=%d last=%+v", calls, last)
	}
}

func TestRegistrationErrorsAreCopies(t *testing.T) {
	env := newTestEnv(t, nil)
	f := env.client.NewRegistrationFlow()
	_ = f.SubmitForm(context.Background(), RegistrationForm{})

	errs := f.Errors()
	errs.Set("injected", "x")
	if f.Errors().Has("injected") {
		t.Fatal("Errors must return a copy")
	}

	f.ClearFieldError(FieldUsername)
	if !f.Errors().Empty() {
		t.Fatalf("expected cleared, got %v", f.Errors())
	}
}
