package flows

import "testing"

func resettingRecovery(t *testing.T, identifier string) Recovery {
	t.Helper()

	m, _ := NewRecovery(6).Next(IdentifySubmitted{Identifier: identifier})
	m, eff := m.Next(CodeSent{Epoch: m.Epoch})
	if m.Step() != StepReset {
		t.Fatalf("expected reset step, got %s", m.Step())
	}
	if !eff.ArmCooldown {
		t.Fatal("expected cooldown armed after code sent")
	}
	return m
}

func TestRecoveryIdentifyRoundTrip(t *testing.T) {
	m := resettingRecovery(t, "a@b.com")
	if got := m.State.(RecoverReset).Identifier; got != "a@b.com" {
		t.Fatalf("identifier not preserved: %q", got)
	}

	m, _ = m.Next(CodeEdited{Code: "12"})
	m, _ = m.Next(NewSecretEdited{Secret: "secret1"})
	m, _ = m.Next(Rejected{Fields: Fields{FieldCode: "short"}})

	m, _ = m.Next(BackRequested{})
	id, ok := m.State.(RecoverIdentify)
	if !ok || id.Identifier != "a@b.com" {
		t.Fatalf("expected identify with prefill, got %#v", m.State)
	}
	if len(m.Errors) != 0 {
		t.Fatalf("expected errors cleared, got %v", m.Errors)
	}

	// Re-entering reset starts from empty input.
	m, _ = m.Next(IdentifySubmitted{Identifier: "a@b.com"})
	m, _ = m.Next(CodeSent{Epoch: m.Epoch})
	r := m.State.(RecoverReset)
	if r.PendingCode != "" || r.NewSecret != "" || r.ConfirmSecret != "" {
		t.Fatalf("reset step must be entered clean, got %+v", r)
	}
}

func TestRecoveryIdentifyFailureStays(t *testing.T) {
	m, _ := NewRecovery(6).Next(IdentifySubmitted{Identifier: "nobody"})

	m, _ = m.Next(Failed{Epoch: m.Epoch, Fields: Fields{FieldEmail: "invalid email"}})
	if m.Step() != StepIdentify || m.Submitting {
		t.Fatalf("expected idle identify, got %s/%v", m.Step(), m.Submitting)
	}
	if m.Errors[FieldEmail] != "invalid email" {
		t.Fatalf("unexpected errors %v", m.Errors)
	}
}

func TestRecoveryResetSuccessDropsSecrets(t *testing.T) {
	m := resettingRecovery(t, "a@b.com")
	m, _ = m.Next(CodeEdited{Code: "123456"})
	m, _ = m.Next(NewSecretEdited{Secret: "secret1"})
	m, _ = m.Next(ConfirmSecretEdited{Secret: "secret1"})
	m, _ = m.Next(SubmitStarted{})

	m, _ = m.Next(PasswordReset{Epoch: m.Epoch})
	done, ok := m.State.(RecoverDone)
	if !ok || done.Identifier != "a@b.com" {
		t.Fatalf("unexpected state %#v", m.State)
	}
}

func TestRecoverySecretEditsClearOwnField(t *testing.T) {
	m := resettingRecovery(t, "a@b.com")
	m, _ = m.Next(Rejected{Fields: Fields{FieldConfirmPassword: "mismatch"}})

	m, _ = m.Next(NewSecretEdited{Secret: "x"})
	if _, ok := m.Errors[FieldConfirmPassword]; !ok {
		t.Fatal("editing the new password must not clear the confirm error")
	}
	m, _ = m.Next(ConfirmSecretEdited{Secret: "x"})
	if _, ok := m.Errors[FieldConfirmPassword]; ok {
		t.Fatal("editing the confirmation must clear its error")
	}
}

func TestRecoveryBackDuringIdentifyIsNoop(t *testing.T) {
	m, _ := NewRecovery(6).Next(IdentifySubmitted{Identifier: "a@b.com"})

	next, eff := m.Next(BackRequested{})
	if eff.CancelInFlight || next.Epoch != m.Epoch || !next.Submitting {
		t.Fatalf("back on the first step must be ignored: %+v %+v", next, eff)
	}
}

func TestRecoveryStaleEpochIgnored(t *testing.T) {
	m := resettingRecovery(t, "a@b.com")
	m, _ = m.Next(ResendStarted{})
	stale := m.Epoch

	m, _ = m.Next(BackRequested{})
	m, _ = m.Next(IdentifySubmitted{Identifier: "a@b.com"})

	next, eff := m.Next(ResendFinished{Epoch: stale, Sent: true})
	if eff.ArmCooldown || !next.Submitting {
		t.Fatalf("stale resend result must not touch the new call: %+v %+v", next, eff)
	}
}
