package flows

// RecoveryState is one step of the password recovery flow.
type RecoveryState interface {
	Step() Step
	recoveryState()
}

// RecoverIdentify asks for the account email. Identifier is the prefill.
type RecoverIdentify struct {
	Identifier string
}

// RecoverReset collects the emailed code and the new password.
type RecoverReset struct {
	Identifier    string
	PendingCode   string
	NewSecret     string
	ConfirmSecret string
}

// RecoverDone is terminal. Secrets do not survive into it.
type RecoverDone struct {
	Identifier string
}

func (RecoverIdentify) Step() Step { return StepIdentify }
func (RecoverReset) Step() Step    { return StepReset }
func (RecoverDone) Step() Step     { return StepSuccess }

func (RecoverIdentify) recoveryState() {}
func (RecoverReset) recoveryState()    {}
func (RecoverDone) recoveryState()     {}

// Recovery is the password recovery step machine.
type Recovery struct {
	State      RecoveryState
	Errors     Fields
	Submitting bool
	Epoch      uint64
	CodeLength int
}

// NewRecovery returns a machine on the identify step.
func NewRecovery(codeLength int) Recovery {
	return Recovery{
		State:      RecoverIdentify{},
		Errors:     Fields{},
		CodeLength: codeLength,
	}
}

func (m Recovery) Step() Step {
	if m.State == nil {
		return StepIdentify
	}
	return m.State.Step()
}

// CanSubmit reports whether the submit action of the active step is enabled.
// Reset-step input is checked by the caller so that a failure can be reported
// on its field.
func (m Recovery) CanSubmit() bool {
	if m.Submitting {
		return false
	}
	switch m.State.(type) {
	case RecoverIdentify, RecoverReset:
		return true
	default:
		return false
	}
}

// Next applies ev and returns the resulting machine.
func (m Recovery) Next(ev Event) (Recovery, Effects) {
	var eff Effects
	if m.State == nil {
		m.State = RecoverIdentify{}
	}

	switch e := ev.(type) {
	case IdentifySubmitted:
		if _, ok := m.State.(RecoverIdentify); !ok || m.Submitting {
			return m, eff
		}
		m.State = RecoverIdentify{Identifier: e.Identifier}
		m.Errors = Fields{}
		m.Submitting = true

	case SubmitStarted:
		if _, ok := m.State.(RecoverReset); !ok || m.Submitting {
			return m, eff
		}
		m.Errors = Fields{}
		m.Submitting = true

	case ResendStarted:
		if _, ok := m.State.(RecoverReset); !ok || m.Submitting {
			return m, eff
		}
		m.Submitting = true

	case Rejected:
		if m.Submitting || m.Step() == StepSuccess {
			return m, eff
		}
		m.Errors = e.Fields.clone()

	case Failed:
		if !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		m.Errors = e.Fields.clone()

	case ResendFinished:
		if !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		eff.ArmCooldown = e.Sent

	case CodeSent:
		id, ok := m.State.(RecoverIdentify)
		if !ok || !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		m.Errors = Fields{}
		m.State = RecoverReset{Identifier: id.Identifier}
		eff.ArmCooldown = true

	case PasswordReset:
		r, ok := m.State.(RecoverReset)
		if !ok || !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		m.Errors = Fields{}
		m.State = RecoverDone{Identifier: r.Identifier}

	case CodeEdited:
		r, ok := m.State.(RecoverReset)
		if !ok {
			return m, eff
		}
		r.PendingCode = truncate(e.Code, m.CodeLength)
		m.State = r
		m.Errors = m.Errors.without(FieldCode)

	case NewSecretEdited:
		r, ok := m.State.(RecoverReset)
		if !ok {
			return m, eff
		}
		r.NewSecret = e.Secret
		m.State = r
		m.Errors = m.Errors.without(FieldNewPassword)

	case ConfirmSecretEdited:
		r, ok := m.State.(RecoverReset)
		if !ok {
			return m, eff
		}
		r.ConfirmSecret = e.Secret
		m.State = r
		m.Errors = m.Errors.without(FieldConfirmPassword)

	case FieldEdited:
		m.Errors = m.Errors.without(e.Field)

	case BackRequested:
		r, ok := m.State.(RecoverReset)
		if !ok {
			return m, eff
		}
		eff.CancelInFlight = m.Submitting
		m.State = RecoverIdentify{Identifier: r.Identifier}
		m.Errors = Fields{}
		m.Submitting = false
		m.Epoch++
	}

	return m, eff
}

func (m Recovery) current(epoch uint64) bool {
	return m.Submitting && epoch == m.Epoch
}
