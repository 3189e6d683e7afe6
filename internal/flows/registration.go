package flows

// RegistrationState is one step of the registration flow. Each variant carries
// only the data valid in that step.
type RegistrationState interface {
	Step() Step
	registrationState()
}

// RegisterForm is the entry step. Username and Email are kept as a prefill
// for the form; secrets are never retained.
type RegisterForm struct {
	Username string
	Email    string
}

// RegisterVerification waits for the emailed code.
type RegisterVerification struct {
	Identifier  string
	Username    string
	PendingCode string
	Account     Account
}

// RegisterDone is terminal.
type RegisterDone struct {
	Identifier string
	Account    Account
	// Verified is set when the flow went through code verification.
	Verified bool
}

func (RegisterForm) Step() Step         { return StepForm }
func (RegisterVerification) Step() Step { return StepVerification }
func (RegisterDone) Step() Step         { return StepSuccess }

func (RegisterForm) registrationState()         {}
func (RegisterVerification) registrationState() {}
func (RegisterDone) registrationState()         {}

// Registration is the registration step machine.
type Registration struct {
	State      RegistrationState
	Errors     Fields
	Submitting bool
	Epoch      uint64
	CodeLength int
}

// NewRegistration returns a machine on the form step.
func NewRegistration(codeLength int) Registration {
	return Registration{
		State:      RegisterForm{},
		Errors:     Fields{},
		CodeLength: codeLength,
	}
}

func (m Registration) Step() Step {
	if m.State == nil {
		return StepForm
	}
	return m.State.Step()
}

// CanSubmit reports whether the submit action of the active step is enabled.
func (m Registration) CanSubmit() bool {
	if m.Submitting {
		return false
	}
	switch s := m.State.(type) {
	case RegisterForm:
		return true
	case RegisterVerification:
		return CodeComplete(s.PendingCode, m.CodeLength)
	default:
		return false
	}
}

// Next applies ev and returns the resulting machine.
func (m Registration) Next(ev Event) (Registration, Effects) {
	var eff Effects
	if m.State == nil {
		m.State = RegisterForm{}
	}

	switch e := ev.(type) {
	case FormSubmitted:
		if _, ok := m.State.(RegisterForm); !ok || m.Submitting {
			return m, eff
		}
		m.State = RegisterForm{Username: e.Username, Email: e.Email}
		m.Errors = Fields{}
		m.Submitting = true

	case SubmitStarted:
		if !m.CanSubmit() {
			return m, eff
		}
		if _, ok := m.State.(RegisterVerification); !ok {
			return m, eff
		}
		m.Errors = Fields{}
		m.Submitting = true

	case ResendStarted:
		if _, ok := m.State.(RegisterVerification); !ok || m.Submitting {
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

	case Registered:
		form, ok := m.State.(RegisterForm)
		if !ok || !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		m.Errors = Fields{}
		identifier := form.Email
		if e.Account.Email != "" {
			identifier = e.Account.Email
		}
		if !NeedsVerification(e.Account) {
			m.State = RegisterDone{Identifier: identifier, Account: e.Account}
			return m, eff
		}
		m.State = RegisterVerification{
			Identifier: identifier,
			Username:   form.Username,
			Account:    e.Account,
		}
		// Armed whether or not the send succeeded; the user waits out the
		// window before asking again.
		eff.ArmCooldown = true

	case CodeVerified:
		v, ok := m.State.(RegisterVerification)
		if !ok || !m.current(e.Epoch) {
			return m, eff
		}
		m.Submitting = false
		m.Errors = Fields{}
		m.State = RegisterDone{Identifier: v.Identifier, Account: v.Account, Verified: true}

	case CodeEdited:
		v, ok := m.State.(RegisterVerification)
		if !ok {
			return m, eff
		}
		v.PendingCode = truncate(e.Code, m.CodeLength)
		m.State = v
		m.Errors = m.Errors.without(FieldCode)

	case FieldEdited:
		m.Errors = m.Errors.without(e.Field)

	case BackRequested:
		v, ok := m.State.(RegisterVerification)
		if !ok {
			return m, eff
		}
		eff.CancelInFlight = m.Submitting
		m.State = RegisterForm{Username: v.Username, Email: v.Identifier}
		m.Errors = Fields{}
		m.Submitting = false
		m.Epoch++
	}

	return m, eff
}

func (m Registration) current(epoch uint64) bool {
	return m.Submitting && epoch == m.Epoch
}
