package flows

// Step names the active state of a flow.
type Step string

const (
	StepForm         Step = "form"
	StepVerification Step = "verification"
	StepIdentify     Step = "identify"
	StepReset        Step = "reset"
	StepSuccess      Step = "success"
)

// Well-known field keys. Remote semantic failures are always reported on
// these keys, whatever field name the server used.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldIdentifier      = "identifier"
	FieldPassword        = "password"
	FieldNewPassword     = "newPassword"
	FieldConfirmPassword = "confirmPassword"
	FieldCode            = "code"
	FieldCaptcha         = "captcha"
)

// Fields maps a field key to a user-facing message.
type Fields map[string]string

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Fields) without(key string) Fields {
	if _, ok := f[key]; !ok {
		return f
	}
	out := make(Fields, len(f))
	for k, v := range f {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Effects lists work the caller must perform after a transition.
type Effects struct {
	ArmCooldown    bool
	CancelInFlight bool
}

// Account is the subset of a created account the registration flow branches on.
type Account struct {
	ID            string
	Username      string
	Email         string
	Privileged    bool
	EmailVerified bool
}

// NeedsVerification reports whether a freshly registered account must prove
// control of its email before the flow can finish.
func NeedsVerification(a Account) bool {
	return !a.Privileged && !a.EmailVerified
}

// Event is one input to a step machine.
type Event interface {
	flowEvent()
}

// FormSubmitted starts a registration form submit.
type FormSubmitted struct {
	Username string
	Email    string
}

// IdentifySubmitted starts a recovery identify submit.
type IdentifySubmitted struct {
	Identifier string
}

// SubmitStarted starts a submit on a code-entry step.
type SubmitStarted struct{}

// ResendStarted starts a resend on a code-entry step.
type ResendStarted struct{}

// Rejected records a local validation failure. No call was started.
type Rejected struct {
	Fields Fields
}

// Failed ends an outstanding call that did not succeed. Fields is empty for
// failures that are reported out of band.
type Failed struct {
	Epoch  uint64
	Fields Fields
}

// ResendFinished ends an outstanding resend.
type ResendFinished struct {
	Epoch uint64
	Sent  bool
}

// Registered ends a successful registration call (and the code send that may
// have followed it).
type Registered struct {
	Epoch   uint64
	Account Account
}

// CodeVerified ends a successful verification call.
type CodeVerified struct {
	Epoch uint64
}

// CodeSent ends a successful recovery identify call.
type CodeSent struct {
	Epoch uint64
}

// PasswordReset ends a successful reset call.
type PasswordReset struct {
	Epoch uint64
}

// CodeEdited replaces the pending code.
type CodeEdited struct {
	Code string
}

// NewSecretEdited replaces the new password candidate.
type NewSecretEdited struct {
	Secret string
}

// ConfirmSecretEdited replaces the confirmation candidate.
type ConfirmSecretEdited struct {
	Secret string
}

// FieldEdited clears the error attached to one field.
type FieldEdited struct {
	Field string
}

// BackRequested leaves a code-entry step for the step before it.
type BackRequested struct{}

func (FormSubmitted) flowEvent()       {}
func (IdentifySubmitted) flowEvent()   {}
func (SubmitStarted) flowEvent()       {}
func (ResendStarted) flowEvent()       {}
func (Rejected) flowEvent()            {}
func (Failed) flowEvent()              {}
func (ResendFinished) flowEvent()      {}
func (Registered) flowEvent()          {}
func (CodeVerified) flowEvent()        {}
func (CodeSent) flowEvent()            {}
func (PasswordReset) flowEvent()       {}
func (CodeEdited) flowEvent()          {}
func (NewSecretEdited) flowEvent()     {}
func (ConfirmSecretEdited) flowEvent() {}
func (FieldEdited) flowEvent()         {}
func (BackRequested) flowEvent()       {}

func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// CodeComplete reports whether code has exactly the required length.
func CodeComplete(code string, length int) bool {
	return len([]rune(code)) == length
}
