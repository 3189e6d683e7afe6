package authflow

import (
	"fmt"
	"unicode/utf8"
)

// VerificationSession is the code-entry state of a flow. It exists only
// while a registration is on the verification step or a recovery is on the
// reset step.
type VerificationSession struct {
	Identifier  string
	Purpose     Purpose
	PendingCode string
	// NewSecret and ConfirmSecret are only used by password recovery.
	NewSecret     string
	ConfirmSecret string
}

// CodeComplete reports whether PendingCode has exactly length characters.
func (s VerificationSession) CodeComplete(length int) bool {
	return utf8.RuneCountInString(s.PendingCode) == length
}

// String never prints the code or the secrets.
func (s VerificationSession) String() string {
	return fmt.Sprintf("VerificationSession{Identifier:%q Purpose:%s PendingCode:%d chars}",
		s.Identifier, s.Purpose, utf8.RuneCountInString(s.PendingCode))
}

// GoString keeps %#v from leaking secrets too.
func (s VerificationSession) GoString() string {
	return s.String()
}
