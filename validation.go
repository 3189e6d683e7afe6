package authflow

import (
	"context"
	"strings"
	"unicode/utf8"
)

// violation is one local rule failure.
type violation struct {
	field string
	key   MessageKey
	args  []any
}

func (v *violation) fields(ctx context.Context, loc Localizer) FieldErrors {
	return FieldErrors{v.field: loc.Localize(ctx, v.key, v.args...)}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// checkSecretPair applies the match rule before the length rule.
func checkSecretPair(secret, confirm, secretField string, rules ValidationConfig) *violation {
	if secret != confirm {
		return &violation{field: FieldConfirmPassword, key: MsgPasswordMismatch}
	}
	if utf8.RuneCountInString(secret) < rules.MinPasswordLength {
		return &violation{field: secretField, key: MsgPasswordTooShort, args: []any{rules.MinPasswordLength}}
	}
	return nil
}

func validateRegistrationForm(form RegistrationForm, rules ValidationConfig) *violation {
	if blank(form.Username) {
		return &violation{field: FieldUsername, key: MsgUsernameRequired}
	}
	if blank(form.Email) {
		return &violation{field: FieldEmail, key: MsgEmailRequired}
	}
	return checkSecretPair(form.Password, form.ConfirmPassword, FieldPassword, rules)
}

func validateIdentifier(identifier string) *violation {
	if blank(identifier) {
		return &violation{field: FieldIdentifier, key: MsgIdentifierRequired}
	}
	return nil
}

func validateReset(s VerificationSession, rules ValidationConfig) *violation {
	if v := checkSecretPair(s.NewSecret, s.ConfirmSecret, FieldNewPassword, rules); v != nil {
		return v
	}
	if !s.CodeComplete(rules.CodeLength) {
		return &violation{field: FieldCode, key: MsgCodeLength, args: []any{rules.CodeLength}}
	}
	return nil
}

func validateLogin(form LoginForm, challengeRequired bool) *violation {
	if blank(form.Username) {
		return &violation{field: FieldUsername, key: MsgUsernameRequired}
	}
	if form.Password == "" {
		return &violation{field: FieldPassword, key: MsgPasswordRequired}
	}
	if challengeRequired && blank(form.ChallengeAnswer) {
		return &violation{field: FieldCaptcha, key: MsgChallengeRequired}
	}
	return nil
}
