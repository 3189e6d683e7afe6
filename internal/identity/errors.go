package identity

import (
	"errors"
	"fmt"
	"time"
)

// Code is the machine-readable result code carried in every response
// envelope. Zero is success.
type Code int

const (
	CodeSuccess Code = 0

	CodeUnknownError    Code = 1000
	CodeValidationError Code = 1001

	CodeUnauthorized       Code = 2000
	CodeInvalidToken       Code = 2001
	CodeTokenExpired       Code = 2002
	CodeInvalidCredentials Code = 2003
	CodeInactiveUser       Code = 2004

	CodeNotFound     Code = 4000
	CodeUserNotFound Code = 4001

	CodeRegistrationDisabled Code = 5000
	CodeUsernameExists       Code = 5002
	CodeEmailExists          Code = 5003
	CodeEmailNotVerified     Code = 5004
	CodeVerificationInvalid  Code = 5005
	CodeVerificationExpired  Code = 5006
	CodeEmailSendFailed      Code = 5007
	CodeEmailSendTooFrequent Code = 5008
	CodeEmailAlreadyVerified Code = 5211

	CodeAccountLocked        Code = 5300
	CodeTooManyLoginAttempts Code = 5301
	CodeCaptchaRequired      Code = 5302
	CodeCaptchaInvalid       Code = 5303

	CodeRateLimited Code = 5400
)

// ErrUnavailable wraps backing store failures. It is reported as
// CodeUnknownError.
var ErrUnavailable = errors.New("identity backend unavailable")

// Error is a business failure of the identity service.
//
// Key names the response message. Fields maps a request field to a message
// key and is only set for CodeValidationError and the uniqueness codes.
type Error struct {
	Code       Code
	Key        MessageKey
	Args       []any
	Fields     map[string]FieldMessage
	RetryAfter time.Duration
	Err        error
}

// FieldMessage is a localizable message attached to one request field.
type FieldMessage struct {
	Key  MessageKey
	Args []any
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := Localize(DefaultLanguage, e.Key, e.Args...)
	if e.Err != nil {
		return fmt.Sprintf("identity %d: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("identity %d: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches two *Error values by code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil {
		return false
	}
	return e.Code == other.Code
}

func newError(code Code, key MessageKey, args ...any) *Error {
	return &Error{Code: code, Key: key, Args: args}
}

func fieldError(code Code, key MessageKey, field string, fieldKey MessageKey, args ...any) *Error {
	return &Error{
		Code:   code,
		Key:    key,
		Fields: map[string]FieldMessage{field: {Key: fieldKey, Args: args}},
	}
}

func validationError(field string, key MessageKey, args ...any) *Error {
	return fieldError(CodeValidationError, MsgValidationError, field, key, args...)
}

// NewValidationError returns a CodeValidationError carrying fields.
func NewValidationError(fields map[string]FieldMessage) *Error {
	return &Error{Code: CodeValidationError, Key: MsgValidationError, Fields: fields}
}

// NewAuthError returns an authentication failure with code, which must be
// one of CodeUnauthorized, CodeInvalidToken or CodeTokenExpired.
func NewAuthError(code Code) *Error {
	switch code {
	case CodeInvalidToken:
		return newError(code, MsgInvalidToken)
	case CodeTokenExpired:
		return newError(code, MsgTokenExpired)
	default:
		return newError(CodeUnauthorized, MsgUnauthorized)
	}
}

func unavailable(err error) *Error {
	return &Error{Code: CodeUnknownError, Key: MsgUnknownError, Err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
}

// CodeOf returns the response code of err: CodeSuccess for nil and
// CodeUnknownError for anything that is not an *Error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknownError
}
