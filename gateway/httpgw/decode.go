package httpgw

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrEthical07/authflow"
)

// Identity service response codes.
const (
	codeSuccess              = 0
	codeValidationError      = 1001
	codeInvalidCredentials   = 2003
	codeUsernameExists       = 5002
	codeEmailExists          = 5003
	codeEmailNotVerified     = 5004
	codeVerificationInvalid  = 5005
	codeVerificationExpired  = 5006
	codeEmailSendFailed      = 5007
	codeEmailSendTooFrequent = 5008
	codeAccountLocked        = 5300
	codeTooManyLoginAttempts = 5301
	codeCaptchaRequired      = 5302
	codeCaptchaInvalid       = 5303
	codeRateLimited          = 5400
)

type envelope struct {
	Code   *int            `json:"code"`
	Data   json.RawMessage `json:"data"`
	Msg    string          `json:"msg"`
	Detail json.RawMessage `json:"detail"`
}

type errorData struct {
	Errors map[string]string `json:"errors"`
}

// fastAPIDetail is one entry of a FastAPI request validation error.
type fastAPIDetail struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

func decodeResponse(status int, body []byte, emailIsIdent bool, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return statusFailure(status, strings.TrimSpace(string(body)))
	}

	if env.Code == nil {
		if len(env.Detail) > 0 {
			return detailFailure(status, env.Detail, emailIsIdent)
		}
		if status >= 200 && status < 300 {
			return decodeData(env.Data, out)
		}
		return statusFailure(status, "")
	}

	if *env.Code == codeSuccess {
		return decodeData(env.Data, out)
	}
	return codeFailure(*env.Code, env.Msg, env.Data, emailIsIdent)
}

func decodeData(data json.RawMessage, out any) error {
	if out == nil || len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &authflow.GatewayError{Kind: authflow.FailureUnknown, Message: "malformed response data", Err: err}
	}
	return nil
}

func codeFailure(code int, msg string, data json.RawMessage, emailIsIdent bool) error {
	gwErr := &authflow.GatewayError{Code: code, Message: msg}

	var ed errorData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &ed)
	}
	fields := renameFields(ed.Errors, emailIsIdent)

	switch code {
	case codeValidationError:
		gwErr.Kind = authflow.FailureValidation
		gwErr.Fields = fields
	case codeUsernameExists:
		gwErr.Kind = authflow.FailureValidation
		gwErr.Fields = orField(fields, authflow.FieldUsername, msg)
	case codeEmailExists:
		gwErr.Kind = authflow.FailureValidation
		gwErr.Fields = orField(fields, authflow.FieldEmail, msg)
	case codeVerificationInvalid:
		gwErr.Kind = authflow.FailureCodeInvalid
	case codeVerificationExpired:
		gwErr.Kind = authflow.FailureCodeExpired
	case codeCaptchaRequired:
		gwErr.Kind = authflow.FailureChallengeRequired
	case codeCaptchaInvalid:
		gwErr.Kind = authflow.FailureChallengeInvalid
	case codeEmailSendTooFrequent, codeTooManyLoginAttempts, codeRateLimited:
		gwErr.Kind = authflow.FailureRateLimited
	case codeInvalidCredentials:
		gwErr.Kind = authflow.FailureCredentials
	case codeAccountLocked:
		gwErr.Kind = authflow.FailureLocked
	case codeEmailNotVerified:
		gwErr.Kind = authflow.FailureEmailNotVerified
	case codeEmailSendFailed:
		gwErr.Kind = authflow.FailureDelivery
	default:
		// Codes with field messages, such as an unknown email on a code
		// request, are still validation failures.
		if len(fields) > 0 {
			gwErr.Kind = authflow.FailureValidation
			gwErr.Fields = fields
		} else {
			gwErr.Kind = authflow.FailureUnknown
		}
	}
	return gwErr
}

func detailFailure(status int, detail json.RawMessage, emailIsIdent bool) error {
	var list []fastAPIDetail
	if err := json.Unmarshal(detail, &list); err == nil && len(list) > 0 {
		fields := make(map[string]string, len(list))
		for _, d := range list {
			if len(d.Loc) == 0 {
				continue
			}
			name := fmt.Sprint(d.Loc[len(d.Loc)-1])
			if _, seen := fields[name]; !seen {
				fields[name] = d.Msg
			}
		}
		return &authflow.GatewayError{
			Kind:    authflow.FailureValidation,
			Code:    codeValidationError,
			Message: http.StatusText(status),
			Fields:  renameFields(fields, emailIsIdent),
		}
	}

	var text string
	_ = json.Unmarshal(detail, &text)
	return statusFailure(status, text)
}

func statusFailure(status int, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	kind := authflow.FailureUnknown
	switch status {
	case http.StatusTooManyRequests:
		kind = authflow.FailureRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = authflow.FailureTransport
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &authflow.GatewayError{Kind: kind, Message: fmt.Sprintf("http %d: %s", status, msg)}
}

// renameFields maps service field names onto the flows' field keys.
func renameFields(src map[string]string, emailIsIdent bool) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		switch k {
		case "new_password":
			k = authflow.FieldNewPassword
		case "captcha_answer", "captcha_id":
			k = authflow.FieldCaptcha
		case "email":
			if emailIsIdent {
				k = authflow.FieldIdentifier
			}
		}
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}
	return out
}

func orField(fields map[string]string, key, msg string) map[string]string {
	if len(fields) > 0 {
		return fields
	}
	return map[string]string{key: msg}
}

// flexID accepts string and numeric ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}
