package authflow

import (
	"context"
	"fmt"
	"strings"
)

// MessageKey identifies a user-facing message produced by the flows.
type MessageKey string

const (
	MsgUsernameRequired   MessageKey = "username_required"
	MsgEmailRequired      MessageKey = "email_required"
	MsgIdentifierRequired MessageKey = "identifier_required"
	MsgPasswordRequired   MessageKey = "password_required"
	MsgPasswordMismatch   MessageKey = "password_mismatch"
	MsgPasswordTooShort   MessageKey = "password_too_short"
	MsgCodeLength         MessageKey = "verification_code_length"
	MsgCodeInvalid        MessageKey = "verification_code_invalid"
	MsgCodeExpired        MessageKey = "verification_code_expired"
	MsgChallengeRequired  MessageKey = "captcha_required"
	MsgChallengeInvalid   MessageKey = "captcha_invalid"
)

// Localizer turns a message key into text. Implementations read the
// language from ctx (see WithLocale) and format args into the template.
type Localizer interface {
	Localize(ctx context.Context, key MessageKey, args ...any) string
}

// Catalog is a Localizer backed by a language -> key -> template table.
// Unknown languages fall back to Fallback, unknown keys to the key itself.
type Catalog struct {
	Fallback string
	Messages map[string]map[MessageKey]string
}

// DefaultCatalog returns the built-in English and Chinese messages.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Fallback: "en",
		Messages: map[string]map[MessageKey]string{
			"en": {
				MsgUsernameRequired:   "Username is required",
				MsgEmailRequired:      "Email is required",
				MsgIdentifierRequired: "Please enter your email",
				MsgPasswordRequired:   "Password is required",
				MsgPasswordMismatch:   "Passwords do not match",
				MsgPasswordTooShort:   "Password must be at least %d characters",
				MsgCodeLength:         "Verification code must be %d characters",
				MsgCodeInvalid:        "Invalid verification code",
				MsgCodeExpired:        "Verification code has expired or was already used",
				MsgChallengeRequired:  "Captcha is required",
				MsgChallengeInvalid:   "Invalid captcha answer",
			},
			"zh": {
				MsgUsernameRequired:   "请输入用户名",
				MsgEmailRequired:      "请输入邮箱",
				MsgIdentifierRequired: "请输入邮箱",
				MsgPasswordRequired:   "请输入密码",
				MsgPasswordMismatch:   "两次输入的密码不一致",
				MsgPasswordTooShort:   "密码长度至少为 %d 个字符",
				MsgCodeLength:         "验证码必须为 %d 位",
				MsgCodeInvalid:        "验证码无效",
				MsgCodeExpired:        "验证码已过期或已使用",
				MsgChallengeRequired:  "请输入验证码",
				MsgChallengeInvalid:   "验证码错误",
			},
		},
	}
}

// Localize implements Localizer.
func (c *Catalog) Localize(ctx context.Context, key MessageKey, args ...any) string {
	if c == nil {
		return string(key)
	}
	lang := normalizeLocale(LocaleFromContext(ctx))
	tmpl, ok := c.Messages[lang][key]
	if !ok {
		tmpl, ok = c.Messages[c.Fallback][key]
	}
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

// normalizeLocale reduces "zh-CN" or "zh_CN" to "zh".
func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if i := strings.IndexAny(locale, "-_"); i >= 0 {
		locale = locale[:i]
	}
	return locale
}
