package identity

import (
	"fmt"
	"strings"
)

// MessageKey identifies a response or field message.
type MessageKey string

const (
	MsgSuccess                MessageKey = "success"
	MsgUnknownError           MessageKey = "unknown_error"
	MsgValidationError        MessageKey = "validation_error"
	MsgUnauthorized           MessageKey = "unauthorized"
	MsgInvalidToken           MessageKey = "invalid_token"
	MsgTokenExpired           MessageKey = "token_expired"
	MsgMalformedBody          MessageKey = "malformed_body"
	MsgIncorrectCredentials   MessageKey = "incorrect_email_or_password"
	MsgInactiveUser           MessageKey = "inactive_user"
	MsgUserNotFound           MessageKey = "user_not_found"
	MsgNotFound               MessageKey = "not_found"
	MsgUsernameRegistered     MessageKey = "username_already_registered"
	MsgEmailRegistered        MessageKey = "email_already_registered"
	MsgEmailNotVerified       MessageKey = "email_not_verified"
	MsgCodeInvalid            MessageKey = "verification_code_invalid"
	MsgCodeExpired            MessageKey = "verification_code_expired"
	MsgEmailSendFailed        MessageKey = "email_send_failed"
	MsgEmailSendTooFrequent   MessageKey = "email_send_too_frequent"
	MsgEmailRateLimited       MessageKey = "email_rate_limit_exceeded"
	MsgEmailAlreadyVerified   MessageKey = "email_already_verified"
	MsgAccountLocked          MessageKey = "account_locked"
	MsgAccountLockedAttempts  MessageKey = "account_locked_after_attempts"
	MsgCaptchaRequired        MessageKey = "captcha_required"
	MsgCaptchaInvalid         MessageKey = "captcha_invalid"
	MsgRateLimited            MessageKey = "rate_limited"
	MsgRegistrationSuccess    MessageKey = "registration_success"
	MsgRegistrationFirstUser  MessageKey = "registration_first_user"
	MsgLoginSuccess           MessageKey = "login_success"
	MsgVerificationEmailSent  MessageKey = "verification_email_sent"
	MsgResetEmailSent         MessageKey = "reset_password_email_sent"
	MsgEmailVerified          MessageKey = "email_verified_success"
	MsgPasswordResetSuccess   MessageKey = "password_reset_success"
	MsgFieldRequired          MessageKey = "field_required"
	MsgFieldInvalidEmail      MessageKey = "field_invalid_email"
	MsgFieldTooShort          MessageKey = "field_too_short"
	MsgFieldTooLong           MessageKey = "field_too_long"
	MsgFieldInvalidPurpose    MessageKey = "field_invalid_purpose"
	MsgFieldInvalid           MessageKey = "field_invalid"
	MsgPasswordTooShort       MessageKey = "password_too_short"
	MsgPasswordTooLong        MessageKey = "password_too_long"
	MsgCaptchaQuestionCreated MessageKey = "captcha_created"
)

// DefaultLanguage is used when a request names no supported language.
const DefaultLanguage = "en"

var catalog = map[string]map[MessageKey]string{
	"en": {
		MsgSuccess:                "Success",
		MsgUnknownError:           "Unknown error",
		MsgValidationError:        "Validation error",
		MsgUnauthorized:           "Not authenticated",
		MsgInvalidToken:           "Invalid token",
		MsgTokenExpired:           "Token has expired",
		MsgMalformedBody:          "Malformed request body",
		MsgIncorrectCredentials:   "Incorrect username or password",
		MsgInactiveUser:           "Inactive user",
		MsgUserNotFound:           "User not found",
		MsgNotFound:               "Resource not found",
		MsgUsernameRegistered:     "Username already registered",
		MsgEmailRegistered:        "Email already registered",
		MsgEmailNotVerified:       "Please verify your email before logging in",
		MsgCodeInvalid:            "Invalid verification code",
		MsgCodeExpired:            "Verification code is invalid or expired",
		MsgEmailSendFailed:        "Failed to send email",
		MsgEmailSendTooFrequent:   "Please wait %d seconds before requesting another email",
		MsgEmailRateLimited:       "Email sending rate limit exceeded. Please try again later.",
		MsgEmailAlreadyVerified:   "Email has already been verified",
		MsgAccountLocked:          "Account is locked. Please try again in %d minutes.",
		MsgAccountLockedAttempts:  "Too many failed login attempts. Account has been locked.",
		MsgCaptchaRequired:        "Captcha is required",
		MsgCaptchaInvalid:         "Invalid captcha answer",
		MsgRateLimited:            "Too many requests. Please try again later.",
		MsgRegistrationSuccess:    "Registration successful",
		MsgRegistrationFirstUser:  "Registration successful. You are the first user and have been promoted to Super Admin!",
		MsgLoginSuccess:           "Login successful",
		MsgVerificationEmailSent:  "Verification email has been sent",
		MsgResetEmailSent:         "If the email exists, a verification code has been sent",
		MsgEmailVerified:          "Email verified successfully",
		MsgPasswordResetSuccess:   "Password has been reset successfully",
		MsgFieldRequired:          "This field is required",
		MsgFieldInvalidEmail:      "Invalid email address",
		MsgFieldTooShort:          "Must be at least %d characters",
		MsgFieldTooLong:           "Must be at most %d characters",
		MsgFieldInvalidPurpose:    "Unknown purpose",
		MsgFieldInvalid:           "Invalid value",
		MsgPasswordTooShort:       "Password must be at least %d characters",
		MsgPasswordTooLong:        "Password is too long",
		MsgCaptchaQuestionCreated: "Captcha created",
	},
	"zh": {
		MsgSuccess:                "成功",
		MsgUnknownError:           "未知错误",
		MsgValidationError:        "参数校验失败",
		MsgUnauthorized:           "未认证",
		MsgInvalidToken:           "无效的令牌",
		MsgTokenExpired:           "令牌已过期",
		MsgMalformedBody:          "请求体格式错误",
		MsgIncorrectCredentials:   "用户名或密码错误",
		MsgInactiveUser:           "用户未激活",
		MsgUserNotFound:           "用户未找到",
		MsgNotFound:               "资源未找到",
		MsgUsernameRegistered:     "用户名已被注册",
		MsgEmailRegistered:        "邮箱已被注册",
		MsgEmailNotVerified:       "请先验证您的邮箱",
		MsgCodeInvalid:            "验证码无效",
		MsgCodeExpired:            "验证码无效或已过期",
		MsgEmailSendFailed:        "邮件发送失败",
		MsgEmailSendTooFrequent:   "请 %d 秒后再请求发送邮件",
		MsgEmailRateLimited:       "邮件发送频率超限，请稍后再试",
		MsgEmailAlreadyVerified:   "邮箱已验证",
		MsgAccountLocked:          "账户已被锁定，请 %d 分钟后再试。",
		MsgAccountLockedAttempts:  "登录失败次数过多，账户已被锁定。",
		MsgCaptchaRequired:        "请输入验证码",
		MsgCaptchaInvalid:         "验证码错误",
		MsgRateLimited:            "请求过于频繁，请稍后再试",
		MsgRegistrationSuccess:    "注册成功",
		MsgRegistrationFirstUser:  "注册成功。您是第一位用户，已被设为超级管理员！",
		MsgLoginSuccess:           "登录成功",
		MsgVerificationEmailSent:  "验证邮件已发送",
		MsgResetEmailSent:         "如果邮箱存在，验证码已发送",
		MsgEmailVerified:          "邮箱验证成功",
		MsgPasswordResetSuccess:   "密码重置成功",
		MsgFieldRequired:          "此项为必填项",
		MsgFieldInvalidEmail:      "邮箱格式不正确",
		MsgFieldTooShort:          "长度至少为 %d 个字符",
		MsgFieldTooLong:           "长度最多为 %d 个字符",
		MsgFieldInvalidPurpose:    "未知用途",
		MsgFieldInvalid:           "无效的值",
		MsgPasswordTooShort:       "密码长度至少为 %d 个字符",
		MsgPasswordTooLong:        "密码过长",
		MsgCaptchaQuestionCreated: "验证码已生成",
	},
}

// Localize renders key in lang. lang may be an Accept-Language header value;
// the first supported tag wins.
func Localize(lang string, key MessageKey, args ...any) string {
	table := catalog[pickLanguage(lang)]
	tmpl, ok := table[key]
	if !ok {
		if tmpl, ok = catalog[DefaultLanguage][key]; !ok {
			return string(key)
		}
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}

func pickLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(part)
		if i := strings.IndexByte(tag, ';'); i >= 0 {
			tag = tag[:i]
		}
		if i := strings.IndexAny(tag, "-_"); i >= 0 {
			tag = tag[:i]
		}
		tag = strings.ToLower(tag)
		if _, ok := catalog[tag]; ok {
			return tag
		}
	}
	return DefaultLanguage
}

// LocalizeFields renders every field message of e in lang.
func (e *Error) LocalizeFields(lang string) map[string]string {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(e.Fields))
	for field, msg := range e.Fields {
		out[field] = Localize(lang, msg.Key, msg.Args...)
	}
	return out
}
