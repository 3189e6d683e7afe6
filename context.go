package authflow

import "context"

type localeContextKey struct{}
type requestIDContextKey struct{}

// WithLocale attaches the user's language (for example "en" or "zh-CN") to
// ctx. Localizers use it for field messages and gateways forward it to the
// identity service.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeContextKey{}, locale)
}

// WithRequestID attaches a correlation id that gateways forward and audit
// events record.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// LocaleFromContext returns the locale set by WithLocale, or "".
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	locale, _ := ctx.Value(localeContextKey{}).(string)
	return locale
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(requestIDContextKey{}).(string)
	return id
}
