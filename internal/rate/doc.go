// Package rate provides the Redis fixed-window counters the identity service
// builds its throttles on, and the per-IP failed-login counter that decides
// when a login needs a captcha.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - login:attempts:ip: failed logins per client IP
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the authflow module.
package rate
