// Package limiters provides the identity service's domain throttles built on
// top of the internal/rate primitives.
//
// # Limiters
//
//   - [CodeSendLimiter]: per-address send cooldown plus an hourly cap.
//   - [RegistrationLimiter]: per-IP throttle for sign-ups.
//   - [LockoutLimiter]: consecutive failed logins lock an account for a while.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. The identity service decides consequences.
package limiters
