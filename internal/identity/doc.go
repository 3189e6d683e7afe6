// Package identity is the reference identity service the flows talk to:
// account registration, emailed verification codes, password reset, math
// captchas and login with lockout, all stored in Redis.
//
// Every business failure is an [*Error] carrying a numeric [Code]; the HTTP
// layer renders it into the response envelope and the client gateway maps
// the code back to a failure kind.
//
// # Policies
//
//   - The first account ever registered is the superuser and never needs
//     email verification.
//   - Sends are throttled per address and purpose (cooldown) and per address
//     (hourly cap). A failed delivery starts no cooldown.
//   - A reset request for an unknown address looks like a success.
//   - Codes are single-use and die after MaxCodeAttempts wrong guesses.
//   - Captchas are single-use; a login demands one when CaptchaEnabled is set
//     or the client IP crossed CaptchaAfterFailures.
package identity
