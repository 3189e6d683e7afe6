// Package authflow drives the client side of account registration, password
// recovery and login against a remote identity service.
//
// A [Client] is built once through [Builder.Build] and hands out flow
// instances: [RegistrationFlow] (form, verification, success),
// [RecoveryFlow] (identify, reset, success) and [LoginFlow]. Each flow owns
// its step state, its [FieldErrors] and its [CooldownTimer]; nothing is shared
// between flow instances.
//
// # Architecture boundaries
//
// authflow is the public surface. Step transitions are pure functions under
// internal/flows; this package wraps them with locking, gateway calls,
// failure translation, metrics and audit events. The remote service is reached
// only through the [Gateway] interface (see gateway/httpgw for the HTTP
// implementation).
//
// # What this package must NOT do
//
//   - Generate or check verification codes, hash passwords or persist anything.
//   - Decide rate-limit policy; the cooldown is a client-side admission gate.
//   - Read locale, theme or token storage from globals. Those arrive through
//     [Config], [Localizer] and context values.
//
// # Concurrency
//
// Flow methods are safe to call from multiple goroutines. At most one gateway
// call is outstanding per flow; a second submit or resend while one is running
// returns [ErrSubmitInProgress].
package authflow
