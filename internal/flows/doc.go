// Package flows contains the pure step machines behind the registration and
// recovery flows.
//
// Each machine is a value (Registration, Recovery) holding a tagged-union step
// state plus the field-error map, the submitting flag and an epoch. Next
// applies one Event and returns the new value together with the Effects the
// caller must carry out (arming the cooldown, cancelling an in-flight call).
//
// # Architecture boundaries
//
// The root package owns the gateway, the cooldown timer, locking and logging.
// This package only decides what the next state is. Events produced by a
// gateway response carry the epoch that was current when the call started;
// Next ignores them once the epoch has moved on.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls or mutate maps it received.
//   - Import authflow (to avoid import cycles).
//   - Perform I/O or read the clock.
package flows
