// Package internal contains helper utilities that are private to the
// authflow module, chiefly secure random generation for codes and captchas.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure step machines behind the registration and recovery flows
//   - identity: the reference identity service served by cmd/identityd
//   - httpapi: gin routes and envelope rendering for the identity service
//   - limiters: send cooldown, registration throttle and account lockout
//   - logging: zap logger construction for the commands
//   - rate: core Redis-backed fixed-window counters
//   - stores: Redis records for users, verification codes and captchas
//
// # What this package must NOT do
//
//   - Export types that appear in the public authflow API.
//   - Be imported by any package outside the authflow module.
package internal
