// Package stores provides the Redis records behind the identity service:
// user accounts, pending verification codes and captcha answers.
//
// # Design
//
// Code records are versioned, binary-encoded and stored with a TTL. Consume
// runs as a Lua script so that the compare, the attempt counter and the
// delete happen in one step; the final comparison is repeated in Go with a
// constant-time compare. Captcha answers are taken with GETDEL. Users are
// hashes whose unique username and email indexes are claimed in the same
// script that writes the hash.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package.
//   - Store or log plaintext codes or passwords.
//   - Decide policy. The identity service maps store errors to responses.
package stores
