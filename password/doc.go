// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are PHC strings ([Encoded]):
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>
//
// Verification uses the parameters stored in the hash, so raising the cost
// does not lock anyone out; [Argon2.NeedsUpgrade] tells the identity service
// to re-hash after the next good login.
//
// The package never stores or logs passwords and imports no other authflow
// package.
package password
