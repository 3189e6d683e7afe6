// Package jwt issues and verifies the access tokens identityd hands out on
// login.
//
// Tokens are HS256 or EdDSA with strict algorithm, issuer and audience
// checks. Naming keys with KeyID and VerifyKeys lets a deployment rotate its
// signing secret while tokens signed by the retired one stay valid until
// they expire.
package jwt
