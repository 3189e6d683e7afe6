// Package middleware exposes gin middleware that authenticates requests with
// access tokens issued by a [jwt.Manager].
//
// [RequireBearer] reads the Authorization header, verifies the token and
// stores the claims on the gin context, where handlers read them back with
// [ClaimsFromContext]. Rejections are rendered by a caller supplied function
// so that services can keep their own response envelope.
//
// This package does not issue tokens and does not touch any store.
package middleware
