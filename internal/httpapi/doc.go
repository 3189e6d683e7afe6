// Package httpapi serves the identity service over HTTP with gin.
//
// Every response is the envelope {"code", "data", "msg"}. code is the
// identity response code (0 on success) and msg is localized from the
// Accept-Language header. Validation failures carry their field messages
// under data.errors.
//
// Routes, relative to /api/v1:
//
//	POST /register             JSON {username, email, password}
//	POST /login/access-token   form or JSON {username, password, captcha_id, captcha_answer}
//	POST /auth/send-code       JSON {email, purpose}
//	POST /auth/verify-code     JSON {email, code, purpose}
//	POST /auth/reset-password  JSON {email, code, new_password}
//	GET  /auth/captcha
//	GET  /users/me             bearer token
//
// GET /healthz reports backend health outside the envelope.
package httpapi
