// Package httpgw implements authflow.Gateway over the identity service's
// JSON API.
//
// Responses are read as the envelope {"code", "data", "msg"}. The response
// code decides the failure kind: validation codes carry field messages from
// data.errors (FastAPI style "detail" lists are understood too), code and
// captcha codes become the matching semantic kinds, and throttling codes
// become FailureRateLimited. Network errors are FailureTransport.
//
// The locale and request id stored on the context by authflow.WithLocale and
// authflow.WithRequestID are forwarded as Accept-Language and X-Request-ID.
package httpgw
