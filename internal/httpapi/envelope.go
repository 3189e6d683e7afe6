package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Envelope is the body of every API response.
type Envelope struct {
	Code identity.Code `json:"code"`
	Data any           `json:"data"`
	Msg  string        `json:"msg"`
}

// ErrorData is the data of a failed response. Both parts are optional.
type ErrorData struct {
	Errors     map[string]string `json:"errors,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"`
}

func language(c *gin.Context) string {
	return c.GetHeader("Accept-Language")
}

func respondOK(c *gin.Context, key identity.MessageKey, data any) {
	c.JSON(http.StatusOK, Envelope{
		Code: identity.CodeSuccess,
		Data: data,
		Msg:  identity.Localize(language(c), key),
	})
}

// respondError renders err. Errors that are not *identity.Error are logged
// and reported as CodeUnknownError without detail.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var e *identity.Error
	if !errors.As(err, &e) {
		e = &identity.Error{Code: identity.CodeUnknownError, Key: identity.MsgUnknownError, Err: err}
	}

	status := statusOf(e.Code)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("code", int(e.Code)),
			zap.Error(err),
		)
	}

	lang := language(c)
	var data *ErrorData
	if fields := e.LocalizeFields(lang); len(fields) > 0 || e.RetryAfter > 0 {
		data = &ErrorData{Errors: fields}
		if e.RetryAfter > 0 {
			secs := int((e.RetryAfter + time.Second - 1) / time.Second)
			data.RetryAfter = secs
			c.Header("Retry-After", strconv.Itoa(secs))
		}
	}

	env := Envelope{Code: e.Code, Msg: identity.Localize(lang, e.Key, e.Args...)}
	if data != nil {
		env.Data = data
	}
	c.AbortWithStatusJSON(status, env)
}

func statusOf(code identity.Code) int {
	switch code {
	case identity.CodeSuccess:
		return http.StatusOK
	case identity.CodeUnknownError:
		return http.StatusInternalServerError
	case identity.CodeValidationError:
		return http.StatusUnprocessableEntity
	case identity.CodeUnauthorized, identity.CodeInvalidToken, identity.CodeTokenExpired:
		return http.StatusUnauthorized
	case identity.CodeNotFound, identity.CodeUserNotFound:
		return http.StatusNotFound
	case identity.CodeEmailSendTooFrequent, identity.CodeRateLimited:
		return http.StatusTooManyRequests
	case identity.CodeEmailSendFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
