package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Options configure NewRouter. Service and Tokens are required.
type Options struct {
	Service *identity.Service
	Tokens  *jwt.Manager
	Logger  *zap.Logger
	// Health is probed by GET /healthz. Nil always reports ok.
	Health func(ctx context.Context) error
}

// NewRouter returns the gin engine serving the identity API.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Service == nil {
		return nil, errors.New("httpapi: service is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("httpapi: token manager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	useWireNames()

	h := &handler{svc: opts.Service, logger: logger}

	r := gin.New()
	r.Use(requestID(), requestLogger(logger), recovery(logger))

	r.GET("/healthz", func(c *gin.Context) {
		if opts.Health != nil {
			if err := opts.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/register", h.register)
	v1.POST("/login/access-token", h.login)

	auth := v1.Group("/auth")
	auth.POST("/send-code", h.sendCode)
	auth.POST("/verify-code", h.verifyCode)
	auth.POST("/reset-password", h.resetPassword)
	auth.GET("/captcha", h.captcha)

	users := v1.Group("/users", middleware.RequireBearer(opts.Tokens, func(c *gin.Context, err error) {
		code := identity.CodeUnauthorized
		switch {
		case errors.Is(err, middleware.ErrTokenExpired):
			code = identity.CodeTokenExpired
		case errors.Is(err, middleware.ErrInvalidToken):
			code = identity.CodeInvalidToken
		}
		respondError(c, logger, identity.NewAuthError(code))
	}))
	users.GET("/me", h.me)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Envelope{
			Code: identity.CodeNotFound,
			Msg:  identity.Localize(language(c), identity.MsgNotFound),
		})
	})

	return r, nil
}
