package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/authflow"
	"go.uber.org/zap"
)

const (
	defaultBasePath = "/api/v1"
	defaultTimeout  = 15 * time.Second
	maxBodyBytes    = 1 << 20
)

// Gateway talks to one identity service. It is safe for concurrent use.
type Gateway struct {
	base      *url.URL
	basePath  string
	client    *http.Client
	token     string
	userAgent string
	logger    *zap.Logger
}

var _ authflow.Gateway = (*Gateway)(nil)

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default client, which has a 15 second timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		if c != nil {
			g.client = c
		}
	}
}

// WithBearerToken sends token in the Authorization header of every request.
func WithBearerToken(token string) Option {
	return func(g *Gateway) { g.token = token }
}

func WithUserAgent(ua string) Option {
	return func(g *Gateway) { g.userAgent = ua }
}

// WithBasePath sets the API prefix. The default is /api/v1.
func WithBasePath(p string) Option {
	return func(g *Gateway) { g.basePath = "/" + strings.Trim(p, "/") }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New returns a Gateway for the service at baseURL, for example
// "http://localhost:8080".
func New(baseURL string, opts ...Option) (*Gateway, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("httpgw: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpgw: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, errors.New("httpgw: base url has no host")
	}

	g := &Gateway{
		base:      u,
		basePath:  defaultBasePath,
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: "authflow-httpgw/1",
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.Named("httpgw")
	return g, nil
}

type userPayload struct {
	ID            flexID `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	IsSuperuser   bool   `json:"is_superuser"`
	EmailVerified bool   `json:"email_verified"`
}

func (g *Gateway) Register(ctx context.Context, req authflow.RegisterRequest) (authflow.UserRecord, error) {
	var out userPayload
	err := g.call(ctx, op{
		method: http.MethodPost,
		path:   "/register",
		json: map[string]string{
			"username": req.Username,
			"email":    req.Email,
			"password": req.Password,
		},
	}, &out)
	if err != nil {
		return authflow.UserRecord{}, err
	}
	return authflow.UserRecord{
		ID:            string(out.ID),
		Username:      out.Username,
		Email:         out.Email,
		IsPrivileged:  out.IsSuperuser,
		EmailVerified: out.EmailVerified,
	}, nil
}

func (g *Gateway) RequestCode(ctx context.Context, identifier string, purpose authflow.Purpose) error {
	return g.call(ctx, op{
		method:       http.MethodPost,
		path:         "/auth/send-code",
		json:         map[string]string{"email": identifier, "purpose": string(purpose)},
		emailIsIdent: true,
	}, nil)
}

func (g *Gateway) VerifyCode(ctx context.Context, identifier, code string, purpose authflow.Purpose) error {
	return g.call(ctx, op{
		method:       http.MethodPost,
		path:         "/auth/verify-code",
		json:         map[string]string{"email": identifier, "code": code, "purpose": string(purpose)},
		emailIsIdent: true,
	}, nil)
}

func (g *Gateway) ResetPassword(ctx context.Context, identifier, code, newSecret string) error {
	return g.call(ctx, op{
		method:       http.MethodPost,
		path:         "/auth/reset-password",
		json:         map[string]string{"email": identifier, "code": code, "new_password": newSecret},
		emailIsIdent: true,
	}, nil)
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login posts an OAuth2 password form to /login/access-token.
func (g *Gateway) Login(ctx context.Context, req authflow.LoginRequest) (authflow.Token, error) {
	form := url.Values{}
	form.Set("username", req.Username)
	form.Set("password", req.Password)
	if req.ChallengeID != "" {
		form.Set("captcha_id", req.ChallengeID)
		form.Set("captcha_answer", req.ChallengeAnswer)
	}

	var out tokenPayload
	if err := g.call(ctx, op{method: http.MethodPost, path: "/login/access-token", form: form}, &out); err != nil {
		return authflow.Token{}, err
	}
	return authflow.Token{
		AccessToken: out.AccessToken,
		TokenType:   out.TokenType,
		ExpiresIn:   time.Duration(out.ExpiresIn) * time.Second,
	}, nil
}

type challengePayload struct {
	ID       string `json:"captcha_id"`
	Question string `json:"question"`
}

func (g *Gateway) Challenge(ctx context.Context) (authflow.Challenge, error) {
	var out challengePayload
	if err := g.call(ctx, op{method: http.MethodGet, path: "/auth/captcha"}, &out); err != nil {
		return authflow.Challenge{}, err
	}
	if out.ID == "" {
		return authflow.Challenge{}, &authflow.GatewayError{
			Kind:    authflow.FailureUnknown,
			Message: "captcha response has no id",
		}
	}
	return authflow.Challenge{ID: out.ID, Question: out.Question}, nil
}

type op struct {
	method string
	path   string
	json   any
	form   url.Values
	// emailIsIdent reports an "email" field error under the identifier key.
	emailIsIdent bool
}

func (g *Gateway) call(ctx context.Context, o op, out any) error {
	req, err := g.newRequest(ctx, o)
	if err != nil {
		return &authflow.GatewayError{Kind: authflow.FailureUnknown, Message: "build request", Err: err}
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("identity service unreachable",
			zap.String("path", o.path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return &authflow.GatewayError{Kind: authflow.FailureTransport, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &authflow.GatewayError{Kind: authflow.FailureTransport, Message: "read response", Err: err}
	}
	g.logger.Debug("identity call",
		zap.String("method", o.method),
		zap.String("path", o.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	return decodeResponse(resp.StatusCode, body, o.emailIsIdent, out)
}

func (g *Gateway) newRequest(ctx context.Context, o op) (*http.Request, error) {
	u := *g.base
	u.Path = strings.TrimRight(u.Path, "/") + g.basePath + o.path

	var body io.Reader
	contentType := ""
	switch {
	case o.json != nil:
		raw, err := json.Marshal(o.json)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	case o.form != nil:
		body = strings.NewReader(o.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, o.method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}
	if locale := authflow.LocaleFromContext(ctx); locale != "" {
		req.Header.Set("Accept-Language", locale)
	}
	if id := authflow.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}
