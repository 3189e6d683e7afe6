package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrMissingSubject = errors.New("jwt: missing subject")
	ErrUnknownKey     = errors.New("jwt: unknown key id")
	ErrFutureIssuedAt = errors.New("jwt: iat too far in the future")
)

// Config holds the signing keys and validation rules of a [Manager].
//
// PrivateKey is the HS256 secret or an Ed25519 private key (raw or PEM).
// PublicKey is only read for Ed25519. With KeyID set, issued tokens carry
// it as "kid"; VerifyKeys then lists every kid still accepted, which is how
// a retired key keeps verifying tokens issued before a rotation.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager issues and parses access tokens. Keys are decoded once by
// NewManager; a Manager is immutable and safe for concurrent use.
type Manager struct {
	ttl          time.Duration
	issuer       string
	audience     string
	maxFutureIAT time.Duration
	keyID        string

	method  jwt.SigningMethod
	signKey any
	// verify holds the keys by kid; "" is the key of tokens without one.
	verify map[string]any
	parser *jwt.Parser
}

// Subject is the account an access token is issued to.
type Subject struct {
	UserID    string
	Username  string
	Superuser bool
}

// AccessClaims are the claims of an access token. UID mirrors the
// registered subject.
type AccessClaims struct {
	UID       string `json:"uid"`
	Username  string `json:"username,omitempty"`
	Superuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and decodes its keys.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("jwt: access TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: leeway must be within [0,2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("jwt: max future iat must be within (0,24h]")
	}

	m := &Manager{
		ttl:          cfg.AccessTTL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		maxFutureIAT: cfg.MaxFutureIAT,
		keyID:        strings.TrimSpace(cfg.KeyID),
		verify:       make(map[string]any, len(cfg.VerifyKeys)+1),
	}

	var decodeVerify func([]byte) (any, error)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("jwt: hs256 requires a secret")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verify[m.keyID] = cfg.PrivateKey
		decodeVerify = func(b []byte) (any, error) {
			if len(b) == 0 {
				return nil, errors.New("empty secret")
			}
			return b, nil
		}
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify[m.keyID] = pub
		} else if len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("jwt: ed25519 requires a public key or verify keys")
		}
		decodeVerify = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.SigningMethod)
	}

	for kid, raw := range cfg.VerifyKeys {
		kid = strings.TrimSpace(kid)
		if kid == "" {
			return nil, errors.New("jwt: verify keys contain an empty kid")
		}
		key, err := decodeVerify(raw)
		if err != nil {
			return nil, fmt.Errorf("jwt: verify key %q: %w", kid, err)
		}
		m.verify[kid] = key
	}
	if len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[m.keyID]; m.keyID == "" || !ok {
			return nil, errors.New("jwt: KeyID must be set and present in VerifyKeys")
		}
		// Tokens without a kid are not accepted once keys are named.
		delete(m.verify, "")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{m.method.Alg()})}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// AccessTTL returns the lifetime of issued tokens.
func (m *Manager) AccessTTL() time.Duration {
	return m.ttl
}

// CreateAccess signs an access token for sub.
func (m *Manager) CreateAccess(sub Subject) (string, error) {
	if strings.TrimSpace(sub.UserID) == "" {
		return "", ErrMissingSubject
	}
	if m.signKey == nil {
		return "", errors.New("jwt: manager has no signing key")
	}

	now := time.Now()
	claims := AccessClaims{
		UID:       sub.UserID,
		Username:  sub.Username,
		Superuser: sub.Superuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}
	return token.SignedString(m.signKey)
}

// ParseAccess verifies tokenStr and returns its claims. Expiry surfaces as
// an error matching jwt.ErrTokenExpired.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UID == "" {
		return nil, ErrMissingSubject
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(time.Now().Add(m.maxFutureIAT)) {
		return nil, ErrFutureIssuedAt
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	if t.Method.Alg() != m.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	key, ok := m.verify[kid]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("jwt: invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwt: invalid ed25519 public key type")
	}
	return edKey, nil
}
