package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	secretA = []byte("identityd-secret-a-identityd-sec")
	secretB = []byte("identityd-secret-b-identityd-sec")
)

func hsManager(t testing.TB, mutate func(*Config)) *Manager {
	t.Helper()
	cfg := Config{
		AccessTTL:     30 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    secretA,
		Issuer:        "identityd",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func sign(t *testing.T, method gjwt.SigningMethod, key any, kid string, claims AccessClaims) string {
	t.Helper()
	tok := gjwt.NewWithClaims(method, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func claimsFor(uid, issuer string, exp time.Time) AccessClaims {
	return AccessClaims{UID: uid, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   uid,
		Issuer:    issuer,
		ExpiresAt: gjwt.NewNumericDate(exp),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
}

func TestCreateAndParseHS256(t *testing.T) {
	m := hsManager(t, nil)

	token, err := m.CreateAccess(Subject{UserID: "u42", Username: "alice", Superuser: true})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if claims.UID != "u42" || claims.Subject != "u42" || claims.Username != "alice" || !claims.Superuser || claims.Issuer != "identityd" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("lifetime = %v", got)
	}
	if m.AccessTTL() != 30*time.Minute {
		t.Fatalf("AccessTTL = %v", m.AccessTTL())
	}

	if _, err := m.CreateAccess(Subject{UserID: "  "}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestParseRejections(t *testing.T) {
	m := hsManager(t, func(c *Config) { c.Leeway = 30 * time.Second })
	now := time.Now()

	tests := []struct {
		name  string
		token string
		is    error
	}{
		{"other secret", sign(t, gjwt.SigningMethodHS256, secretB, "", claimsFor("u1", "identityd", now.Add(time.Minute))), gjwt.ErrTokenSignatureInvalid},
		{"other issuer", sign(t, gjwt.SigningMethodHS256, secretA, "", claimsFor("u1", "evil", now.Add(time.Minute))), gjwt.ErrTokenInvalidIssuer},
		{"expired past leeway", sign(t, gjwt.SigningMethodHS256, secretA, "", claimsFor("u1", "identityd", now.Add(-2*time.Minute))), gjwt.ErrTokenExpired},
		{"no uid", sign(t, gjwt.SigningMethodHS256, secretA, "", claimsFor("", "identityd", now.Add(time.Minute))), ErrMissingSubject},
		{"unnamed key when kid sent", sign(t, gjwt.SigningMethodHS256, secretA, "k9", claimsFor("u1", "identityd", now.Add(time.Minute))), ErrUnknownKey},
		{"algorithm none", sign(t, gjwt.SigningMethodNone, gjwt.UnsafeAllowNoneSignatureType, "", claimsFor("u1", "identityd", now.Add(time.Minute))), gjwt.ErrTokenSignatureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.ParseAccess(tt.token)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, err)
			}
		})
	}

	within := sign(t, gjwt.SigningMethodHS256, secretA, "", claimsFor("u1", "identityd", now.Add(-15*time.Second)))
	if _, err := m.ParseAccess(within); err != nil {
		t.Fatalf("token within leeway must pass: %v", err)
	}

	future := claimsFor("u1", "identityd", now.Add(time.Hour))
	future.IssuedAt = gjwt.NewNumericDate(now.Add(20 * time.Minute))
	if _, err := m.ParseAccess(sign(t, gjwt.SigningMethodHS256, secretA, "", future)); err == nil {
		t.Fatal("expected far-future iat to fail")
	}
}

func TestSecretRotation(t *testing.T) {
	old := hsManager(t, func(c *Config) {
		c.KeyID = "2025-01"
		c.VerifyKeys = map[string][]byte{"2025-01": secretA}
	})
	issuedBefore, err := old.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	rotated := hsManager(t, func(c *Config) {
		c.PrivateKey = secretB
		c.KeyID = "2025-06"
		c.VerifyKeys = map[string][]byte{"2025-01": secretA, "2025-06": secretB}
	})
	if _, err := rotated.ParseAccess(issuedBefore); err != nil {
		t.Fatalf("token of the retired key must still verify: %v", err)
	}
	issuedAfter, err := rotated.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := old.ParseAccess(issuedAfter); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("old manager must not know the new kid, got %v", err)
	}

	unnamed := sign(t, gjwt.SigningMethodHS256, secretB, "", claimsFor("u1", "identityd", time.Now().Add(time.Minute)))
	if _, err := rotated.ParseAccess(unnamed); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("tokens without kid must fail once keys are named, got %v", err)
	}
}

func TestEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Audience: "api"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	verifier, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub, Audience: "api"})
	if err != nil {
		t.Fatalf("NewManager(verify only): %v", err)
	}

	token, err := signer.CreateAccess(Subject{UserID: "u1"})
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	if _, err := verifier.ParseAccess(token); err != nil {
		t.Fatalf("ParseAccess: %v", err)
	}
	if _, err := verifier.CreateAccess(Subject{UserID: "u1"}); err == nil {
		t.Fatal("a manager without private key cannot sign")
	}

	hs := sign(t, gjwt.SigningMethodHS256, []byte(pub), "", claimsFor("u1", "", time.Now().Add(time.Minute)))
	if _, err := verifier.ParseAccess(hs); err == nil {
		t.Fatal("expected HS256 token to be rejected by an EdDSA manager")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	tests := map[string]Config{
		"no ttl":         {SigningMethod: MethodHS256, PrivateKey: secretA},
		"no secret":      {AccessTTL: time.Minute, SigningMethod: MethodHS256},
		"huge leeway":    {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secretA, Leeway: time.Hour},
		"unknown method": {AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: secretA},
		"ed no keys":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"bad ed key":     {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("short")},
		"kid missing":    {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secretA, VerifyKeys: map[string][]byte{"k1": secretA}},
		"kid not listed": {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secretA, KeyID: "k2", VerifyKeys: map[string][]byte{"k1": secretA}},
		"empty kid":      {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secretA, KeyID: "k1", VerifyKeys: map[string][]byte{"k1": secretA, " ": secretB}},
	}
	for name, cfg := range tests {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func FuzzParseAccess(f *testing.F) {
	m := hsManager(f, func(c *Config) {
		c.KeyID = "k1"
		c.VerifyKeys = map[string][]byte{"k1": secretA, "k0": secretB}
		c.RequireIAT = true
	})
	valid, err := m.CreateAccess(Subject{UserID: "uid1", Username: "fuzz"})
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ0ZXN0In0.")
	f.Add("eyJhbGciOiJIUzI1NiIsImtpZCI6ImsxIn0.eyJ1aWQiOiJ4In0.AAAA")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := m.ParseAccess(input)
		if err == nil && (claims == nil || claims.UID == "") {
			t.Fatalf("accepted %q without a subject", input)
		}
	})
}
