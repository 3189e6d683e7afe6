package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/httpapi"
	"github.com/MrEthical07/authflow/internal/identity"
	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// scriptGateway accepts the code "123456" and the captcha answer "4". Logins
// without a captcha are refused with a challenge demand when captcha is set.
type scriptGateway struct {
	mu      sync.Mutex
	captcha bool
	resets  int
	logins  []authflow.LoginRequest
}

func (g *scriptGateway) Register(_ context.Context, req authflow.RegisterRequest) (authflow.UserRecord, error) {
	return authflow.UserRecord{ID: "u-1", Username: req.Username, Email: req.Email}, nil
}

func (g *scriptGateway) RequestCode(context.Context, string, authflow.Purpose) error {
	return nil
}

func (g *scriptGateway) VerifyCode(_ context.Context, _, code string, _ authflow.Purpose) error {
	if code != "123456" {
		return &authflow.GatewayError{Kind: authflow.FailureCodeInvalid, Code: 5005, Message: "Invalid verification code"}
	}
	return nil
}

func (g *scriptGateway) ResetPassword(_ context.Context, _, code, _ string) error {
	if code != "123456" {
		return &authflow.GatewayError{Kind: authflow.FailureCodeInvalid, Code: 5005, Message: "Invalid verification code"}
	}
	g.mu.Lock()
	g.resets++
	g.mu.Unlock()
	return nil
}

func (g *scriptGateway) Login(_ context.Context, req authflow.LoginRequest) (authflow.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logins = append(g.logins, req)
	if g.captcha && req.ChallengeID == "" {
		return authflow.Token{}, &authflow.GatewayError{Kind: authflow.FailureChallengeRequired, Code: 5302, Message: "Captcha required"}
	}
	if req.ChallengeID != "" && req.ChallengeAnswer != "4" {
		return authflow.Token{}, &authflow.GatewayError{Kind: authflow.FailureChallengeInvalid, Code: 5303, Message: "Captcha is wrong"}
	}
	if req.Password != "secret1" {
		return authflow.Token{}, &authflow.GatewayError{Kind: authflow.FailureCredentials, Code: 2003, Message: "Incorrect username or password"}
	}
	return authflow.Token{AccessToken: "tok-123", TokenType: "bearer", ExpiresIn: 30 * time.Minute}, nil
}

func (g *scriptGateway) Challenge(context.Context) (authflow.Challenge, error) {
	return authflow.Challenge{ID: "c-1", Question: "2 + 2 = ?"}, nil
}

func runScript(t *testing.T, gw authflow.Gateway, script string) string {
	t.Helper()
	client, err := authflow.New().WithGateway(gw).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	out := &syncBuffer{}
	if err := newShell(client, strings.NewReader(script), out).run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func requireOutput(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestShellRegistrationWithVerification(t *testing.T) {
	out := runScript(t, &scriptGateway{}, strings.Join([]string{
		"register",
		"alice", "alice@example.com", "secret1", "secret1",
		":resend",
		"000000",
		"123",
		"123456",
		"quit",
	}, "\n")+"\n")

	requireOutput(t, out,
		"-> verification",
		"resend available in 60s",
		"wait ",
		"code: ",
		"the code has 6 digits",
		"-> success",
		"registered alice <alice@example.com> id=u-1",
	)
}

func TestShellRegistrationFieldErrorsAndBack(t *testing.T) {
	out := runScript(t, &scriptGateway{}, strings.Join([]string{
		"register",
		"alice", "alice@example.com", "secret1", "different",
		"alice", "alice@example.com", "secret1", "secret1",
		":back",
		":q",
		"quit",
	}, "\n")+"\n")

	requireOutput(t, out,
		"confirmPassword: ",
		"-> verification",
		"-> form",
		"username [alice]",
		"email [alice@example.com]",
		"left flow",
	)
}

func TestShellRecovery(t *testing.T) {
	gw := &scriptGateway{}
	out := runScript(t, gw, strings.Join([]string{
		"recover",
		"",
		"bob@example.com",
		"123456", "newpass1", "newpass1",
		"quit",
	}, "\n")+"\n")

	requireOutput(t, out, "identifier: ", "-> reset", "password reset")
	if gw.resets != 1 {
		t.Fatalf("expected one reset, got %d", gw.resets)
	}
}

func TestShellLoginWithChallenge(t *testing.T) {
	gw := &scriptGateway{captcha: true}
	out := runScript(t, gw, strings.Join([]string{
		"login",
		"alice", "secret1",
		"4",
		"quit",
	}, "\n")+"\n")

	requireOutput(t, out,
		"the service asks for a captcha",
		"captcha 2 + 2 = ?",
		"logged in: bearer token, expires in 30m0s",
		"tok-123",
	)
	if len(gw.logins) != 2 || gw.logins[1].ChallengeID != "c-1" || gw.logins[1].Username != "alice" {
		t.Fatalf("unexpected logins %+v", gw.logins)
	}
}

func TestShellLoginWrongPassword(t *testing.T) {
	out := runScript(t, &scriptGateway{}, "login\nalice\nwrong\n\nsecret1\nquit\n")

	requireOutput(t, out, "error: invalid_credentials (code 2003): Incorrect username or password", "username [alice]", "logged in")
}

func TestShellEndOfInput(t *testing.T) {
	out := runScript(t, &scriptGateway{}, "help\nfrobnicate\nregister\nalice\n")

	requireOutput(t, out, "commands: register", `unknown command "frobnicate"`, "email: ")
}

func TestRunAgainstIdentityd(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     20 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("authflow-cli-test-key-authflow!!"),
	})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	hasher, err := password.NewArgon2(password.Config{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16, MinPasswordBytes: 6,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	svc, err := identity.New(identity.Deps{
		Redis:    rdb,
		Tokens:   tokens,
		Mailer:   identity.NewLogMailer(zap.NewNop()),
		Hasher:   hasher,
		Settings: identity.DefaultSettings(),
	})
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	router, err := httpapi.NewRouter(httpapi.Options{Service: svc, Tokens: tokens})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	script := "register\nroot\nroot@example.com\nsecret1\nsecret1\nlogin\nroot\nsecret1\nquit\n"
	err = run(context.Background(), options{server: srv.URL, locale: "en", logLevel: "error"}, strings.NewReader(script), stdout, stderr)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	requireOutput(t, stdout.String(), "registered root <root@example.com>", "logged in: bearer token, expires in 20m0s")
	requireOutput(t, stderr.String(), `"event_type":"login_succeeded"`, `"flow":"registration"`)
}

func TestRunWritesAuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	stdout := &syncBuffer{}
	gw := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(gw.Close)

	err := run(context.Background(), options{server: gw.URL, logLevel: "debug", auditFile: path},
		strings.NewReader("register\nx\nx@example.com\nsecret1\nother\n"), stdout, &syncBuffer{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	requireOutput(t, string(data), `"flow":"registration"`, `"event_type":"submit_rejected"`)
}

func TestRunRejectsBadServer(t *testing.T) {
	err := run(context.Background(), options{server: "ftp://example.com", logLevel: "warn"}, strings.NewReader(""), &syncBuffer{}, &syncBuffer{})
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
