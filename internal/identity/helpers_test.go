package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/jwt"
	"github.com/MrEthical07/authflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// lastCode extracts the code from the most recent message.
func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no email sent")
	}
	for _, tok := range strings.Fields(m.sent[len(m.sent)-1].Text) {
		if len(tok) == 6 && strings.Trim(tok, "0123456789") == "" {
			return tok
		}
	}
	t.Fatal("no code in email")
	return ""
}

type testEnv struct {
	svc    *Service
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	mailer *recordingMailer
	tokens *jwt.Manager
}

func newTestEnv(t *testing.T, mutate func(*Settings)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     30 * time.Minute,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("test-signing-key-test-signing-key"),
		Issuer:        "identityd",
	})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	hasher, err := password.NewArgon2(password.Config{
		Memory:           8 * 1024,
		Time:             1,
		Parallelism:      1,
		SaltLength:       16,
		KeyLength:        16,
		MinPasswordBytes: 6,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}

	settings := DefaultSettings()
	if mutate != nil {
		mutate(&settings)
	}
	mailer := &recordingMailer{}
	svc, err := New(Deps{
		Redis:    rdb,
		Tokens:   tokens,
		Mailer:   mailer,
		Hasher:   hasher,
		Settings: settings,
	})
	if err != nil {
		t.Fatalf("identity.New: %v", err)
	}
	return &testEnv{svc: svc, mr: mr, rdb: rdb, mailer: mailer, tokens: tokens}
}

// register creates an account and returns it. The first call creates the
// superuser; use seedSuperuser to get past it.
func (e *testEnv) register(t *testing.T, username, email string) *UserView {
	t.Helper()
	u, err := e.svc.Register(context.Background(), RegisterInput{Username: username, Email: email, Password: "secret1"})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return u
}

func (e *testEnv) seedSuperuser(t *testing.T) {
	t.Helper()
	e.register(t, "root", "root@example.com")
}

func requireCode(t *testing.T, err error, want Code) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error with code %d, got %v", want, err)
	}
	if e.Code != want {
		t.Fatalf("expected code %d, got %d (%v)", want, e.Code, err)
	}
	return e
}
