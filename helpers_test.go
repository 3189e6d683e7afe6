package authflow

import (
	"context"
	"sync"
	"testing"
	"time"
)

// manualScheduler is a fake clock: callbacks run only when Advance passes
// their deadline.
type manualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	pending []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, at: s.now + d, f: f}
	s.pending = append(s.pending, t)
	return t
}

// Advance moves the clock forward by d, running due callbacks in order.
func (s *manualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var next *manualTimer
		for _, t := range s.pending {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()

		next.f()
	}
}

// Active counts callbacks that are scheduled and not yet run or stopped.
func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeGateway returns scripted results and records calls. An operation
// listed in block waits for its channel (or ctx) before answering.
type fakeGateway struct {
	mu sync.Mutex

	user        UserRecord
	registerErr error
	sendErrs    []error
	verifyErr   error
	resetErr    error
	loginErrs   []error
	token       Token
	challenge   Challenge
	chalErr     error

	calls    map[string]int
	sends    []sendCall
	verifies []verifyCall
	resets   []resetCall
	logins   []LoginRequest

	block   map[string]chan struct{}
	started chan string
}

type sendCall struct {
	identifier string
	purpose    Purpose
}

type verifyCall struct {
	identifier, code string
	purpose          Purpose
}

type resetCall struct {
	identifier, code, secret string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		user:      UserRecord{ID: "u1", Username: "alice", Email: "a@b.com"},
		token:     Token{AccessToken: "tok", TokenType: "bearer"},
		challenge: Challenge{ID: "c1", Question: "2 + 3 = ?"},
		calls:     map[string]int{},
		block:     map[string]chan struct{}{},
		started:   make(chan string, 16),
	}
}

// hold makes op wait until the returned func is called.
func (g *fakeGateway) hold(op string) (release func()) {
	ch := make(chan struct{})
	g.mu.Lock()
	g.block[op] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (g *fakeGateway) enter(ctx context.Context, op string) error {
	g.mu.Lock()
	g.calls[op]++
	ch := g.block[op]
	g.mu.Unlock()

	if ch == nil {
		return nil
	}
	g.started <- op
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) Register(ctx context.Context, req RegisterRequest) (UserRecord, error) {
	if err := g.enter(ctx, "register"); err != nil {
		return UserRecord{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.registerErr != nil {
		return UserRecord{}, g.registerErr
	}
	return g.user, nil
}

func (g *fakeGateway) RequestCode(ctx context.Context, identifier string, purpose Purpose) error {
	if err := g.enter(ctx, "request_code"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, sendCall{identifier: identifier, purpose: purpose})
	if len(g.sendErrs) == 0 {
		return nil
	}
	err := g.sendErrs[0]
	g.sendErrs = g.sendErrs[1:]
	return err
}

func (g *fakeGateway) VerifyCode(ctx context.Context, identifier, code string, purpose Purpose) error {
	if err := g.enter(ctx, "verify_code"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies = append(g.verifies, verifyCall{identifier: identifier, code: code, purpose: purpose})
	return g.verifyErr
}

func (g *fakeGateway) ResetPassword(ctx context.Context, identifier, code, newSecret string) error {
	if err := g.enter(ctx, "reset_password"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resets = append(g.resets, resetCall{identifier: identifier, code: code, secret: newSecret})
	return g.resetErr
}

func (g *fakeGateway) Login(ctx context.Context, req LoginRequest) (Token, error) {
	if err := g.enter(ctx, "login"); err != nil {
		return Token{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logins = append(g.logins, req)
	if len(g.loginErrs) > 0 {
		err := g.loginErrs[0]
		g.loginErrs = g.loginErrs[1:]
		if err != nil {
			return Token{}, err
		}
	}
	return g.token, nil
}

func (g *fakeGateway) Challenge(ctx context.Context) (Challenge, error) {
	if err := g.enter(ctx, "challenge"); err != nil {
		return Challenge{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chalErr != nil {
		return Challenge{}, g.chalErr
	}
	return g.challenge, nil
}

type testEnv struct {
	client *Client
	gw     *fakeGateway
	clock  *manualScheduler
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := defaultConfig()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	gw := newFakeGateway()
	clock := &manualScheduler{}
	client, err := New().
		WithConfig(cfg).
		WithGateway(gw).
		WithScheduler(clock).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)

	return &testEnv{client: client, gw: gw, clock: clock}
}

func waitStarted(t *testing.T, gw *fakeGateway, op string) {
	t.Helper()
	select {
	case got := <-gw.started:
		if got != op {
			t.Fatalf("expected %s to start, got %s", op, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("%s never started", op)
	}
}

func validForm() RegistrationForm {
	return RegistrationForm{
		Username:        "alice",
		Email:           "a@b.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}
