package authflow

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

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

func TestAuditDisabledNoEvents(t *testing.T) {
	sink := NewChannelSink(8)
	client, err := New().WithGateway(newFakeGateway()).WithScheduler(&manualScheduler{}).WithAuditSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer client.Close()

	f := client.NewRegistrationFlow()
	_ = f.SubmitForm(context.Background(), validForm())

	select {
	case ev := <-sink.Events():
		t.Fatalf("expected no events when audit is disabled, got %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestAuditEventsCarryNoSecrets(t *testing.T) {
	var buf syncBuffer
	cfg := defaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false

	gw := newFakeGateway()
	gw.resetErr = &GatewayError{Kind: FailureValidation, Message: "weak", Fields: map[string]string{"newPassword": "too common"}}
	client, err := New().WithConfig(cfg).WithGateway(gw).WithScheduler(&manualScheduler{}).WithAuditSink(NewJSONWriterSink(&buf)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-42")
	f := client.NewRecoveryFlow()
	_ = f.SubmitIdentify(ctx, "alice@example.com")
	_ = f.SetCode("918273")
	_ = f.SetNewPassword("hunter22")
	_ = f.SetConfirmPassword("hunter22")
	_ = f.SubmitReset(ctx)
	client.Close()

	out := buf.String()
	for _, secret := range []string{"918273", "hunter22", "alice@example.com", "too common"} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked %q:\n%s", secret, out)
		}
	}
	for _, want := range []string{`"request_id":"req-42"`, `"identifier":"a***@example.com"`, `"event_type":"submit_failed"`, `"failure_kind":"validation"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in:\n%s", want, out)
		}
	}
}
