package authflow

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// flowCore holds what every step flow shares: the lock, the cooldown, the
// in-flight cancel func and the change listeners. Gateway calls are made
// without mu held; listeners and cooldown changes run after it is released.
type flowCore struct {
	client   *Client
	name     string
	logger   *zap.Logger
	cooldown *CooldownTimer

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc

	listenersMu sync.Mutex
	listeners   []func(Snapshot)
	snapshot    func() Snapshot
}

func (c *Client) newFlowCore(name string, snapshot func() Snapshot) *flowCore {
	core := &flowCore{
		client:   c,
		name:     name,
		logger:   c.logger.Named(name),
		cooldown: c.newCooldown(),
		snapshot: snapshot,
	}
	core.cooldown.OnChange(func(int) { core.notify() })
	return core
}

// beginLocked derives the context of a new call. Back or Close cancels it.
func (f *flowCore) beginLocked(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	return callCtx
}

func (f *flowCore) endLocked() {
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
}

// abandoned reports a response that arrived after the user left its step.
func (f *flowCore) abandoned(ctx context.Context, step Step, identifier string, err error) error {
	f.client.metricInc(MetricStaleResponseDropped)
	f.logger.Debug("dropped late response", zap.String("step", string(step)), zap.Error(err))
	f.client.emitAudit(ctx, auditRecord{
		flow:       f.name,
		eventType:  AuditStaleResponse,
		step:       step,
		identifier: identifier,
		err:        err,
	})
	return ErrStepAbandoned
}

func (f *flowCore) applyEffectsArm(arm bool) {
	if arm {
		f.cooldown.Arm(f.client.cooldownSeconds())
	}
}

// OnChange registers fn to receive a snapshot after every state change,
// including cooldown ticks. fn must not block.
func (f *flowCore) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	f.listenersMu.Lock()
	f.listeners = append(f.listeners, fn)
	f.listenersMu.Unlock()
}

func (f *flowCore) notify() {
	f.listenersMu.Lock()
	if len(f.listeners) == 0 {
		f.listenersMu.Unlock()
		return
	}
	listeners := make([]func(Snapshot), len(f.listeners))
	copy(listeners, f.listeners)
	f.listenersMu.Unlock()

	snap := f.snapshot()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Cooldown returns the seconds left before a resend is allowed.
func (f *flowCore) Cooldown() int {
	return f.cooldown.Remaining()
}

// Close cancels any outstanding call and the cooldown. Later actions return
// ErrFlowClosed.
func (f *flowCore) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.endLocked()
	f.mu.Unlock()

	f.cooldown.Cancel()
}
