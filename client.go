package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// Client creates flows sharing one gateway, configuration and side channel.
// It is safe for concurrent use; each flow it creates is independent.
type Client struct {
	config    Config
	gateway   Gateway
	localizer Localizer
	logger    *zap.Logger
	scheduler Scheduler
	audit     *audit.Dispatcher
	metrics   *Metrics
}

// Close flushes queued audit events. Flows created earlier keep working but
// no longer emit audit events.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil {
		return emptySnapshot()
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) newCooldown() *CooldownTimer {
	return NewCooldownTimer(c.scheduler, c.config.Cooldown.Tick)
}

func (c *Client) cooldownSeconds() int {
	return int(c.config.Cooldown.Window / time.Second)
}

// timed runs one gateway call and records its latency.
func (c *Client) timed(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if c.metrics.LatencyEnabled() {
		c.metrics.Observe(MetricGatewayLatency, elapsed)
	}
	if err != nil {
		c.logger.Debug("gateway call failed",
			zap.String("op", op),
			zap.Duration("elapsed", elapsed),
			zap.Stringer("kind", FailureKindOf(err)),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) register(ctx context.Context, req RegisterRequest) (UserRecord, error) {
	var user UserRecord
	err := c.timed("register", func() error {
		var err error
		user, err = c.gateway.Register(ctx, req)
		return err
	})
	return user, err
}

func (c *Client) requestCode(ctx context.Context, identifier string, purpose Purpose) error {
	err := c.timed("request_code", func() error {
		return c.gateway.RequestCode(ctx, identifier, purpose)
	})
	if err != nil {
		c.metricInc(MetricCodeSendFailure)
	} else {
		c.metricInc(MetricCodeSendSuccess)
	}
	return err
}

func (c *Client) verifyCode(ctx context.Context, identifier, code string, purpose Purpose) error {
	return c.timed("verify_code", func() error {
		return c.gateway.VerifyCode(ctx, identifier, code, purpose)
	})
}

func (c *Client) resetPassword(ctx context.Context, identifier, code, newSecret string) error {
	return c.timed("reset_password", func() error {
		return c.gateway.ResetPassword(ctx, identifier, code, newSecret)
	})
}

func (c *Client) login(ctx context.Context, req LoginRequest) (Token, error) {
	var tok Token
	err := c.timed("login", func() error {
		var err error
		tok, err = c.gateway.Login(ctx, req)
		return err
	})
	return tok, err
}

func (c *Client) challenge(ctx context.Context) (Challenge, error) {
	var ch Challenge
	err := c.timed("challenge", func() error {
		var err error
		ch, err = c.gateway.Challenge(ctx)
		return err
	})
	return ch, err
}
