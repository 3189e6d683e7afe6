package authflow

import (
	"errors"

	"github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// Builder assembles a Client. A Builder can be used once.
type Builder struct {
	config Config

	gateway   Gateway
	localizer Localizer
	auditSink AuditSink
	logger    *zap.Logger
	scheduler Scheduler

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithGateway sets the remote identity service. Required.
func (b *Builder) WithGateway(gw Gateway) *Builder {
	b.gateway = gw
	return b
}

// WithLocalizer replaces DefaultCatalog for locally produced field messages.
func (b *Builder) WithLocalizer(loc Localizer) *Builder {
	b.localizer = loc
	return b
}

// WithAuditSink sets where audit events go. It has no effect unless
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for failures that do not map onto a field.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithScheduler replaces the wall clock driving cooldown ticks.
func (b *Builder) WithScheduler(s Scheduler) *Builder {
	b.scheduler = s
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.gateway == nil {
		return nil, errors.New("gateway required")
	}

	client := &Client{
		config:    cfg,
		gateway:   b.gateway,
		localizer: b.localizer,
		logger:    b.logger,
		scheduler: b.scheduler,
	}
	if client.localizer == nil {
		client.localizer = DefaultCatalog()
	}
	if client.logger == nil {
		client.logger = zap.NewNop()
	}
	if client.scheduler == nil {
		client.scheduler = realScheduler{}
	}

	client.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	client.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return client, nil
}
