package authflow

import (
	"io"

	"github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// AuditEvent is one flow transition or failure.
type AuditEvent = audit.Event

// AuditSink receives audit events from the client's dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events on a channel, mostly for tests and UIs.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes events as JSON lines.
type JSONWriterSink = audit.JSONWriterSink

// ZapSink logs events through a zap logger.
type ZapSink = audit.ZapSink

// MultiSink fans each event out to several sinks in order.
type MultiSink = audit.MultiSink

func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

func NewZapSink(logger *zap.Logger) *ZapSink { return audit.NewZapSink(logger) }

// Audit event types.
const (
	AuditStepEntered      = "step_entered"
	AuditSubmitRejected   = "submit_rejected"
	AuditSubmitFailed     = "submit_failed"
	AuditCodeSent         = "code_sent"
	AuditCodeSendFailed   = "code_send_failed"
	AuditResendFailed     = "resend_failed"
	AuditStaleResponse    = "stale_response_dropped"
	AuditLoginSucceeded   = "login_succeeded"
	AuditChallengeIssued  = "challenge_issued"
	AuditUnmappedFailure  = "unmapped_failure"
	AuditChallengeFailure = "challenge_fetch_failed"
)
