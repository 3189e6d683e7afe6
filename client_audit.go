package authflow

import (
	"context"
	"strconv"

	"github.com/MrEthical07/authflow/internal/audit"
	"go.uber.org/zap"
)

// auditRecord is the flow-specific part of an audit event.
type auditRecord struct {
	flow       string
	eventType  string
	step       Step
	identifier string
	success    bool
	err        error
	metadata   map[string]string
}

func (c *Client) emitAudit(ctx context.Context, rec auditRecord) {
	if c == nil || c.audit == nil {
		return
	}

	event := AuditEvent{
		Flow:       rec.flow,
		EventType:  rec.eventType,
		Step:       string(rec.step),
		Identifier: audit.MaskIdentifier(rec.identifier),
		RequestID:  RequestIDFromContext(ctx),
		Success:    rec.success,
		Metadata:   rec.metadata,
	}
	if rec.err != nil {
		kind := FailureKindOf(rec.err)
		event.Kind = kind.String()
		if gwErr := asGatewayError(rec.err); gwErr != nil && gwErr.Code != 0 {
			if event.Metadata == nil {
				event.Metadata = map[string]string{}
			}
			event.Metadata["code"] = strconv.Itoa(gwErr.Code)
		}
		event.Error = auditErrorCode(rec.err)
	}

	c.audit.Emit(ctx, event)
}

// reportUnmapped is the side channel for failures that land on no field.
func (c *Client) reportUnmapped(ctx context.Context, logger *zap.Logger, rec auditRecord) {
	c.metricInc(MetricUnmappedFailure)
	logger.Warn("flow failure not shown on any field",
		zap.String("step", string(rec.step)),
		zap.Stringer("kind", FailureKindOf(rec.err)),
		zap.String("request_id", RequestIDFromContext(ctx)),
		zap.Error(rec.err),
	)
	rec.eventType = AuditUnmappedFailure
	c.emitAudit(ctx, rec)
}

// auditErrorCode keeps free-form server messages out of audit records.
func auditErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case asGatewayError(err) != nil, FailureKindOf(err) == FailureTransport:
		return FailureKindOf(err).String()
	default:
		return "internal_error"
	}
}
