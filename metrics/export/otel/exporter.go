package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// histogramGauges mirror one histogram as cumulative bucket gauges named
// <name>_bucket_le_<bound>, plus <name>_count and <name>_sum.
type histogramGauges struct {
	id      authflow.MetricID
	buckets []metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter keeps the instruments and the callback registered on one
// Meter. Values are read from the source at collection time.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration

	counters     map[authflow.MetricID]metric.Int64ObservableCounter
	histograms   []histogramGauges
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from client.
func NewOTelExporter(meter metric.Meter, client *authflow.Client) (*OTelExporter, error) {
	if client == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, client)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[authflow.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		h := histogramGauges{id: def.ID}
		for _, suffix := range internaldefs.HistogramBoundSuffix {
			g, err := meter.Int64ObservableGauge(def.Name+"_bucket_le_"+suffix, metric.WithDescription("Cumulative bucket count of "+def.Name+"."))
			if err != nil {
				return nil, fmt.Errorf("bucket gauge of %s: %w", def.Name, err)
			}
			h.buckets = append(h.buckets, g)
			observables = append(observables, g)
		}
		var err error
		if h.count, err = meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription("Samples in "+def.Name+".")); err != nil {
			return nil, fmt.Errorf("count gauge of %s: %w", def.Name, err)
		}
		if h.sum, err = meter.Float64ObservableGauge(def.Name+"_sum", metric.WithDescription("Sum of "+def.Name+"."), metric.WithUnit("s")); err != nil {
			return nil, fmt.Errorf("sum gauge of %s: %w", def.Name, err)
		}
		observables = append(observables, h.count, h.sum)
		e.histograms = append(e.histograms, h)
	}

	var err error
	e.auditDropped, err = meter.Int64ObservableCounter(
		"authflow_audit_dropped_total",
		metric.WithDescription("Audit events dropped because the sink buffer was full."),
	)
	if err != nil {
		return nil, fmt.Errorf("audit dropped counter: %w", err)
	}
	observables = append(observables, e.auditDropped)

	if e.registration, err = meter.RegisterCallback(e.observe, observables...); err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, h := range e.histograms {
		cumulative := internaldefs.CumulativeBuckets(snap.Histograms[h.id])
		for i, g := range h.buckets {
			o.ObserveInt64(g, int64(cumulative[i]))
		}
		o.ObserveInt64(h.count, int64(cumulative[len(cumulative)-1]))
		if h.id == authflow.MetricGatewayLatency {
			o.ObserveFloat64(h.sum, snap.LatencySum.Seconds())
		}
	}
	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
