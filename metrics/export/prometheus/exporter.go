package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

type metricsSource interface {
	MetricsSnapshot() authflow.MetricsSnapshot
	AuditDropped() uint64
}

// PrometheusExporter renders client metrics in the Prometheus text
// exposition format.
type PrometheusExporter struct {
	source metricsSource
}

func NewPrometheusExporter(client *authflow.Client) *PrometheusExporter {
	return &PrometheusExporter{source: client}
}

// NewPrometheusExporterFromSource reads from anything with the two metric
// accessors of [authflow.Client].
func NewPrometheusExporterFromSource(source metricsSource) *PrometheusExporter {
	return &PrometheusExporter{source: source}
}

func (p *PrometheusExporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = p.WriteTo(w)
	})
}

// Render returns the current metrics, or "" when metrics are disabled and
// no audit event was dropped.
func (p *PrometheusExporter) Render() string {
	var b strings.Builder
	_, _ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes what Render returns to w.
func (p *PrometheusExporter) WriteTo(w io.Writer) (int64, error) {
	if p == nil || p.source == nil {
		return 0, nil
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return 0, nil
	}

	cw := &countingWriter{w: bufio.NewWriterSize(w, 4096)}
	for _, def := range internaldefs.CounterDefs {
		cw.header(def.Name, def.Help, "counter")
		cw.sample(def.Name, "", snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(snap.Histograms[def.ID])
		cw.header(def.Name, def.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			cw.sample(def.Name+"_bucket", `le="`+le+`"`, cumulative[i])
		}
		cw.sample(def.Name+"_count", "", cumulative[len(cumulative)-1])
		sum := 0.0
		if def.ID == authflow.MetricGatewayLatency {
			sum = snap.LatencySum.Seconds()
		}
		cw.line(def.Name + "_sum " + strconv.FormatFloat(sum, 'g', -1, 64))
	}
	cw.header("authflow_audit_dropped_total", "Audit events dropped because the sink buffer was full.", "counter")
	cw.sample("authflow_audit_dropped_total", "", dropped)

	if cw.err == nil {
		cw.err = cw.w.Flush()
	}
	return cw.n, cw.err
}

// countingWriter stops at the first write error and remembers it.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) line(s string) {
	if c.err != nil {
		return
	}
	n, err := c.w.WriteString(s + "\n")
	c.n += int64(n)
	c.err = err
}

func (c *countingWriter) header(name, help, typ string) {
	c.line("# HELP " + name + " " + escapeHelp(help))
	c.line("# TYPE " + name + " " + typ)
}

func (c *countingWriter) sample(name, labels string, v uint64) {
	if labels != "" {
		name += "{" + labels + "}"
	}
	c.line(name + " " + strconv.FormatUint(v, 10))
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
