// Package internaldefs holds the metric names and bucket bounds shared by the
// Prometheus and OTel exporters, so both publish identical series.
//
// It must not import an exporter package or perform I/O.
package internaldefs
