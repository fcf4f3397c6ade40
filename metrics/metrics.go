// Package metrics exposes a broadcast server's runtime state as Prometheus
// metrics: active client count, bytes broadcast, and malformed packet
// counts, following the const-metric collector pattern used for exporting
// per-connection TCP stats elsewhere in the ecosystem.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scenewire/scenewire/server"
)

const namespace = "scenewire"

// ServerSource is the subset of *server.Server the collector reads. A
// narrow interface keeps this package testable without a real listener.
type ServerSource interface {
	ActiveClientCount() int
	BytesSent() int64
	MalformedPacketCount() int64
}

// Collector adapts a ServerSource to prometheus.Collector. It holds no
// state of its own; every Collect call reads the server fresh, so a
// scrape always reflects the current connection table rather than a
// stale snapshot.
type Collector struct {
	src ServerSource

	activeClients *prometheus.Desc
	bytesSent     *prometheus.Desc
	malformed     *prometheus.Desc
}

// NewCollector wraps src for export under the registry it is registered
// with.
func NewCollector(src ServerSource) *Collector {
	return &Collector{
		src: src,
		activeClients: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "active_clients"),
			"Number of clients currently committed and receiving broadcasts.",
			nil, nil,
		),
		bytesSent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bytes_sent_total"),
			"Total bytes written across all clients since the server started.",
			nil, nil,
		),
		malformed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "malformed_packets_total"),
			"Total inbound packets rejected for a bad marker, length, or CRC.",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.activeClients
	descs <- c.bytesSent
	descs <- c.malformed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.activeClients, prometheus.GaugeValue, float64(c.src.ActiveClientCount()))
	ch <- prometheus.MustNewConstMetric(c.bytesSent, prometheus.CounterValue, float64(c.src.BytesSent()))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(c.src.MalformedPacketCount()))
}

var _ ServerSource = (*server.Server)(nil)
