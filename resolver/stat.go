package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter pairs a packet count with a byte total.
type Counter struct {
	Count uint64
	Bytes uint64
}

// Transport holds the send and receive counters of one transport.
type Transport struct {
	Sent Counter
	Rcvd Counter
}

// Stat is the cumulative activity of a resolver. Snapshots never reset the
// underlying counters.
type Stat struct {
	Queries uint64
	UDP     Transport
	TCP     Transport
}

var (
	metricQueries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "resolv",
		Name:      "queries_total",
		Help:      "Queries submitted.",
	})

	metricSentPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolv",
		Name:      "sent_packets_total",
		Help:      "Packets sent by transport.",
	}, []string{"transport"})

	metricSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolv",
		Name:      "sent_bytes_total",
		Help:      "Bytes sent by transport.",
	}, []string{"transport"})

	metricRcvdPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolv",
		Name:      "rcvd_packets_total",
		Help:      "Packets received by transport.",
	}, []string{"transport"})

	metricRcvdBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "resolv",
		Name:      "rcvd_bytes_total",
		Help:      "Bytes received by transport.",
	}, []string{"transport"})
)

func transportLabel(tcp bool) string {
	if tcp {
		return "tcp"
	}
	return "udp"
}

func (r *Resolver) countSent(tcp bool, n int) {
	t := &r.stats.UDP
	if tcp {
		t = &r.stats.TCP
	}
	t.Sent.Count++
	t.Sent.Bytes += uint64(n)

	metricSentPackets.WithLabelValues(transportLabel(tcp)).Inc()
	metricSentBytes.WithLabelValues(transportLabel(tcp)).Add(float64(n))
}

func (r *Resolver) countRcvd(tcp bool, n int) {
	t := &r.stats.UDP
	if tcp {
		t = &r.stats.TCP
	}
	t.Rcvd.Count++
	t.Rcvd.Bytes += uint64(n)

	metricRcvdPackets.WithLabelValues(transportLabel(tcp)).Inc()
	metricRcvdBytes.WithLabelValues(transportLabel(tcp)).Add(float64(n))
}
