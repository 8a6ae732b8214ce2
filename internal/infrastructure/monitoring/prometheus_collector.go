package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports the gateway's operational metrics. It satisfies
// the manager's metrics hook and is also fed by the thermal monitor and the
// branch controller's port pool.
type PrometheusCollector struct {
	peersActive        prometheus.Gauge
	peerConnectsTotal  prometheus.Counter
	peerJoinsTotal     prometheus.Counter
	peerLeavesTotal    prometheus.Counter
	negotiationSeconds prometheus.Histogram

	portsInUse prometheus.Gauge
	portsFree  prometheus.Gauge

	cpuTemperature prometheus.Gauge
	gpuTemperature prometheus.Gauge
	diskUsageRatio prometheus.Gauge

	branchBytes *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		peersActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_peers_active",
			Help: "Number of live viewer sessions in any state",
		}),

		peerConnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camgate_peer_connects_total",
			Help: "Total sessions that reached the connected state",
		}),

		peerJoinsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camgate_peer_joins_total",
			Help: "Total viewer joins accepted",
		}),

		peerLeavesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "camgate_peer_leaves_total",
			Help: "Total viewer sessions removed",
		}),

		negotiationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "camgate_negotiation_duration_seconds",
			Help:    "Time from viewer join to connection established",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		portsInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_stream_ports_in_use",
			Help: "Stream ports currently bound to branches",
		}),

		portsFree: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_stream_ports_free",
			Help: "Stream ports available for new branches",
		}),

		cpuTemperature: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_cpu_temperature_celsius",
			Help: "SoC temperature",
		}),

		gpuTemperature: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_gpu_temperature_celsius",
			Help: "GPU/ISP temperature",
		}),

		diskUsageRatio: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "camgate_recording_disk_usage_ratio",
			Help: "Recording volume usage, 0-1",
		}),

		branchBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "camgate_branch_bytes_total",
			Help: "Bytes fanned out per distribution point",
		}, []string{"element"}),
	}
}

func (p *PrometheusCollector) PeerAdded() {
	p.peerJoinsTotal.Inc()
	p.peersActive.Inc()
}

func (p *PrometheusCollector) PeerRemoved() {
	p.peerLeavesTotal.Inc()
	p.peersActive.Dec()
}

func (p *PrometheusCollector) PeerConnected() {
	p.peerConnectsTotal.Inc()
}

func (p *PrometheusCollector) NegotiationDuration(d time.Duration) {
	p.negotiationSeconds.Observe(d.Seconds())
}

// SetPortUsage reflects the pool's counters after each sample sweep.
func (p *PrometheusCollector) SetPortUsage(inUse, free int) {
	p.portsInUse.Set(float64(inUse))
	p.portsFree.Set(float64(free))
}

func (p *PrometheusCollector) SetTemperatures(cpu, gpu float64) {
	p.cpuTemperature.Set(cpu)
	p.gpuTemperature.Set(gpu)
}

func (p *PrometheusCollector) SetDiskUsage(ratio float64) {
	p.diskUsageRatio.Set(ratio)
}

func (p *PrometheusCollector) AddBranchBytes(element string, n int) {
	p.branchBytes.WithLabelValues(element).Add(float64(n))
}
