package metrics

import (
	"github.com/CZERTAINLY/dumpsys/internal/model"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder collects metrics of a single dumpsys run. It uses its own
// registry, so the textfile contains nothing but dumpsys metrics.
type Recorder struct {
	reg      *prometheus.Registry
	dumps    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	listed   prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		dumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dumpsys_dumps_total",
			Help: "Service dumps by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dumpsys_dump_duration_seconds",
			Help:    "Service dump duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
		}, []string{"service"}),
		listed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dumpsys_services_listed",
			Help: "Number of services returned by the registry",
		}),
	}
	r.reg.MustRegister(r.dumps, r.duration, r.listed)
	return r
}

// Observe records a dump result. Services, which were not running, have no duration.
func (r *Recorder) Observe(res model.DumpResult) {
	r.dumps.WithLabelValues(res.Outcome.String()).Inc()
	if res.Outcome == model.OutcomeNotRunning {
		return
	}
	r.duration.WithLabelValues(res.Name).Observe(res.Duration().Seconds())
}

func (r *Recorder) Listed(n int) {
	r.listed.Set(float64(n))
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile stores the metrics in a format of the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
