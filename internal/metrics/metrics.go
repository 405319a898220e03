// ABOUTME: Prometheus instrumentation for generation attempts and gallery decisions
// ABOUTME: Private-registry recorder with a no-op twin for when metrics are disabled

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives lifecycle observations.
type Recorder interface {
	// ObserveAttempt records a finished remote call. outcome is "succeeded"
	// or a failure kind name.
	ObserveAttempt(role, outcome string, d time.Duration)
	IncAccept(role, mode string)
	IncDiscard(role string)
	SetGalleryImages(n int)

	// WriteTextfile writes the current values in the node_exporter textfile
	// format.
	WriteTextfile(path string) error
}

// Prometheus is a Recorder backed by its own registry. Every value describes
// the current process only, so the attempt series are gauges named last_run
// rather than counters that would restart at zero on each invocation.
type Prometheus struct {
	registry        *prometheus.Registry
	attempts        *prometheus.GaugeVec
	attemptSeconds  *prometheus.GaugeVec
	accepts         *prometheus.GaugeVec
	discards        *prometheus.GaugeVec
	galleryImages   prometheus.Gauge
	lastRunUnixTime prometheus.Gauge
	now             func() time.Time
}

// New returns a Prometheus recorder when enabled, otherwise a no-op.
func New(enabled bool) Recorder {
	if !enabled {
		return Noop{}
	}
	return NewPrometheus()
}

// NewPrometheus creates a recorder registered on a fresh registry.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		attempts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imagegen_last_run_attempts",
			Help: "Generation and variation attempts finished by the last run",
		}, []string{"role", "outcome"}),

		attemptSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imagegen_last_run_attempt_duration_seconds",
			Help: "Duration of the last run's most recent remote image call",
		}, []string{"role"}),

		accepts: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imagegen_last_run_accepts",
			Help: "Results committed to the gallery by the last run",
		}, []string{"role", "mode"}),

		discards: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "imagegen_last_run_discards",
			Help: "Results discarded without saving by the last run",
		}, []string{"role"}),

		galleryImages: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imagegen_gallery_images",
			Help: "Number of images in the gallery",
		}),

		lastRunUnixTime: factory.NewGauge(prometheus.GaugeOpts{
			Name: "imagegen_last_run_timestamp_seconds",
			Help: "Unix time the last run wrote these metrics",
		}),

		now: time.Now,
	}
}

func (p *Prometheus) ObserveAttempt(role, outcome string, d time.Duration) {
	p.attempts.WithLabelValues(role, outcome).Inc()
	p.attemptSeconds.WithLabelValues(role).Set(d.Seconds())
}

func (p *Prometheus) IncAccept(role, mode string) {
	p.accepts.WithLabelValues(role, mode).Inc()
}

func (p *Prometheus) IncDiscard(role string) {
	p.discards.WithLabelValues(role).Inc()
}

func (p *Prometheus) SetGalleryImages(n int) {
	p.galleryImages.Set(float64(n))
}

// WriteTextfile stamps the run time and writes the registry atomically.
func (p *Prometheus) WriteTextfile(path string) error {
	p.lastRunUnixTime.Set(float64(p.now().UnixNano()) / 1e9)
	return prometheus.WriteToTextfile(path, p.registry)
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Noop discards every observation.
type Noop struct{}

func (Noop) ObserveAttempt(_, _ string, _ time.Duration) {}
func (Noop) IncAccept(_, _ string)                       {}
func (Noop) IncDiscard(_ string)                         {}
func (Noop) SetGalleryImages(_ int)                      {}
func (Noop) WriteTextfile(_ string) error                { return nil }
