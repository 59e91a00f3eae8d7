package metrics

import (
	"context"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/melih/diskforge/internal/core/domain"
)

// Recorder implements ports.StatusObserver using Prometheus metrics.
type Recorder struct {
	transitions *prom.CounterVec
	duration    *prom.HistogramVec
}

// NewRecorder constructs the build metrics and registers them with reg.
func NewRecorder(reg prom.Registerer) *Recorder {
	r := &Recorder{
		transitions: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "diskforge",
			Name:      "build_status_transitions_total",
			Help:      "Build status transitions by image type and status",
		}, []string{"type", "status"}),
		duration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "diskforge",
			Name:      "build_duration_seconds",
			Help:      "Time from build creation to its terminal status",
			Buckets:   []float64{30, 60, 120, 300, 600, 900, 1800, 3600},
		}, []string{"type", "status"}),
	}
	reg.MustRegister(r.transitions, r.duration)
	return r
}

// StatusChanged counts the transition and observes the duration of finished builds.
func (r *Recorder) StatusChanged(_ context.Context, rec domain.BuildRecord) {
	r.transitions.WithLabelValues(string(rec.Type), string(rec.Status)).Inc()
	if rec.Status.Terminal() {
		r.duration.WithLabelValues(string(rec.Type), string(rec.Status)).
			Observe(rec.UpdatedAt.Sub(rec.CreatedAt).Seconds())
	}
}
