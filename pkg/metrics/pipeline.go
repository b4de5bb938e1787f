package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics records per-step pipeline outcomes.
type PipelineMetrics struct {
	stepDuration *prometheus.HistogramVec
	stepSuccess  *prometheus.CounterVec
	stepFailure  *prometheus.CounterVec
	clips        *prometheus.CounterVec
	quotaDenied  prometheus.Counter
	uploads      *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	stepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_step_duration_seconds",
		Help:    "Duration of pipeline steps in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"step"})
	stepSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_step_success",
		Help: "Successful pipeline step executions.",
	}, []string{"step"})
	stepFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_step_failure",
		Help: "Failed pipeline step executions.",
	}, []string{"step"})
	clips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_clips_total",
		Help: "Rendered clip outcomes.",
	}, []string{"status"})
	quotaDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_quota_denied_total",
		Help: "Pipeline runs rejected because the plan quota was exhausted.",
	})
	uploads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_uploads_total",
		Help: "Clip upload outcomes per platform.",
	}, []string{"platform", "status"})
	reg.MustRegister(stepDuration, stepSuccess, stepFailure, clips, quotaDenied, uploads)
	return &PipelineMetrics{
		stepDuration: stepDuration,
		stepSuccess:  stepSuccess,
		stepFailure:  stepFailure,
		clips:        clips,
		quotaDenied:  quotaDenied,
		uploads:      uploads,
	}
}

// ObserveStepDuration records the duration for the named step.
func (p *PipelineMetrics) ObserveStepDuration(step string, duration time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(normalizeLabel(step)).Observe(duration.Seconds())
}

// IncStepSuccess increments the success counter for the named step.
func (p *PipelineMetrics) IncStepSuccess(step string) {
	if p == nil || p.stepSuccess == nil {
		return
	}
	p.stepSuccess.WithLabelValues(normalizeLabel(step)).Inc()
}

// IncStepFailure increments the failure counter for the named step.
func (p *PipelineMetrics) IncStepFailure(step string) {
	if p == nil || p.stepFailure == nil {
		return
	}
	p.stepFailure.WithLabelValues(normalizeLabel(step)).Inc()
}

// IncClip counts one rendered clip outcome (completed/failed).
func (p *PipelineMetrics) IncClip(status string) {
	if p == nil || p.clips == nil {
		return
	}
	p.clips.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncQuotaDenied counts a run rejected at quota reservation.
func (p *PipelineMetrics) IncQuotaDenied() {
	if p == nil || p.quotaDenied == nil {
		return
	}
	p.quotaDenied.Inc()
}

// IncUpload counts one platform upload outcome.
func (p *PipelineMetrics) IncUpload(platform, status string) {
	if p == nil || p.uploads == nil {
		return
	}
	p.uploads.WithLabelValues(normalizeLabel(platform), normalizeLabel(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
