package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	successfulBuilds prom.Counter
	failedBuilds     prom.Counter
	nonLibraryBuilds prom.Counter
	buildDuration    prom.Histogram
	targetDuration   *prom.HistogramVec
	toolchainUpdates *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		successfulBuilds: prom.NewCounter(prom.CounterOpts{
			Namespace: "pkgdocs",
			Name:      "successful_builds_total",
			Help:      "Number of packages whose default target documented successfully",
		}),
		failedBuilds: prom.NewCounter(prom.CounterOpts{
			Namespace: "pkgdocs",
			Name:      "failed_builds_total",
			Help:      "Number of library packages that failed to document",
		}),
		nonLibraryBuilds: prom.NewCounter(prom.CounterOpts{
			Namespace: "pkgdocs",
			Name:      "non_library_builds_total",
			Help:      "Number of packages without a library target",
		}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "pkgdocs",
			Name:      "package_build_duration_seconds",
			Help:      "Duration of a complete package build attempt",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900, 1800},
		}),
		targetDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "pkgdocs",
			Name:      "target_build_duration_seconds",
			Help:      "Duration of a single target documentation build",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"result"}),
		toolchainUpdates: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "pkgdocs",
			Name:      "toolchain_updates_total",
			Help:      "Toolchain reconciliations by whether the detected version changed",
		}, []string{"changed"}),
	}
	reg.MustRegister(pr.successfulBuilds, pr.failedBuilds, pr.nonLibraryBuilds,
		pr.buildDuration, pr.targetDuration, pr.toolchainUpdates)
	return pr
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcome) {
	if p == nil {
		return
	}
	switch outcome {
	case OutcomeSuccessful:
		p.successfulBuilds.Inc()
	case OutcomeFailed:
		p.failedBuilds.Inc()
	case OutcomeNonLibrary:
		p.nonLibraryBuilds.Inc()
	}
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

// ObserveTargetBuild records one target build. Targets are not used as a label to keep cardinality bounded.
func (p *PrometheusRecorder) ObserveTargetBuild(_ string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.targetDuration.WithLabelValues(res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncToolchainUpdate(versionChanged bool) {
	if p == nil {
		return
	}
	changed := "false"
	if versionChanged {
		changed = "true"
	}
	p.toolchainUpdates.WithLabelValues(changed).Inc()
}
