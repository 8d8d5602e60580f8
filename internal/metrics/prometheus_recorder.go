package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "shipyard"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg              *prom.Registry
	runDuration      prom.Histogram
	runOutcome       *prom.CounterVec
	jobDuration      *prom.HistogramVec
	jobResults       *prom.CounterVec
	stepResults      *prom.CounterVec
	cacheLookups     *prom.CounterVec
	cacheSaveFailure prom.Counter
	optionalDegraded *prom.CounterVec
	runningJobs      prom.Gauge
	releaseResults   *prom.CounterVec
	assetBytes       prom.Counter
}

// NewPrometheusRecorder constructs the metrics and registers them with reg
// (a fresh registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Total workflow run duration",
		Buckets:   prom.ExponentialBuckets(1, 2, 14),
	})
	pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "run_outcomes_total",
		Help:      "Workflow runs by overall status",
	}, []string{"outcome"})
	pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of individual jobs",
		Buckets:   prom.ExponentialBuckets(0.5, 2, 14),
	}, []string{"job"})
	pr.jobResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "job_results_total",
		Help:      "Job terminal states",
	}, []string{"job", "state"})
	pr.stepResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "step_results_total",
		Help:      "Step outcomes",
	}, []string{"outcome"})
	pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Cache restores by result",
	}, []string{"result"})
	pr.cacheSaveFailure = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "cache_save_failures_total",
		Help:      "Cache saves that failed and were ignored",
	})
	pr.optionalDegraded = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "optional_degraded_total",
		Help:      "Optional resources that could not be acquired",
	}, []string{"job", "name"})
	pr.runningJobs = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "running_jobs",
		Help:      "Jobs currently running",
	})
	pr.releaseResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "release_results_total",
		Help:      "Release gate final states",
	}, []string{"state"})
	pr.assetBytes = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "release_asset_bytes_total",
		Help:      "Bytes uploaded as release assets",
	})
	reg.MustRegister(pr.runDuration, pr.runOutcome, pr.jobDuration, pr.jobResults, pr.stepResults,
		pr.cacheLookups, pr.cacheSaveFailure, pr.optionalDegraded, pr.runningJobs, pr.releaseResults, pr.assetBytes)
	return pr
}

// Registry is the registry the metrics were registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveJobDuration(job string, d time.Duration) {
	if p == nil {
		return
	}
	p.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobResult(job, state string) {
	if p == nil {
		return
	}
	p.jobResults.WithLabelValues(job, state).Inc()
}

func (p *PrometheusRecorder) IncStepResult(outcome string) {
	if p == nil {
		return
	}
	p.stepResults.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncCacheLookup(hit bool) {
	if p == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncCacheSaveFailure() {
	if p == nil {
		return
	}
	p.cacheSaveFailure.Inc()
}

func (p *PrometheusRecorder) IncOptionalDegraded(job, name string) {
	if p == nil {
		return
	}
	p.optionalDegraded.WithLabelValues(job, name).Inc()
}

func (p *PrometheusRecorder) SetRunningJobs(n int) {
	if p == nil {
		return
	}
	p.runningJobs.Set(float64(n))
}

func (p *PrometheusRecorder) IncReleaseResult(state string) {
	if p == nil {
		return
	}
	p.releaseResults.WithLabelValues(state).Inc()
}

func (p *PrometheusRecorder) ObserveAssetUpload(bytes int64) {
	if p == nil {
		return
	}
	p.assetBytes.Add(float64(bytes))
}
