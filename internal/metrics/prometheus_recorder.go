package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "catalogbuilder"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	fetchDuration    *prom.HistogramVec
	fetchRetries     prom.Counter
	attributeResults *prom.CounterVec
	projectStatus    *prom.CounterVec
	projectDuration  prom.Histogram
	buildDuration    prom.Histogram
}

// NewPrometheusRecorder constructs and registers the collectors on reg. A nil
// reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		fetchDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of document fetches",
			Buckets:   prom.DefBuckets,
		}, []string{"kind", "result"}),
		fetchRetries: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Fetch attempts retried after a transient failure",
		}),
		attributeResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "attribute_results_total",
			Help:      "Attribute resolutions by key and result",
		}, []string{"attribute", "result"}),
		projectStatus: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "project_status_total",
			Help:      "Projects by final status",
		}, []string{"status"}),
		projectDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "project_duration_seconds",
			Help:      "Time to build one project record",
			Buckets:   prom.DefBuckets,
		}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total catalog build duration",
			Buckets:   prom.DefBuckets,
		}),
	}
	reg.MustRegister(pr.fetchDuration, pr.fetchRetries, pr.attributeResults, pr.projectStatus, pr.projectDuration, pr.buildDuration)
	return pr
}

func (p *PrometheusRecorder) ObserveFetch(kind string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.fetchDuration.WithLabelValues(kind, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncFetchRetry() {
	if p == nil {
		return
	}
	p.fetchRetries.Inc()
}

func (p *PrometheusRecorder) IncAttributeResult(key string, result string) {
	if p == nil {
		return
	}
	p.attributeResults.WithLabelValues(key, result).Inc()
}

func (p *PrometheusRecorder) IncProjectStatus(status string) {
	if p == nil {
		return
	}
	p.projectStatus.WithLabelValues(status).Inc()
}

func (p *PrometheusRecorder) ObserveProjectDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.projectDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

// WriteTextfile dumps g in the node_exporter textfile format.
func WriteTextfile(path string, g prom.Gatherer) error {
	return prom.WriteToTextfile(path, g)
}
