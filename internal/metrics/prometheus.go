package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/ruleaudit/internal/analyzer"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds all analysis and API metrics.
type Registry struct {
	// Analysis metrics
	AnalysesTotal    *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram
	RulesAnalyzed    prometheus.Counter
	FindingsTotal    *prometheus.CounterVec
	Diagnostics      prometheus.Counter
	LastScore        *prometheus.GaugeVec

	// Recommendation metrics
	RemovalsSuggested prometheus.Counter

	// History metrics
	HistoryWrites *prometheus.CounterVec

	// API metrics
	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it if necessary. Its
// collectors are registered with prometheus.DefaultRegisterer.
func Get() *Registry {
	once.Do(func() {
		registry = NewRegistry(prometheus.DefaultRegisterer)
	})
	return registry
}

// NewRegistry creates the collectors and registers them with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	f := promauto.With(reg)
	r := &Registry{}

	r.AnalysesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleaudit_analyses_total",
		Help: "Total analysis runs by outcome",
	}, []string{"outcome"})

	r.AnalysisDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "ruleaudit_analysis_duration_seconds",
		Help:    "Time spent analyzing a rule set",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	})

	r.RulesAnalyzed = f.NewCounter(prometheus.CounterOpts{
		Name: "ruleaudit_rules_analyzed_total",
		Help: "Total rules submitted for analysis",
	})

	r.FindingsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleaudit_findings_total",
		Help: "Total findings reported, by kind and severity",
	}, []string{"kind", "severity"})

	r.Diagnostics = f.NewCounter(prometheus.CounterOpts{
		Name: "ruleaudit_invalid_rules_total",
		Help: "Total rules excluded from analysis as invalid",
	})

	r.LastScore = f.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ruleaudit_last_score",
		Help: "Score of the most recent analysis",
	}, []string{"score"})

	r.RemovalsSuggested = f.NewCounter(prometheus.CounterOpts{
		Name: "ruleaudit_removals_suggested_total",
		Help: "Total rules recommended for removal",
	})

	r.HistoryWrites = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleaudit_history_writes_total",
		Help: "Run history writes by status",
	}, []string{"status"})

	r.APIRequests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "ruleaudit_api_requests_total",
		Help: "Total API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ruleaudit_api_request_duration_seconds",
		Help:    "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// ObserveAnalysis records one analysis. res may be nil when the analysis
// failed outright.
func (r *Registry) ObserveAnalysis(res *analyzer.Result, elapsed time.Duration, err error) {
	r.AnalysisDuration.Observe(elapsed.Seconds())
	switch {
	case res == nil:
		r.AnalysesTotal.WithLabelValues("error").Inc()
		return
	case err != nil:
		r.AnalysesTotal.WithLabelValues("invalid_input").Inc()
	default:
		r.AnalysesTotal.WithLabelValues("ok").Inc()
	}

	r.RulesAnalyzed.Add(float64(res.RuleCount))
	r.Diagnostics.Add(float64(len(res.Diagnostics)))
	for _, f := range res.Findings {
		r.FindingsTotal.WithLabelValues(f.Kind().String(), f.Severity().String()).Inc()
	}
	r.LastScore.WithLabelValues("security").Set(float64(res.SecurityScore))
	r.LastScore.WithLabelValues("efficiency").Set(float64(res.EfficiencyScore))
}

// RecordRemovals counts rules a plan recommends removing.
func (r *Registry) RecordRemovals(n int) {
	r.RemovalsSuggested.Add(float64(n))
}

// RecordHistoryWrite records a history write.
func (r *Registry) RecordHistoryWrite(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.HistoryWrites.WithLabelValues(status).Inc()
}

// RecordAPIRequest records an API request.
func (r *Registry) RecordAPIRequest(method, path string, status int, duration float64) {
	r.APIRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(duration)
}
