package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors a Scorer reports to
type Metrics struct {
	Computations    *prometheus.CounterVec
	ScoringDuration prometheus.Histogram
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
}

// NewMetrics creates and registers the scorer collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Computations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causalscore_metric_computations_total",
				Help: "Metric computations by metric name and result status",
			},
			[]string{"metric", "status"},
		),
		ScoringDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "causalscore_make_scores_seconds",
			Help:    "Wall time of one MakeScores call",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "causalscore_propensity_cache_hits_total",
			Help: "Propensity predictions served from cache",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "causalscore_propensity_cache_misses_total",
			Help: "Propensity predictions computed",
		}),
	}
}
