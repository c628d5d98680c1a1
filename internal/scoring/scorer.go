// Package scoring turns fitted causal estimates and validation frames into
// quality scores, and ranks estimators by them.
package scoring

import (
	"fmt"

	"causalscore/adapters/erupt"
	"causalscore/adapters/rng"
	"causalscore/domain/causal"
	"causalscore/domain/core"
	"causalscore/internal"
	"causalscore/internal/config"
	"causalscore/internal/errors"
	"causalscore/internal/frame"
	"causalscore/internal/propensity"
	"causalscore/internal/weighting"
	"causalscore/ports"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/mat"
)

// Scorer owns the propensity-weighting estimator of one causal problem and
// computes every metric against it. The fitted model is read-only after
// NewScorer returns, so one Scorer may score candidates concurrently.
type Scorer struct {
	problem   causal.Problem
	settings  config.ScorerConfig
	logger    *internal.Logger
	rng       ports.RNGPort
	catalog   *Catalog
	weighting *weighting.Estimator  // nil for iv problems
	erupt     ports.PolicyEvaluator // nil for iv problems
	cache     *predictionCache
	metrics   *Metrics
}

type scorerOptions struct {
	logger     *internal.Logger
	fitter     ports.PropensityFitter
	rng        ports.RNGPort
	config     *config.Config
	registerer prometheus.Registerer
}

// Option configures a Scorer
type Option func(*scorerOptions)

// WithLogger sets the logger used for warnings about unsupported metrics
// and failed optional metrics
func WithLogger(l *internal.Logger) Option {
	return func(o *scorerOptions) { o.logger = l }
}

// WithFitter replaces the default logistic propensity fitter
func WithFitter(f ports.PropensityFitter) Option {
	return func(o *scorerOptions) { o.fitter = f }
}

// WithRNG sets the random source for CODEC tie-breaking and probabilistic ERUPT
func WithRNG(r ports.RNGPort) Option {
	return func(o *scorerOptions) { o.rng = r }
}

// WithConfig overrides thresholds, seeds and propensity settings
func WithConfig(c *config.Config) Option {
	return func(o *scorerOptions) { o.config = c }
}

// WithRegisterer registers the scorer's Prometheus collectors on reg.
// Without it each Scorer gets a private registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *scorerOptions) { o.registerer = reg }
}

// NewScorer validates the problem and, for backdoor problems, fits the
// propensity-weighting estimator on train. A missing propensity model is a
// setup error.
func NewScorer(problem causal.Problem, train *frame.Frame, opts ...Option) (*Scorer, error) {
	o := &scorerOptions{
		logger: internal.DefaultLogger,
		rng:    rng.Seeded{},
		config: config.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fitter == nil {
		o.fitter = propensity.NewLogisticFitter(o.config.Propensity.L2, o.config.Propensity.MaxIterations)
	}
	if o.registerer == nil {
		o.registerer = prometheus.NewRegistry()
	}

	if err := problem.Validate(); err != nil {
		return nil, errors.SetupError(err.Error(), core.ErrUnsupportedProblem)
	}

	s := &Scorer{
		problem:  problem,
		settings: o.config.Scorer,
		logger:   o.logger,
		rng:      o.rng,
		metrics:  NewMetrics(o.registerer),
	}
	cache, err := newPredictionCache(o.config.Runtime.CacheSize, s.metrics)
	if err != nil {
		return nil, errors.SetupError("propensity cache", err)
	}
	s.cache = cache

	multivalue := problem.Multivalue
	if problem.Type == causal.ProblemBackdoor {
		if train == nil {
			return nil, errors.SetupError("backdoor scorer needs training rows", core.ErrInsufficientData)
		}
		s.logger.Info("Fitting a propensity-weighted scoring estimator on %d rows", train.Len())
		est, err := weighting.Fit(problem, train, o.fitter)
		if err != nil {
			return nil, err
		}
		if est.PropensityModel() == nil {
			return nil, errors.SetupError("propensity model fitting failed, check the setup", core.ErrPropensityNotFitted)
		}
		s.weighting = est
		multivalue = multivalue || len(est.TreatmentValues()) > 1

		s.erupt = erupt.New(est.Treatment(), est.PropensityModel().Classes(), s.predictProba,
			erupt.WithClip(s.settings.Clip),
			erupt.WithIterations(s.settings.EruptIterations),
			erupt.WithRNG(s.rng, s.settings.EruptSeed),
		)
		s.logger.Debug("Propensity model fitted on features %v", est.Features())
	}
	s.catalog = NewCatalog(problem.Type, multivalue, s.logger)
	return s, nil
}

// Problem returns the causal problem the scorer was built for
func (s *Scorer) Problem() causal.Problem { return s.problem }

// Catalog returns the metric catalog for the scorer's problem
func (s *Scorer) Catalog() *Catalog { return s.catalog }

// Metrics returns the scorer's Prometheus collectors
func (s *Scorer) Metrics() *Metrics { return s.metrics }

// Weighting returns the fitted weighting estimator, nil for iv problems
func (s *Scorer) Weighting() *weighting.Estimator { return s.weighting }

// ResolveMetric is Catalog().ResolveMetric
func (s *Scorer) ResolveMetric(m causal.MetricName) causal.MetricName {
	return s.catalog.ResolveMetric(m)
}

// ResolveReportedMetrics is Catalog().ResolveReportedMetrics
func (s *Scorer) ResolveReportedMetrics(metrics []causal.MetricName, scoring causal.MetricName) []causal.MetricName {
	return s.catalog.ResolveReportedMetrics(metrics, scoring)
}

// predictProba returns per-level propensities for the rows of df, reusing
// earlier predictions for the same frame
func (s *Scorer) predictProba(df *frame.Frame) (*mat.Dense, error) {
	if s.weighting == nil {
		return nil, errors.InvalidInput(fmt.Sprintf("%s problems have no propensity model", s.problem.Type))
	}
	return s.cache.getOrPredict(df, s.weighting.Features(), func() (*mat.Dense, error) {
		return s.weighting.PredictProba(df)
	})
}
