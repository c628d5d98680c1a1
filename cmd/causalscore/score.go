package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"causalscore/adapters/estimate"
	"causalscore/adapters/tabular"
	"causalscore/domain/causal"
	"causalscore/domain/score"
	"causalscore/internal"
	"causalscore/internal/config"
	"causalscore/internal/frame"
	"causalscore/internal/scoring"
	"causalscore/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// scoreOptions holds the flags of the score command
type scoreOptions struct {
	data         string
	train        string
	problem      string
	treatment    string
	outcome      string
	modifiers    []string
	commonCauses []string
	instrument   string
	multivalue   bool
	estimates    []string
	metric       string
	metrics      []string
	groupATE     bool
	output       string
	metricsFile  string
}

// scoreReport is the JSON document written by score and read by rank
type scoreReport struct {
	Problem       causal.ProblemType  `json:"problem"`
	ScoringMetric causal.MetricName   `json:"scoring_metric"`
	Metrics       []causal.MetricName `json:"metrics"`
	Scores        []*score.Record     `json:"scores"`
}

func newScoreCmd() *cobra.Command {
	o := &scoreOptions{}

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score precomputed CATE estimates on a validation file",
		Long: `Score precomputed CATE estimates stored as columns of a validation file.

Each --estimate is NAME=COL[,COL...][:TT_COL], one effect column per
non-control treatment level and an optional realised-treatment effect column.

Settings are read from the environment (and a .env file):
- SCORER_CONFIG_FILE (optional YAML file)
- SCORER_SD_THRESHOLD, SCORER_CLIP, SCORER_QUANTILES, SCORER_CODEC_SEED
- SCORER_ERUPT_ITERATIONS, SCORER_ERUPT_SEED
- PROPENSITY_L2, PROPENSITY_MAX_ITER
- SCORER_PARALLELISM, SCORER_CACHE_SIZE, LOG_LEVEL

--metrics-file writes the scorer's Prometheus counters and timing histogram
in text exposition format, for a node_exporter textfile collector.

Example:
  causalscore score --data valid.csv --train train.csv --treatment t --outcome y \
    --modifiers x1,x2 --estimate LinearDML=cate_ldml --estimate SLearner=cate_sl --metric qini`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd.Context(), o, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&o.data, "data", "", "Validation CSV or XLSX file holding the estimate columns")
	cmd.Flags().StringVar(&o.train, "train", "", "Training file for the propensity model (default: --data)")
	cmd.Flags().StringVar(&o.problem, "problem", string(causal.ProblemBackdoor), "Problem type: backdoor|iv")
	cmd.Flags().StringVar(&o.treatment, "treatment", "treatment", "Treatment column")
	cmd.Flags().StringVar(&o.outcome, "outcome", "outcome", "Outcome column")
	cmd.Flags().StringSliceVar(&o.modifiers, "modifiers", nil, "Effect modifier columns")
	cmd.Flags().StringSliceVar(&o.commonCauses, "common-causes", nil, "Common cause columns")
	cmd.Flags().StringVar(&o.instrument, "instrument", "", "Instrument column (iv problems)")
	cmd.Flags().BoolVar(&o.multivalue, "multivalue", false, "Treatment has several non-control levels")
	cmd.Flags().StringArrayVar(&o.estimates, "estimate", nil, "Estimate as NAME=COL[,COL...][:TT_COL] (repeatable)")
	cmd.Flags().StringVar(&o.metric, "metric", string(causal.MetricEnergyDistance), "Scoring metric")
	cmd.Flags().StringSliceVar(&o.metrics, "metrics", nil, "Metrics to report (default: all supported)")
	cmd.Flags().BoolVar(&o.groupATE, "group-ate", false, "Add the per-policy ATE breakdown to single-level records")
	cmd.Flags().StringVar(&o.output, "output", "", "Write the report to a file instead of stdout")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "Write scorer Prometheus metrics to a textfile-collector file")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("estimate")

	return cmd
}

func runScore(ctx context.Context, o *scoreOptions, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := internal.NewLogger(internal.ParseLogLevel(cfg.Runtime.LogLevel))

	problem := causal.Problem{
		Type:            causal.ProblemType(o.problem),
		Treatment:       o.treatment,
		Outcome:         o.outcome,
		EffectModifiers: o.modifiers,
		CommonCauses:    o.commonCauses,
		Multivalue:      o.multivalue,
	}
	if o.instrument != "" {
		problem.Instruments = []string{o.instrument}
	}

	df, err := tabular.NewDataReader(o.data, tabular.WithLogger(logger)).ReadFrame()
	if err != nil {
		return err
	}
	candidates, df, err := loadEstimates(df, problem, o.estimates)
	if err != nil {
		return err
	}

	var train *frame.Frame
	if problem.Type == causal.ProblemBackdoor {
		train = df
		if o.train != "" {
			if train, err = tabular.NewDataReader(o.train, tabular.WithLogger(logger)).ReadFrame(); err != nil {
				return err
			}
		}
	}

	reg := prometheus.NewRegistry()
	scorer, err := scoring.NewScorer(problem, train,
		scoring.WithLogger(logger),
		scoring.WithConfig(cfg),
		scoring.WithRegisterer(reg),
	)
	if err != nil {
		return err
	}

	var requested []causal.MetricName
	for _, m := range o.metrics {
		requested = append(requested, causal.MetricName(strings.TrimSpace(m)))
	}
	metric := scorer.ResolveMetric(causal.MetricName(o.metric))
	metrics := scorer.ResolveReportedMetrics(requested, metric)
	logger.Info("Scoring %d estimates on %d rows by %s", len(candidates), df.Len(), metric)

	records, err := scorer.ScoreCandidates(ctx, candidates, df, metrics, cfg.Runtime.Parallelism)
	if err != nil {
		return err
	}
	if o.groupATE {
		for _, rec := range records {
			if rec.Values == nil || rec.Values.Policy == nil {
				continue
			}
			if rec.GroupATE, err = scorer.GroupATE(df, rec.Values.Policy); err != nil {
				logger.Warn("%s: group ate skipped: %v", rec.EstimatorName, err)
			}
		}
	}

	if err := writeJSON(o.output, stdout, scoreReport{
		Problem:       problem.Type,
		ScoringMetric: metric,
		Metrics:       metrics,
		Scores:        records,
	}); err != nil {
		return err
	}
	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics to %s: %w", o.metricsFile, err)
		}
		logger.Info("Scorer metrics written to %s", o.metricsFile)
	}
	return nil
}

// loadEstimates takes every estimate's columns out of df. The returned frame
// carries none of them, so effect columns never act as features.
func loadEstimates(df *frame.Frame, problem causal.Problem, flags []string) ([]ports.Estimate, *frame.Frame, error) {
	var out []ports.Estimate
	for _, flag := range flags {
		spec, err := parseEstimateFlag(flag)
		if err != nil {
			return nil, nil, err
		}
		spec.Method = problem.Type
		spec.Treatment = problem.Treatment
		spec.Outcome = problem.Outcome
		spec.Modifiers = problem.EffectModifiers
		spec.Instruments = problem.Instruments

		est, rest, err := estimate.FromColumns(df, spec)
		if err != nil {
			return nil, nil, fmt.Errorf("estimate %s: %w", spec.Name, err)
		}
		out = append(out, est)
		df = rest
	}
	return out, df, nil
}

// parseEstimateFlag parses NAME=COL[,COL...][:TT_COL]
func parseEstimateFlag(flag string) (estimate.Spec, error) {
	name, cols, ok := strings.Cut(flag, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(cols) == "" {
		return estimate.Spec{}, fmt.Errorf("invalid --estimate %q, want NAME=COL[,COL...][:TT_COL]", flag)
	}
	spec := estimate.Spec{Name: name}
	cols, tt, _ := strings.Cut(cols, ":")
	spec.EffectTTColumn = strings.TrimSpace(tt)
	for _, c := range strings.Split(cols, ",") {
		if c = strings.TrimSpace(c); c != "" {
			spec.EffectColumns = append(spec.EffectColumns, c)
		}
	}
	if len(spec.EffectColumns) == 0 {
		return estimate.Spec{}, fmt.Errorf("invalid --estimate %q: no effect columns", flag)
	}
	return spec, nil
}

func writeJSON(path string, stdout io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "Report written to %s\n", path)
	return nil
}
