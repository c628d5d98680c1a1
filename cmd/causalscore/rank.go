package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"causalscore/domain/causal"
	"causalscore/domain/score"
	"causalscore/internal/scoring"

	"github.com/spf13/cobra"
)

// rankEntry is one estimator family's best record. Value is null when the
// best score is undefined.
type rankEntry struct {
	EstimatorName string       `json:"estimator_name"`
	RecordID      string       `json:"record_id"`
	Value         *float64     `json:"value"`
	Status        score.Status `json:"status"`

	rank float64
}

type rankReport struct {
	Metric causal.MetricName `json:"metric"`
	Best   []rankEntry       `json:"best"`
}

func newRankCmd() *cobra.Command {
	var metric string
	var output string

	cmd := &cobra.Command{
		Use:   "rank [report.json...]",
		Short: "Pick the best score of each estimator family",
		Long: `Read one or more reports written by "causalscore score" and keep the
best record of every estimator for a metric: the lowest value for distance
metrics, the highest otherwise.

Example: causalscore rank run1.json run2.json --metric qini`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRank(args, causal.MetricName(metric), output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&metric, "metric", "", "Metric to rank by (default: each report's scoring metric)")
	cmd.Flags().StringVar(&output, "output", "", "Write the ranking to a file instead of stdout")

	return cmd
}

func runRank(paths []string, metric causal.MetricName, output string, stdout io.Writer) error {
	records := make(map[string]*score.Record)
	for _, path := range paths {
		report, err := readReport(path)
		if err != nil {
			return err
		}
		if metric == "" {
			metric = report.ScoringMetric
		}
		for i, rec := range report.Scores {
			key := fmt.Sprintf("%s#%d", path, i)
			if rec != nil {
				key = rec.ID.String()
			}
			records[key] = rec
		}
	}

	best, err := scoring.BestScoreByEstimator(records, metric)
	if err != nil {
		return err
	}
	out := rankReport{Metric: metric}
	for name, rec := range best {
		res := rec.Metrics[metric]
		entry := rankEntry{
			EstimatorName: name,
			RecordID:      rec.ID.String(),
			Status:        res.Status,
			rank:          scoring.RankValue(res, metric),
		}
		if res.Status == score.StatusComputed {
			v := res.Value
			entry.Value = &v
		}
		out.Best = append(out.Best, entry)
	}
	lower := causal.LowerIsBetter(metric)
	sort.SliceStable(out.Best, func(i, j int) bool {
		a, b := out.Best[i], out.Best[j]
		if a.rank == b.rank {
			return a.EstimatorName < b.EstimatorName
		}
		return scoring.Better(a.rank, b.rank, lower)
	})
	return writeJSON(output, stdout, out)
}

func readReport(path string) (*scoreReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var report scoreReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &report, nil
}
