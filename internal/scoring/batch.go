package scoring

import (
	"context"

	"causalscore/domain/causal"
	"causalscore/domain/score"
	"causalscore/internal/frame"
	"causalscore/ports"

	"golang.org/x/sync/errgroup"
)

// ScoreCandidates runs MakeScores for every candidate with at most
// parallelism calls in flight. Records are returned in candidate order. The
// first setup error cancels the remaining candidates.
func (s *Scorer) ScoreCandidates(ctx context.Context, candidates []ports.Estimate, df *frame.Frame,
	metrics []causal.MetricName, parallelism int) ([]*score.Record, error) {
	if parallelism <= 0 {
		parallelism = 1
	}
	records := make([]*score.Record, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, est := range candidates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.MakeScores(est, df, metrics)
			if err != nil {
				return err
			}
			records[i] = rec
			s.logger.Debug("scored %s (%d/%d)", est.EstimatorName(), i+1, len(candidates))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}
