package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"golang.org/x/sync/errgroup"
)

// noVelocity is a signal that fires neither velocity rule.
const noVelocity = 1.0

// VelocitySource supplies the velocity signal for a transaction.
type VelocitySource interface {
	Signal(ctx context.Context, tx *domain.Transaction) (float64, error)
}

// Peeker is implemented by sources whose Signal records the transaction.
// Peek returns the same signal without recording anything.
type Peeker interface {
	Peek(ctx context.Context, tx *domain.Transaction) (float64, error)
}

// Scorer binds the pure scoring function to a velocity source and a timezone.
// It holds no mutable state and is safe for concurrent use.
type Scorer struct {
	velocity VelocitySource
	location *time.Location
}

// NewScorer creates a scorer. A nil source disables the velocity rules;
// a nil location keeps each timestamp's own zone.
func NewScorer(velocity VelocitySource, loc *time.Location) *Scorer {
	return &Scorer{velocity: velocity, location: loc}
}

// Assess draws a velocity signal and scores tx. The signal is returned so
// the caller can persist it and replay the assessment later.
func (s *Scorer) Assess(ctx context.Context, tx *domain.Transaction) (Result, float64) {
	signal := s.draw(ctx, tx, true)
	return s.Replay(*tx, signal), signal
}

// Preview scores tx like Assess but leaves the velocity source untouched,
// for assessments that are not followed by an ingest.
func (s *Scorer) Preview(ctx context.Context, tx *domain.Transaction) (Result, float64) {
	signal := s.draw(ctx, tx, false)
	return s.Replay(*tx, signal), signal
}

// Replay scores tx with a known velocity signal.
func (s *Scorer) Replay(tx domain.Transaction, signal float64) Result {
	return evaluate(extract(tx, signal, s.location))
}

// AssessBatch previews signals sequentially, then scores all transactions
// in parallel. Like Preview it records nothing.
func (s *Scorer) AssessBatch(ctx context.Context, txs []*domain.Transaction, limit int) ([]Result, []float64, error) {
	signals := make([]float64, len(txs))
	for i, tx := range txs {
		signals[i] = s.draw(ctx, tx, false)
	}

	results := make([]Result, len(txs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, tx := range txs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = s.Replay(*tx, signals[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, signals, nil
}

func (s *Scorer) draw(ctx context.Context, tx *domain.Transaction, record bool) float64 {
	if s.velocity == nil {
		return noVelocity
	}
	var (
		signal float64
		err    error
	)
	if p, ok := s.velocity.(Peeker); ok && !record {
		signal, err = p.Peek(ctx, tx)
	} else {
		signal, err = s.velocity.Signal(ctx, tx)
	}
	if err != nil {
		slog.Warn("velocity signal unavailable",
			"tx_id", tx.ID,
			"error", err,
		)
		return noVelocity
	}
	return signal
}

// AssessAll scores transactions in parallel with precomputed velocity signals.
// Output order matches input order.
func AssessAll(ctx context.Context, txs []domain.Transaction, signals []float64, limit int) ([]domain.FraudAssessment, error) {
	if len(signals) != len(txs) {
		return nil, fmt.Errorf("%w: %d transactions but %d velocity signals", ErrInvalidInput, len(txs), len(signals))
	}

	out := make([]domain.FraudAssessment, len(txs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range txs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Assess(txs[i], signals[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
