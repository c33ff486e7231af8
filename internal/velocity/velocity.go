// Package velocity provides the velocity signal fed to the risk scorer.
//
// A signal is a number in [0, 1]. Low values mean the card has been busy:
// the scorer treats draws below 0.10 as high velocity and below 0.20 as
// elevated frequency.
package velocity

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/BinaryLoops/Fraud-Detector/internal/scoring"
)

// Velocity modes.
const (
	ModeRandom  = "random"
	ModeCounter = "counter"
	ModeFixed   = "fixed"
)

// New returns the source selected by cfg.VelocityMode.
func New(cfg domain.ScoringConfig, cache domain.Cache, repo domain.Repository) (scoring.VelocitySource, error) {
	switch cfg.VelocityMode {
	case "", ModeRandom:
		return NewRandom(cfg.VelocitySeed), nil
	case ModeFixed:
		return Fixed(cfg.VelocityFixed), nil
	case ModeCounter:
		if cache == nil && repo == nil {
			return nil, fmt.Errorf("counter velocity requires a cache or repository")
		}
		return NewCounter(cache, repo, cfg.VelocityWindow, cfg.ElevatedCount, cfg.HighCount), nil
	default:
		return nil, fmt.Errorf("unknown velocity mode: %s", cfg.VelocityMode)
	}
}

// Random draws a uniform signal per transaction.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom creates a random source. A zero seed seeds from the clock.
func NewRandom(seed uint64) *Random {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Signal implements scoring.VelocitySource.
func (r *Random) Signal(_ context.Context, _ *domain.Transaction) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64(), nil
}

// Fixed always returns the same signal.
type Fixed float64

// Signal implements scoring.VelocitySource.
func (f Fixed) Signal(_ context.Context, _ *domain.Transaction) (float64, error) {
	return float64(f), nil
}

// Counter derives the signal from how many transactions a card made
// within the window.
type Counter struct {
	cache    domain.Cache
	repo     domain.Repository
	window   time.Duration
	elevated int64
	high     int64
}

// NewCounter creates a counter source. The cache counter is preferred;
// the repository is queried when the cache is missing or failing.
func NewCounter(cache domain.Cache, repo domain.Repository, window time.Duration, elevated, high int64) *Counter {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Counter{
		cache:    cache,
		repo:     repo,
		window:   window,
		elevated: elevated,
		high:     high,
	}
}

// Signal implements scoring.VelocitySource.
func (c *Counter) Signal(ctx context.Context, tx *domain.Transaction) (float64, error) {
	count, err := c.Count(ctx, tx)
	if err != nil {
		return 1, err
	}
	return c.signalFor(count), nil
}

// Peek returns the signal tx would get without recording it, so stateless
// assessments leave the card's velocity untouched.
func (c *Counter) Peek(ctx context.Context, tx *domain.Transaction) (float64, error) {
	count, err := c.lookup(ctx, tx, false)
	if err != nil {
		return 1, err
	}
	return c.signalFor(count), nil
}

// Count returns the number of transactions seen for the card in the window,
// including tx itself. The cache counter is incremented.
func (c *Counter) Count(ctx context.Context, tx *domain.Transaction) (int64, error) {
	return c.lookup(ctx, tx, true)
}

func (c *Counter) lookup(ctx context.Context, tx *domain.Transaction, record bool) (int64, error) {
	if tx.CardNumber == "" {
		return 0, fmt.Errorf("cardNumber is required")
	}

	if c.cache != nil {
		key := "velocity:" + tx.CardNumber
		var (
			count int64
			err   error
		)
		if record {
			count, err = c.cache.IncrementCounter(ctx, tx.TenantID, key, c.window)
		} else {
			count, err = c.cache.PeekCounter(ctx, tx.TenantID, key)
			count++
		}
		if err == nil {
			return count, nil
		}
		if c.repo == nil {
			return 0, fmt.Errorf("failed to read velocity counter: %w", err)
		}
	}

	if c.repo != nil {
		since := tx.Timestamp.Add(-c.window)
		if tx.Timestamp.IsZero() {
			since = time.Now().Add(-c.window)
		}
		count, err := c.repo.CountTransactionsByCard(ctx, tx.TenantID, tx.CardNumber, since)
		if err != nil {
			return 0, fmt.Errorf("failed to count transactions: %w", err)
		}
		return count + 1, nil
	}

	return 0, fmt.Errorf("no data source available")
}

func (c *Counter) signalFor(count int64) float64 {
	switch {
	case c.high > 0 && count >= c.high:
		return 0
	case c.elevated > 0 && count >= c.elevated:
		return scoring.VelocityHighCutoff
	default:
		return 1
	}
}
