package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	signal float64
	err    error
	calls  int
}

func (s *stubSource) Signal(_ context.Context, _ *domain.Transaction) (float64, error) {
	s.calls++
	return s.signal, s.err
}

func TestScorerUsesSource(t *testing.T) {
	src := &stubSource{signal: 0.05}
	s := NewScorer(src, nil)

	tx := baseTx()
	res, signal := s.Assess(context.Background(), &tx)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 0.05, signal)
	assert.Equal(t, []string{"High transaction velocity detected"}, res.Assessment.RiskFactors)
	assert.Equal(t, res, s.Replay(tx, signal))
}

type recordingSource struct {
	stubSource
	peeks int
}

func (s *recordingSource) Peek(_ context.Context, _ *domain.Transaction) (float64, error) {
	s.peeks++
	return s.signal, s.err
}

func TestScorerPreview(t *testing.T) {
	src := &recordingSource{stubSource: stubSource{signal: 0.15}}
	s := NewScorer(src, nil)

	tx := baseTx()
	res, signal := s.Preview(context.Background(), &tx)
	assert.Equal(t, 0.15, signal)
	assert.Equal(t, []string{"Elevated transaction frequency"}, res.Assessment.RiskFactors)
	assert.Equal(t, 1, src.peeks)
	assert.Equal(t, 0, src.calls)

	_, _, err := s.AssessBatch(context.Background(), []*domain.Transaction{&tx, &tx}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, src.peeks)
	assert.Equal(t, 0, src.calls)

	s.Assess(context.Background(), &tx)
	assert.Equal(t, 1, src.calls)

	// Sources without Peek are drawn normally.
	plain := &stubSource{signal: 0.5}
	NewScorer(plain, nil).Preview(context.Background(), &tx)
	assert.Equal(t, 1, plain.calls)
}

func TestScorerSourceFailure(t *testing.T) {
	s := NewScorer(&stubSource{err: errors.New("redis down")}, nil)

	tx := baseTx()
	res, signal := s.Assess(context.Background(), &tx)
	assert.Equal(t, 1.0, signal)
	assert.Empty(t, res.Assessment.RiskFactors)
}

func TestAssessBatch(t *testing.T) {
	s := NewScorer(&stubSource{signal: 0.15}, nil)

	txs := make([]*domain.Transaction, 20)
	for i := range txs {
		tx := baseTx()
		tx.Amount = float64(i) * 700.25
		txs[i] = &tx
	}

	results, signals, err := s.AssessBatch(context.Background(), txs, 4)
	require.NoError(t, err)
	require.Len(t, results, len(txs))
	for i, tx := range txs {
		assert.Equal(t, Evaluate(*tx, signals[i]), results[i])
	}
}

func TestAssessAll(t *testing.T) {
	txs := []domain.Transaction{baseTx(), baseTx(), baseTx()}
	txs[1].Amount = 7500.10
	txs[2].Location = "Lagos, Nigeria"
	signals := []float64{0.5, 0.05, 0.15}

	got, err := AssessAll(context.Background(), txs, signals, 2)
	require.NoError(t, err)
	for i := range txs {
		assert.Equal(t, Assess(txs[i], signals[i]), got[i])
	}

	_, err = AssessAll(context.Background(), txs, signals[:1], 2)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssessAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	txs := []domain.Transaction{baseTx()}
	_, err := AssessAll(ctx, txs, []float64{1}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
