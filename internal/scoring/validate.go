package scoring

import (
	"errors"
	"fmt"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
)

// ErrInvalidInput is returned by Validate for structurally invalid transactions.
var ErrInvalidInput = errors.New("invalid transaction")

// Validate checks the structural invariants callers must uphold before scoring.
// Assess does not call it.
func Validate(tx *domain.Transaction) error {
	if tx == nil {
		return fmt.Errorf("%w: transaction is required", ErrInvalidInput)
	}
	if tx.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidInput)
	}
	if tx.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	}
	if !hasDigitSuffix(tx.CardNumber, 4) {
		return fmt.Errorf("%w: cardNumber must end with 4 digits", ErrInvalidInput)
	}
	if tx.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	return nil
}

func hasDigitSuffix(s string, n int) bool {
	if len(s) < n {
		return false
	}
	for _, c := range s[len(s)-n:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Fallback is the assessment callers show when scoring is unreachable.
func Fallback() domain.FraudAssessment {
	return domain.FraudAssessment{
		RiskLevel:   domain.RiskMedium,
		Reasoning:   "Analysis temporarily unavailable. Using fallback assessment.",
		RiskFactors: []string{"System analysis pending"},
		Confidence:  0.5,
	}
}
