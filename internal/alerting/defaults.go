package alerting

import "github.com/BinaryLoops/Fraud-Detector/internal/domain"

// GlobalTenantID owns alert rules that apply to every tenant.
const GlobalTenantID = "*"

// DefaultRules returns the built-in alert catalogue, one rule per alert type
// the dashboard knows about. Anything scored high that matches nothing more
// specific falls through to the fraud rule.
func DefaultRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:        "alert-amount-critical",
			Name:      "Critical High-Value Transaction",
			Type:      domain.AlertAmount,
			Severity:  domain.SeverityCritical,
			Priority:  10,
			Condition: `risk_level == "high" && amount > 5000.0`,
			Title:     "High-Value Transaction",
			Message:   `"Large transaction amount: $%.2f".format([amount])`,
			Enabled:   true,
		},
		{
			ID:        "alert-geographic",
			Name:      "High-Risk Location",
			Type:      domain.AlertGeographic,
			Severity:  domain.SeverityHigh,
			Priority:  20,
			Condition: `risk_level == "high" && "High-risk geographic location" in factors`,
			Title:     "Geographic Risk Alert",
			Message:   `"Transaction from high-risk location: " + location`,
			Enabled:   true,
		},
		{
			ID:       "alert-velocity",
			Name:     "Velocity Check",
			Type:     domain.AlertVelocity,
			Severity: domain.SeverityMedium,
			Priority: 30,
			Condition: `risk_level != "low" && factors.exists(f,
				f == "High transaction velocity detected" || f == "Elevated transaction frequency")`,
			Title:   "Velocity Check Alert",
			Message: `"Multiple transactions detected in rapid succession"`,
			Enabled: true,
		},
		{
			ID:        "alert-anomaly",
			Name:      "Suspicious Card or Merchant",
			Type:      domain.AlertAnomaly,
			Severity:  domain.SeverityHigh,
			Priority:  40,
			Condition: `risk_level != "low" && factors.exists(f, f.startsWith("Suspicious"))`,
			Title:     "Transaction Anomaly",
			Message:   `"Unusual spending pattern detected for card " + card_number`,
			Enabled:   true,
		},
		{
			ID:        "alert-card-testing",
			Name:      "Card Testing Pattern",
			Type:      domain.AlertPattern,
			Severity:  domain.SeverityMedium,
			Priority:  50,
			Condition: `risk_level != "low" && "Micro-transaction (card testing pattern)" in factors`,
			Title:     "Card Testing Pattern",
			Message:   `"Micro-transaction of $%.2f at %s".format([amount, merchant_name])`,
			Enabled:   true,
		},
		{
			ID:        "alert-amount-high",
			Name:      "High-Value Transaction",
			Type:      domain.AlertAmount,
			Severity:  domain.SeverityHigh,
			Priority:  60,
			Condition: `risk_level == "high" && amount > 2000.0`,
			Title:     "High-Value Transaction",
			Message:   `"Large transaction amount: $%.2f".format([amount])`,
			Enabled:   true,
		},
		{
			ID:        "alert-fraud",
			Name:      "High-Risk Fraud",
			Type:      domain.AlertFraud,
			Severity:  domain.SeverityCritical,
			Priority:  100,
			Condition: `risk_level == "high"`,
			Title:     "High-Risk Fraud Detected",
			Message:   `"Suspicious transaction of $%.2f at %s".format([amount, merchant_name])`,
			Enabled:   true,
		},
	}
}
