package domain

// LiveStats summarises the live transaction feed.
type LiveStats struct {
	TotalTransactions     int     `json:"totalTransactions"`
	FraudDetected         int     `json:"fraudDetected"`
	TotalAmount           float64 `json:"totalAmount"`
	AverageAmount         float64 `json:"averageAmount"`
	RiskScore             float64 `json:"riskScore"`
	TransactionsPerSecond int     `json:"transactionsPerSecond"`
	BlockedTransactions   int     `json:"blockedTransactions"`
	FlaggedTransactions   int     `json:"flaggedTransactions"`
	ApprovedTransactions  int     `json:"approvedTransactions"`
	AlertsRaised          int     `json:"alertsRaised"`
}
