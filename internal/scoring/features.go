package scoring

import (
	"strings"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/shopspring/decimal"
)

// features are the transaction attributes the rules look at.
type features struct {
	amount   decimal.Decimal
	hour     int
	weekday  time.Weekday
	location string
	category string
	lastFour string
	merchant string
	velocity float64
}

func extract(tx domain.Transaction, velocity float64, loc *time.Location) features {
	ts := tx.Timestamp
	if loc != nil {
		ts = ts.In(loc)
	}
	return features{
		amount:   decimal.NewFromFloat(tx.Amount),
		hour:     ts.Hour(),
		weekday:  ts.Weekday(),
		location: strings.ToLower(tx.Location),
		category: tx.MerchantCategory,
		lastFour: lastFour(tx.CardNumber),
		merchant: strings.ToLower(tx.MerchantName),
		velocity: velocity,
	}
}

func lastFour(card string) string {
	r := []rune(card)
	if len(r) <= 4 {
		return card
	}
	return string(r[len(r)-4:])
}
