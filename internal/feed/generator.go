// Package feed simulates a stream of card transactions and keeps a rolling
// view of how the pipeline scored them for the live dashboard.
package feed

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	merchants = []string{
		"Amazon", "Walmart", "Target", "Starbucks", "McDonald's", "Shell", "Exxon",
		"Home Depot", "Best Buy", "CVS Pharmacy", "Walgreens", "Costco", "Apple Store",
		"Google Play", "Netflix", "Spotify", "Uber", "Lyft", "DoorDash", "Grubhub",
	}

	categories = []string{
		"Grocery", "Gas Station", "Restaurant", "Retail", "Entertainment", "Transportation",
		"Healthcare", "Utilities", "Online Services", "Travel", "Hotels", "Airlines",
	}

	locations = []string{
		"New York, NY", "Los Angeles, CA", "Chicago, IL", "Houston, TX", "Phoenix, AZ",
		"Philadelphia, PA", "San Antonio, TX", "San Diego, CA", "Dallas, TX", "San Jose, CA",
		"Austin, TX", "Jacksonville, FL", "Fort Worth, TX", "Columbus, OH", "Charlotte, NC",
	}

	suspiciousLocations = []string{
		"Lagos, Nigeria", "Moscow, Russia", "Beijing, China", "Mumbai, India", "São Paulo, Brazil",
	}

	suspiciousMerchants = []string{"TempMerchant", "TestStore", "UnknownVendor", "CashAdvance"}
)

// DefaultSuspiciousRate is the share of generated transactions built to look risky.
const DefaultSuspiciousRate = 0.15

// Generator produces mock transactions. It is safe for concurrent use.
type Generator struct {
	mu             sync.Mutex
	rng            *rand.Rand
	suspiciousRate float64
	now            func() time.Time
}

// NewGenerator creates a generator. A zero seed seeds from the clock;
// a rate outside (0, 1] falls back to DefaultSuspiciousRate.
func NewGenerator(seed uint64, suspiciousRate float64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	if suspiciousRate <= 0 || suspiciousRate > 1 {
		suspiciousRate = DefaultSuspiciousRate
	}
	return &Generator{
		rng:            rand.New(rand.NewPCG(seed, seed^0x5DEECE66D)),
		suspiciousRate: suspiciousRate,
		now:            time.Now,
	}
}

// Next returns a new transaction. Suspicious ones carry micro, high-value
// or round amounts, and sometimes a risky location, merchant name or a
// 2-5 AM timestamp.
func (g *Generator) Next() domain.Transaction {
	tx, _ := g.NextLabeled()
	return tx
}

// NextLabeled is Next that also reports whether the transaction was built
// to look suspicious.
func (g *Generator) NextLabeled() (domain.Transaction, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	suspicious := g.rng.Float64() < g.suspiciousRate

	var amount float64
	if suspicious {
		switch kind := g.rng.Float64(); {
		case kind < 0.3:
			amount = g.rng.Float64()*0.99 + 0.01
		case kind < 0.7:
			amount = g.rng.Float64()*8000 + 2000
		default:
			amount = float64(g.rng.IntN(20)+1) * 100
		}
	} else {
		amount = g.rng.Float64()*300 + 5
	}

	location := pick(g.rng, locations)
	if suspicious && g.rng.Float64() < 0.6 {
		location = pick(g.rng, suspiciousLocations)
	}

	merchant := pick(g.rng, merchants)
	if suspicious && g.rng.Float64() < 0.3 {
		merchant = pick(g.rng, suspiciousMerchants)
	}

	category := pick(g.rng, categories)
	card := fmt.Sprintf("****-****-****-%d", g.rng.IntN(9000)+1000)

	now := g.now()
	ts := now
	if suspicious && g.rng.Float64() < 0.4 {
		ts = time.Date(now.Year(), now.Month(), now.Day(), g.rng.IntN(4)+2, g.rng.IntN(60), 0, 0, now.Location())
	}

	tx := domain.Transaction{
		ID:               fmt.Sprintf("TXN-%d-%d", now.UnixMilli(), g.rng.IntN(1000)),
		Amount:           decimal.NewFromFloat(amount).Round(2).InexactFloat64(),
		MerchantName:     merchant,
		MerchantCategory: category,
		Location:         location,
		CardNumber:       card,
		Timestamp:        ts,
		RiskLevel:        domain.RiskPending,
		Status:           domain.StatusPending,
	}
	return tx, suspicious
}

// Interval returns a random delay in [min, max).
func (g *Generator) Interval(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + time.Duration(g.rng.Int64N(int64(max-min)))
}

func pick(rng *rand.Rand, list []string) string {
	return list[rng.IntN(len(list))]
}
