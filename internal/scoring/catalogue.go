package scoring

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount thresholds. Amounts are compared as exact decimals so that no
// threshold moves with rounding and large amounts cannot overflow.
var (
	extremeAmount      = decimal.NewFromInt(5000)
	highAmount         = decimal.NewFromInt(2000)
	aboveAverageAmount = decimal.NewFromInt(1000)
	microAmount        = decimal.NewFromInt(1)
	roundAmount        = decimal.NewFromInt(100)
)

// Velocity draws below these cutoffs fire the velocity rules.
const (
	VelocityHighCutoff     = 0.10
	VelocityElevatedCutoff = 0.20
)

var (
	highRiskCountries   = []string{"nigeria", "russia", "china", "romania", "ukraine"}
	mediumRiskCountries = []string{"india", "brazil", "mexico", "philippines", "indonesia"}

	highRiskCategories = map[string]bool{"Online Services": true, "Entertainment": true, "Travel": true}
	lowRiskCategories  = map[string]bool{"Grocery": true, "Gas Station": true, "Utilities": true}

	suspiciousMerchantPatterns = []string{"temp", "test", "unknown", "cash"}
)

// Rule is one entry of the scoring catalogue.
type Rule struct {
	ID     string
	Factor string // empty for rules that adjust the score silently
	Weight int
	match  func(f *features) bool
}

// chain is an else-if group: only the first matching rule fires.
type chain struct {
	name  string
	rules []Rule
}

// catalogue is evaluated top to bottom. Factor order follows this order.
var catalogue = []chain{
	{name: "amount", rules: []Rule{
		{ID: "amount.extreme", Factor: "Extremely high transaction amount", Weight: 35,
			match: func(f *features) bool { return f.amount.GreaterThan(extremeAmount) }},
		{ID: "amount.high", Factor: "High transaction amount", Weight: 25,
			match: func(f *features) bool { return f.amount.GreaterThan(highAmount) }},
		{ID: "amount.above_average", Factor: "Above-average transaction amount", Weight: 15,
			match: func(f *features) bool { return f.amount.GreaterThan(aboveAverageAmount) }},
	}},
	{name: "micro", rules: []Rule{
		{ID: "amount.micro", Factor: "Micro-transaction (card testing pattern)", Weight: 30,
			match: func(f *features) bool { return f.amount.LessThan(microAmount) }},
	}},
	{name: "round", rules: []Rule{
		{ID: "amount.round", Factor: "Round amount transaction", Weight: 10,
			match: func(f *features) bool {
				return f.amount.GreaterThanOrEqual(roundAmount) && f.amount.Mod(roundAmount).IsZero()
			}},
	}},
	{name: "location", rules: []Rule{
		{ID: "location.high_risk", Factor: "High-risk geographic location", Weight: 40,
			match: func(f *features) bool { return containsAny(f.location, highRiskCountries) }},
		{ID: "location.medium_risk", Factor: "Medium-risk geographic location", Weight: 20,
			match: func(f *features) bool { return containsAny(f.location, mediumRiskCountries) }},
	}},
	{name: "hour", rules: []Rule{
		{ID: "time.very_unusual", Factor: "Very unusual transaction time (2-5 AM)", Weight: 25,
			match: func(f *features) bool { return f.hour >= 2 && f.hour <= 5 }},
		{ID: "time.late_early", Factor: "Late night/early morning transaction", Weight: 15,
			match: func(f *features) bool { return f.hour >= 23 || f.hour <= 6 }},
	}},
	{name: "weekend", rules: []Rule{
		{ID: "time.weekend_late", Factor: "Weekend late-night transaction", Weight: 10,
			match: func(f *features) bool {
				return (f.weekday == time.Saturday || f.weekday == time.Sunday) && f.hour >= 23
			}},
	}},
	{name: "category", rules: []Rule{
		{ID: "category.high_risk", Factor: "High-risk merchant category", Weight: 15,
			match: func(f *features) bool { return highRiskCategories[f.category] }},
		{ID: "category.low_risk", Weight: -10,
			match: func(f *features) bool { return lowRiskCategories[f.category] }},
	}},
	{name: "velocity", rules: []Rule{
		{ID: "velocity.high", Factor: "High transaction velocity detected", Weight: 30,
			match: func(f *features) bool { return f.velocity < VelocityHighCutoff }},
		{ID: "velocity.elevated", Factor: "Elevated transaction frequency", Weight: 15,
			match: func(f *features) bool { return f.velocity < VelocityElevatedCutoff }},
	}},
	{name: "card", rules: []Rule{
		{ID: "card.repeated_digits", Factor: "Suspicious card number pattern", Weight: 20,
			match: func(f *features) bool { return hasRepeatedDigits(f.lastFour, 3) }},
	}},
	{name: "merchant", rules: []Rule{
		{ID: "merchant.suspicious_name", Factor: "Suspicious merchant name pattern", Weight: 25,
			match: func(f *features) bool { return containsAny(f.merchant, suspiciousMerchantPatterns) }},
	}},
}

// RuleInfo describes a catalogue entry.
type RuleInfo struct {
	ID     string `json:"id"`
	Chain  string `json:"chain"`
	Factor string `json:"factor,omitempty"`
	Weight int    `json:"weight"`
}

// Rules returns the catalogue in evaluation order.
func Rules() []RuleInfo {
	var out []RuleInfo
	for _, c := range catalogue {
		for _, r := range c.rules {
			out = append(out, RuleInfo{ID: r.ID, Chain: c.name, Factor: r.Factor, Weight: r.Weight})
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// hasRepeatedDigits reports whether s holds n or more equal consecutive digits.
func hasRepeatedDigits(s string, n int) bool {
	run := 0
	var prev rune
	for _, r := range s {
		if r < '0' || r > '9' {
			run = 0
			continue
		}
		if run > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		prev = r
		if run >= n {
			return true
		}
	}
	return false
}
