// Package alerting routes assessed transactions to alerts using CEL rules.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BinaryLoops/Fraud-Detector/internal/domain"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"
	"github.com/google/uuid"
)

// Classifier evaluates alert rules in priority order. The first rule whose
// condition holds produces the alert.
type Classifier struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*compiledRule
	now   func() time.Time
	loc   *time.Location
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLocation evaluates the hour variable in loc. It should match the
// scorer's location so hour rules agree with the time factors.
func WithLocation(loc *time.Location) Option {
	return func(c *Classifier) { c.loc = loc }
}

type compiledRule struct {
	config    *domain.AlertRule
	condition cel.Program
	message   cel.Program // nil when the rule has a static message
}

// NewClassifier creates a classifier with no rules loaded.
func NewClassifier(opts ...Option) (*Classifier, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("location", cel.StringType),
		cel.Variable("merchant_name", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("card_number", cel.StringType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("factors", cel.ListType(cel.StringType)),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	c := &Classifier{
		env: env,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ValidateRule compiles a rule without loading it.
func (c *Classifier) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required")
	}
	_, err := c.compile(rule)
	return err
}

// LoadRule compiles a rule and adds it, replacing any rule with the same ID.
func (c *Classifier) LoadRule(rule *domain.AlertRule) error {
	compiled, err := c.compile(rule)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]*compiledRule, 0, len(c.rules)+1)
	for _, r := range c.rules {
		if r.config.ID != rule.ID {
			next = append(next, r)
		}
	}
	c.rules = sortRules(append(next, compiled))
	return nil
}

// LoadRules loads every enabled rule.
func (c *Classifier) LoadRules(rules []*domain.AlertRule) error {
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if err := c.LoadRule(rule); err != nil {
			return err
		}
	}
	return nil
}

// ReloadRules replaces the loaded set atomically. On error the previous set stays.
func (c *Classifier) ReloadRules(rules []*domain.AlertRule) error {
	next := make([]*compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := c.compile(rule)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	c.mu.Lock()
	c.rules = sortRules(next)
	c.mu.Unlock()
	return nil
}

// GetLoadedRules returns the loaded rules in evaluation order.
func (c *Classifier) GetLoadedRules() []*domain.AlertRule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.AlertRule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.config)
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (c *Classifier) RulesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// Classify returns the alert for an assessed transaction, or nil when no
// rule matches. Rules that fail to evaluate are logged and skipped.
func (c *Classifier) Classify(ctx context.Context, tx *domain.Transaction, assessment domain.FraudAssessment) (*domain.Alert, error) {
	c.mu.RLock()
	rules := c.rules
	c.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}

	ts := tx.Timestamp
	if c.loc != nil {
		ts = ts.In(c.loc)
	}

	activation := map[string]any{
		"amount":            tx.Amount,
		"location":          tx.Location,
		"merchant_name":     tx.MerchantName,
		"merchant_category": tx.MerchantCategory,
		"card_number":       tx.CardNumber,
		"risk_level":        string(assessment.RiskLevel),
		"factors":           factorList(assessment.RiskFactors),
		"confidence":        assessment.Confidence,
		"hour":              int64(ts.Hour()),
	}

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out, _, err := r.condition.Eval(activation)
		if err != nil {
			slog.Warn("alert rule evaluation failed",
				"rule_id", r.config.ID,
				"tx_id", tx.ID,
				"error", err,
			)
			continue
		}
		if out != types.True {
			continue
		}

		message := r.config.Title
		if r.message != nil {
			msg, _, err := r.message.Eval(activation)
			if err != nil {
				slog.Warn("alert message evaluation failed",
					"rule_id", r.config.ID,
					"tx_id", tx.ID,
					"error", err,
				)
			} else if s, ok := msg.Value().(string); ok {
				message = s
			}
		}

		return &domain.Alert{
			ID:         "ALT-" + uuid.New().String(),
			TenantID:   tx.TenantID,
			RuleID:     r.config.ID,
			Type:       r.config.Type,
			Severity:   r.config.Severity,
			Title:      r.config.Title,
			Message:    message,
			TxID:       tx.ID,
			Amount:     tx.Amount,
			Location:   tx.Location,
			Confidence: assessment.Confidence,
			Timestamp:  c.now().UTC(),
		}, nil
	}

	return nil, nil
}

// Close unloads all rules.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = nil
	return nil
}

func (c *Classifier) compile(rule *domain.AlertRule) (*compiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("alert rule id is required")
	}
	if rule.Title == "" {
		return nil, fmt.Errorf("alert rule %s: title is required", rule.ID)
	}

	condition, err := c.program(rule.ID, rule.Condition, cel.BoolType)
	if err != nil {
		return nil, err
	}

	compiled := &compiledRule{config: rule, condition: condition}
	if rule.Message != "" {
		compiled.message, err = c.program(rule.ID, rule.Message, cel.StringType)
		if err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

func (c *Classifier) program(ruleID, expr string, want *cel.Type) (cel.Program, error) {
	ast, issues := c.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile alert rule %s: %w", ruleID, issues.Err())
	}
	if !ast.OutputType().IsExactType(want) {
		return nil, fmt.Errorf("alert rule %s: expression must return %s, got %s", ruleID, want, ast.OutputType())
	}

	program, err := c.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for alert rule %s: %w", ruleID, err)
	}
	return program, nil
}

func sortRules(rules []*compiledRule) []*compiledRule {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].config.Priority != rules[j].config.Priority {
			return rules[i].config.Priority < rules[j].config.Priority
		}
		return rules[i].config.ID < rules[j].config.ID
	})
	return rules
}

func factorList(factors []string) []string {
	if factors == nil {
		return []string{}
	}
	return factors
}
