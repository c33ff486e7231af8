package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAssessmentsTotalByTier(t *testing.T) {
	before := testutil.ToFloat64(AssessmentsTotal.WithLabelValues("high"))
	AssessmentsTotal.WithLabelValues("high").Inc()
	if got := testutil.ToFloat64(AssessmentsTotal.WithLabelValues("high")); got != before+1 {
		t.Errorf("expected %v, got %v", before+1, got)
	}
}

func TestFeedSubscribersGauge(t *testing.T) {
	FeedSubscribers.Set(0)
	FeedSubscribers.Inc()
	FeedSubscribers.Inc()
	FeedSubscribers.Dec()
	if got := testutil.ToFloat64(FeedSubscribers); got != 1 {
		t.Errorf("expected 1 subscriber, got %v", got)
	}
}
