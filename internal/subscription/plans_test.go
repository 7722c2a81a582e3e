package subscription

import (
	"testing"
	"time"

	"renewal-service/internal/models"
)

func TestPlanForAmount(t *testing.T) {
	tests := []struct {
		amount int64
		want   models.PlanType
	}{
		{0, models.PlanMonthly},
		{9999, models.PlanMonthly},
		{99899, models.PlanMonthly},
		{99900, models.PlanAnnual},
		{199899, models.PlanAnnual},
		{199900, models.PlanLifetime},
		{500000, models.PlanLifetime},
	}
	for _, tt := range tests {
		if got := PlanForAmount(tt.amount); got != tt.want {
			t.Fatalf("PlanForAmount(%d) = %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestThresholdsAreOrderedHighestFirst(t *testing.T) {
	for i := 1; i < len(planThresholds); i++ {
		if planThresholds[i-1].minAmount <= planThresholds[i].minAmount {
			t.Fatalf("threshold %d (%d) not above threshold %d (%d)", i-1, planThresholds[i-1].minAmount, i, planThresholds[i].minAmount)
		}
	}
}

func TestExpiresAt(t *testing.T) {
	paid := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
	if got := ExpiresAt(models.PlanAnnual, paid); got == nil || !got.Equal(paid.AddDate(1, 0, 0)) {
		t.Fatalf("annual expiry = %v", got)
	}
	if got := ExpiresAt(models.PlanMonthly, paid); got == nil || !got.Equal(paid.AddDate(0, 1, 0)) {
		t.Fatalf("monthly expiry = %v", got)
	}
	if got := ExpiresAt(models.PlanLifetime, paid); got != nil {
		t.Fatalf("lifetime expiry = %v, want nil", got)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.Status
		want     bool
	}{
		{models.StatusPending, models.StatusPaid, true},
		{models.StatusPending, models.StatusCancelled, true},
		{models.StatusPending, models.StatusExpired, true},
		{models.StatusPaid, models.StatusPending, false},
		{models.StatusPaid, models.StatusCancelled, false},
		{models.StatusCancelled, models.StatusPaid, false},
		{models.StatusExpired, models.StatusPaid, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if isTerminal(models.StatusPending) {
		t.Fatal("pending must not be terminal")
	}
	for _, s := range []models.Status{models.StatusPaid, models.StatusCancelled, models.StatusExpired} {
		if !isTerminal(s) {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

// isTerminal reports whether no transition leaves s.
func isTerminal(s models.Status) bool {
	for t := range validTransitions {
		if t.from == s {
			return false
		}
	}
	return true
}
