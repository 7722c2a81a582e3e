package subscription

import (
	"time"

	"renewal-service/internal/models"
)

// Plan is one entry of the fixed catalog. Amounts are in minor currency units.
type Plan struct {
	Type   models.PlanType `json:"type"`
	Name   string          `json:"name"`
	Amount int64           `json:"amount"`
}

var catalog = map[models.PlanType]Plan{
	models.PlanMonthly:  {Type: models.PlanMonthly, Name: "Plan Mensual", Amount: 9999},
	models.PlanAnnual:   {Type: models.PlanAnnual, Name: "Plan Anual", Amount: 99900},
	models.PlanLifetime: {Type: models.PlanLifetime, Name: "Plan Vitalicio", Amount: 199900},
}

func LookupPlan(t models.PlanType) (Plan, bool) {
	p, ok := catalog[t]
	return p, ok
}

// planThresholds is evaluated top to bottom; an amount equal to a threshold belongs to that tier.
var planThresholds = []struct {
	minAmount int64
	plan      models.PlanType
}{
	{catalog[models.PlanLifetime].Amount, models.PlanLifetime},
	{catalog[models.PlanAnnual].Amount, models.PlanAnnual},
	{0, models.PlanMonthly},
}

// PlanForAmount derives the plan tier from a paid amount.
func PlanForAmount(amount int64) models.PlanType {
	for _, t := range planThresholds {
		if amount >= t.minAmount {
			return t.plan
		}
	}
	return models.PlanMonthly
}

// ExpiresAt returns when a plan paid at paidAt lapses. Lifetime plans never do.
func ExpiresAt(plan models.PlanType, paidAt time.Time) *time.Time {
	var at time.Time
	switch plan {
	case models.PlanMonthly:
		at = paidAt.AddDate(0, 1, 0)
	case models.PlanAnnual:
		at = paidAt.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &at
}
