package renewal

import (
	"fmt"
	"time"

	"renewal-service/internal/models"
)

// WarningDays is the last stretch of the entitlement window in which reminders go out.
const WarningDays = 7

// Status is the classification of one subscriber at an evaluation time.
type Status struct {
	DaysRemaining int         `json:"dias_restantes"`
	Tier          models.Tier `json:"tier"`
	Message       string      `json:"mensaje"`
}

// Clock supplies the evaluation time. Classification itself never reads it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// ExpirationDate returns the calendar date one year after the anchor date.
func ExpirationDate(anchor time.Time) time.Time {
	return dateOf(anchor).AddDate(1, 0, 0)
}

// DaysRemaining counts whole days between now's calendar date and the expiration date.
// It is negative once the subscription has lapsed.
func DaysRemaining(anchor, now time.Time) int {
	diff := ExpirationDate(anchor).Sub(dateOf(now))
	return int(diff / (24 * time.Hour))
}

// Classify derives the tier and display message for an anchor date at now.
func Classify(anchor, now time.Time) Status {
	days := DaysRemaining(anchor, now)
	switch {
	case days <= 0:
		return Status{DaysRemaining: 0, Tier: models.TierExpired, Message: "Tu suscripción ha vencido"}
	case days <= WarningDays:
		return Status{DaysRemaining: days, Tier: models.TierWarning, Message: ExpiresInMessage(days)}
	default:
		return Status{DaysRemaining: days, Tier: models.TierNormal, Message: ExpiresInMessage(days)}
	}
}

func ExpiresInMessage(days int) string {
	return fmt.Sprintf("Tu suscripción vence en %d %s", days, DayWord(days))
}

func DayWord(days int) string {
	if days == 1 {
		return "día"
	}
	return "días"
}

// dateOf keeps the calendar date as seen in t's own location and drops the time of day.
// Dates are rebuilt in UTC so day differences are exact across DST changes.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
