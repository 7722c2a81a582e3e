package subscription

import "renewal-service/internal/models"

type transition struct {
	from models.Status
	to   models.Status
}

// validTransitions lists every allowed status change. paid, cancelled and expired are terminal.
var validTransitions = map[transition]bool{
	{models.StatusPending, models.StatusPaid}:      true,
	{models.StatusPending, models.StatusCancelled}: true,
	{models.StatusPending, models.StatusExpired}:   true,
}

// CanTransition reports whether a subscription may move from one status to another.
func CanTransition(from, to models.Status) bool {
	return validTransitions[transition{from, to}]
}
