package models

import "time"

type ProcessedSubscriber struct {
	ID    string `json:"id"`
	Name  string `json:"nombre"`
	Email string `json:"email"`
}

// RunReport aggregates one sweep pass.
type RunReport struct {
	TotalEvaluated int                   `json:"total_clientes"`
	Sent           int                   `json:"notificaciones_enviadas"`
	Errors         int                   `json:"errores"`
	Skipped        int                   `json:"omitidos"`
	Processed      []ProcessedSubscriber `json:"clientes_procesados"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"timestamp"`
}
