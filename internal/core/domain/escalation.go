package domain

import "time"

// Escalation represents a failure the healing loop gave up on,
// queued for operator attention
type Escalation struct {
	ID           string    `json:"id"`
	DeploymentID string    `json:"deployment_id"`
	Service      string    `json:"service"`
	Operation    string    `json:"operation"`
	ErrorType    string    `json:"error_type"`
	Error        string    `json:"error_msg"`
	Attempts     int       `json:"attempts"`
	EscalatedAt  time.Time `json:"escalated_at"`
}
