package domain

import "time"

// TransitionRecord is one audit entry in a deployment's lifecycle history.
// Records are immutable once created and are only ever appended.
type TransitionRecord struct {
	From     DeploymentStatus
	To       DeploymentStatus
	Reason   string
	Metadata map[string]string
	At       time.Time
}

// NewTransition creates a transition record stamped with the current time.
func NewTransition(from, to DeploymentStatus, reason string) TransitionRecord {
	return TransitionRecord{
		From:   from,
		To:     to,
		Reason: reason,
		At:     time.Now().UTC(),
	}
}

// WithMetadata returns a copy of the record carrying the given metadata.
// The map is copied so later caller mutation cannot reach the record.
func (t TransitionRecord) WithMetadata(md map[string]string) TransitionRecord {
	if len(md) == 0 {
		return t
	}
	cp := make(map[string]string, len(md))
	for k, v := range md {
		cp[k] = v
	}
	t.Metadata = cp
	return t
}
