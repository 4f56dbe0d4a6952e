// Package transcript archives what was said during interviews.
package transcript

import (
	"context"
	"time"
)

type Role string

const (
	RoleCandidate   Role = "candidate"
	RoleInterviewer Role = "interviewer"
)

// TurnRecord is one archived utterance.
type TurnRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	Modality    string    `json:"modality"`
	Content     string    `json:"content"`
	Interrupted bool      `json:"interrupted,omitempty"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves transcript turns.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	// Recent returns up to limit of the newest turns in chronological order.
	// A non-positive limit returns everything.
	Recent(ctx context.Context, userID string, limit int) ([]TurnRecord, error)
	Close() error
}
