// Package store persists users, calls and transcriptions.
package store

import (
	"context"
	"time"

	"github.com/checklinehq/checkline/pkg/script"
)

// UserRecord is a row in the users table.
type UserRecord struct {
	ID          string
	PhoneNumber string
	CreatedAt   time.Time
}

// CallRecord is a row in the calls table. CallSID is the telephony provider's
// external reference, set once the outbound call is placed.
type CallRecord struct {
	ID              string
	UserID          string
	CallSID         string
	CallType        script.CallType
	Status          string
	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
}

// TranscriptionRecord is a row in the transcriptions table.
type TranscriptionRecord struct {
	ID        string
	CallID    string
	Content   string
	CreatedAt time.Time
}

// CallUpdate carries the optional fields of an update_call operation. Nil
// fields are left untouched.
type CallUpdate struct {
	Status  *string
	EndedAt *time.Time
	CallSID *string
}

// Call status lifecycle values.
const (
	StatusInitiated = "initiated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Recorder is the persistence collaborator. Implementations may fail with
// errors; relay-facing callers go through BestEffort instead.
type Recorder interface {
	CreateUser(ctx context.Context, phone string) (UserRecord, error)
	GetUserByPhone(ctx context.Context, phone string) (UserRecord, bool, error)
	CreateCall(ctx context.Context, userID string, callType script.CallType, status string) (CallRecord, error)
	UpdateCall(ctx context.Context, callID string, upd CallUpdate) (CallRecord, error)
	CreateTranscription(ctx context.Context, callID, content string) (TranscriptionRecord, error)
	GetTranscriptionByCallID(ctx context.Context, callID string) (TranscriptionRecord, bool, error)
}
