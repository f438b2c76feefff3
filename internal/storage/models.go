package storage

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	EntryCommand     EntryKind = "command"
	EntryDiagnostic  EntryKind = "diagnostic"
	EntryDisplayMode EntryKind = "display_mode"
)

// JournalEntry is one recorded bridge event.
type JournalEntry struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Kind      EntryKind `json:"kind"`
	Source    string    `json:"source,omitempty"`
	Text      string    `json:"text"`
	DryRun    bool      `json:"dry_run"`
	CreatedAt time.Time `json:"created_at"`
}
