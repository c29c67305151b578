package models

import (
	"time"

	"github.com/google/uuid"
)

// SavedSnapshot is a text snapshot of a table kept for later import.
type SavedSnapshot struct {
	ID        uuid.UUID `json:"id"`
	TableID   string    `json:"table_id"`
	Version   string    `json:"version"`
	Text      string    `json:"text"`
	StateID   uint32    `json:"state_id"`
	CreatedAt time.Time `json:"created_at"`
}
