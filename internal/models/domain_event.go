package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// DomainEvent is an outbox row written in the same transaction as the
// change it describes.
type DomainEvent struct {
	bun.BaseModel `bun:"table:domain_events,alias:de"`

	ID          string          `bun:"id,pk" json:"id"`
	EventType   string          `bun:"event_type,notnull" json:"event_type"`
	MainTable   string          `bun:"main_table,notnull" json:"main_table"`
	MainID      string          `bun:"main_id,notnull" json:"main_id"`
	UserID      string          `bun:"user_id,nullzero" json:"user_id,omitempty"`
	Payload     json.RawMessage `bun:"payload,type:jsonb" json:"payload"`
	CreatedAt   time.Time       `bun:"created_at,notnull" json:"created_at"`
	PublishedAt time.Time       `bun:"published_at,nullzero" json:"published_at,omitempty"`
}
