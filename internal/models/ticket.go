package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID      string `bun:"id,pk" json:"id"`
	EventID string `bun:"event_id,notnull" json:"event_id"`
	Name    string `bun:"name,notnull" json:"name"`
	// Increment is the quantity step a cart line must respect.
	Increment          int64 `bun:"increment,notnull,default:1" json:"increment"`
	LimitPerPerson     int64 `bun:"limit_per_person,notnull,default:0" json:"limit_per_person"`
	RequiresAccessCode bool  `bun:"requires_access_code,notnull,default:false" json:"requires_access_code"`
}

type TicketPricing struct {
	bun.BaseModel `bun:"table:ticket_pricing,alias:tp"`

	ID              string    `bun:"id,pk" json:"id"`
	TicketTypeID    string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	Name            string    `bun:"name,notnull" json:"name"`
	PriceInCents    int64     `bun:"price_in_cents,notnull" json:"price_in_cents"`
	StartDate       time.Time `bun:"start_date,nullzero" json:"start_date,omitempty"`
	EndDate         time.Time `bun:"end_date,nullzero" json:"end_date,omitempty"`
	IsBoxOfficeOnly bool      `bun:"is_box_office_only,notnull,default:false" json:"is_box_office_only"`
}

// ActiveAt reports whether at falls inside the tier window. Zero bounds are
// open.
func (p *TicketPricing) ActiveAt(at time.Time) bool {
	if !p.StartDate.IsZero() && at.Before(p.StartDate) {
		return false
	}
	if !p.EndDate.IsZero() && at.After(p.EndDate) {
		return false
	}
	return true
}

type TicketInstance struct {
	bun.BaseModel `bun:"table:ticket_instances,alias:ti"`

	ID            string               `bun:"id,pk" json:"id"`
	TicketTypeID  string               `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	HoldID        string               `bun:"hold_id,nullzero" json:"hold_id,omitempty"`
	OrderItemID   string               `bun:"order_item_id,nullzero" json:"order_item_id,omitempty"`
	Status        TicketInstanceStatus `bun:"status,notnull" json:"status"`
	ReservedUntil time.Time            `bun:"reserved_until,nullzero" json:"reserved_until,omitempty"`
	RedeemedAt    time.Time            `bun:"redeemed_at,nullzero" json:"redeemed_at,omitempty"`
	UpdatedAt     time.Time            `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
