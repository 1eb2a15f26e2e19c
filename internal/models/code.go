package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Code struct {
	bun.BaseModel `bun:"table:codes,alias:c"`

	ID                string    `bun:"id,pk" json:"id"`
	Name              string    `bun:"name,notnull" json:"name"`
	EventID           string    `bun:"event_id,notnull" json:"event_id"`
	RedemptionCode    string    `bun:"redemption_code,notnull,unique" json:"redemption_code"`
	CodeType          CodeType  `bun:"code_type,notnull" json:"code_type"`
	DiscountInCents   *int64    `bun:"discount_in_cents" json:"discount_in_cents,omitempty"`
	StartDate         time.Time `bun:"start_date,nullzero" json:"start_date,omitempty"`
	EndDate           time.Time `bun:"end_date,nullzero" json:"end_date,omitempty"`
	MaxUses           int64     `bun:"max_uses,notnull,default:0" json:"max_uses"`
	MaxTicketsPerUser *int64    `bun:"max_tickets_per_user" json:"max_tickets_per_user,omitempty"`
}

type CodeTicketType struct {
	bun.BaseModel `bun:"table:code_ticket_types,alias:ctt"`

	CodeID       string `bun:"code_id,pk"`
	TicketTypeID string `bun:"ticket_type_id,pk"`
}

// Hold carves ticket instances of one ticket type out of the general pool.
// Its quantity is the number of instances carrying its id.
type Hold struct {
	bun.BaseModel `bun:"table:holds,alias:h"`

	ID              string    `bun:"id,pk" json:"id"`
	Name            string    `bun:"name,notnull" json:"name"`
	EventID         string    `bun:"event_id,notnull" json:"event_id"`
	TicketTypeID    string    `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	RedemptionCode  string    `bun:"redemption_code,notnull,unique" json:"redemption_code"`
	HoldType        HoldType  `bun:"hold_type,notnull" json:"hold_type"`
	DiscountInCents *int64    `bun:"discount_in_cents" json:"discount_in_cents,omitempty"`
	EndAt           time.Time `bun:"end_at,nullzero" json:"end_at,omitempty"`
	MaxPerOrder     *int64    `bun:"max_per_order" json:"max_per_order,omitempty"`
}

type Comp struct {
	bun.BaseModel `bun:"table:comps,alias:cmp"`

	ID        string    `bun:"id,pk" json:"id"`
	HoldID    string    `bun:"hold_id,notnull" json:"hold_id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Email     string    `bun:"email,nullzero" json:"email,omitempty"`
	Quantity  int64     `bun:"quantity,notnull" json:"quantity"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
