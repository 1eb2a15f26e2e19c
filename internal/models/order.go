package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID               string      `bun:"id,pk" json:"id"`
	UserID           string      `bun:"user_id,notnull" json:"user_id"`
	Status           OrderStatus `bun:"status,notnull" json:"status"`
	OrderType        OrderType   `bun:"order_type,notnull" json:"order_type"`
	BoxOfficePricing bool        `bun:"box_office_pricing,notnull,default:false" json:"box_office_pricing"`
	Note             string      `bun:"note,nullzero" json:"note,omitempty"`
	ExpiresAt        time.Time   `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	PaidAt           time.Time   `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	CreatedAt        time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt        time.Time   `bun:"updated_at,notnull" json:"updated_at"`
}

// Expired reports whether a draft has outlived its expiry at now.
func (o *Order) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !o.ExpiresAt.After(now)
}

// OrderItem is one priced line. PerUnitFees lines point at their Tickets
// line through ParentID.
type OrderItem struct {
	bun.BaseModel `bun:"table:order_items,alias:oi"`

	ID                 string        `bun:"id,pk" json:"id"`
	OrderID            string        `bun:"order_id,notnull" json:"order_id"`
	ItemType           OrderItemType `bun:"item_type,notnull" json:"item_type"`
	EventID            string        `bun:"event_id,nullzero" json:"event_id,omitempty"`
	TicketTypeID       string        `bun:"ticket_type_id,nullzero" json:"ticket_type_id,omitempty"`
	TicketPricingID    string        `bun:"ticket_pricing_id,nullzero" json:"ticket_pricing_id,omitempty"`
	FeeScheduleRangeID string        `bun:"fee_schedule_range_id,nullzero" json:"fee_schedule_range_id,omitempty"`
	ParentID           string        `bun:"parent_id,nullzero" json:"parent_id,omitempty"`
	HoldID             string        `bun:"hold_id,nullzero" json:"hold_id,omitempty"`
	CodeID             string        `bun:"code_id,nullzero" json:"code_id,omitempty"`
	Quantity           int64         `bun:"quantity,notnull" json:"quantity"`
	UnitPriceInCents   int64         `bun:"unit_price_in_cents,notnull" json:"unit_price_in_cents"`
	RefundedQuantity   int64         `bun:"refunded_quantity,notnull,default:0" json:"refunded_quantity"`
	CreatedAt          time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt          time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// RemainingQuantity is the unrefunded part of the line.
func (i *OrderItem) RemainingQuantity() int64 {
	return i.Quantity - i.RefundedQuantity
}

// Total is unit price times remaining quantity.
func (i *OrderItem) Total() int64 {
	return i.UnitPriceInCents * i.RemainingQuantity()
}

type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID                string        `bun:"id,pk" json:"id"`
	OrderID           string        `bun:"order_id,notnull" json:"order_id"`
	CreatedBy         string        `bun:"created_by,notnull" json:"created_by"`
	Status            PaymentStatus `bun:"status,notnull" json:"status"`
	PaymentMethod     PaymentMethod `bun:"payment_method,notnull" json:"payment_method"`
	Amount            int64         `bun:"amount,notnull" json:"amount"`
	ExternalReference string        `bun:"external_reference,nullzero" json:"external_reference,omitempty"`
	CreatedAt         time.Time     `bun:"created_at,notnull" json:"created_at"`
}

type Refund struct {
	bun.BaseModel `bun:"table:refunds,alias:r"`

	ID        string    `bun:"id,pk" json:"id"`
	OrderID   string    `bun:"order_id,notnull" json:"order_id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Amount    int64     `bun:"amount,notnull" json:"amount"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// RefundedTicket records a refunded (item, instance) pair so the same pair
// cannot be refunded twice.
type RefundedTicket struct {
	bun.BaseModel `bun:"table:refunded_tickets,alias:rt"`

	ID               string `bun:"id,pk" json:"id"`
	RefundID         string `bun:"refund_id,notnull" json:"refund_id"`
	OrderItemID      string `bun:"order_item_id,notnull,unique:refunded_tickets_item_instance" json:"order_item_id"`
	TicketInstanceID string `bun:"ticket_instance_id,notnull,unique:refunded_tickets_item_instance" json:"ticket_instance_id"`
}
