package models

import "github.com/uptrace/bun"

type FeeSchedule struct {
	bun.BaseModel `bun:"table:fee_schedules,alias:fs"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
}

// FeeScheduleRange applies FeeInCents to unit prices from MinPriceInCents
// up to the next range's breakpoint.
type FeeScheduleRange struct {
	bun.BaseModel `bun:"table:fee_schedule_ranges,alias:fsr"`

	ID              string `bun:"id,pk" json:"id"`
	FeeScheduleID   string `bun:"fee_schedule_id,notnull" json:"fee_schedule_id"`
	MinPriceInCents int64  `bun:"min_price_in_cents,notnull" json:"min_price_in_cents"`
	FeeInCents      int64  `bun:"fee_in_cents,notnull" json:"fee_in_cents"`
}
