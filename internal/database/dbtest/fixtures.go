package dbtest

import (
	"context"
	"testing"
	"time"

	"ms-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func Cents(v int64) *int64 { return &v }

// DefaultRanges: under 100 pays 10, 100 to 9999 pays 20, from 10000 pays 100.
func DefaultRanges() []models.FeeScheduleRange {
	return []models.FeeScheduleRange{
		{MinPriceInCents: 0, FeeInCents: 10},
		{MinPriceInCents: 100, FeeInCents: 20},
		{MinPriceInCents: 10000, FeeInCents: 100},
	}
}

// Builder inserts catalogue rows relative to Now.
type Builder struct {
	t   testing.TB
	db  bun.IDB
	Now time.Time
}

func NewBuilder(t testing.TB, db bun.IDB, now time.Time) *Builder {
	return &Builder{t: t, db: db, Now: now}
}

func (b *Builder) insert(model interface{}) {
	b.t.Helper()
	_, err := b.db.NewInsert().Model(model).Exec(context.Background())
	require.NoError(b.t, err)
}

type OrgOptions struct {
	EventFeeInCents *int64
	// Ranges defaults to DefaultRanges. NoFeeSchedule leaves the org without one.
	Ranges        []models.FeeScheduleRange
	NoFeeSchedule bool
}

func (b *Builder) Organization(opts OrgOptions) *models.Organization {
	b.t.Helper()

	org := &models.Organization{
		ID:              uuid.NewString(),
		Name:            "Org " + uuid.NewString()[:8],
		EventFeeInCents: opts.EventFeeInCents,
	}

	if !opts.NoFeeSchedule {
		schedule := &models.FeeSchedule{ID: uuid.NewString(), Name: "Default"}
		b.insert(schedule)
		ranges := opts.Ranges
		if ranges == nil {
			ranges = DefaultRanges()
		}
		for _, r := range ranges {
			r := r
			r.ID = uuid.NewString()
			r.FeeScheduleID = schedule.ID
			b.insert(&r)
		}
		org.FeeScheduleID = schedule.ID
	}

	b.insert(org)
	return org
}

type EventOptions struct {
	Name       string
	FeeInCents *int64
}

func (b *Builder) Event(org *models.Organization, opts EventOptions) *models.Event {
	b.t.Helper()

	name := opts.Name
	if name == "" {
		name = "Event " + uuid.NewString()[:8]
	}
	event := &models.Event{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		Name:           name,
		EventStart:     b.Now.Add(30 * 24 * time.Hour),
		FeeInCents:     opts.FeeInCents,
	}
	b.insert(event)
	return event
}

type TicketTypeOptions struct {
	Name               string
	PriceInCents       int64
	Increment          int64
	Quantity           int
	BoxOfficePrice     *int64
	RequiresAccessCode bool
	// Tiers replaces the single always-active standard tier.
	Tiers []models.TicketPricing
}

// TicketType creates the type, its pricing tiers and Quantity Available
// instances. PriceInCents defaults to 150 and Quantity to 100; pass a
// negative PriceInCents for a free ticket.
func (b *Builder) TicketType(event *models.Event, opts TicketTypeOptions) *models.TicketType {
	b.t.Helper()

	if opts.Increment == 0 {
		opts.Increment = 1
	}
	if opts.Quantity == 0 {
		opts.Quantity = 100
	}
	price := opts.PriceInCents
	switch {
	case price == 0:
		price = 150
	case price < 0:
		price = 0
	}
	name := opts.Name
	if name == "" {
		name = "General Admission"
	}

	tt := &models.TicketType{
		ID:                 uuid.NewString(),
		EventID:            event.ID,
		Name:               name,
		Increment:          opts.Increment,
		RequiresAccessCode: opts.RequiresAccessCode,
	}
	b.insert(tt)

	tiers := opts.Tiers
	if tiers == nil {
		tiers = []models.TicketPricing{{
			Name:         "Standard",
			PriceInCents: price,
			StartDate:    b.Now.Add(-24 * time.Hour),
			EndDate:      b.Now.Add(30 * 24 * time.Hour),
		}}
	}
	if opts.BoxOfficePrice != nil {
		tiers = append(tiers, models.TicketPricing{
			Name:            "Box office",
			PriceInCents:    *opts.BoxOfficePrice,
			IsBoxOfficeOnly: true,
		})
	}
	for _, tier := range tiers {
		tier := tier
		tier.ID = uuid.NewString()
		tier.TicketTypeID = tt.ID
		b.insert(&tier)
	}

	instances := make([]models.TicketInstance, opts.Quantity)
	for i := range instances {
		instances[i] = models.TicketInstance{
			ID:           uuid.NewString(),
			TicketTypeID: tt.ID,
			Status:       models.TicketInstanceAvailable,
		}
	}
	_, err := b.db.NewInsert().Model(&instances).Exec(context.Background())
	require.NoError(b.t, err)

	return tt
}

type HoldOptions struct {
	HoldType        models.HoldType
	DiscountInCents *int64
	Quantity        int
	EndAt           time.Time
	MaxPerOrder     *int64
	RedemptionCode  string
}

// Hold creates a hold and moves Quantity available instances into it.
func (b *Builder) Hold(tt *models.TicketType, opts HoldOptions) *models.Hold {
	b.t.Helper()

	if opts.HoldType == "" {
		opts.HoldType = models.HoldTypeDiscount
	}
	code := opts.RedemptionCode
	if code == "" {
		code = "HOLD" + uuid.NewString()[:8]
	}
	hold := &models.Hold{
		ID:              uuid.NewString(),
		Name:            "Hold " + code,
		EventID:         tt.EventID,
		TicketTypeID:    tt.ID,
		RedemptionCode:  code,
		HoldType:        opts.HoldType,
		DiscountInCents: opts.DiscountInCents,
		EndAt:           opts.EndAt,
		MaxPerOrder:     opts.MaxPerOrder,
	}
	b.insert(hold)

	if opts.Quantity > 0 {
		var ids []string
		err := b.db.NewSelect().
			Model((*models.TicketInstance)(nil)).
			Column("id").
			Where("ticket_type_id = ?", tt.ID).
			Where("hold_id IS NULL").
			Where("status = ?", models.TicketInstanceAvailable).
			Order("id").
			Limit(opts.Quantity).
			Scan(context.Background(), &ids)
		require.NoError(b.t, err)
		require.Len(b.t, ids, opts.Quantity, "not enough instances for hold")

		_, err = b.db.NewUpdate().
			Model((*models.TicketInstance)(nil)).
			Set("hold_id = ?", hold.ID).
			Where("id IN (?)", bun.In(ids)).
			Exec(context.Background())
		require.NoError(b.t, err)
	}
	return hold
}

type CodeOptions struct {
	CodeType        models.CodeType
	DiscountInCents *int64
	StartDate       time.Time
	EndDate         time.Time
	MaxUses         int64
	RedemptionCode  string
}

// Code creates a code for the given ticket types. The window defaults to
// a day either side of Now.
func (b *Builder) Code(event *models.Event, tts []*models.TicketType, opts CodeOptions) *models.Code {
	b.t.Helper()

	if opts.CodeType == "" {
		opts.CodeType = models.CodeTypeDiscount
	}
	if opts.StartDate.IsZero() {
		opts.StartDate = b.Now.Add(-24 * time.Hour)
	}
	if opts.EndDate.IsZero() {
		opts.EndDate = b.Now.Add(24 * time.Hour)
	}
	redemption := opts.RedemptionCode
	if redemption == "" {
		redemption = "CODE" + uuid.NewString()[:8]
	}

	code := &models.Code{
		ID:              uuid.NewString(),
		Name:            "Code " + redemption,
		EventID:         event.ID,
		RedemptionCode:  redemption,
		CodeType:        opts.CodeType,
		DiscountInCents: opts.DiscountInCents,
		StartDate:       opts.StartDate,
		EndDate:         opts.EndDate,
		MaxUses:         opts.MaxUses,
	}
	b.insert(code)

	for _, tt := range tts {
		b.insert(&models.CodeTicketType{CodeID: code.ID, TicketTypeID: tt.ID})
	}
	return code
}

func (b *Builder) OrgUser(org *models.Organization, userID string, roles []models.Role, eventIDs []string) *models.OrganizationUser {
	b.t.Helper()

	ou := &models.OrganizationUser{
		ID:             uuid.NewString(),
		OrganizationID: org.ID,
		UserID:         userID,
		Roles:          roles,
		EventIDs:       eventIDs,
	}
	b.insert(ou)
	return ou
}

// AvailableCount counts instances of tt that are Available and unheld.
func (b *Builder) AvailableCount(tt *models.TicketType) int {
	b.t.Helper()

	n, err := b.db.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Where("ticket_type_id = ?", tt.ID).
		Where("hold_id IS NULL").
		Where("status = ?", models.TicketInstanceAvailable).
		Count(context.Background())
	require.NoError(b.t, err)
	return n
}
