package pricing_test

import (
	"context"
	"testing"
	"time"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/codes"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setup(t *testing.T) (*bun.DB, *clock.FakeClock, *dbtest.Builder, *models.Event, *pricing.Resolver) {
	db := dbtest.New(t)
	clk := clock.Fake(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	b := dbtest.NewBuilder(t, db, clk.Now())
	event := b.Event(b.Organization(dbtest.OrgOptions{}), dbtest.EventOptions{})
	return db, clk, b, event, pricing.NewResolver(clk, logger.Discard())
}

func TestResolveStandardTier(t *testing.T) {
	db, _, b, event, r := setup(t)
	tt := b.TicketType(event, dbtest.TicketTypeOptions{PriceInCents: 150})

	price, err := r.Resolve(context.Background(), db, pricing.Request{TicketType: tt, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(150), price.UnitPriceInCents)
	assert.NotEmpty(t, price.TicketPricingID)
}

func TestResolveFollowsActiveTier(t *testing.T) {
	db, clk, b, event, r := setup(t)
	now := clk.Now()
	tt := b.TicketType(event, dbtest.TicketTypeOptions{Tiers: []models.TicketPricing{
		{Name: "Early bird", PriceInCents: 100, StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(time.Hour)},
		{Name: "Standard", PriceInCents: 200, StartDate: now.Add(time.Hour), EndDate: now.Add(48 * time.Hour)},
	}})
	ctx := context.Background()

	price, err := r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(100), price.UnitPriceInCents)

	clk.Advance(2 * time.Hour)
	price, err = r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(200), price.UnitPriceInCents)

	clk.Advance(72 * time.Hour)
	_, err = r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 1})
	assert.True(t, errs.IsValidation(err, "ticket_type_id", "no_active_pricing"))
}

func TestResolveIncrement(t *testing.T) {
	db, _, b, event, r := setup(t)
	tt := b.TicketType(event, dbtest.TicketTypeOptions{Increment: 4})
	ctx := context.Background()

	_, err := r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 10})
	v, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "Order item quantity invalid for ticket pricing increment", v.Fields["quantity"][0].Message)
	assert.Equal(t, "quantity_invalid_increment", v.Fields["quantity"][0].Code)

	_, err = r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 12})
	assert.NoError(t, err)
}

func TestResolveRedemptions(t *testing.T) {
	db, _, b, event, r := setup(t)
	tt := b.TicketType(event, dbtest.TicketTypeOptions{PriceInCents: 150})
	ctx := context.Background()

	tests := []struct {
		name    string
		outcome codes.Outcome
		want    int64
	}{
		{"discount", codes.Outcome{Kind: codes.Valid, DiscountInCents: 50}, 100},
		{"discount floored at zero", codes.Outcome{Kind: codes.Valid, DiscountInCents: 500}, 0},
		{"comp", codes.Outcome{Kind: codes.Valid, Comp: true}, 0},
		{"access keeps tier price", codes.Outcome{Kind: codes.Valid, Access: true}, 150},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			outcome := tc.outcome
			price, err := r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 1, Redemption: &outcome})
			require.NoError(t, err)
			assert.Equal(t, tc.want, price.UnitPriceInCents)
		})
	}
}

func TestResolveAccessRestricted(t *testing.T) {
	db, _, b, event, r := setup(t)
	tt := b.TicketType(event, dbtest.TicketTypeOptions{RequiresAccessCode: true})
	ctx := context.Background()

	_, err := r.Resolve(ctx, db, pricing.Request{TicketType: tt, Quantity: 1})
	assert.True(t, errs.IsValidation(err, "ticket_type_id", "access_code_required"))

	price, err := r.Resolve(ctx, db, pricing.Request{
		TicketType: tt,
		Quantity:   1,
		Redemption: &codes.Outcome{Kind: codes.Valid, Access: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), price.UnitPriceInCents)
}

func TestResolveBoxOffice(t *testing.T) {
	db, _, b, event, r := setup(t)
	ctx := context.Background()
	withBoxOffice := b.TicketType(event, dbtest.TicketTypeOptions{PriceInCents: 150, BoxOfficePrice: dbtest.Cents(120)})
	without := b.TicketType(event, dbtest.TicketTypeOptions{PriceInCents: 150})

	price, err := r.Resolve(ctx, db, pricing.Request{TicketType: withBoxOffice, Quantity: 1, BoxOffice: true})
	require.NoError(t, err)
	assert.Equal(t, int64(120), price.UnitPriceInCents)

	price, err = r.Resolve(ctx, db, pricing.Request{TicketType: withBoxOffice, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(150), price.UnitPriceInCents, "box office tier is never sold online")

	price, err = r.Resolve(ctx, db, pricing.Request{TicketType: without, Quantity: 1, BoxOffice: true})
	require.NoError(t, err)
	assert.Equal(t, int64(150), price.UnitPriceInCents)
}
