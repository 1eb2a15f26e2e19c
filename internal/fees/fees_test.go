package fees_test

import (
	"context"
	"testing"
	"time"

	"ms-ordering/internal/config"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/fees"
	"ms-ordering/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeForFloorMatch(t *testing.T) {
	schedule := fees.NewSchedule([]models.FeeScheduleRange{
		{ID: "high", MinPriceInCents: 10000, FeeInCents: 100},
		{ID: "low", MinPriceInCents: 50, FeeInCents: 10},
		{ID: "mid", MinPriceInCents: 100, FeeInCents: 20},
	})

	cases := []struct {
		price int64
		want  string
	}{
		{0, "low"},
		{49, "low"},
		{50, "low"},
		{99, "low"},
		{100, "mid"},
		{150, "mid"},
		{9999, "mid"},
		{10000, "high"},
		{1000000, "high"},
	}
	for _, c := range cases {
		r, ok := schedule.RangeFor(c.price)
		require.True(t, ok)
		assert.Equal(t, c.want, r.ID, "price %d", c.price)
	}

	_, ok := fees.NewSchedule(nil).RangeFor(100)
	assert.False(t, ok)
}

func TestEventFeeOverride(t *testing.T) {
	db := dbtest.New(t)
	b := dbtest.NewBuilder(t, db, time.Now())
	ctx := context.Background()
	m := fees.NewMaterial(config.FeeConfig{MinimumPriceForFeesInCents: 1})

	withOrgFee := b.Organization(dbtest.OrgOptions{EventFeeInCents: dbtest.Cents(250)})
	withoutFees := b.Organization(dbtest.OrgOptions{})

	fee, err := m.EventFeeFor(ctx, db, b.Event(withOrgFee, dbtest.EventOptions{}))
	require.NoError(t, err)
	require.NotNil(t, fee)
	assert.Equal(t, int64(250), *fee)

	fee, err = m.EventFeeFor(ctx, db, b.Event(withOrgFee, dbtest.EventOptions{FeeInCents: dbtest.Cents(75)}))
	require.NoError(t, err)
	require.NotNil(t, fee)
	assert.Equal(t, int64(75), *fee)

	fee, err = m.EventFeeFor(ctx, db, b.Event(withoutFees, dbtest.EventOptions{FeeInCents: dbtest.Cents(0)}))
	require.NoError(t, err)
	require.NotNil(t, fee)
	assert.Zero(t, *fee)

	fee, err = m.EventFeeFor(ctx, db, b.Event(withoutFees, dbtest.EventOptions{}))
	require.NoError(t, err)
	assert.Nil(t, fee)
}

func TestPerUnitFee(t *testing.T) {
	db := dbtest.New(t)
	b := dbtest.NewBuilder(t, db, time.Now())
	ctx := context.Background()
	m := fees.NewMaterial(config.FeeConfig{MinimumPriceForFeesInCents: 1})

	event := b.Event(b.Organization(dbtest.OrgOptions{}), dbtest.EventOptions{})

	r, err := m.PerUnitFee(ctx, db, event, 150, false)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(20), r.FeeInCents)

	r, err = m.PerUnitFee(ctx, db, event, 150, true)
	require.NoError(t, err)
	assert.Nil(t, r, "box office lines carry no fee")

	r, err = m.PerUnitFee(ctx, db, event, 0, false)
	require.NoError(t, err)
	assert.Nil(t, r, "free tickets carry no fee")

	noSchedule := b.Event(b.Organization(dbtest.OrgOptions{NoFeeSchedule: true}), dbtest.EventOptions{})
	r, err = m.PerUnitFee(ctx, db, noSchedule, 150, false)
	require.NoError(t, err)
	assert.Nil(t, r)
}
