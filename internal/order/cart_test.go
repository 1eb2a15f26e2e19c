package order_test

import (
	"errors"
	"testing"
	"time"

	"ms-ordering/internal/codes"
	"ms-ordering/internal/database/dbtest"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"
	"ms-ordering/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartTotalsIncludePerUnitFees(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{PriceInCents: 150})
	cart := f.cart(t)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 10})
	require.Len(t, items, 2)

	ticket := ticketItem(t, items, tt.ID)
	assert.Equal(t, int64(10), ticket.Quantity)
	assert.Equal(t, int64(150), ticket.UnitPriceInCents)

	fee := itemsOfType(items, models.OrderItemTypePerUnitFees)
	require.Len(t, fee, 1)
	assert.Equal(t, ticket.ID, fee[0].ParentID)
	assert.Equal(t, int64(10), fee[0].Quantity)
	assert.Equal(t, int64(20), fee[0].UnitPriceInCents)
	assert.Empty(t, itemsOfType(items, models.OrderItemTypeEventFees))

	total, err := f.svc.CalculateTotal(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1700), total)

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 30})
	assert.Equal(t, int64(5100), sum(items))
	assert.Len(t, f.linked(t, ticket.ID), 30)
	assert.Equal(t, 70, f.build.AvailableCount(tt))

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 5})
	assert.Equal(t, int64(850), sum(items))
	assert.Equal(t, 95, f.build.AvailableCount(tt))
}

func TestQuantityMustRespectIncrement(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Increment: 4})
	cart := f.cart(t)

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 10}}, false, false)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err, "quantity", "quantity_invalid_increment"))

	has, err := f.svc.HasItems(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.False(t, has)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 4})
	assert.Equal(t, int64(4), ticketItem(t, items, tt.ID).Quantity)

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 12})
	assert.Equal(t, int64(12), ticketItem(t, items, tt.ID).Quantity)
}

func TestReplaceIsIdempotent(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	ga := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	vip := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "VIP", PriceInCents: 5000, Quantity: 10})
	cart := f.cart(t)

	lines := []order.LineRequest{
		{TicketTypeID: ga.ID, Quantity: 3},
		{TicketTypeID: vip.ID, Quantity: 2},
	}
	first, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, lines, false, true)
	require.NoError(t, err)
	second, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, lines, false, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, itemIDs(first), itemIDs(second))
	assert.Equal(t, sum(first), sum(second))
	assert.Equal(t, 97, f.build.AvailableCount(ga))
	assert.Equal(t, 8, f.build.AvailableCount(vip))

	// Replace drops lines that are not named.
	third, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, lines[1:], false, true)
	require.NoError(t, err)
	assert.Len(t, itemsOfType(third, models.OrderItemTypeTickets), 1)
	assert.Equal(t, 100, f.build.AvailableCount(ga))
}

func itemIDs(items []models.OrderItem) []string {
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	return ids
}

func TestMergeKeepsOtherLines(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	ga := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	vip := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "VIP", Quantity: 10})
	cart := f.cart(t)

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: ga.ID, Quantity: 2})
	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: vip.ID, Quantity: 1})
	assert.Len(t, itemsOfType(items, models.OrderItemTypeTickets), 2)

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: ga.ID, Quantity: 0})
	tickets := itemsOfType(items, models.OrderItemTypeTickets)
	require.Len(t, tickets, 1)
	assert.Equal(t, vip.ID, tickets[0].TicketTypeID)
	assert.Len(t, itemsOfType(items, models.OrderItemTypePerUnitFees), 1)
}

func TestBoxOfficeSkipsFees(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{EventFeeInCents: dbtest.Cents(500)})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{BoxOfficePrice: dbtest.Cents(100)})
	cart := f.cart(t)

	items, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 10}}, true, false)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, int64(100), items[0].UnitPriceInCents)
	assert.Equal(t, int64(1000), sum(items))

	_, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 2}}, false, false)
	assert.True(t, errs.IsValidation(err, "box_office_pricing", "mismatch"))

	// Replacing switches the whole cart to online pricing.
	items, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 2}}, false, true)
	require.NoError(t, err)
	assert.Equal(t, int64(150), ticketItem(t, items, tt.ID).UnitPriceInCents)
	assert.Len(t, itemsOfType(items, models.OrderItemTypePerUnitFees), 1)
	assert.Len(t, itemsOfType(items, models.OrderItemTypeEventFees), 1)
}

func TestEventFeeIsOnePerEvent(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{EventFeeInCents: dbtest.Cents(250)})
	ga := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	vip := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "VIP"})
	cart := f.cart(t)

	items := f.set(t, cart.ID,
		order.LineRequest{TicketTypeID: ga.ID, Quantity: 2},
		order.LineRequest{TicketTypeID: vip.ID, Quantity: 1},
	)
	eventFees := itemsOfType(items, models.OrderItemTypeEventFees)
	require.Len(t, eventFees, 1)
	assert.Equal(t, int64(1), eventFees[0].Quantity)
	assert.Equal(t, int64(250), eventFees[0].UnitPriceInCents)
	assert.Equal(t, int64(2*170+170+250), sum(items))

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: ga.ID, Quantity: 0})
	assert.Len(t, itemsOfType(items, models.OrderItemTypeEventFees), 1)

	items = f.set(t, cart.ID, order.LineRequest{TicketTypeID: vip.ID, Quantity: 0})
	assert.Empty(t, items)
}

func TestEventOverridesOrganizationFee(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{EventFeeInCents: dbtest.Cents(250)})
	free := f.build.Event(f.org, dbtest.EventOptions{FeeInCents: dbtest.Cents(0)})
	tt := f.build.TicketType(free, dbtest.TicketTypeOptions{})
	cart := f.cart(t)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 1})
	assert.Empty(t, itemsOfType(items, models.OrderItemTypeEventFees))
}

func TestInsufficientInventoryRollsBackEveryLine(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	plenty := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Quantity: 100})
	scarce := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "Scarce", Quantity: 5})
	cart := f.cart(t)

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, []order.LineRequest{
		{TicketTypeID: plenty.ID, Quantity: 3},
		{TicketTypeID: scarce.ID, Quantity: 6},
	}, false, false)
	require.Error(t, err)
	assert.True(t, errs.IsValidation(err, "quantity", "insufficient_inventory"))
	assert.True(t, errors.Is(err, errs.ErrInsufficientInventory))

	has, err := f.svc.HasItems(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 100, f.build.AvailableCount(plenty))
	assert.Equal(t, 5, f.build.AvailableCount(scarce))
}

func TestValidationReportsEveryLine(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Increment: 2})
	cart := f.cart(t)

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, []order.LineRequest{
		{TicketTypeID: "missing", Quantity: 1},
		{TicketTypeID: tt.ID, Quantity: 3},
		{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "NOPE"},
	}, false, false)

	verr, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.True(t, verr.Has("ticket_type_id", "invalid"))
	assert.True(t, verr.Has("quantity", "quantity_invalid_increment"))
	assert.Len(t, verr.Fields, 3)
}

func TestLimitPerPerson(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	_, err := f.db.NewUpdate().Model(tt).Set("limit_per_person = 4").WherePK().Exec(f.ctx)
	require.NoError(t, err)
	cart := f.cart(t)

	_, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 5}}, false, false)
	assert.True(t, errs.IsValidation(err, "quantity", "limit_per_person_exceeded"))

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 4})
}

func TestDiscountCodeLine(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{PriceInCents: 150})
	code := f.build.Code(f.event, []*models.TicketType{tt}, dbtest.CodeOptions{
		DiscountInCents: dbtest.Cents(50),
		RedemptionCode:  "SUMMER50",
	})
	cart := f.cart(t)

	items := f.set(t, cart.ID,
		order.LineRequest{TicketTypeID: tt.ID, Quantity: 2},
		order.LineRequest{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "SUMMER50"},
	)
	tickets := itemsOfType(items, models.OrderItemTypeTickets)
	require.Len(t, tickets, 2)

	var discounted models.OrderItem
	for _, item := range tickets {
		if item.CodeID == code.ID {
			discounted = item
		}
	}
	assert.Equal(t, int64(100), discounted.UnitPriceInCents)
	assert.Equal(t, int64(2*170+2*120), sum(items))

	f.clock.Advance(48 * time.Hour)
	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 3, RedemptionCode: "SUMMER50"}}, false, false)
	assert.True(t, errs.IsValidation(err, "redemption_code", "redemption_code_expired"))
}

func TestCompHoldLineIsFree(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	hold := f.build.Hold(tt, dbtest.HoldOptions{HoldType: models.HoldTypeComp, Quantity: 3, RedemptionCode: "GUESTLIST"})
	cart := f.cart(t)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "GUESTLIST"})
	require.Len(t, items, 1)
	assert.Equal(t, hold.ID, items[0].HoldID)
	assert.Equal(t, int64(0), items[0].UnitPriceInCents)

	for _, in := range f.linked(t, items[0].ID) {
		assert.Equal(t, hold.ID, in.HoldID)
	}
	// General inventory is untouched.
	assert.Equal(t, 97, f.build.AvailableCount(tt))

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 4, RedemptionCode: "GUESTLIST"}}, false, false)
	assert.True(t, errs.IsValidation(err, "redemption_code", "redemption_code_exhausted"))
}

func TestHoldCompsSurviveLapsedReservations(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	hold := f.build.Hold(tt, dbtest.HoldOptions{HoldType: models.HoldTypeComp, Quantity: 10, RedemptionCode: "GUEST"})
	_, err := codes.NewHolds(f.clock, logger.Discard()).CreateComp(f.ctx, f.db, hold.ID, "Crew", "", 8)
	require.NoError(t, err)
	cart := f.cart(t)

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "GUEST"})

	grow := []order.LineRequest{{TicketTypeID: tt.ID, Quantity: 4, RedemptionCode: "GUEST"}}
	_, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, grow, false, false)
	assert.True(t, errs.IsValidation(err, "redemption_code", "redemption_code_exhausted"))

	// Our own lapsed pair must not count as claimable a second time.
	f.clock.Advance(20 * time.Minute)
	_, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, grow, false, false)
	assert.True(t, errs.IsValidation(err, "redemption_code", "redemption_code_exhausted"))

	claimed, err := f.db.NewSelect().
		Model((*models.TicketInstance)(nil)).
		Where("hold_id = ?", hold.ID).
		Where("order_item_id IS NOT NULL").
		Count(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "GUEST"})
	linked := f.linked(t, items[0].ID)
	require.Len(t, linked, 2)
	for _, in := range linked {
		assert.True(t, in.ReservedUntil.After(f.clock.Now()))
	}
}

func TestHoldCompsLimitOtherCarts(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	hold := f.build.Hold(tt, dbtest.HoldOptions{HoldType: models.HoldTypeComp, Quantity: 10, RedemptionCode: "GUEST"})
	_, err := codes.NewHolds(f.clock, logger.Discard()).CreateComp(f.ctx, f.db, hold.ID, "Crew", "", 6)
	require.NoError(t, err)

	first := f.cart(t)
	f.set(t, first.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 3, RedemptionCode: "GUEST"})

	second, err := f.svc.FindOrCreateCart(f.ctx, "user-2")
	require.NoError(t, err)
	_, err = f.svc.UpdateQuantities(f.ctx, second.ID, "user-2",
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 2, RedemptionCode: "GUEST"}}, false, false)
	assert.True(t, errs.IsValidation(err, "redemption_code", "redemption_code_exhausted"))

	_, err = f.svc.UpdateQuantities(f.ctx, second.ID, "user-2",
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 1, RedemptionCode: "GUEST"}}, false, false)
	require.NoError(t, err)
}

func TestNullifiedInstanceIsReplacedOnUpdate(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	cart := f.cart(t)
	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2})
	ticket := ticketItem(t, items, tt.ID)

	linked := f.linked(t, ticket.ID)
	require.Len(t, linked, 2)
	nullified := linked[0].ID
	require.NoError(t, f.svc.Ledger().Nullify(f.ctx, f.db, nullified))

	valid, err := f.svc.ItemsValidForPurchase(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.False(t, valid)

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2})

	linked = f.linked(t, ticket.ID)
	require.Len(t, linked, 2)
	for _, in := range linked {
		assert.NotEqual(t, nullified, in.ID)
		assert.Equal(t, models.TicketInstanceReserved, in.Status)
	}
	valid, err = f.svc.ItemsValidForPurchase(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, valid)

	// The nullified instance stays out of circulation.
	assert.Equal(t, 97, f.build.AvailableCount(tt))
}

func TestPricingErrorsReportedWithOtherLines(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	restricted := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "Backstage", RequiresAccessCode: true})
	unpriced := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "Unpriced", Tiers: []models.TicketPricing{}})
	paired := f.build.TicketType(f.event, dbtest.TicketTypeOptions{Name: "Pairs", Increment: 2})
	cart := f.cart(t)

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID, []order.LineRequest{
		{TicketTypeID: restricted.ID, Quantity: 1},
		{TicketTypeID: unpriced.ID, Quantity: 1},
		{TicketTypeID: paired.ID, Quantity: 3},
	}, false, false)

	verr, ok := errs.AsValidation(err)
	require.True(t, ok)
	assert.True(t, verr.Has("ticket_type_id", "access_code_required"))
	assert.True(t, verr.Has("ticket_type_id", "no_active_pricing"))
	assert.True(t, verr.Has("quantity", "quantity_invalid_increment"))

	assert.Equal(t, 100, f.build.AvailableCount(restricted))
	assert.Equal(t, 100, f.build.AvailableCount(unpriced))
}

func TestCartMutationGuards(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	cart := f.cart(t)

	_, err := f.svc.UpdateQuantities(f.ctx, cart.ID, "someone-else",
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 1}}, false, false)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.UpdateQuantities(f.ctx, "missing", f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 1}}, false, false)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	items := f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 1})
	_, err = f.svc.AddExternalPayment(f.ctx, cart.ID, f.userID, sum(items), "cash")
	require.NoError(t, err)

	_, err = f.svc.UpdateQuantities(f.ctx, cart.ID, f.userID,
		[]order.LineRequest{{TicketTypeID: tt.ID, Quantity: 2}}, false, false)
	assert.True(t, errs.IsValidation(err, "status", "order_not_draft"))
}

func TestFindOrCreateCart(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})

	first := f.cart(t)
	assert.Equal(t, models.OrderStatusDraft, first.Status)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), first.ExpiresAt)
	assert.Equal(t, first.ID, f.cart(t).ID)
	assert.Equal(t, 1, f.pub.published("order.created"))

	// An expired empty cart is removed.
	f.clock.Advance(16 * time.Minute)
	second := f.cart(t)
	assert.NotEqual(t, first.ID, second.ID)
	_, err := f.svc.GetOrder(f.ctx, first.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	// An expired cart with items is cancelled and its tickets released.
	f.set(t, second.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 3})
	assert.Equal(t, 97, f.build.AvailableCount(tt))
	f.clock.Advance(16 * time.Minute)

	live, err := f.svc.FindCartForUser(f.ctx, f.userID)
	require.NoError(t, err)
	assert.Nil(t, live)

	third := f.cart(t)
	assert.NotEqual(t, second.ID, third.ID)
	old, err := f.svc.GetOrder(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, old.Status)
	assert.Equal(t, 100, f.build.AvailableCount(tt))
}

func TestClearAndCancel(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{EventFeeInCents: dbtest.Cents(100)})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	cart := f.cart(t)

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 3})
	require.NoError(t, f.svc.ClearCart(f.ctx, cart.ID, f.userID))
	has, err := f.svc.HasItems(f.ctx, cart.ID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Equal(t, 100, f.build.AvailableCount(tt))

	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 2})
	require.NoError(t, f.svc.Cancel(f.ctx, cart.ID, f.userID))
	assert.Equal(t, 100, f.build.AvailableCount(tt))

	err = f.svc.Cancel(f.ctx, cart.ID, f.userID)
	assert.ErrorIs(t, err, errs.ErrInvalidStateTransition)
	assert.True(t, order.IsConflict(err))
}

func TestDestroyReleasesInventory(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})
	cart := f.cart(t)
	f.set(t, cart.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 4})

	err := f.svc.Destroy(f.ctx, cart.ID, "someone-else")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, f.svc.Destroy(f.ctx, cart.ID, f.userID))
	assert.Equal(t, 100, f.build.AvailableCount(tt))
	_, err = f.svc.GetOrder(f.ctx, cart.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestUpdateNote(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	cart := f.cart(t)

	updated, err := f.svc.UpdateNote(f.ctx, cart.ID, f.userID, "Seat near the aisle")
	require.NoError(t, err)
	assert.Equal(t, "Seat near the aisle", updated.Note)
	assert.Equal(t, 1, f.pub.published("order.updated"))
}

func TestRemoveAbandonedCarts(t *testing.T) {
	f := setup(t, dbtest.OrgOptions{})
	tt := f.build.TicketType(f.event, dbtest.TicketTypeOptions{})

	empty := f.cart(t)
	f.userID = "user-2"
	full := f.cart(t)
	f.set(t, full.ID, order.LineRequest{TicketTypeID: tt.ID, Quantity: 1})

	removed, err := f.svc.RemoveAbandonedCarts(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	f.clock.Advance(time.Hour)
	removed, err = f.svc.RemoveAbandonedCarts(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = f.svc.GetOrder(f.ctx, empty.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = f.svc.GetOrder(f.ctx, full.ID)
	assert.NoError(t, err)
}
