package order

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ms-ordering/internal/codes"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/models"
	"ms-ordering/internal/pricing"

	"github.com/google/uuid"
)

// LineRequest asks for Quantity tickets of a type, optionally through a
// redemption code. Quantity zero removes the line.
type LineRequest struct {
	TicketTypeID   string `json:"ticket_type_id"`
	Quantity       int64  `json:"quantity"`
	RedemptionCode string `json:"redemption_code,omitempty"`
}

// lineKey identifies a Tickets item within an order.
type lineKey struct {
	ticketTypeID string
	holdID       string
	codeID       string
}

func keyOf(item *models.OrderItem) lineKey {
	return lineKey{ticketTypeID: item.TicketTypeID, holdID: item.HoldID, codeID: item.CodeID}
}

// plannedLine is a request that passed validation.
type plannedLine struct {
	key        lineKey
	quantity   int64
	ticketType *models.TicketType
	outcome    *codes.Outcome
	price      pricing.Price
}

// UpdateQuantities reconciles the cart with lines. With replace, items not
// named in lines are removed first; otherwise lines are merged into the
// cart. Either every line applies or none does.
func (s *Service) UpdateQuantities(ctx context.Context, orderID, userID string, lines []LineRequest, boxOffice, replace bool) ([]models.OrderItem, error) {
	var out []models.OrderItem
	err := s.mutate(ctx, orderID, func(t *txn) error {
		if err := ownedBy(t.order, userID); err != nil {
			return err
		}
		if err := requireDraft(t.order); err != nil {
			return err
		}

		items, err := t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		byKey := make(map[lineKey]*models.OrderItem)
		for i := range items {
			if items[i].ItemType == models.OrderItemTypeTickets {
				byKey[keyOf(&items[i])] = &items[i]
			}
		}

		if !replace && len(byKey) > 0 && t.order.BoxOfficePricing != boxOffice {
			return errs.NewValidationError("box_office_pricing", "mismatch",
				"Cannot mix box office and online pricing in one order")
		}

		// Refresh our own reservations first. A lapsed one would otherwise
		// look claimable to the capacity checks and to other carts.
		if _, err := s.ledger.Extend(t.ctx, t.tx, itemIDs(items, models.OrderItemTypeTickets)); err != nil {
			return err
		}

		planned, err := s.plan(t, lines, byKey, boxOffice)
		if err != nil {
			return err
		}
		if err := s.lockHolds(t, planned); err != nil {
			return err
		}

		if replace {
			wanted := make(map[lineKey]bool, len(planned))
			for _, p := range planned {
				wanted[p.key] = true
			}
			for key, item := range byKey {
				if !wanted[key] {
					if err := s.removeLine(t, item, items); err != nil {
						return err
					}
					delete(byKey, key)
				}
			}
		}
		t.order.BoxOfficePricing = boxOffice

		for _, p := range planned {
			if err := s.applyLine(t, p, byKey[p.key], items); err != nil {
				return err
			}
		}

		if err := s.syncEventFees(t); err != nil {
			return err
		}

		out, err = t.store.Items(t.ctx, orderID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if _, err := s.ledger.Extend(t.ctx, t.tx, itemIDs(out, models.OrderItemTypeTickets)); err != nil {
			return err
		}
		t.order.ExpiresAt = now.Add(s.cfg.CartExpiry)
		t.order.UpdatedAt = now
		if err := t.store.UpdateOrder(t.ctx, t.order, "box_office_pricing", "expires_at", "updated_at"); err != nil {
			return err
		}

		s.logger.LogOrder("UPDATE", orderID, fmt.Sprintf("%d lines applied, total %d", len(planned), total(out)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// plan validates every line before anything changes and reports all
// field errors together, pricing failures included. Repeated lines for the
// same key keep the last quantity.
func (s *Service) plan(t *txn, lines []LineRequest, byKey map[lineKey]*models.OrderItem, boxOffice bool) ([]plannedLine, error) {
	store := t.store
	now := s.clock.Now()
	verr := &errs.ValidationError{}

	var ttIDs []string
	for _, l := range lines {
		ttIDs = append(ttIDs, l.TicketTypeID)
	}
	tts, err := store.TicketTypes(t.ctx, ttIDs)
	if err != nil {
		return nil, err
	}

	var planned []plannedLine
	index := make(map[lineKey]int)

	for _, l := range lines {
		tt, ok := tts[l.TicketTypeID]
		if !ok {
			verr.Add("ticket_type_id", "invalid", "Ticket type "+l.TicketTypeID+" does not exist")
			continue
		}
		if l.Quantity < 0 {
			verr.Add("quantity", "invalid", "Quantity must not be negative")
			continue
		}

		key := lineKey{ticketTypeID: tt.ID}
		var redemption *codes.Redemption
		if l.RedemptionCode != "" {
			redemption, err = s.validator.Resolve(t.ctx, t.tx, l.RedemptionCode)
			if v, ok := errs.AsValidation(err); ok {
				verr.Merge(v)
				continue
			}
			if err != nil {
				return nil, err
			}
			key.holdID = redemption.HoldID()
			key.codeID = redemption.CodeID()
		}

		p := plannedLine{key: key, quantity: l.Quantity, ticketType: tt}

		if l.Quantity > 0 {
			if v := pricing.CheckIncrement(tt, l.Quantity); v != nil {
				verr.Merge(v)
				continue
			}
			if tt.LimitPerPerson > 0 && l.Quantity > tt.LimitPerPerson {
				verr.Add("quantity", "limit_per_person_exceeded",
					fmt.Sprintf("Quantity exceeds the limit of %d per person", tt.LimitPerPerson))
				continue
			}

			if redemption != nil {
				additional := l.Quantity
				if item := byKey[key]; item != nil {
					linked, err := s.linkedCount(t, item.ID)
					if err != nil {
						return nil, err
					}
					additional -= int64(linked)
				}
				outcome, err := s.validator.Validate(t.ctx, t.tx, redemption, codes.Request{
					TicketTypeID: tt.ID,
					At:           now,
					Quantity:     l.Quantity,
					Additional:   additional,
					OrderID:      t.order.ID,
				})
				if err != nil {
					return nil, err
				}
				if outcome.Kind != codes.Valid {
					verr.Merge(outcome.Err())
					continue
				}
				p.outcome = &outcome
			}

			price, err := s.pricing.Resolve(t.ctx, t.tx, pricing.Request{
				TicketType: tt,
				Quantity:   l.Quantity,
				Redemption: p.outcome,
				BoxOffice:  boxOffice,
			})
			if v, ok := errs.AsValidation(err); ok {
				verr.Merge(v)
				continue
			}
			if err != nil {
				return nil, err
			}
			p.price = price
		}

		if i, ok := index[key]; ok {
			planned[i] = p
			continue
		}
		index[key] = len(planned)
		planned = append(planned, p)
	}

	if !verr.Empty() {
		return nil, verr
	}
	return planned, nil
}

// lockHolds takes the row lock of every hold the lines reserve from, in id
// order so two carts never wait on each other.
func (s *Service) lockHolds(t *txn, planned []plannedLine) error {
	var ids []string
	seen := make(map[string]bool)
	for _, p := range planned {
		if p.key.holdID != "" && p.quantity > 0 && !seen[p.key.holdID] {
			seen[p.key.holdID] = true
			ids = append(ids, p.key.holdID)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := s.validator.LockHold(t.ctx, t.tx, id); err != nil {
			return err
		}
	}
	return nil
}

// linkedCount counts the live instances linked to an item.
func (s *Service) linkedCount(t *txn, itemID string) (int, error) {
	instances, err := s.ledger.Linked(t.ctx, t.tx, []string{itemID})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, in := range instances {
		if in.Status != models.TicketInstanceNullified {
			n++
		}
	}
	return n, nil
}

// applyLine brings one Tickets item, its reservations and its fee child
// in line with p.
func (s *Service) applyLine(t *txn, p plannedLine, item *models.OrderItem, items []models.OrderItem) error {
	if p.quantity == 0 {
		if item == nil {
			return nil
		}
		return s.removeLine(t, item, items)
	}

	now := s.clock.Now()
	if item == nil {
		item = &models.OrderItem{
			ID:           uuid.NewString(),
			OrderID:      t.order.ID,
			ItemType:     models.OrderItemTypeTickets,
			EventID:      p.ticketType.EventID,
			TicketTypeID: p.ticketType.ID,
			HoldID:       p.key.holdID,
			CodeID:       p.key.codeID,
			CreatedAt:    now,
		}
		item.UpdatedAt = now
		if err := t.store.InsertItem(t.ctx, item); err != nil {
			return err
		}
	}

	if err := s.reconcile(t, item, p); err != nil {
		return err
	}

	item.Quantity = p.quantity
	item.UnitPriceInCents = p.price.UnitPriceInCents
	item.TicketPricingID = p.price.TicketPricingID
	item.UpdatedAt = now
	if err := t.store.UpdateItem(t.ctx, item, "quantity", "unit_price_in_cents", "ticket_pricing_id", "updated_at"); err != nil {
		return err
	}

	return s.syncFeeChild(t, item, items)
}

// reconcile reserves or releases instances until exactly p.quantity live
// instances are linked to item. Nullified instances are detached first.
func (s *Service) reconcile(t *txn, item *models.OrderItem, p plannedLine) error {
	instances, err := s.ledger.Linked(t.ctx, t.tx, []string{item.ID})
	if err != nil {
		return err
	}
	nullified, live := 0, 0
	for _, in := range instances {
		if in.Status == models.TicketInstanceNullified {
			nullified++
		} else {
			live++
		}
	}
	if nullified > 0 {
		if _, err := s.ledger.Release(t.ctx, t.tx, item.ID, nullified); err != nil {
			return err
		}
	}

	switch delta := int(p.quantity) - live; {
	case delta > 0:
		if p.key.holdID != "" {
			return s.reserveHeld(t, item, p, delta)
		}
		_, err := s.ledger.Reserve(t.ctx, t.tx, p.ticketType.ID, "", delta, item.ID)
		if errors.Is(err, errs.ErrInsufficientInventory) {
			return errs.NewValidationError("quantity", "insufficient_inventory",
				fmt.Sprintf("Could not reserve %d more tickets for %s", delta, p.ticketType.Name)).WithCause(err)
		}
		return err
	case delta < 0:
		_, err := s.ledger.Release(t.ctx, t.tx, item.ID, -delta)
		return err
	}
	return nil
}

// reserveHeld claims delta instances from the line's hold without touching
// the ones its comps are owed. lockHolds already holds the lock, so the
// comps sum read here cannot move before the claim.
func (s *Service) reserveHeld(t *txn, item *models.OrderItem, p plannedLine, delta int) error {
	comps, err := s.validator.LockHold(t.ctx, t.tx, p.key.holdID)
	if err != nil {
		return err
	}
	_, err = s.ledger.ReserveHeld(t.ctx, t.tx, p.ticketType.ID, p.key.holdID, delta, comps, item.ID)
	if errors.Is(err, errs.ErrInsufficientInventory) {
		return codes.Outcome{Kind: codes.QuantityExhausted}.Err().WithCause(err)
	}
	return err
}

// syncFeeChild creates, updates or removes the PerUnitFees item of a
// Tickets item.
func (s *Service) syncFeeChild(t *txn, item *models.OrderItem, items []models.OrderItem) error {
	event, err := s.eventOf(t, item.EventID)
	if err != nil {
		return err
	}
	feeRange, err := s.fees.PerUnitFee(t.ctx, t.tx, event, item.UnitPriceInCents, t.order.BoxOfficePricing)
	if err != nil {
		return err
	}

	child := feeChild(items, item.ID)
	if feeRange == nil {
		if child == nil {
			return nil
		}
		return t.store.DeleteItems(t.ctx, child.ID)
	}

	now := s.clock.Now()
	if child == nil {
		child = &models.OrderItem{
			ID:                 uuid.NewString(),
			OrderID:            t.order.ID,
			ItemType:           models.OrderItemTypePerUnitFees,
			EventID:            item.EventID,
			ParentID:           item.ID,
			FeeScheduleRangeID: feeRange.ID,
			Quantity:           item.Quantity,
			UnitPriceInCents:   feeRange.FeeInCents,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return t.store.InsertItem(t.ctx, child)
	}

	child.Quantity = item.Quantity
	child.UnitPriceInCents = feeRange.FeeInCents
	child.FeeScheduleRangeID = feeRange.ID
	child.UpdatedAt = now
	return t.store.UpdateItem(t.ctx, child, "quantity", "unit_price_in_cents", "fee_schedule_range_id", "updated_at")
}

// removeLine releases a Tickets item's instances and deletes it with its
// fee child.
func (s *Service) removeLine(t *txn, item *models.OrderItem, items []models.OrderItem) error {
	if _, err := s.ledger.ReleaseAll(t.ctx, t.tx, item.ID); err != nil {
		return err
	}
	ids := []string{item.ID}
	if child := feeChild(items, item.ID); child != nil {
		ids = append(ids, child.ID)
	}
	return t.store.DeleteItems(t.ctx, ids...)
}

// syncEventFees keeps exactly one EventFees item per event that still has
// tickets in the order and charges an event fee.
func (s *Service) syncEventFees(t *txn) error {
	items, err := t.store.Items(t.ctx, t.order.ID)
	if err != nil {
		return err
	}

	hasTickets := make(map[string]bool)
	feeItems := make(map[string]*models.OrderItem)
	for i := range items {
		switch items[i].ItemType {
		case models.OrderItemTypeTickets:
			if items[i].Quantity > 0 {
				hasTickets[items[i].EventID] = true
			}
		case models.OrderItemTypeEventFees:
			feeItems[items[i].EventID] = &items[i]
		}
	}

	for eventID, feeItem := range feeItems {
		if !hasTickets[eventID] || t.order.BoxOfficePricing {
			if err := t.store.DeleteItems(t.ctx, feeItem.ID); err != nil {
				return err
			}
			delete(feeItems, eventID)
		}
	}
	if t.order.BoxOfficePricing {
		return nil
	}

	now := s.clock.Now()
	for _, eventID := range eventIDs(items) {
		if !hasTickets[eventID] {
			continue
		}
		event, err := s.eventOf(t, eventID)
		if err != nil {
			return err
		}
		fee, err := s.fees.EventFeeFor(t.ctx, t.tx, event)
		if err != nil {
			return err
		}

		existing := feeItems[eventID]
		switch {
		case fee == nil || *fee == 0:
			if existing != nil {
				if err := t.store.DeleteItems(t.ctx, existing.ID); err != nil {
					return err
				}
			}
		case existing == nil:
			err := t.store.InsertItem(t.ctx, &models.OrderItem{
				ID:               uuid.NewString(),
				OrderID:          t.order.ID,
				ItemType:         models.OrderItemTypeEventFees,
				EventID:          eventID,
				Quantity:         1,
				UnitPriceInCents: *fee,
				CreatedAt:        now,
				UpdatedAt:        now,
			})
			if err != nil {
				return err
			}
		case existing.UnitPriceInCents != *fee:
			existing.UnitPriceInCents = *fee
			existing.UpdatedAt = now
			if err := t.store.UpdateItem(t.ctx, existing, "unit_price_in_cents", "updated_at"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) eventOf(t *txn, eventID string) (*models.Event, error) {
	evs, err := t.store.Events(t.ctx, []string{eventID})
	if err != nil {
		return nil, err
	}
	if len(evs) == 0 {
		return nil, fmt.Errorf("event %s: %w", eventID, errs.ErrNotFound)
	}
	return &evs[0], nil
}

func feeChild(items []models.OrderItem, parentID string) *models.OrderItem {
	for i := range items {
		if items[i].ItemType == models.OrderItemTypePerUnitFees && items[i].ParentID == parentID {
			return &items[i]
		}
	}
	return nil
}
