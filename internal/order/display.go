package order

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"ms-ordering/internal/models"
	orderdb "ms-ordering/internal/order/db"
)

// Scope is who is looking at an order. With Organizations nil the viewer
// sees everything, as the purchaser does. Otherwise only events of those
// organizations that the viewer's membership covers are visible.
type Scope struct {
	ViewerID      string
	Organizations []string
}

type DisplayOrder struct {
	ID                        string             `json:"id"`
	UserID                    string             `json:"user_id"`
	Status                    models.OrderStatus `json:"status"`
	Date                      time.Time          `json:"date"`
	ExpiresAt                 *time.Time         `json:"expires_at,omitempty"`
	PaidAt                    *time.Time         `json:"paid_at,omitempty"`
	Note                      string             `json:"note,omitempty"`
	BoxOfficePricing          bool               `json:"box_office_pricing"`
	Items                     []DisplayOrderItem `json:"items"`
	TotalInCents              int64              `json:"total_in_cents"`
	SecondsUntilExpiry        *int64             `json:"seconds_until_expiry,omitempty"`
	OrderContainsOtherTickets bool               `json:"order_contains_other_tickets"`
	// ValidForPurchase is only present while the order is unpaid.
	ValidForPurchase *bool `json:"valid_for_purchase,omitempty"`
}

type DisplayOrderItem struct {
	ID               string               `json:"id"`
	ParentID         string               `json:"parent_id,omitempty"`
	ItemType         models.OrderItemType `json:"item_type"`
	EventID          string               `json:"event_id,omitempty"`
	EventName        string               `json:"event_name,omitempty"`
	TicketTypeID     string               `json:"ticket_type_id,omitempty"`
	TicketTypeName   string               `json:"ticket_type_name,omitempty"`
	Quantity         int64                `json:"quantity"`
	RefundedQuantity int64                `json:"refunded_quantity"`
	UnitPriceInCents int64                `json:"unit_price_in_cents"`
	TotalInCents     int64                `json:"total_in_cents"`
	RedemptionCode   string               `json:"redemption_code,omitempty"`
	CartItemStatus   *ItemStatus          `json:"cart_item_status,omitempty"`
}

// view is everything the read models need about one order.
type view struct {
	order    *models.Order
	items    []models.OrderItem
	events   map[string]*models.Event
	visible  map[string]bool
	eventIDs []string
}

func (s *Service) loadView(ctx context.Context, orderID string, scope Scope) (*view, error) {
	store := &orderdb.DB{Bun: s.db}

	order, err := store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	items, err := store.Items(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ids := eventIDs(items)
	evs, err := store.Events(ctx, ids)
	if err != nil {
		return nil, err
	}

	v := &view{
		order:    order,
		items:    items,
		events:   make(map[string]*models.Event, len(evs)),
		visible:  make(map[string]bool, len(evs)),
		eventIDs: ids,
	}
	for i := range evs {
		v.events[evs[i].ID] = &evs[i]
	}

	if scope.Organizations == nil {
		for _, id := range ids {
			v.visible[id] = true
		}
		return v, nil
	}

	memberships, err := store.Memberships(ctx, scope.ViewerID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(scope.Organizations))
	for _, id := range scope.Organizations {
		allowed[id] = true
	}
	for _, ev := range evs {
		ou := memberships[ev.OrganizationID]
		v.visible[ev.ID] = allowed[ev.OrganizationID] && ou != nil && ou.CanSee(ev.ID)
	}
	return v, nil
}

func (v *view) visibleCount() int {
	n := 0
	for _, id := range v.eventIDs {
		if v.visible[id] {
			n++
		}
	}
	return n
}

// ForDisplay projects the order as scope may see it.
func (s *Service) ForDisplay(ctx context.Context, orderID string, scope Scope) (*DisplayOrder, error) {
	v, err := s.loadView(ctx, orderID, scope)
	if err != nil {
		return nil, err
	}
	store := &orderdb.DB{Bun: s.db}
	now := s.clock.Now()

	statuses, err := s.itemStatuses(ctx, s.db, v.order, v.items, now)
	if err != nil {
		return nil, err
	}

	var ttIDs, holdIDs, codeIDs []string
	for _, item := range v.items {
		if item.TicketTypeID != "" {
			ttIDs = append(ttIDs, item.TicketTypeID)
		}
		if item.HoldID != "" {
			holdIDs = append(holdIDs, item.HoldID)
		}
		if item.CodeID != "" {
			codeIDs = append(codeIDs, item.CodeID)
		}
	}
	tts, err := store.TicketTypes(ctx, ttIDs)
	if err != nil {
		return nil, err
	}
	redemptionCodes, err := store.RedemptionCodes(ctx, holdIDs, codeIDs)
	if err != nil {
		return nil, err
	}

	d := &DisplayOrder{
		ID:               v.order.ID,
		UserID:           v.order.UserID,
		Status:           v.order.Status,
		Date:             v.order.CreatedAt,
		Note:             v.order.Note,
		BoxOfficePricing: v.order.BoxOfficePricing,
		Items:            []DisplayOrderItem{},
	}
	if !v.order.PaidAt.IsZero() {
		paidAt := v.order.PaidAt
		d.PaidAt = &paidAt
	}

	for i := range v.items {
		item := &v.items[i]
		if !v.visible[item.EventID] {
			d.OrderContainsOtherTickets = true
			continue
		}

		di := DisplayOrderItem{
			ID:               item.ID,
			ParentID:         item.ParentID,
			ItemType:         item.ItemType,
			EventID:          item.EventID,
			TicketTypeID:     item.TicketTypeID,
			Quantity:         item.Quantity,
			RefundedQuantity: item.RefundedQuantity,
			UnitPriceInCents: item.UnitPriceInCents,
			TotalInCents:     item.Total(),
		}
		if ev := v.events[item.EventID]; ev != nil {
			di.EventName = ev.Name
		}
		if tt := tts[item.TicketTypeID]; tt != nil {
			di.TicketTypeName = tt.Name
		}
		if item.HoldID != "" {
			di.RedemptionCode = redemptionCodes[item.HoldID]
		} else if item.CodeID != "" {
			di.RedemptionCode = redemptionCodes[item.CodeID]
		}
		if st, ok := statuses[item.ID]; ok {
			di.CartItemStatus = &st
		}

		d.Items = append(d.Items, di)
		d.TotalInCents += di.TotalInCents
	}

	if v.order.Status.Unpaid() {
		valid := validityError(statuses) == nil
		d.ValidForPurchase = &valid

		if !v.order.ExpiresAt.IsZero() {
			expiresAt := v.order.ExpiresAt
			d.ExpiresAt = &expiresAt
			secs := int64(expiresAt.Sub(now) / time.Second)
			if secs < 0 {
				secs = 0
			}
			d.SecondsUntilExpiry = &secs
		}
	}
	return d, nil
}

// PartiallyVisibleOrder reports whether scope sees some, but not all, of
// the order's events.
func (s *Service) PartiallyVisibleOrder(ctx context.Context, orderID string, scope Scope) (bool, error) {
	v, err := s.loadView(ctx, orderID, scope)
	if err != nil {
		return false, err
	}
	n := v.visibleCount()
	return n > 0 && n < len(v.eventIDs), nil
}

// DetailLine is one refundable unit of an order.
type DetailLine struct {
	OrderItemID        string `json:"order_item_id"`
	TicketInstanceID   string `json:"ticket_instance_id,omitempty"`
	Description        string `json:"description"`
	TicketPriceInCents int64  `json:"ticket_price_in_cents"`
	FeesPriceInCents   int64  `json:"fees_price_in_cents"`
	TotalPriceInCents  int64  `json:"total_price_in_cents"`
	Status             string `json:"status"`
	Refundable         bool   `json:"refundable"`
}

const detailRefunded = "Refunded"

// Details lists every visible ticket instance with its price and fee,
// followed by one line per event fee.
func (s *Service) Details(ctx context.Context, orderID string, scope Scope) ([]DetailLine, error) {
	v, err := s.loadView(ctx, orderID, scope)
	if err != nil {
		return nil, err
	}
	store := &orderdb.DB{Bun: s.db}

	var ticketItems []*models.OrderItem
	var ttIDs, ids []string
	for i := range v.items {
		item := &v.items[i]
		if item.ItemType == models.OrderItemTypeTickets && v.visible[item.EventID] {
			ticketItems = append(ticketItems, item)
			ttIDs = append(ttIDs, item.TicketTypeID)
			ids = append(ids, item.ID)
		}
	}
	tts, err := store.TicketTypes(ctx, ttIDs)
	if err != nil {
		return nil, err
	}
	instances, err := s.ledger.Linked(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	refunded, err := store.RefundedTickets(ctx, ids)
	if err != nil {
		return nil, err
	}

	paid := v.order.Status == models.OrderStatusPaid
	lines := []DetailLine{}

	for _, item := range ticketItems {
		description := v.eventName(item.EventID) + " - " + ticketTypeName(tts, item.TicketTypeID)
		var fee int64
		if child := feeChild(v.items, item.ID); child != nil {
			fee = child.UnitPriceInCents
		}
		line := DetailLine{
			OrderItemID:        item.ID,
			Description:        description,
			TicketPriceInCents: item.UnitPriceInCents,
			FeesPriceInCents:   fee,
			TotalPriceInCents:  item.UnitPriceInCents + fee,
		}

		for _, in := range instances {
			if in.OrderItemID != item.ID {
				continue
			}
			l := line
			l.TicketInstanceID = in.ID
			l.Status = string(in.Status)
			l.Refundable = paid && in.Status == models.TicketInstancePurchased
			lines = append(lines, l)
		}
		for _, rt := range refunded {
			if rt.OrderItemID != item.ID {
				continue
			}
			l := line
			l.TicketInstanceID = rt.TicketInstanceID
			l.Status = detailRefunded
			lines = append(lines, l)
		}
	}

	for i := range v.items {
		item := &v.items[i]
		if item.ItemType != models.OrderItemTypeEventFees || !v.visible[item.EventID] {
			continue
		}
		l := DetailLine{
			OrderItemID:       item.ID,
			Description:       "Event Fees - " + v.eventName(item.EventID),
			FeesPriceInCents:  item.UnitPriceInCents,
			TotalPriceInCents: item.UnitPriceInCents,
			Status:            string(models.TicketInstancePurchased),
			Refundable:        paid && item.RemainingQuantity() > 0,
		}
		if item.RemainingQuantity() <= 0 {
			l.Status = detailRefunded
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (v *view) eventName(id string) string {
	if ev := v.events[id]; ev != nil {
		return ev.Name
	}
	return ""
}

func ticketTypeName(tts map[string]*models.TicketType, id string) string {
	if tt := tts[id]; tt != nil {
		return tt.Name
	}
	return ""
}

// MetadataEntry is one key of the summary handed to payment processors.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PurchaseMetadata summarises the order for a payment processor.
func (s *Service) PurchaseMetadata(ctx context.Context, orderID string) ([]MetadataEntry, error) {
	v, err := s.loadView(ctx, orderID, Scope{})
	if err != nil {
		return nil, err
	}

	var names []string
	for _, id := range v.eventIDs {
		names = append(names, v.eventName(id))
	}
	sort.Strings(names)

	var quantity, feesTotal int64
	prices := make(map[int64]bool)
	var priceList []int64
	for _, item := range v.items {
		switch item.ItemType {
		case models.OrderItemTypeTickets:
			quantity += item.RemainingQuantity()
			if !prices[item.UnitPriceInCents] {
				prices[item.UnitPriceInCents] = true
				priceList = append(priceList, item.UnitPriceInCents)
			}
		default:
			feesTotal += item.Total()
		}
	}
	sort.Slice(priceList, func(i, j int) bool { return priceList[i] < priceList[j] })
	unitPrices := make([]string, len(priceList))
	for i, p := range priceList {
		unitPrices[i] = strconv.FormatInt(p, 10)
	}

	return []MetadataEntry{
		{Key: "order_id", Value: v.order.ID},
		{Key: "event_names", Value: strings.Join(names, ", ")},
		{Key: "ticket_quantity", Value: strconv.FormatInt(quantity, 10)},
		{Key: "unit_price_in_cents", Value: strings.Join(unitPrices, ", ")},
		{Key: "fees_in_cents", Value: strconv.FormatInt(feesTotal, 10)},
		{Key: "total_in_cents", Value: strconv.FormatInt(total(v.items), 10)},
	}, nil
}

// StaffScope is the scope of viewerID acting for the organizations behind
// the order's events.
func (s *Service) StaffScope(ctx context.Context, orderID, viewerID string) (Scope, error) {
	orgs, err := s.Organizations(ctx, orderID)
	if err != nil {
		return Scope{}, err
	}
	ids := make([]string, 0, len(orgs))
	for _, org := range orgs {
		ids = append(ids, org.ID)
	}
	return Scope{ViewerID: viewerID, Organizations: ids}, nil
}

// Manages reports whether viewerID's memberships cover every event of the
// order.
func (s *Service) Manages(ctx context.Context, orderID, viewerID string) (bool, error) {
	scope, err := s.StaffScope(ctx, orderID, viewerID)
	if err != nil {
		return false, err
	}
	v, err := s.loadView(ctx, orderID, scope)
	if err != nil {
		return false, err
	}
	return len(v.eventIDs) > 0 && v.visibleCount() == len(v.eventIDs), nil
}
