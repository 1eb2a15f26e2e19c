package codes

import (
	"context"
	"fmt"
	"strings"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/inventory"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Holds manages hold capacity and the comps assigned against it.
type Holds struct {
	clock  clock.Clock
	logger *logger.Logger
}

func NewHolds(clk clock.Clock, log *logger.Logger) *Holds {
	return &Holds{clock: clk, logger: log}
}

func compCountError() *errs.ValidationError {
	return errs.NewValidationError("quantity", "assigned_comp_count_greater_than_quantity",
		"Assigned comp count is greater than quantity")
}

// Create inserts hold and carves quantity instances out of the general pool.
func (h *Holds) Create(ctx context.Context, idb bun.IDB, hold *models.Hold, quantity int64) (*models.Hold, error) {
	verr := &errs.ValidationError{}
	if hold.HoldType == models.HoldTypeDiscount && hold.DiscountInCents == nil {
		verr.Add("discount_in_cents", "required", "Discount required for hold type Discount")
	}
	if strings.TrimSpace(hold.RedemptionCode) == "" {
		verr.Add("redemption_code", "required", "Redemption code is required")
	} else if taken, err := redemptionCodeTaken(ctx, idb, hold.RedemptionCode); err != nil {
		return nil, err
	} else if taken {
		verr.Add("redemption_code", "uniqueness", "Redemption code must be unique")
	}
	if quantity < 0 {
		verr.Add("quantity", "invalid", "Quantity must not be negative")
	}
	if !verr.Empty() {
		return nil, verr
	}

	if hold.ID == "" {
		hold.ID = uuid.NewString()
	}
	if err := (&DB{Bun: idb}).InsertHold(ctx, hold); err != nil {
		return nil, fmt.Errorf("insert hold: %w", err)
	}
	if err := h.SetQuantity(ctx, idb, hold.ID, quantity); err != nil {
		return nil, err
	}
	return hold, nil
}

func redemptionCodeTaken(ctx context.Context, idb bun.IDB, code string) (bool, error) {
	store := &DB{Bun: idb}
	hold, err := store.FindHoldByRedemptionCode(ctx, code)
	if err != nil || hold != nil {
		return hold != nil, err
	}
	c, err := store.FindCodeByRedemptionCode(ctx, code)
	return c != nil, err
}

// Quantity returns how many held instances are still claimable and how many
// the hold carries in total.
func (h *Holds) Quantity(ctx context.Context, idb bun.IDB, holdID string) (remaining, total int64, err error) {
	store := &DB{Bun: idb}
	hold, err := store.GetHold(ctx, holdID)
	if err != nil {
		return 0, 0, err
	}
	held, err := store.HeldCount(ctx, holdID)
	if err != nil {
		return 0, 0, err
	}
	free, err := (&inventory.DB{Bun: idb}).CountEligible(ctx, hold.TicketTypeID, holdID, h.clock.Now())
	if err != nil {
		return 0, 0, err
	}
	return int64(free), int64(held), nil
}

// SetQuantity grows or shrinks the hold to quantity instances. It never
// drops below the comps already assigned.
func (h *Holds) SetQuantity(ctx context.Context, idb bun.IDB, holdID string, quantity int64) error {
	store := &DB{Bun: idb}

	hold, err := store.LockHold(ctx, holdID)
	if err != nil {
		return err
	}
	comps, err := store.CompsSum(ctx, holdID)
	if err != nil {
		return err
	}
	if quantity < comps {
		return compCountError()
	}

	held, err := store.HeldCount(ctx, holdID)
	if err != nil {
		return err
	}
	now := h.clock.Now()

	switch delta := int(quantity) - held; {
	case delta > 0:
		ids, err := store.FreeIDs(ctx, hold.TicketTypeID, "", delta)
		if err != nil {
			return err
		}
		if len(ids) < delta {
			return fmt.Errorf("hold %s needs %d more instances, %d free: %w",
				holdID, delta, len(ids), errs.ErrInsufficientInventory)
		}
		if err := store.MoveToHold(ctx, ids, holdID, now); err != nil {
			return err
		}
	case delta < 0:
		ids, err := store.FreeIDs(ctx, hold.TicketTypeID, holdID, -delta)
		if err != nil {
			return err
		}
		if len(ids) < -delta {
			return errs.NewValidationError("quantity", "quantity_below_allocated",
				"Quantity is lower than the tickets already allocated from the hold")
		}
		if err := store.MoveToHold(ctx, ids, "", now); err != nil {
			return err
		}
	default:
		return nil
	}

	h.logger.LogInventory("HOLD", hold.TicketTypeID, fmt.Sprintf("hold %s quantity %d -> %d", holdID, held, quantity))
	return nil
}

// CompsSum is the total quantity of comps assigned against the hold.
func (h *Holds) CompsSum(ctx context.Context, idb bun.IDB, holdID string) (int64, error) {
	return (&DB{Bun: idb}).CompsSum(ctx, holdID)
}

func (h *Holds) Comps(ctx context.Context, idb bun.IDB, holdID string) ([]models.Comp, error) {
	return (&DB{Bun: idb}).Comps(ctx, holdID)
}

// CreateComp assigns quantity tickets of a comp hold to a named guest. The
// comps of a hold may never add up to more than the hold carries.
func (h *Holds) CreateComp(ctx context.Context, idb bun.IDB, holdID, name, email string, quantity int64) (*models.Comp, error) {
	store := &DB{Bun: idb}

	hold, err := store.LockHold(ctx, holdID)
	if err != nil {
		return nil, err
	}

	verr := &errs.ValidationError{}
	if hold.HoldType != models.HoldTypeComp {
		verr.Add("hold_id", "hold_type_not_comp", "Comps can only be created for comp holds")
	}
	if strings.TrimSpace(name) == "" {
		verr.Add("name", "required", "Name is required")
	}
	if quantity <= 0 {
		verr.Add("quantity", "invalid", "Quantity must be positive")
	}
	if !verr.Empty() {
		return nil, verr
	}

	comps, err := store.CompsSum(ctx, holdID)
	if err != nil {
		return nil, err
	}
	held, err := store.HeldCount(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if comps+quantity > int64(held) {
		return nil, compCountError()
	}

	comp := &models.Comp{
		ID:        uuid.NewString(),
		HoldID:    holdID,
		Name:      name,
		Email:     email,
		Quantity:  quantity,
		CreatedAt: h.clock.Now(),
	}
	if err := store.InsertComp(ctx, comp); err != nil {
		return nil, fmt.Errorf("insert comp: %w", err)
	}
	return comp, nil
}
