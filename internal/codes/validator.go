package codes

import (
	"context"
	"fmt"
	"time"

	"ms-ordering/internal/errs"
	"ms-ordering/internal/inventory"

	"github.com/uptrace/bun"
)

type OutcomeKind int

const (
	Valid OutcomeKind = iota
	Expired
	NotYetActive
	QuantityExhausted
	NotApplicable
)

func (k OutcomeKind) String() string {
	switch k {
	case Valid:
		return "Valid"
	case Expired:
		return "Expired"
	case NotYetActive:
		return "NotYetActive"
	case QuantityExhausted:
		return "QuantityExhausted"
	case NotApplicable:
		return "NotApplicable"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome of validating a redemption. DiscountInCents and Comp are only
// meaningful when Kind is Valid.
type Outcome struct {
	Kind            OutcomeKind
	DiscountInCents int64
	Comp            bool
	Access          bool
}

// Err turns a failed outcome into a field error on redemption_code.
func (o Outcome) Err() *errs.ValidationError {
	const field = "redemption_code"
	switch o.Kind {
	case Expired:
		return errs.NewValidationError(field, "redemption_code_expired", "Redemption code has expired")
	case NotYetActive:
		return errs.NewValidationError(field, "redemption_code_not_yet_active", "Redemption code is not yet active")
	case QuantityExhausted:
		return errs.NewValidationError(field, "redemption_code_exhausted", "Redemption code has no remaining quantity")
	case NotApplicable:
		return errs.NewValidationError(field, "redemption_code_not_applicable", "Redemption code does not apply to this ticket type")
	default:
		return nil
	}
}

// Request describes the cart line a redemption is checked against.
// Additional is how many instances the line still has to claim; zero
// skips the hold capacity check.
type Request struct {
	TicketTypeID string
	At           time.Time
	Quantity     int64
	Additional   int64
	OrderID      string
}

// Validator decides whether codes and holds are redeemable.
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Resolve finds the hold or code named by redemptionCode. Unknown codes fail
// with a field error.
func (v *Validator) Resolve(ctx context.Context, idb bun.IDB, redemptionCode string) (*Redemption, error) {
	store := &DB{Bun: idb}

	hold, err := store.FindHoldByRedemptionCode(ctx, redemptionCode)
	if err != nil {
		return nil, err
	}
	if hold != nil {
		return &Redemption{Hold: hold}, nil
	}

	code, err := store.FindCodeByRedemptionCode(ctx, redemptionCode)
	if err != nil {
		return nil, err
	}
	if code != nil {
		return &Redemption{Code: code}, nil
	}

	return nil, errs.NewValidationError("redemption_code", "invalid", "Redemption code is not valid")
}

// InWindow checks only the validity window, as payment time checks do.
func (v *Validator) InWindow(r *Redemption, at time.Time) OutcomeKind {
	if r.Hold != nil {
		if !r.Hold.EndAt.IsZero() && at.After(r.Hold.EndAt) {
			return Expired
		}
		return Valid
	}
	if !r.Code.StartDate.IsZero() && at.Before(r.Code.StartDate) {
		return NotYetActive
	}
	if !r.Code.EndDate.IsZero() && at.After(r.Code.EndDate) {
		return Expired
	}
	return Valid
}

// Validate checks applicability, the window at req.At and remaining
// quantity, in that order.
func (v *Validator) Validate(ctx context.Context, idb bun.IDB, r *Redemption, req Request) (Outcome, error) {
	store := &DB{Bun: idb}

	if r.Hold != nil {
		if r.Hold.TicketTypeID != req.TicketTypeID {
			return Outcome{Kind: NotApplicable}, nil
		}
	} else {
		ok, err := store.CodeAppliesTo(ctx, r.Code.ID, req.TicketTypeID)
		if err != nil {
			return Outcome{}, fmt.Errorf("code applicability: %w", err)
		}
		if !ok {
			return Outcome{Kind: NotApplicable}, nil
		}
	}

	if kind := v.InWindow(r, req.At); kind != Valid {
		return Outcome{Kind: kind}, nil
	}

	exhausted, err := v.exhausted(ctx, idb, r, req)
	if err != nil {
		return Outcome{}, err
	}
	if exhausted {
		return Outcome{Kind: QuantityExhausted}, nil
	}

	return Outcome{
		Kind:            Valid,
		DiscountInCents: r.discount(),
		Comp:            r.Comp(),
		Access:          r.Access(),
	}, nil
}

// LockHold locks the hold for the rest of the transaction and returns how
// many of its instances are owed to comps.
func (v *Validator) LockHold(ctx context.Context, idb bun.IDB, holdID string) (int64, error) {
	store := &DB{Bun: idb}
	if _, err := store.LockHold(ctx, holdID); err != nil {
		return 0, err
	}
	return store.CompsSum(ctx, holdID)
}

func (v *Validator) exhausted(ctx context.Context, idb bun.IDB, r *Redemption, req Request) (bool, error) {
	store := &DB{Bun: idb}

	if r.Hold != nil {
		if r.Hold.MaxPerOrder != nil && req.Quantity > *r.Hold.MaxPerOrder {
			return true, nil
		}
		if req.Additional <= 0 {
			return false, nil
		}
		claimable, err := (&inventory.DB{Bun: idb}).CountEligible(ctx, r.Hold.TicketTypeID, r.Hold.ID, req.At)
		if err != nil {
			return false, err
		}
		comps, err := store.CompsSum(ctx, r.Hold.ID)
		if err != nil {
			return false, err
		}
		return int64(claimable)-comps < req.Additional, nil
	}

	if r.Code.MaxTicketsPerUser != nil && req.Quantity > *r.Code.MaxTicketsPerUser {
		return true, nil
	}
	if r.Code.MaxUses > 0 {
		uses, err := store.CodeUses(ctx, r.Code.ID, req.OrderID)
		if err != nil {
			return false, err
		}
		if int64(uses) >= r.Code.MaxUses {
			return true, nil
		}
	}
	return false, nil
}
