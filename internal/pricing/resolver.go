// Package pricing picks the tier a cart line is sold from and the unit price
// it pays once a redemption is applied.
package pricing

import (
	"context"
	"fmt"

	"ms-ordering/internal/clock"
	"ms-ordering/internal/codes"
	"ms-ordering/internal/errs"
	"ms-ordering/internal/logger"
	"ms-ordering/internal/models"

	"github.com/uptrace/bun"
)

// Request is one cart line to price. Redemption is nil when the line
// carries no code or hold; otherwise it must already be a Valid outcome.
type Request struct {
	TicketType *models.TicketType
	Quantity   int64
	Redemption *codes.Outcome
	BoxOffice  bool
}

type Price struct {
	UnitPriceInCents int64
	TicketPricingID  string
}

type Resolver struct {
	clock  clock.Clock
	logger *logger.Logger
}

func NewResolver(clk clock.Clock, log *logger.Logger) *Resolver {
	return &Resolver{clock: clk, logger: log}
}

// CheckIncrement fails unless quantity is a multiple of the ticket type's
// increment.
func CheckIncrement(tt *models.TicketType, quantity int64) *errs.ValidationError {
	if tt.Increment > 1 && quantity%tt.Increment != 0 {
		return errs.NewValidationError("quantity", "quantity_invalid_increment",
			"Order item quantity invalid for ticket pricing increment")
	}
	return nil
}

func (r *Resolver) Resolve(ctx context.Context, idb bun.IDB, req Request) (Price, error) {
	tt := req.TicketType
	if verr := CheckIncrement(tt, req.Quantity); verr != nil {
		return Price{}, verr
	}

	unlocked := req.Redemption != nil && req.Redemption.Kind == codes.Valid
	if tt.RequiresAccessCode && !unlocked {
		return Price{}, errs.NewValidationError("ticket_type_id", "access_code_required",
			"Ticket type requires an access code")
	}

	tiers, err := (&DB{Bun: idb}).Tiers(ctx, tt.ID)
	if err != nil {
		return Price{}, err
	}
	tier := r.selectTier(tiers, req.BoxOffice)
	if tier == nil {
		return Price{}, errs.NewValidationError("ticket_type_id", "no_active_pricing",
			"Ticket type has no active pricing")
	}

	price := Price{UnitPriceInCents: tier.PriceInCents, TicketPricingID: tier.ID}
	if unlocked {
		price.UnitPriceInCents = applyRedemption(tier.PriceInCents, *req.Redemption)
	}

	r.logger.LogPricing(tt.ID, fmt.Sprintf("tier %s base %d unit %d box_office=%t",
		tier.ID, tier.PriceInCents, price.UnitPriceInCents, req.BoxOffice))
	return price, nil
}

// selectTier prefers the box office tier for box office sales and falls
// back to the active standard tier when the type has none. Tiers arrive
// latest start first, so the first active one wins.
func (r *Resolver) selectTier(tiers []models.TicketPricing, boxOffice bool) *models.TicketPricing {
	if boxOffice {
		for i := range tiers {
			if tiers[i].IsBoxOfficeOnly {
				return &tiers[i]
			}
		}
	}

	now := r.clock.Now()
	for i := range tiers {
		if !tiers[i].IsBoxOfficeOnly && tiers[i].ActiveAt(now) {
			return &tiers[i]
		}
	}
	return nil
}

func applyRedemption(base int64, o codes.Outcome) int64 {
	switch {
	case o.Comp:
		return 0
	case o.Access:
		return base
	}
	if price := base - o.DiscountInCents; price > 0 {
		return price
	}
	return 0
}
