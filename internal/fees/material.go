package fees

import (
	"context"
	"fmt"

	"ms-ordering/internal/config"
	"ms-ordering/internal/models"

	"github.com/uptrace/bun"
)

// Material looks up the per-unit and per-event fees an order line carries.
type Material struct {
	minimumPrice int64
}

func NewMaterial(cfg config.FeeConfig) *Material {
	return &Material{minimumPrice: cfg.MinimumPriceForFeesInCents}
}

// EventFeeFor returns the flat event fee. The event's own fee wins over the
// organization's; nil means the event carries none.
func (m *Material) EventFeeFor(ctx context.Context, idb bun.IDB, event *models.Event) (*int64, error) {
	if event.FeeInCents != nil {
		fee := *event.FeeInCents
		return &fee, nil
	}

	org, err := (&DB{Bun: idb}).GetOrganization(ctx, event.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("event fee for %s: %w", event.ID, err)
	}
	if org.EventFeeInCents == nil {
		return nil, nil
	}
	fee := *org.EventFeeInCents
	return &fee, nil
}

// PerUnitFee returns the range a ticket line's fee item is priced from, or
// nil when the line carries no per-unit fee: box office sales, prices
// below the configured minimum and organizations without a schedule.
func (m *Material) PerUnitFee(ctx context.Context, idb bun.IDB, event *models.Event, unitPrice int64, boxOffice bool) (*models.FeeScheduleRange, error) {
	if boxOffice || unitPrice < m.minimumPrice {
		return nil, nil
	}

	store := &DB{Bun: idb}
	org, err := store.GetOrganization(ctx, event.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("per unit fee for %s: %w", event.ID, err)
	}
	if org.FeeScheduleID == "" {
		return nil, nil
	}

	ranges, err := store.GetRanges(ctx, org.FeeScheduleID)
	if err != nil {
		return nil, err
	}
	r, ok := NewSchedule(ranges).RangeFor(unitPrice)
	if !ok || r.FeeInCents == 0 {
		return nil, nil
	}
	return &r, nil
}
