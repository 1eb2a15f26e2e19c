package codes

import (
	"ms-ordering/internal/models"
)

// Redemption is a redemption code resolved to the hold or code it names.
// Exactly one of Hold and Code is set.
type Redemption struct {
	Hold *models.Hold
	Code *models.Code
}

func (r *Redemption) RedemptionCode() string {
	switch {
	case r == nil:
		return ""
	case r.Hold != nil:
		return r.Hold.RedemptionCode
	default:
		return r.Code.RedemptionCode
	}
}

func (r *Redemption) HoldID() string {
	if r == nil || r.Hold == nil {
		return ""
	}
	return r.Hold.ID
}

func (r *Redemption) CodeID() string {
	if r == nil || r.Code == nil {
		return ""
	}
	return r.Code.ID
}

// Access reports whether the redemption unlocks restricted ticket types
// without changing their price.
func (r *Redemption) Access() bool {
	return r != nil && r.Code != nil && r.Code.CodeType == models.CodeTypeAccess
}

// Comp reports whether the redemption makes tickets free.
func (r *Redemption) Comp() bool {
	return r != nil && r.Hold != nil && r.Hold.HoldType == models.HoldTypeComp
}

func (r *Redemption) discount() int64 {
	switch {
	case r == nil, r.Access():
		return 0
	case r.Hold != nil:
		if r.Hold.DiscountInCents != nil {
			return *r.Hold.DiscountInCents
		}
	case r.Code.DiscountInCents != nil:
		return *r.Code.DiscountInCents
	}
	return 0
}
