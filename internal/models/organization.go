package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`

	ID              string `bun:"id,pk" json:"id"`
	Name            string `bun:"name,notnull" json:"name"`
	FeeScheduleID   string `bun:"fee_schedule_id,nullzero" json:"fee_schedule_id,omitempty"`
	EventFeeInCents *int64 `bun:"event_fee_in_cents" json:"event_fee_in_cents,omitempty"`
}

// OrganizationUser is one user's membership of an organization. Event
// scoped roles see only EventIDs.
type OrganizationUser struct {
	bun.BaseModel `bun:"table:organization_users,alias:ou"`

	ID             string   `bun:"id,pk" json:"id"`
	OrganizationID string   `bun:"organization_id,notnull,unique:organization_users_org_user" json:"organization_id"`
	UserID         string   `bun:"user_id,notnull,unique:organization_users_org_user" json:"user_id"`
	Roles          []Role   `bun:"roles,type:jsonb" json:"roles"`
	EventIDs       []string `bun:"event_ids,type:jsonb" json:"event_ids"`
}

// SeesAllEvents reports whether any role grants organization wide access.
func (ou *OrganizationUser) SeesAllEvents() bool {
	for _, r := range ou.Roles {
		if !r.EventScoped() {
			return true
		}
	}
	return false
}

// CanSee reports whether the membership covers eventID.
func (ou *OrganizationUser) CanSee(eventID string) bool {
	if ou.SeesAllEvents() {
		return true
	}
	for _, id := range ou.EventIDs {
		if id == eventID {
			return true
		}
	}
	return false
}

type Event struct {
	bun.BaseModel `bun:"table:events,alias:ev"`

	ID             string    `bun:"id,pk" json:"id"`
	OrganizationID string    `bun:"organization_id,notnull" json:"organization_id"`
	Name           string    `bun:"name,notnull" json:"name"`
	EventStart     time.Time `bun:"event_start,nullzero" json:"event_start,omitempty"`
	// FeeInCents overrides the organization's event fee when set.
	FeeInCents *int64 `bun:"fee_in_cents" json:"fee_in_cents,omitempty"`
}
