package models

type OrderStatus string

const (
	OrderStatusDraft         OrderStatus = "Draft"
	OrderStatusPartiallyPaid OrderStatus = "PartiallyPaid"
	OrderStatusPaid          OrderStatus = "Paid"
	OrderStatusCancelled     OrderStatus = "Cancelled"
)

// Unpaid reports whether payments and cart mutation still apply.
func (s OrderStatus) Unpaid() bool {
	return s == OrderStatusDraft || s == OrderStatusPartiallyPaid
}

type OrderType string

const (
	OrderTypeCart       OrderType = "Cart"
	OrderTypeBackOffice OrderType = "BackOffice"
)

type OrderItemType string

const (
	OrderItemTypeTickets     OrderItemType = "Tickets"
	OrderItemTypePerUnitFees OrderItemType = "PerUnitFees"
	OrderItemTypeEventFees   OrderItemType = "EventFees"
)

type TicketInstanceStatus string

const (
	TicketInstanceAvailable TicketInstanceStatus = "Available"
	TicketInstanceReserved  TicketInstanceStatus = "Reserved"
	TicketInstancePurchased TicketInstanceStatus = "Purchased"
	TicketInstanceRedeemed  TicketInstanceStatus = "Redeemed"
	TicketInstanceNullified TicketInstanceStatus = "Nullified"
)

type CodeType string

const (
	CodeTypeDiscount CodeType = "Discount"
	CodeTypeAccess   CodeType = "Access"
)

type HoldType string

const (
	HoldTypeDiscount HoldType = "Discount"
	HoldTypeComp     HoldType = "Comp"
)

type Role string

const (
	RoleAdmin            Role = "Admin"
	RoleOrgOwner         Role = "OrgOwner"
	RoleOrgAdmin         Role = "OrgAdmin"
	RoleOrgMember        Role = "OrgMember"
	RoleOrgBoxOffice     Role = "OrgBoxOffice"
	RoleDoorPerson       Role = "DoorPerson"
	RolePromoter         Role = "Promoter"
	RolePromoterReadOnly Role = "PromoterReadOnly"
)

// EventScoped roles only see the events listed on their membership.
func (r Role) EventScoped() bool {
	return r == RolePromoter || r == RolePromoterReadOnly
}

type PaymentMethod string

const (
	PaymentMethodExternal   PaymentMethod = "External"
	PaymentMethodCreditCard PaymentMethod = "CreditCard"
)

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)
