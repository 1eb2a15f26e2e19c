package inventory

import "ms-ordering/internal/models"

var transitions = map[models.TicketInstanceStatus][]models.TicketInstanceStatus{
	models.TicketInstanceAvailable: {models.TicketInstanceReserved, models.TicketInstanceNullified},
	models.TicketInstanceReserved: {
		models.TicketInstanceAvailable,
		models.TicketInstanceReserved,
		models.TicketInstancePurchased,
		models.TicketInstanceRedeemed,
		models.TicketInstanceNullified,
	},
	models.TicketInstancePurchased: {
		models.TicketInstanceAvailable,
		models.TicketInstanceRedeemed,
		models.TicketInstanceNullified,
	},
	models.TicketInstanceRedeemed:  {},
	models.TicketInstanceNullified: {},
}

// CanTransition reports whether an instance may move from one status to
// another.
func CanTransition(from, to models.TicketInstanceStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
