// Package inventory is the ledger of ticket instances. It reserves
// instances for order items, releases them back to the pool and moves
// them through purchase, redemption and nullification.
//
// Reservations expire lazily. Nothing sweeps lapsed reservations; the next
// Reserve for the same ticket type treats a Reserved instance whose
// reserved_until has passed as Available and takes it over.
package inventory
