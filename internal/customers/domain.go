// Package customers is the billing view of the subscriber directory: who is
// billable, on which plan, and whether service is suspended.
package customers

import "time"

// Status is the service state of a subscriber.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusInactive  Status = "inactive"
)

// Customer is a subscriber as seen by billing.
type Customer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	PlanID    *int64    `json:"planId,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Plan is a service package with its periodic price.
type Plan struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}
