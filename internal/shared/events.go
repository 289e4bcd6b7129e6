package shared

import "time"

// InvoiceFullyPaid is raised inside the settling transaction once an invoice's
// paid amount reaches its total.
type InvoiceFullyPaid struct {
	InvoiceID  int64
	CustomerID int64
	PaidAt     time.Time
}
