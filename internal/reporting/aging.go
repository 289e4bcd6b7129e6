package reporting

import (
	"sort"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// Aging bucket names.
const (
	BucketCurrent = "current"
	BucketDays30  = "days30"
	BucketDays60  = "days60"
	BucketDays90  = "days90"
	BucketOver90  = "over90"
)

// OpenInvoice is an unpaid invoice considered by the aging report.
type OpenInvoice struct {
	InvoiceID    int64
	CustomerID   int64
	CustomerName string
	DueDate      time.Time
	Outstanding  int64
}

// AgingBuckets holds outstanding amounts per overdue band.
type AgingBuckets struct {
	Current int64 `json:"current"`
	Days30  int64 `json:"days30"`
	Days60  int64 `json:"days60"`
	Days90  int64 `json:"days90"`
	Over90  int64 `json:"over90"`
	Total   int64 `json:"total"`
}

func (b *AgingBuckets) add(bucket string, amount int64) {
	switch bucket {
	case BucketCurrent:
		b.Current += amount
	case BucketDays30:
		b.Days30 += amount
	case BucketDays60:
		b.Days60 += amount
	case BucketDays90:
		b.Days90 += amount
	default:
		b.Over90 += amount
	}
	b.Total += amount
}

// CustomerAging is one customer's row of the aging report.
type CustomerAging struct {
	CustomerID   int64  `json:"customerId"`
	CustomerName string `json:"customerName"`
	AgingBuckets
}

// AgingReport groups receivables by how long they are past due.
type AgingReport struct {
	AsOf      shared.Date     `json:"asOf"`
	Customers []CustomerAging `json:"customers"`
	Totals    AgingBuckets    `json:"totals"`
}

// BucketFor maps days past due onto an aging bucket. Non-positive values are current.
func BucketFor(daysOverdue int) string {
	switch {
	case daysOverdue <= 0:
		return BucketCurrent
	case daysOverdue <= 30:
		return BucketDays30
	case daysOverdue <= 60:
		return BucketDays60
	case daysOverdue <= 90:
		return BucketDays90
	default:
		return BucketOver90
	}
}

// BuildAging buckets open invoices as of today. Invoices with nothing
// outstanding are ignored. Customers are ordered by id.
func BuildAging(invoices []OpenInvoice, today time.Time) AgingReport {
	report := AgingReport{AsOf: shared.Date(today), Customers: []CustomerAging{}}
	index := make(map[int64]int)
	for _, inv := range invoices {
		if inv.Outstanding <= 0 {
			continue
		}
		bucket := BucketFor(shared.DaysBetween(inv.DueDate, today))
		pos, ok := index[inv.CustomerID]
		if !ok {
			pos = len(report.Customers)
			index[inv.CustomerID] = pos
			report.Customers = append(report.Customers, CustomerAging{CustomerID: inv.CustomerID, CustomerName: inv.CustomerName})
		}
		report.Customers[pos].add(bucket, inv.Outstanding)
		report.Totals.add(bucket, inv.Outstanding)
	}
	sort.Slice(report.Customers, func(i, j int) bool {
		return report.Customers[i].CustomerID < report.Customers[j].CustomerID
	})
	return report
}
