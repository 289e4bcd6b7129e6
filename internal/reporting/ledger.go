package reporting

import (
	"fmt"
	"sort"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// Ledger row kinds.
const (
	RowOpening = "opening"
	RowInvoice = "invoice"
	RowPayment = "payment"
)

// LedgerInvoice is the invoice history needed for a customer statement.
type LedgerInvoice struct {
	ID          int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalAmount int64
	Status      string
	CreatedAt   time.Time
}

// LedgerPayment is the payment history needed for a customer statement.
type LedgerPayment struct {
	ID         int64
	InvoiceID  int64
	Amount     int64
	Method     string
	Reference  *string
	ReceivedAt time.Time
}

// OpeningBalance is a customer's carried-forward balance.
type OpeningBalance struct {
	CustomerID int64       `json:"customerId"`
	Amount     int64       `json:"amount"`
	AsOf       shared.Date `json:"asOf"`
}

// LedgerRow is one line of a customer statement.
type LedgerRow struct {
	Date        time.Time `json:"date"`
	Type        string    `json:"type"`
	Reference   int64     `json:"reference,omitempty"`
	Description string    `json:"description"`
	Debit       int64     `json:"debit"`
	Credit      int64     `json:"credit"`
	Balance     int64     `json:"balance"`
}

// CustomerLedger is the running statement of a customer account.
type CustomerLedger struct {
	CustomerID     int64       `json:"customerId"`
	CustomerName   string      `json:"customerName"`
	OpeningBalance int64       `json:"openingBalance"`
	Rows           []LedgerRow `json:"rows"`
	TotalDebit     int64       `json:"totalDebit"`
	TotalCredit    int64       `json:"totalCredit"`
	Balance        int64       `json:"balance"`
}

// BuildCustomerLedger merges invoices and payments into a running balance.
// Void invoices are left out; an invoice and a payment at the same instant
// list the invoice first.
func BuildCustomerLedger(customerID int64, name string, opening *OpeningBalance, invoices []LedgerInvoice, payments []LedgerPayment) CustomerLedger {
	ledger := CustomerLedger{CustomerID: customerID, CustomerName: name, Rows: []LedgerRow{}}
	if opening != nil {
		ledger.OpeningBalance = opening.Amount
		ledger.Balance = opening.Amount
		row := LedgerRow{Date: opening.AsOf.Time(), Type: RowOpening, Description: "Opening balance", Balance: opening.Amount}
		if opening.Amount >= 0 {
			row.Debit = opening.Amount
		} else {
			row.Credit = -opening.Amount
		}
		ledger.Rows = append(ledger.Rows, row)
	}

	movements := make([]LedgerRow, 0, len(invoices)+len(payments))
	for _, inv := range invoices {
		if inv.Status == "void" {
			continue
		}
		movements = append(movements, LedgerRow{
			Date:      inv.CreatedAt,
			Type:      RowInvoice,
			Reference: inv.ID,
			Description: fmt.Sprintf("Invoice #%d (%s to %s)", inv.ID,
				inv.PeriodStart.Format(shared.DateLayout), inv.PeriodEnd.Format(shared.DateLayout)),
			Debit: inv.TotalAmount,
		})
	}
	for _, p := range payments {
		desc := fmt.Sprintf("Payment for invoice #%d via %s", p.InvoiceID, p.Method)
		if p.Reference != nil && *p.Reference != "" {
			desc += " ref " + *p.Reference
		}
		movements = append(movements, LedgerRow{
			Date:        p.ReceivedAt,
			Type:        RowPayment,
			Reference:   p.ID,
			Description: desc,
			Credit:      p.Amount,
		})
	}
	sort.SliceStable(movements, func(i, j int) bool {
		a, b := movements[i], movements[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Type != b.Type {
			return a.Type == RowInvoice
		}
		return a.Reference < b.Reference
	})

	for _, row := range movements {
		ledger.Balance += row.Debit - row.Credit
		ledger.TotalDebit += row.Debit
		ledger.TotalCredit += row.Credit
		row.Balance = ledger.Balance
		ledger.Rows = append(ledger.Rows, row)
	}
	return ledger
}
