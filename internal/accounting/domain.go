package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/netline-isp/billing/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account classes.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// SourceType tags journal entries with the event that produced them.
type SourceType string

const (
	SourceManual            SourceType = "manual"
	SourceInvoice           SourceType = "invoice"
	SourceInvoiceAdjustment SourceType = "invoice_adjustment"
	SourceInvoiceVoid       SourceType = "invoice_void"
	SourcePayment           SourceType = "payment"
	SourceExpense           SourceType = "expense"
	SourceReversal          SourceType = "reversal"
)

// ParseManualSource resolves the source tag of a hand-posted entry. Empty
// means manual; types written by auto-posting are refused.
func ParseManualSource(raw string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case "":
		return SourceManual, nil
	case SourceInvoice, SourceInvoiceAdjustment, SourceInvoiceVoid, SourcePayment, SourceExpense, SourceReversal:
		return "", shared.Invalid("accounting: source type %q is reserved for automatic postings", st)
	}
	return st, nil
}

// Unique reports whether at most one entry may exist per source id.
func (s SourceType) Unique() bool {
	switch s {
	case SourceInvoice, SourceInvoiceVoid, SourcePayment, SourceExpense, SourceReversal:
		return true
	}
	return false
}

// Account models a chart of accounts node.
type Account struct {
	ID        int64       `json:"id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	IsActive  bool        `json:"isActive"`
	CreatedAt time.Time   `json:"createdAt"`
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID         int64         `json:"id"`
	EntryDate  shared.Date   `json:"entryDate"`
	Memo       string        `json:"memo"`
	SourceType SourceType    `json:"sourceType"`
	SourceID   *int64        `json:"sourceId,omitempty"`
	PostedBy   string        `json:"postedBy"`
	CreatedAt  time.Time     `json:"createdAt"`
	Lines      []JournalLine `json:"lines"`
}

// JournalLine stores a debit or credit amount against one account.
type JournalLine struct {
	ID          int64    `json:"id"`
	EntryID     int64    `json:"entryId"`
	AccountID   int64    `json:"accountId"`
	Debit       int64    `json:"debit"`
	Credit      int64    `json:"credit"`
	CustomerID  *int64   `json:"customerId,omitempty"`
	VendorID    *int64   `json:"vendorId,omitempty"`
	Description string   `json:"description"`
	Account     *Account `json:"account,omitempty"`
}

// PostingLineInput describes a journal line for posting request.
type PostingLineInput struct {
	AccountID   int64
	Debit       int64
	Credit      int64
	CustomerID  *int64
	VendorID    *int64
	Description string
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EntryDate  time.Time
	Memo       string
	SourceType SourceType
	SourceID   *int64
	PostedBy   string
	Lines      []PostingLineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID   int64
	EntryDate *time.Time
	Memo      string
	PostedBy  string
}

// ListFilter narrows journal listings.
type ListFilter struct {
	From       *time.Time
	To         *time.Time
	SourceType SourceType
	AccountID  int64
	Page       shared.Pagination
}

var (
	// ErrSourceAlreadyLinked indicates an auto-posted source already has its entry.
	ErrSourceAlreadyLinked = fmt.Errorf("%w: accounting: source already linked", shared.ErrConflict)
	// ErrAlreadyReversed indicates a second reversal attempt.
	ErrAlreadyReversed = fmt.Errorf("%w: accounting: entry already reversed", shared.ErrConflict)
)

// Validate checks line shape first and balance second, so a malformed line
// is always reported as invalid input rather than as an imbalance.
func (in PostingInput) Validate() error {
	if in.EntryDate.IsZero() {
		return shared.Invalid("accounting: entry date required")
	}
	if in.SourceType != "" && in.SourceType != SourceManual && in.SourceID == nil {
		return shared.Invalid("accounting: source id required for %s entries", in.SourceType)
	}
	if len(in.Lines) < 2 {
		return shared.Invalid("accounting: journal requires at least two lines")
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountID <= 0 {
			return shared.Invalid("accounting: line %d missing account", idx+1)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return shared.Invalid("accounting: line %d has a negative amount", idx+1)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return shared.Invalid("accounting: line %d cannot be both debit and credit", idx+1)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return shared.Invalid("accounting: line %d needs a debit or a credit", idx+1)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return fmt.Errorf("%w: debits %d != credits %d", shared.ErrUnbalancedEntry, debit, credit)
	}
	return nil
}

func normalizeMemo(memo string) string {
	return strings.TrimSpace(memo)
}
