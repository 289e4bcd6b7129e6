// Package reports turns per-account debit and credit totals into financial
// statements. Builders are pure; callers supply the aggregated balances.
package reports

import (
	"sort"
	"strings"
)

// AccountBalance models a general ledger account with aggregated sums.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      string
	Debit     int64
	Credit    int64
}

// Net returns the balance on the account's normal side: debit minus credit
// for assets and expenses, credit minus debit otherwise.
func (a AccountBalance) Net() int64 {
	switch strings.ToLower(a.Type) {
	case "asset", "expense":
		return a.Debit - a.Credit
	default:
		return a.Credit - a.Debit
	}
}

// TrialBalanceRow is one account line of the trial balance.
type TrialBalanceRow struct {
	AccountID int64  `json:"accountId"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Debit     int64  `json:"debit"`
	Credit    int64  `json:"credit"`
	Balance   int64  `json:"balance"`
}

// TrialBalance lists every account that has postings.
type TrialBalance struct {
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  int64             `json:"totalDebit"`
	TotalCredit int64             `json:"totalCredit"`
	Balanced    bool              `json:"balanced"`
}

// BuildTrialBalance converts account sums into trial balance rows ordered by code.
// Accounts without any debit or credit are omitted.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	result := TrialBalance{Rows: []TrialBalanceRow{}}
	for _, acc := range accounts {
		if acc.Debit == 0 && acc.Credit == 0 {
			continue
		}
		result.Rows = append(result.Rows, TrialBalanceRow{
			AccountID: acc.AccountID,
			Code:      acc.Code,
			Name:      acc.Name,
			Type:      strings.ToLower(acc.Type),
			Debit:     acc.Debit,
			Credit:    acc.Credit,
			Balance:   acc.Debit - acc.Credit,
		})
		result.TotalDebit += acc.Debit
		result.TotalCredit += acc.Credit
	}
	sort.Slice(result.Rows, func(i, j int) bool { return result.Rows[i].Code < result.Rows[j].Code })
	result.Balanced = result.TotalDebit == result.TotalCredit
	return result
}
