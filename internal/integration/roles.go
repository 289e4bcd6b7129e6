package integration

import (
	"fmt"
	"strings"

	"github.com/netline-isp/billing/internal/accounting"
)

// AccountRoles maps posting roles to chart codes.
type AccountRoles struct {
	Receivable     string
	ServiceRevenue string
	Discount       string
	LateFee        string
	Cash           string
	Bank           string
	MobileMoney    string
	MiscExpense    string
	// Expenses maps a lower-case expense category to its account code.
	Expenses map[string]string
}

// DefaultAccountRoles returns the roles matching the default chart.
func DefaultAccountRoles() AccountRoles {
	return AccountRoles{
		Receivable:     accounting.CodeReceivable,
		ServiceRevenue: accounting.CodeServiceRevenue,
		Discount:       accounting.CodeDiscountAllowed,
		LateFee:        accounting.CodeLateFeeRevenue,
		Cash:           accounting.CodeCash,
		Bank:           accounting.CodeBank,
		MobileMoney:    accounting.CodeMobileMoney,
		MiscExpense:    accounting.CodeMiscellaneousSpend,
		Expenses: map[string]string{
			"salaries":    "5000",
			"bandwidth":   "5010",
			"rent":        "5020",
			"utilities":   "5030",
			"maintenance": "5040",
			"marketing":   "5050",
			"other":       accounting.CodeMiscellaneousSpend,
		},
	}
}

func (r AccountRoles) withDefaults() AccountRoles {
	def := DefaultAccountRoles()
	fill := func(v *string, d string) {
		if strings.TrimSpace(*v) == "" {
			*v = d
		}
	}
	fill(&r.Receivable, def.Receivable)
	fill(&r.ServiceRevenue, def.ServiceRevenue)
	fill(&r.Discount, def.Discount)
	fill(&r.LateFee, def.LateFee)
	fill(&r.Cash, def.Cash)
	fill(&r.Bank, def.Bank)
	fill(&r.MobileMoney, def.MobileMoney)
	fill(&r.MiscExpense, def.MiscExpense)
	if len(r.Expenses) == 0 {
		r.Expenses = def.Expenses
	}
	return r
}

// cashCode picks the cash-equivalent account for a payment method.
func (r AccountRoles) cashCode(method string) string {
	switch method {
	case "bank":
		return r.Bank
	case "mobile_money":
		return r.MobileMoney
	default:
		return r.Cash
	}
}

func (r AccountRoles) expenseCode(category string) string {
	if code, ok := r.Expenses[strings.ToLower(strings.TrimSpace(category))]; ok {
		return code
	}
	return r.MiscExpense
}

// ParseExpenseAccounts reads "category:code,category:code" pairs.
func ParseExpenseAccounts(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		category, code, ok := strings.Cut(pair, ":")
		category = strings.ToLower(strings.TrimSpace(category))
		code = strings.TrimSpace(code)
		if !ok || category == "" || code == "" {
			return nil, fmt.Errorf("integration: invalid expense account mapping %q", pair)
		}
		out[category] = code
	}
	return out, nil
}
