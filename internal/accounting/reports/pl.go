package reports

import (
	"sort"
	"strings"
)

// StatementLine is an account with its net amount on a statement.
type StatementLine struct {
	AccountID int64  `json:"accountId"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Amount    int64  `json:"amount"`
}

// ProfitAndLoss contains the structured output for the report.
type ProfitAndLoss struct {
	StartDate     string          `json:"startDate"`
	EndDate       string          `json:"endDate"`
	Revenue       []StatementLine `json:"revenue"`
	Expenses      []StatementLine `json:"expenses"`
	TotalRevenue  int64           `json:"totalRevenue"`
	TotalExpenses int64           `json:"totalExpenses"`
	NetIncome     int64           `json:"netIncome"`
}

// BuildProfitAndLoss aggregates revenue and expense accounts. Accounts whose
// net amount is zero are left out.
func BuildProfitAndLoss(accounts []AccountBalance) ProfitAndLoss {
	pl := ProfitAndLoss{Revenue: []StatementLine{}, Expenses: []StatementLine{}}
	for _, acc := range accounts {
		net := acc.Net()
		if net == 0 {
			continue
		}
		line := StatementLine{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Amount: net}
		switch strings.ToLower(acc.Type) {
		case "revenue":
			pl.Revenue = append(pl.Revenue, line)
			pl.TotalRevenue += net
		case "expense":
			pl.Expenses = append(pl.Expenses, line)
			pl.TotalExpenses += net
		}
	}
	sortLines(pl.Revenue)
	sortLines(pl.Expenses)
	pl.NetIncome = pl.TotalRevenue - pl.TotalExpenses
	return pl
}

func sortLines(lines []StatementLine) {
	sort.Slice(lines, func(i, j int) bool { return lines[i].Code < lines[j].Code })
}
