package reports

import "strings"

// CurrentEarningsName labels the synthetic equity line carrying unclosed profit.
const CurrentEarningsName = "Current Earnings"

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	Assets                    []StatementLine `json:"assets"`
	Liabilities               []StatementLine `json:"liabilities"`
	Equity                    []StatementLine `json:"equity"`
	TotalAssets               int64           `json:"totalAssets"`
	TotalLiabilities          int64           `json:"totalLiabilities"`
	TotalEquity               int64           `json:"totalEquity"`
	TotalLiabilitiesAndEquity int64           `json:"totalLiabilitiesAndEquity"`
	Balanced                  bool            `json:"balanced"`
}

// BuildBalanceSheet aggregates asset, liability and equity balances. Revenue
// and expense accounts are never closed, so their net is carried as a
// "Current Earnings" equity line; with balanced postings this keeps
// assets equal to liabilities plus equity.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	bs := BalanceSheet{Assets: []StatementLine{}, Liabilities: []StatementLine{}, Equity: []StatementLine{}}
	var earnings int64
	for _, acc := range accounts {
		net := acc.Net()
		line := StatementLine{AccountID: acc.AccountID, Code: acc.Code, Name: acc.Name, Amount: net}
		switch strings.ToLower(acc.Type) {
		case "asset":
			if net != 0 {
				bs.Assets = append(bs.Assets, line)
				bs.TotalAssets += net
			}
		case "liability":
			if net != 0 {
				bs.Liabilities = append(bs.Liabilities, line)
				bs.TotalLiabilities += net
			}
		case "equity":
			if net != 0 {
				bs.Equity = append(bs.Equity, line)
				bs.TotalEquity += net
			}
		case "revenue":
			earnings += net
		case "expense":
			earnings -= net
		}
	}
	sortLines(bs.Assets)
	sortLines(bs.Liabilities)
	sortLines(bs.Equity)
	if earnings != 0 {
		bs.Equity = append(bs.Equity, StatementLine{Name: CurrentEarningsName, Amount: earnings})
		bs.TotalEquity += earnings
	}
	bs.TotalLiabilitiesAndEquity = bs.TotalLiabilities + bs.TotalEquity
	bs.Balanced = bs.TotalAssets == bs.TotalLiabilitiesAndEquity
	return bs
}
