package accounting

import "sort"

// Codes of the accounts auto-posting relies on in the default chart.
const (
	CodeCash               = "1000"
	CodeBank               = "1010"
	CodeMobileMoney        = "1020"
	CodeReceivable         = "1100"
	CodeServiceRevenue     = "4000"
	CodeLateFeeRevenue     = "4020"
	CodeDiscountAllowed    = "5080"
	CodeMiscellaneousSpend = "5090"
)

// ChartSeed is one row of the default chart.
type ChartSeed struct {
	Code string
	Name string
	Type AccountType
}

var defaultChart = []ChartSeed{
	{CodeCash, "Cash on Hand", AccountTypeAsset},
	{CodeBank, "Bank", AccountTypeAsset},
	{CodeMobileMoney, "Mobile Money", AccountTypeAsset},
	{CodeReceivable, "Accounts Receivable", AccountTypeAsset},
	{"1500", "Network Equipment", AccountTypeAsset},
	{"2000", "Accounts Payable", AccountTypeLiability},
	{"2100", "Customer Deposits", AccountTypeLiability},
	{"3000", "Owner's Equity", AccountTypeEquity},
	{"3100", "Retained Earnings", AccountTypeEquity},
	{CodeServiceRevenue, "Internet Service Revenue", AccountTypeRevenue},
	{"4010", "Installation Revenue", AccountTypeRevenue},
	{CodeLateFeeRevenue, "Late Fee Revenue", AccountTypeRevenue},
	{"5000", "Salaries", AccountTypeExpense},
	{"5010", "Bandwidth", AccountTypeExpense},
	{"5020", "Rent", AccountTypeExpense},
	{"5030", "Utilities", AccountTypeExpense},
	{"5040", "Equipment Maintenance", AccountTypeExpense},
	{"5050", "Marketing", AccountTypeExpense},
	{CodeDiscountAllowed, "Discount Allowed", AccountTypeExpense},
	{CodeMiscellaneousSpend, "Miscellaneous Expense", AccountTypeExpense},
}

// DefaultChart returns a copy of the default chart ordered by code.
func DefaultChart() []ChartSeed {
	out := make([]ChartSeed, len(defaultChart))
	copy(out, defaultChart)
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
