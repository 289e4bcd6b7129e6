package integration

import "github.com/netline-isp/billing/internal/accounting"

// leg is a signed amount against one account: positive debits, negative credits.
type leg struct {
	accountID int64
	amount    int64
}

// legs keeps first-seen account order so postings read predictably.
type legs []leg

func (l legs) add(accountID, amount int64) legs {
	for i := range l {
		if l[i].accountID == accountID {
			l[i].amount += amount
			return l
		}
	}
	return append(l, leg{accountID: accountID, amount: amount})
}

func (l legs) negate() legs {
	out := make(legs, len(l))
	for i, g := range l {
		out[i] = leg{accountID: g.accountID, amount: -g.amount}
	}
	return out
}

// minus returns l - other per account.
func (l legs) minus(other legs) legs {
	out := append(legs(nil), l...)
	for _, g := range other {
		out = out.add(g.accountID, -g.amount)
	}
	return out
}

type tag func(*accounting.PostingLineInput)

func customerTag(id int64) tag {
	return func(line *accounting.PostingLineInput) { line.CustomerID = ptr(id) }
}

func vendorTag(id *int64) tag {
	return func(line *accounting.PostingLineInput) { line.VendorID = id }
}

// lines converts legs into journal lines, dropping zero amounts.
func (l legs) lines(tagLine tag, description string) []accounting.PostingLineInput {
	out := make([]accounting.PostingLineInput, 0, len(l))
	for _, g := range l {
		if g.amount == 0 {
			continue
		}
		line := accounting.PostingLineInput{AccountID: g.accountID, Description: description}
		if g.amount > 0 {
			line.Debit = g.amount
		} else {
			line.Credit = -g.amount
		}
		if tagLine != nil {
			tagLine(&line)
		}
		out = append(out, line)
	}
	return out
}

func ptr(v int64) *int64 {
	return &v
}

func actorOr(actor, fallback string) string {
	if actor == "" {
		return fallback
	}
	return actor
}
