package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// LedgerLine is one journal entry on an account ledger.
type LedgerLine struct {
	EntryID           int64           `json:"entry_id"`
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber int64           `json:"transaction_number"`
	Date              time.Time       `json:"date"`
	Description       string          `json:"description"`
	Reference         string          `json:"reference,omitempty"`
	EntryType         model.EntryType `json:"entry_type"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	BalanceEffect     decimal.Decimal `json:"balance_effect"`
	RunningBalance    decimal.Decimal `json:"running_balance"`
}

// LedgerSummary totals the lines of a ledger.
type LedgerSummary struct {
	TotalDebits      decimal.Decimal `json:"total_debits"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	NetChange        decimal.Decimal `json:"net_change"`
	TransactionCount int             `json:"transaction_count"`
}

// Ledger is the running-balance history of one account over a period.
type Ledger struct {
	Account        model.Account   `json:"account"`
	Period         *Period         `json:"period"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	Lines          []LedgerLine    `json:"transactions"`
	Summary        LedgerSummary   `json:"summary"`
}

// AccountLedger folds an account's entries dated inside r, ordered by (date,
// transaction id, entry id), into running balances. The opening balance is
// the signed sum of every entry dated strictly before r.Start.
func (a *Aggregator) AccountLedger(ctx context.Context, accountID int64, r model.DateRange) (Ledger, error) {
	acct, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return Ledger{}, notFoundOr(err, "account", accountID, "get account")
	}

	opening := decimal.Zero
	if !r.Start.IsZero() {
		before, err := a.store.ActivityBefore(ctx, accountID, r.Start)
		if err != nil {
			return Ledger{}, &model.StoreError{Op: "read opening activity", Err: err}
		}
		opening = model.BalanceFrom(acct.NormalBalance, before.Debits, before.Credits)
	}

	rows, err := a.store.LedgerRows(ctx, accountID, r)
	if err != nil {
		return Ledger{}, &model.StoreError{Op: "read ledger rows", Err: err}
	}

	l := Ledger{
		Account:        acct,
		Period:         periodOf(r),
		OpeningBalance: opening,
		Lines:          make([]LedgerLine, 0, len(rows)),
		Summary:        LedgerSummary{TotalDebits: decimal.Zero, TotalCredits: decimal.Zero},
	}
	running := opening
	txns := make(map[int64]bool)
	for _, row := range rows {
		effect := acct.Effect(row.EntryType, row.Amount)
		running = running.Add(effect)

		line := LedgerLine{
			EntryID:           row.EntryID,
			TransactionID:     row.TransactionID,
			TransactionNumber: row.TransactionNumber,
			Date:              row.Date,
			Description:       row.Description,
			Reference:         row.Reference,
			EntryType:         row.EntryType,
			Debit:             decimal.Zero,
			Credit:            decimal.Zero,
			BalanceEffect:     effect,
			RunningBalance:    running,
		}
		if row.EntryType == model.Debit {
			line.Debit = row.Amount
			l.Summary.TotalDebits = l.Summary.TotalDebits.Add(row.Amount)
		} else {
			line.Credit = row.Amount
			l.Summary.TotalCredits = l.Summary.TotalCredits.Add(row.Amount)
		}
		l.Lines = append(l.Lines, line)
		txns[row.TransactionID] = true
	}
	l.ClosingBalance = running
	l.Summary.NetChange = running.Sub(opening)
	l.Summary.TransactionCount = len(txns)
	return l, nil
}
