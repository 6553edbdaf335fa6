package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a journal header. It owns one or more JournalEntry rows.
type Transaction struct {
	ID                int64          `json:"id"`
	TransactionNumber int64          `json:"transaction_number"`
	Date              time.Time      `json:"transaction_date"`
	Description       string         `json:"description"`
	Reference         string         `json:"reference,omitempty"`
	Entries           []JournalEntry `json:"entries,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Totals sums the debit and credit sides of the transaction's entries.
func (t Transaction) Totals() (debits, credits decimal.Decimal) {
	return SumEntries(t.Entries)
}

// AccountIDs returns the distinct accounts touched, in first-seen order.
func (t Transaction) AccountIDs() []int64 {
	seen := make(map[int64]bool, len(t.Entries))
	var ids []int64
	for _, e := range t.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	return ids
}

// JournalEntry is one side of a double-entry posting.
type JournalEntry struct {
	ID            int64           `json:"id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	EntryType     EntryType       `json:"entry_type"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Reversal returns an entry with the same account and amount on the opposite side.
func (e JournalEntry) Reversal() JournalEntry {
	r := e
	r.ID = 0
	r.EntryType = e.EntryType.Opposite()
	return r
}

// SumEntries totals debits and credits.
func SumEntries(entries []JournalEntry) (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.EntryType {
		case Debit:
			debits = debits.Add(e.Amount)
		case Credit:
			credits = credits.Add(e.Amount)
		}
	}
	return debits, credits
}

// TransactionHeader holds the non-financial fields of a transaction.
type TransactionHeader struct {
	Date        time.Time
	Description string
	Reference   string
}

// Draft is an unvalidated transaction as submitted by a caller. Dates use the
// day/month/year boundary convention (see ParseDate).
type Draft struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Reference   string       `json:"reference,omitempty"`
	Entries     []EntryDraft `json:"entries"`
}

// EntryDraft is one unvalidated line of a Draft.
type EntryDraft struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	EntryType EntryType       `json:"entry_type"`
}

// AccountIDs returns the distinct account ids a draft references.
func (d Draft) AccountIDs() []int64 {
	seen := make(map[int64]bool, len(d.Entries))
	var ids []int64
	for _, e := range d.Entries {
		if !seen[e.AccountID] {
			seen[e.AccountID] = true
			ids = append(ids, e.AccountID)
		}
	}
	return ids
}

// Metadata is the payload of a basic (non-financial) edit.
type Metadata struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

// PostingResult is returned by a successful create.
type PostingResult struct {
	TransactionID     int64           `json:"transaction_id"`
	TransactionNumber int64           `json:"transaction_number"`
	TotalDebits       decimal.Decimal `json:"total_debits"`
	TotalCredits      decimal.Decimal `json:"total_credits"`
}
