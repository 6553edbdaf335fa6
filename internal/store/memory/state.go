package memory

import (
	"sort"
	"time"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// state is one immutable-once-committed version of the whole store.
type state struct {
	accounts     map[int64]model.Account
	transactions map[int64]model.Transaction // headers only
	entries      map[int64][]model.JournalEntry

	lastAccountID     int64
	lastTransactionID int64
	lastEntryID       int64

	// numberHighWater is the largest transaction number ever assigned.
	numberHighWater int64
}

func newState() *state {
	return &state{
		accounts:     make(map[int64]model.Account),
		transactions: make(map[int64]model.Transaction),
		entries:      make(map[int64][]model.JournalEntry),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:          make(map[int64]model.Account, len(s.accounts)),
		transactions:      make(map[int64]model.Transaction, len(s.transactions)),
		entries:           make(map[int64][]model.JournalEntry, len(s.entries)),
		lastAccountID:     s.lastAccountID,
		lastTransactionID: s.lastTransactionID,
		lastEntryID:       s.lastEntryID,
		numberHighWater:   s.numberHighWater,
	}
	for id, a := range s.accounts {
		c.accounts[id] = a
	}
	for id, t := range s.transactions {
		c.transactions[id] = t
	}
	for id, es := range s.entries {
		c.entries[id] = append([]model.JournalEntry(nil), es...)
	}
	return c
}

func (s *state) getAccount(id int64) (model.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return model.Account{}, store.ErrNotFound
	}
	return a, nil
}

func (s *state) accountsByIDs(ids []int64) map[int64]model.Account {
	out := make(map[int64]model.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out
}

func (s *state) listAccounts(f store.AccountFilter) []model.Account {
	var out []model.Account
	for _, a := range s.accounts {
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		if f.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *state) countAccountEntries(accountID int64) int {
	n := 0
	for _, es := range s.entries {
		for _, e := range es {
			if e.AccountID == accountID {
				n++
			}
		}
	}
	return n
}

func (s *state) getTransaction(id int64) (model.Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return model.Transaction{}, store.ErrNotFound
	}
	t.Entries = append([]model.JournalEntry(nil), s.entries[id]...)
	sort.Slice(t.Entries, func(i, j int) bool { return t.Entries[i].ID < t.Entries[j].ID })
	return t, nil
}

func (s *state) listTransactions(f store.TransactionFilter) []model.Transaction {
	var out []model.Transaction
	for id := range s.transactions {
		t, _ := s.getTransaction(id)
		if !f.Range.Contains(t.Date) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionNumber < out[j].TransactionNumber })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

func (s *state) activity(r model.DateRange) map[int64]store.Activity {
	out := make(map[int64]store.Activity)
	for id, t := range s.transactions {
		if !r.Contains(t.Date) {
			continue
		}
		for _, e := range s.entries[id] {
			out[e.AccountID] = addActivity(out[e.AccountID], e)
		}
	}
	return out
}

func (s *state) activityBefore(accountID int64, day time.Time) store.Activity {
	var act store.Activity
	for id, t := range s.transactions {
		if !t.Date.Before(day) {
			continue
		}
		for _, e := range s.entries[id] {
			if e.AccountID == accountID {
				act = addActivity(act, e)
			}
		}
	}
	return act
}

func (s *state) ledgerRows(accountID int64, r model.DateRange) []store.LedgerRow {
	var rows []store.LedgerRow
	for id, t := range s.transactions {
		if !r.Contains(t.Date) {
			continue
		}
		for _, e := range s.entries[id] {
			if e.AccountID != accountID {
				continue
			}
			rows = append(rows, store.LedgerRow{
				EntryID:           e.ID,
				TransactionID:     t.ID,
				TransactionNumber: t.TransactionNumber,
				Date:              t.Date,
				Description:       t.Description,
				Reference:         t.Reference,
				Amount:            e.Amount,
				EntryType:         e.EntryType,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.TransactionID != b.TransactionID {
			return a.TransactionID < b.TransactionID
		}
		return a.EntryID < b.EntryID
	})
	return rows
}

func addActivity(act store.Activity, e model.JournalEntry) store.Activity {
	if e.EntryType == model.Debit {
		act.Debits = act.Debits.Add(e.Amount)
	} else {
		act.Credits = act.Credits.Add(e.Amount)
	}
	return act
}
