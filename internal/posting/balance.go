package posting

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// balanceDelta is the net change one set of entries makes to one account.
type balanceDelta struct {
	AccountID int64
	Delta     decimal.Decimal
}

// balanceDeltas folds entries into one signed delta per account, in account id
// order so concurrent units touch rows in the same sequence.
func balanceDeltas(accounts map[int64]model.Account, entries []model.JournalEntry) ([]balanceDelta, error) {
	sums := make(map[int64]decimal.Decimal)
	for _, e := range entries {
		a, ok := accounts[e.AccountID]
		if !ok {
			return nil, &model.NotFoundError{Entity: "account", ID: e.AccountID}
		}
		sums[e.AccountID] = sums[e.AccountID].Add(a.Effect(e.EntryType, e.Amount))
	}

	out := make([]balanceDelta, 0, len(sums))
	for id, d := range sums {
		out = append(out, balanceDelta{AccountID: id, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// applyBalances adjusts cached balances for entries. The arithmetic happens in
// the store (balance = balance + delta), never here.
func applyBalances(ctx context.Context, tx store.Tx, accounts map[int64]model.Account, entries []model.JournalEntry) error {
	deltas, err := balanceDeltas(accounts, entries)
	if err != nil {
		return err
	}
	for _, d := range deltas {
		if d.Delta.IsZero() {
			continue
		}
		if err := tx.AdjustBalance(ctx, d.AccountID, d.Delta); err != nil {
			return fmt.Errorf("adjusting balance of account %d: %w", d.AccountID, err)
		}
	}
	return nil
}

// reversals returns entries that cancel the balance effect of entries.
func reversals(entries []model.JournalEntry) []model.JournalEntry {
	out := make([]model.JournalEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Reversal()
	}
	return out
}

// accountIDs returns the distinct accounts across all entry sets, sorted.
func accountIDs(sets ...[]model.JournalEntry) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, entries := range sets {
		for _, e := range entries {
			if !seen[e.AccountID] {
				seen[e.AccountID] = true
				ids = append(ids, e.AccountID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
