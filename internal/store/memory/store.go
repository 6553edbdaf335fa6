// Package memory is an in-process Journal Store. Units of work run one at a
// time against a private copy of the data that replaces the committed copy
// only on success, so readers never observe a partial unit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// FaultFunc is consulted before every write; a non-nil error aborts the write.
type FaultFunc func(op string) error

// Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	committed *state

	writeMu sync.Mutex
	fault   FaultFunc
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{committed: newState(), now: time.Now}
}

// SetFault installs f to inject write failures. Pass nil to clear it.
func (s *Store) SetFault(f FaultFunc) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.fault = f
}

func (s *Store) snapshot() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.snapshot().clone()
	tx := &memTx{state: work, fault: s.fault, now: s.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	s.committed = work
	s.mu.Unlock()
	return nil
}

// Close implements store.Store.
func (s *Store) Close() {}

func (s *Store) GetAccount(_ context.Context, id int64) (model.Account, error) {
	return s.snapshot().getAccount(id)
}

func (s *Store) AccountsByIDs(_ context.Context, ids []int64) (map[int64]model.Account, error) {
	return s.snapshot().accountsByIDs(ids), nil
}

func (s *Store) ListAccounts(_ context.Context, f store.AccountFilter) ([]model.Account, error) {
	return s.snapshot().listAccounts(f), nil
}

func (s *Store) CountAccountEntries(_ context.Context, accountID int64) (int, error) {
	return s.snapshot().countAccountEntries(accountID), nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (model.Transaction, error) {
	return s.snapshot().getTransaction(id)
}

func (s *Store) ListTransactions(_ context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	return s.snapshot().listTransactions(f), nil
}

func (s *Store) Activity(_ context.Context, r model.DateRange) (map[int64]store.Activity, error) {
	return s.snapshot().activity(r), nil
}

func (s *Store) ActivityBefore(_ context.Context, accountID int64, day time.Time) (store.Activity, error) {
	return s.snapshot().activityBefore(accountID, day), nil
}

func (s *Store) LedgerRows(_ context.Context, accountID int64, r model.DateRange) ([]store.LedgerRow, error) {
	return s.snapshot().ledgerRows(accountID, r), nil
}

// memTx works on a private state copy.
type memTx struct {
	*state
	fault FaultFunc
	now   func() time.Time
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *memTx) GetAccount(_ context.Context, id int64) (model.Account, error) {
	return t.getAccount(id)
}

func (t *memTx) AccountsByIDs(_ context.Context, ids []int64) (map[int64]model.Account, error) {
	return t.accountsByIDs(ids), nil
}

func (t *memTx) ListAccounts(_ context.Context, f store.AccountFilter) ([]model.Account, error) {
	return t.listAccounts(f), nil
}

func (t *memTx) CountAccountEntries(_ context.Context, accountID int64) (int, error) {
	return t.countAccountEntries(accountID), nil
}

func (t *memTx) GetTransaction(_ context.Context, id int64) (model.Transaction, error) {
	return t.getTransaction(id)
}

func (t *memTx) ListTransactions(_ context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	return t.listTransactions(f), nil
}

func (t *memTx) Activity(_ context.Context, r model.DateRange) (map[int64]store.Activity, error) {
	return t.activity(r), nil
}

func (t *memTx) ActivityBefore(_ context.Context, accountID int64, day time.Time) (store.Activity, error) {
	return t.activityBefore(accountID, day), nil
}

func (t *memTx) LedgerRows(_ context.Context, accountID int64, r model.DateRange) ([]store.LedgerRow, error) {
	return t.ledgerRows(accountID, r), nil
}

func (t *memTx) LockAccounts(_ context.Context, ids []int64) (map[int64]model.Account, error) {
	return t.accountsByIDs(ids), nil
}

func (t *memTx) LockTransaction(_ context.Context, id int64) (model.Transaction, error) {
	return t.getTransaction(id)
}

func (t *memTx) MaxTransactionNumber(_ context.Context) (int64, error) {
	max := t.numberHighWater
	for _, txn := range t.transactions {
		if txn.TransactionNumber > max {
			max = txn.TransactionNumber
		}
	}
	return max, nil
}

func (t *memTx) InsertTransaction(_ context.Context, txn *model.Transaction) error {
	if err := t.check("insert transaction"); err != nil {
		return err
	}
	for _, other := range t.transactions {
		if other.TransactionNumber == txn.TransactionNumber {
			return &store.ConstraintError{Kind: store.UniqueViolation, Constraint: store.ConstraintTransactionNumber}
		}
	}
	t.lastTransactionID++
	now := t.now()
	txn.ID = t.lastTransactionID
	txn.CreatedAt, txn.UpdatedAt = now, now

	header := *txn
	header.Entries = nil
	t.transactions[txn.ID] = header
	if txn.TransactionNumber > t.numberHighWater {
		t.numberHighWater = txn.TransactionNumber
	}
	return nil
}

func (t *memTx) UpdateTransactionHeader(_ context.Context, id int64, h model.TransactionHeader) error {
	if err := t.check("update transaction"); err != nil {
		return err
	}
	txn, ok := t.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	txn.Date = h.Date
	txn.Description = h.Description
	txn.Reference = h.Reference
	txn.UpdatedAt = t.now()
	t.transactions[id] = txn
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, id int64) error {
	if err := t.check("delete transaction"); err != nil {
		return err
	}
	if _, ok := t.transactions[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.transactions, id)
	delete(t.entries, id)
	return nil
}

func (t *memTx) ResequenceTransactions(_ context.Context) (int, error) {
	if err := t.check("resequence"); err != nil {
		return 0, err
	}
	all := make([]model.Transaction, 0, len(t.transactions))
	for _, txn := range t.transactions {
		all = append(all, txn)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	for i, txn := range all {
		txn.TransactionNumber = int64(i + 1)
		t.transactions[txn.ID] = txn
	}
	t.numberHighWater = int64(len(all))
	return len(all), nil
}

func (t *memTx) InsertEntry(_ context.Context, e *model.JournalEntry) error {
	if err := t.check("insert entry"); err != nil {
		return err
	}
	if _, ok := t.transactions[e.TransactionID]; !ok {
		return &store.ConstraintError{Kind: store.ForeignKeyViolation, Constraint: store.ConstraintEntryTransaction}
	}
	if _, ok := t.accounts[e.AccountID]; !ok {
		return &store.ConstraintError{Kind: store.ForeignKeyViolation, Constraint: store.ConstraintEntryAccount}
	}
	if !e.Amount.IsPositive() {
		return errors.New("journal entry amount must be positive")
	}
	t.lastEntryID++
	e.ID = t.lastEntryID
	e.CreatedAt = t.now()
	t.entries[e.TransactionID] = append(t.entries[e.TransactionID], *e)
	return nil
}

func (t *memTx) DeleteEntries(_ context.Context, transactionID int64) error {
	if err := t.check("delete entries"); err != nil {
		return err
	}
	delete(t.entries, transactionID)
	return nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountID int64, delta decimal.Decimal) error {
	if err := t.check("adjust balance"); err != nil {
		return err
	}
	a, ok := t.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	a.Balance = a.Balance.Add(delta)
	a.UpdatedAt = t.now()
	t.accounts[accountID] = a
	return nil
}

func (t *memTx) MaxAccountCode(_ context.Context, lo, hi int) (int, error) {
	max := 0
	for _, a := range t.accounts {
		if a.Code >= lo && a.Code <= hi && a.Code > max {
			max = a.Code
		}
	}
	return max, nil
}

func (t *memTx) InsertAccount(_ context.Context, a *model.Account) error {
	if err := t.check("insert account"); err != nil {
		return err
	}
	for _, other := range t.accounts {
		if other.Code == a.Code {
			return &store.ConstraintError{Kind: store.UniqueViolation, Constraint: store.ConstraintAccountCode}
		}
	}
	t.lastAccountID++
	now := t.now()
	a.ID = t.lastAccountID
	a.Balance = decimal.Zero
	a.CreatedAt, a.UpdatedAt = now, now
	t.accounts[a.ID] = *a
	return nil
}

func (t *memTx) UpdateAccount(_ context.Context, a model.Account) error {
	if err := t.check("update account"); err != nil {
		return err
	}
	existing, ok := t.accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	for id, other := range t.accounts {
		if id != a.ID && other.Code == a.Code {
			return &store.ConstraintError{Kind: store.UniqueViolation, Constraint: store.ConstraintAccountCode}
		}
	}
	existing.Code = a.Code
	existing.Name = a.Name
	existing.Type = a.Type
	existing.Subtype = a.Subtype
	existing.NormalBalance = a.NormalBalance
	existing.IsActive = a.IsActive
	existing.UpdatedAt = t.now()
	t.accounts[a.ID] = existing
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*memTx)(nil)
)
