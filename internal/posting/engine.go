// Package posting writes transactions to the journal and keeps every
// account's cached balance equal to the signed sum of its entries.
package posting

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/logging"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// DefaultMaxAttempts bounds retries after a transaction-number collision.
const DefaultMaxAttempts = 5

// Invalidator drops derived data that a committed posting made stale.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Options configures an Engine. Zero values are usable.
type Options struct {
	Logger      *zap.Logger
	Publisher   events.Publisher
	Invalidator Invalidator
	MaxAttempts int
}

// Engine is the Posting Engine. It is safe for concurrent use; all
// serialization happens in the store.
type Engine struct {
	store       store.Store
	log         *zap.Logger
	publisher   events.Publisher
	invalidator Invalidator
	maxAttempts int
}

// NewEngine creates an Engine over s.
func NewEngine(s store.Store, opts Options) *Engine {
	e := &Engine{
		store:       s,
		log:         logging.OrNop(opts.Logger),
		publisher:   opts.Publisher,
		invalidator: opts.Invalidator,
		maxAttempts: opts.MaxAttempts,
	}
	if e.publisher == nil {
		e.publisher = events.Nop{}
	}
	if e.maxAttempts <= 0 {
		e.maxAttempts = DefaultMaxAttempts
	}
	return e
}

// CreatePosting validates d and posts it as a new transaction.
func (e *Engine) CreatePosting(ctx context.Context, d model.Draft) (model.PostingResult, error) {
	v, err := e.validate(ctx, d)
	if err != nil {
		return model.PostingResult{}, err
	}

	var res model.PostingResult
	err = e.retry(ctx, func() error {
		return e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			accounts, err := lockPostable(ctx, tx, v.Entries, nil)
			if err != nil {
				return err
			}
			number, err := NextNumber(ctx, tx)
			if err != nil {
				return err
			}
			txn := model.Transaction{
				TransactionNumber: number,
				Date:              v.Date,
				Description:       v.Description,
				Reference:         v.Reference,
			}
			if err := tx.InsertTransaction(ctx, &txn); err != nil {
				return fmt.Errorf("inserting transaction: %w", err)
			}
			if err := insertEntries(ctx, tx, txn.ID, v.Entries); err != nil {
				return err
			}
			if err := applyBalances(ctx, tx, accounts, v.Entries); err != nil {
				return err
			}
			res = model.PostingResult{
				TransactionID:     txn.ID,
				TransactionNumber: txn.TransactionNumber,
				TotalDebits:       v.TotalDebits,
				TotalCredits:      v.TotalCredits,
			}
			return nil
		})
	})
	if err != nil {
		return model.PostingResult{}, e.fail("create", 0, err)
	}

	ev := events.New(events.TransactionCreated)
	ev.TransactionID, ev.TransactionNumber = res.TransactionID, res.TransactionNumber
	ev.Details = totalsDetail(v)
	e.committed(ctx, "create", ev)
	return res, nil
}

// EditPosting replaces a transaction's header and entries. Every old entry is
// reversed before the new ones are applied, so the balance invariant holds
// whatever moved between the two versions.
func (e *Engine) EditPosting(ctx context.Context, id int64, d model.Draft) (model.PostingResult, error) {
	v, err := e.validate(ctx, d)
	if err != nil {
		return model.PostingResult{}, err
	}

	var res model.PostingResult
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := lockWithEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		accounts, err := lockPostable(ctx, tx, v.Entries, old.Entries)
		if err != nil {
			return err
		}

		if err := applyBalances(ctx, tx, accounts, reversals(old.Entries)); err != nil {
			return err
		}
		if err := tx.DeleteEntries(ctx, id); err != nil {
			return fmt.Errorf("deleting entries: %w", err)
		}
		if err := tx.UpdateTransactionHeader(ctx, id, v.Header()); err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}
		if err := insertEntries(ctx, tx, id, v.Entries); err != nil {
			return err
		}
		if err := applyBalances(ctx, tx, accounts, v.Entries); err != nil {
			return err
		}
		res = model.PostingResult{
			TransactionID:     id,
			TransactionNumber: old.TransactionNumber,
			TotalDebits:       v.TotalDebits,
			TotalCredits:      v.TotalCredits,
		}
		return nil
	})
	if err != nil {
		return model.PostingResult{}, e.fail("edit", id, err)
	}

	ev := events.New(events.TransactionEdited)
	ev.TransactionID, ev.TransactionNumber = res.TransactionID, res.TransactionNumber
	ev.Details = totalsDetail(v)
	e.committed(ctx, "edit", ev)
	return res, nil
}

// DeletePosting reverses a transaction's balance effect and removes it. Its
// number is never reused.
func (e *Engine) DeletePosting(ctx context.Context, id int64) error {
	var number int64
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := lockWithEntries(ctx, tx, id)
		if err != nil {
			return err
		}
		number = old.TransactionNumber

		accounts, err := tx.LockAccounts(ctx, accountIDs(old.Entries))
		if err != nil {
			return fmt.Errorf("locking accounts: %w", err)
		}
		if err := applyBalances(ctx, tx, accounts, reversals(old.Entries)); err != nil {
			return err
		}
		if err := tx.DeleteEntries(ctx, id); err != nil {
			return fmt.Errorf("deleting entries: %w", err)
		}
		if err := tx.DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("deleting transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return e.fail("delete", id, err)
	}

	ev := events.New(events.TransactionDeleted)
	ev.TransactionID, ev.TransactionNumber = id, number
	e.committed(ctx, "delete", ev)
	return nil
}

// UpdateMetadata changes only the date, description and reference. Entries and
// balances are untouched.
func (e *Engine) UpdateMetadata(ctx context.Context, id int64, m model.Metadata) (model.Transaction, error) {
	h, err := journal.ValidateMetadata(m)
	if err != nil {
		return model.Transaction{}, err
	}

	var updated model.Transaction
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockTransaction(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return &model.NotFoundError{Entity: "transaction", ID: id}
			}
			return fmt.Errorf("locking transaction: %w", err)
		}
		if err := tx.UpdateTransactionHeader(ctx, id, h); err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}
		updated, err = tx.GetTransaction(ctx, id)
		return err
	})
	if err != nil {
		return model.Transaction{}, e.fail("update", id, err)
	}

	ev := events.New(events.TransactionMetadataUpdated)
	ev.TransactionID, ev.TransactionNumber = id, updated.TransactionNumber
	e.committed(ctx, "update", ev)
	return updated, nil
}

// Resequence renumbers every transaction 1..N in (created_at, id) order. It is
// a repair tool and returns how many transactions were renumbered.
func (e *Engine) Resequence(ctx context.Context) (int, error) {
	var n int
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.ResequenceTransactions(ctx)
		return err
	})
	if err != nil {
		return 0, e.fail("resequence", 0, err)
	}

	ev := events.New(events.TransactionsResequenced)
	ev.Count = n
	e.committed(ctx, "resequence", ev)
	return n, nil
}

// GetTransaction returns a transaction with its entries.
func (e *Engine) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	t, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Transaction{}, &model.NotFoundError{Entity: "transaction", ID: id}
		}
		return model.Transaction{}, &model.StoreError{Op: "get transaction", Err: err}
	}
	return t, nil
}

// ListTransactions returns transactions in number order.
func (e *Engine) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	ts, err := e.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, &model.StoreError{Op: "list transactions", Err: err}
	}
	return ts, nil
}

// validate loads the referenced accounts from committed state and runs the
// pure validator. Accounts are checked again under lock before writing.
func (e *Engine) validate(ctx context.Context, d model.Draft) (journal.Validated, error) {
	accounts, err := e.store.AccountsByIDs(ctx, d.AccountIDs())
	if err != nil {
		return journal.Validated{}, &model.StoreError{Op: "load accounts", Err: err}
	}
	return journal.Validate(d, journal.ActiveAccounts(accounts))
}

// retry reruns fn while it loses the race for a transaction number.
func (e *Engine) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isNumberCollision(err) || ctx.Err() != nil {
			return err
		}
		e.log.Debug("transaction number collision, retrying", zap.Int("attempt", attempt))
	}
	return err
}

// fail translates a unit-of-work error exactly once. Domain errors pass
// through; anything else becomes a PostingError over a StoreError.
func (e *Engine) fail(op string, id int64, err error) error {
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return err
	}
	e.log.Error("posting rolled back",
		zap.String("op", op),
		zap.Int64("transaction_id", id),
		zap.Error(err),
	)
	return &model.PostingError{Op: op, TransactionID: id, Err: &model.StoreError{Op: op, Err: err}}
}

// committed runs the post-commit side effects. Their failures are logged and
// never undo the posting.
func (e *Engine) committed(ctx context.Context, op string, ev events.Event) {
	e.log.Info("posting committed",
		zap.String("op", op),
		zap.Int64("transaction_id", ev.TransactionID),
		zap.Int64("transaction_number", ev.TransactionNumber),
	)
	if e.invalidator != nil {
		if err := e.invalidator.Invalidate(ctx); err != nil {
			e.log.Warn("report cache invalidation failed", zap.String("op", op), zap.Error(err))
		}
	}
	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.log.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// lockWithEntries locks a transaction that must exist and own entries.
func lockWithEntries(ctx context.Context, tx store.Tx, id int64) (model.Transaction, error) {
	t, err := tx.LockTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Transaction{}, &model.NotFoundError{Entity: "transaction", ID: id}
		}
		return model.Transaction{}, fmt.Errorf("locking transaction: %w", err)
	}
	if len(t.Entries) == 0 {
		return model.Transaction{}, &model.ConflictError{Entity: "transaction", ID: id, Reason: "has no journal entries"}
	}
	return t, nil
}

// lockPostable locks every account in both entry sets. Accounts receiving new
// entries must still exist and be active; accounts only in previous need only
// exist, which the foreign key guarantees.
func lockPostable(ctx context.Context, tx store.Tx, entries, previous []model.JournalEntry) (map[int64]model.Account, error) {
	accounts, err := tx.LockAccounts(ctx, accountIDs(entries, previous))
	if err != nil {
		return nil, fmt.Errorf("locking accounts: %w", err)
	}
	for _, id := range accountIDs(entries) {
		a, ok := accounts[id]
		if !ok {
			return nil, &model.NotFoundError{Entity: "account", ID: id}
		}
		if !a.IsActive {
			return nil, &model.ConflictError{Entity: "account", ID: id, Reason: "is inactive"}
		}
	}
	return accounts, nil
}

func insertEntries(ctx context.Context, tx store.Tx, txnID int64, entries []model.JournalEntry) error {
	for i := range entries {
		e := entries[i]
		e.ID = 0
		e.TransactionID = txnID
		if err := tx.InsertEntry(ctx, &e); err != nil {
			return fmt.Errorf("inserting entry %d: %w", i, err)
		}
	}
	return nil
}

func totalsDetail(v journal.Validated) string {
	return fmt.Sprintf("debits=%s credits=%s", v.TotalDebits.StringFixed(2), v.TotalCredits.StringFixed(2))
}
