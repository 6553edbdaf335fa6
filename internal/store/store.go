// Package store defines the Journal Store contract the posting engine and the
// report aggregator depend on. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// Constraint names shared by every implementation.
const (
	ConstraintAccountCode       = "accounts_code_unique"
	ConstraintTransactionNumber = "transactions_number_unique"
	ConstraintEntryAccount      = "journal_entries_account_fk"
	ConstraintEntryTransaction  = "journal_entries_transaction_fk"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("row not found")

// ConstraintKind distinguishes the integrity constraints a write can trip.
type ConstraintKind int

const (
	UniqueViolation ConstraintKind = iota + 1
	ForeignKeyViolation
)

// ConstraintError reports a rejected write.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Err        error
}

func (e *ConstraintError) Error() string {
	kind := "unique"
	if e.Kind == ForeignKeyViolation {
		kind = "foreign key"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s constraint %s violated: %v", kind, e.Constraint, e.Err)
	}
	return fmt.Sprintf("%s constraint %s violated", kind, e.Constraint)
}

func (e *ConstraintError) Unwrap() error { return e.Err }

// IsConstraint reports whether err is a violation of the named constraint.
func IsConstraint(err error, constraint string) bool {
	var ce *ConstraintError
	return errors.As(err, &ce) && ce.Constraint == constraint
}

// AccountFilter narrows ListAccounts.
type AccountFilter struct {
	Type       model.AccountType
	ActiveOnly bool
}

// TransactionFilter narrows ListTransactions. Results are ordered by
// transaction number.
type TransactionFilter struct {
	Range  model.DateRange
	Limit  int
	Offset int
}

// Activity is the raw debit and credit totals of one account.
type Activity struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

// LedgerRow is a journal entry joined with its transaction header.
type LedgerRow struct {
	EntryID           int64
	TransactionID     int64
	TransactionNumber int64
	Date              time.Time
	Description       string
	Reference         string
	Amount            decimal.Decimal
	EntryType         model.EntryType
}

// Reader is the read side of the store. Reads outside a transaction see only
// committed data.
type Reader interface {
	GetAccount(ctx context.Context, id int64) (model.Account, error)
	AccountsByIDs(ctx context.Context, ids []int64) (map[int64]model.Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]model.Account, error)
	CountAccountEntries(ctx context.Context, accountID int64) (int, error)

	GetTransaction(ctx context.Context, id int64) (model.Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)

	// Activity sums entries per account over transactions dated inside r. A
	// zero range covers the whole journal. Accounts without entries are absent.
	Activity(ctx context.Context, r model.DateRange) (map[int64]Activity, error)
	// ActivityBefore sums one account's entries dated strictly before day.
	ActivityBefore(ctx context.Context, accountID int64, day time.Time) (Activity, error)
	// LedgerRows returns one account's entries dated inside r ordered by
	// (date, transaction id, entry id).
	LedgerRows(ctx context.Context, accountID int64, r model.DateRange) ([]LedgerRow, error)
}

// Tx is one all-or-nothing unit of work.
type Tx interface {
	Reader

	// LockAccounts loads and row-locks the given accounts in id order. Missing
	// ids are absent from the result.
	LockAccounts(ctx context.Context, ids []int64) (map[int64]model.Account, error)
	// LockTransaction loads and row-locks a transaction with its entries.
	LockTransaction(ctx context.Context, id int64) (model.Transaction, error)

	// MaxTransactionNumber is the larger of the highest live number and the
	// highest number ever assigned, so deleted numbers are not handed out again.
	MaxTransactionNumber(ctx context.Context) (int64, error)
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransactionHeader(ctx context.Context, id int64, h model.TransactionHeader) error
	DeleteTransaction(ctx context.Context, id int64) error
	// ResequenceTransactions renumbers 1..N by (created_at, id) and resets the
	// high-water mark to N.
	ResequenceTransactions(ctx context.Context) (int, error)

	InsertEntry(ctx context.Context, e *model.JournalEntry) error
	DeleteEntries(ctx context.Context, transactionID int64) error

	// AdjustBalance performs balance = balance + delta at the store.
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error

	MaxAccountCode(ctx context.Context, lo, hi int) (int, error)
	InsertAccount(ctx context.Context, a *model.Account) error
	UpdateAccount(ctx context.Context, a model.Account) error
}

// Store is a Reader that can also run units of work.
type Store interface {
	Reader
	// WithTx runs fn in one unit of work. It commits when fn returns nil and
	// rolls back otherwise, including on panic.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close()
}
