// Package postgres is the PostgreSQL Journal Store. Amounts travel as text so
// NUMERIC values round-trip through decimal.Decimal without float conversion.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

const counterTransactionNumber = "transaction_number"

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store runs reads against the pool and units of work in READ COMMITTED
// transactions.
type Store struct {
	reader
	pool *pgxpool.Pool
}

// New wraps an open pool. The Store owns the pool from then on.
func New(pool *pgxpool.Pool) *Store {
	return &Store{reader: reader{q: pool}, pool: pool}
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// WithTx implements store.Store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// Rollback after Commit is a no-op; on panic or error it undoes the unit.
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &pgTx{reader: reader{q: tx}, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", translate(err))
	}
	return nil
}

// translate maps driver errors onto the store vocabulary.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &store.ConstraintError{Kind: store.UniqueViolation, Constraint: pgErr.ConstraintName, Err: err}
		case codeForeignKeyViolation:
			return &store.ConstraintError{Kind: store.ForeignKeyViolation, Constraint: pgErr.ConstraintName, Err: err}
		}
	}
	return err
}

func dateArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing numeric %q: %w", s, err)
	}
	return d, nil
}

const accountColumns = `id, code, name, type, subtype, normal_balance, balance::text, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (model.Account, error) {
	var (
		a       model.Account
		typ     string
		normal  string
		balance string
	)
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &typ, &a.Subtype, &normal, &balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return model.Account{}, err
	}
	a.Type = model.AccountType(typ)
	a.NormalBalance = model.EntryType(normal)
	var err error
	if a.Balance, err = parseDecimal(balance); err != nil {
		return model.Account{}, err
	}
	return a, nil
}

const transactionColumns = `id, transaction_number, transaction_date, description, reference, created_at, updated_at`

func scanTransaction(row pgx.Row) (model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.TransactionNumber, &t.Date, &t.Description, &t.Reference, &t.CreatedAt, &t.UpdatedAt)
	t.Date = time.Date(t.Date.Year(), t.Date.Month(), t.Date.Day(), 0, 0, 0, 0, time.UTC)
	return t, err
}

type reader struct {
	q querier
}

func (r reader) GetAccount(ctx context.Context, id int64) (model.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	return a, translate(err)
}

func (r reader) AccountsByIDs(ctx context.Context, ids []int64) (map[int64]model.Account, error) {
	return r.accounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id`, ids)
}

func (r reader) accounts(ctx context.Context, sql string, args ...any) (map[int64]model.Account, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[int64]model.Account)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r reader) ListAccounts(ctx context.Context, f store.AccountFilter) ([]model.Account, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE ($1::text = '' OR type = $1::text) AND (NOT $2::bool OR is_active)
		ORDER BY code`, string(f.Type), f.ActiveOnly)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r reader) CountAccountEntries(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM journal_entries WHERE account_id = $1`, accountID).Scan(&n)
	return n, translate(err)
}

func (r reader) GetTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	return r.transaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
}

func (r reader) transaction(ctx context.Context, sql string, id int64) (model.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx, sql, id))
	if err != nil {
		return model.Transaction{}, translate(err)
	}
	entries, err := r.entries(ctx, []int64{id})
	if err != nil {
		return model.Transaction{}, err
	}
	t.Entries = entries[id]
	return t, nil
}

func (r reader) entries(ctx context.Context, txnIDs []int64) (map[int64][]model.JournalEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, transaction_id, account_id, amount::text, entry_type, created_at
		FROM journal_entries
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, id`, txnIDs)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[int64][]model.JournalEntry, len(txnIDs))
	for rows.Next() {
		var (
			e      model.JournalEntry
			amount string
			typ    string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &amount, &typ, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		e.EntryType = model.EntryType(typ)
		out[e.TransactionID] = append(out[e.TransactionID], e)
	}
	return out, rows.Err()
}

func (r reader) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]model.Transaction, error) {
	var limit any
	if f.Limit > 0 {
		limit = f.Limit
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE ($1::date IS NULL OR transaction_date >= $1)
		  AND ($2::date IS NULL OR transaction_date <= $2)
		ORDER BY transaction_number
		LIMIT $3 OFFSET $4`, dateArg(f.Range.Start), dateArg(f.Range.End), limit, f.Offset)
	if err != nil {
		return nil, translate(err)
	}
	var (
		out []model.Transaction
		ids []int64
	)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, t)
		ids = append(ids, t.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	if len(ids) == 0 {
		return out, nil
	}

	entries, err := r.entries(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Entries = entries[out[i].ID]
	}
	return out, nil
}

func (r reader) Activity(ctx context.Context, rng model.DateRange) (map[int64]store.Activity, error) {
	rows, err := r.q.Query(ctx, `
		SELECT e.account_id,
		       COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'debit'), 0)::text,
		       COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'credit'), 0)::text
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE ($1::date IS NULL OR t.transaction_date >= $1)
		  AND ($2::date IS NULL OR t.transaction_date <= $2)
		GROUP BY e.account_id`, dateArg(rng.Start), dateArg(rng.End))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	out := make(map[int64]store.Activity)
	for rows.Next() {
		var (
			id              int64
			debits, credits string
		)
		if err := rows.Scan(&id, &debits, &credits); err != nil {
			return nil, err
		}
		act, err := activityFrom(debits, credits)
		if err != nil {
			return nil, err
		}
		out[id] = act
	}
	return out, rows.Err()
}

func (r reader) ActivityBefore(ctx context.Context, accountID int64, day time.Time) (store.Activity, error) {
	var debits, credits string
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'debit'), 0)::text,
		       COALESCE(SUM(e.amount) FILTER (WHERE e.entry_type = 'credit'), 0)::text
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = $1 AND t.transaction_date < $2`, accountID, day).Scan(&debits, &credits)
	if err != nil {
		return store.Activity{}, translate(err)
	}
	return activityFrom(debits, credits)
}

func activityFrom(debits, credits string) (store.Activity, error) {
	d, err := parseDecimal(debits)
	if err != nil {
		return store.Activity{}, err
	}
	c, err := parseDecimal(credits)
	if err != nil {
		return store.Activity{}, err
	}
	return store.Activity{Debits: d, Credits: c}, nil
}

func (r reader) LedgerRows(ctx context.Context, accountID int64, rng model.DateRange) ([]store.LedgerRow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT e.id, t.id, t.transaction_number, t.transaction_date, t.description, t.reference,
		       e.amount::text, e.entry_type
		FROM journal_entries e
		JOIN transactions t ON t.id = e.transaction_id
		WHERE e.account_id = $1
		  AND ($2::date IS NULL OR t.transaction_date >= $2)
		  AND ($3::date IS NULL OR t.transaction_date <= $3)
		ORDER BY t.transaction_date, t.id, e.id`, accountID, dateArg(rng.Start), dateArg(rng.End))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []store.LedgerRow
	for rows.Next() {
		var (
			lr     store.LedgerRow
			amount string
			typ    string
		)
		if err := rows.Scan(&lr.EntryID, &lr.TransactionID, &lr.TransactionNumber, &lr.Date, &lr.Description, &lr.Reference, &amount, &typ); err != nil {
			return nil, err
		}
		if lr.Amount, err = parseDecimal(amount); err != nil {
			return nil, err
		}
		lr.EntryType = model.EntryType(typ)
		lr.Date = time.Date(lr.Date.Year(), lr.Date.Month(), lr.Date.Day(), 0, 0, 0, 0, time.UTC)
		out = append(out, lr)
	}
	return out, rows.Err()
}

// pgTx is one unit of work.
type pgTx struct {
	reader
	tx pgx.Tx
}

func (t *pgTx) LockAccounts(ctx context.Context, ids []int64) (map[int64]model.Account, error) {
	return t.accounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
}

func (t *pgTx) LockTransaction(ctx context.Context, id int64) (model.Transaction, error) {
	return t.transaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) MaxTransactionNumber(ctx context.Context) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		SELECT GREATEST(
			(SELECT COALESCE(MAX(transaction_number), 0) FROM transactions),
			(SELECT COALESCE(MAX(value), 0) FROM ledger_counters WHERE name = $1))`, counterTransactionNumber).Scan(&n)
	return n, translate(err)
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *model.Transaction) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (transaction_number, transaction_date, description, reference)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`,
		txn.TransactionNumber, txn.Date, txn.Description, txn.Reference,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO ledger_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = GREATEST(ledger_counters.value, EXCLUDED.value)`,
		counterTransactionNumber, txn.TransactionNumber)
	return translate(err)
}

func (t *pgTx) UpdateTransactionHeader(ctx context.Context, id int64, h model.TransactionHeader) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions
		SET transaction_date = $2, description = $3, reference = $4, updated_at = clock_timestamp()
		WHERE id = $1`, id, h.Date, h.Description, h.Reference)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ResequenceTransactions moves every number out of the way first so the
// unique constraint holds row by row during the reassignment.
func (t *pgTx) ResequenceTransactions(ctx context.Context) (int, error) {
	if _, err := t.tx.Exec(ctx, `LOCK TABLE transactions IN EXCLUSIVE MODE`); err != nil {
		return 0, translate(err)
	}
	if _, err := t.tx.Exec(ctx, `UPDATE transactions SET transaction_number = -transaction_number`); err != nil {
		return 0, translate(err)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE transactions t
		SET transaction_number = r.rn, updated_at = clock_timestamp()
		FROM (SELECT id, ROW_NUMBER() OVER (ORDER BY created_at, id) AS rn FROM transactions) r
		WHERE t.id = r.id`)
	if err != nil {
		return 0, translate(err)
	}
	n := tag.RowsAffected()
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, counterTransactionNumber, n); err != nil {
		return 0, translate(err)
	}
	return int(n), nil
}

func (t *pgTx) InsertEntry(ctx context.Context, e *model.JournalEntry) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO journal_entries (transaction_id, account_id, amount, entry_type)
		VALUES ($1, $2, $3::numeric, $4)
		RETURNING id, created_at`,
		e.TransactionID, e.AccountID, e.Amount.String(), string(e.EntryType),
	).Scan(&e.ID, &e.CreatedAt)
	return translate(err)
}

func (t *pgTx) DeleteEntries(ctx context.Context, transactionID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM journal_entries WHERE transaction_id = $1`, transactionID)
	return translate(err)
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts SET balance = balance + $2::numeric, updated_at = now()
		WHERE id = $1`, accountID, delta.String())
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) MaxAccountCode(ctx context.Context, lo, hi int) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(MAX(code), 0) FROM accounts WHERE code BETWEEN $1 AND $2`, lo, hi).Scan(&n)
	return n, translate(err)
}

func (t *pgTx) InsertAccount(ctx context.Context, a *model.Account) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO accounts (code, name, type, subtype, normal_balance, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, balance::text, created_at, updated_at`,
		a.Code, a.Name, string(a.Type), a.Subtype, string(a.NormalBalance), a.IsActive,
	).Scan(&a.ID, new(string), &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	a.Balance = decimal.Zero
	return nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a model.Account) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET code = $2, name = $3, type = $4, subtype = $5, normal_balance = $6, is_active = $7, updated_at = now()
		WHERE id = $1`,
		a.ID, a.Code, a.Name, string(a.Type), a.Subtype, string(a.NormalBalance), a.IsActive)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*pgTx)(nil)
)
