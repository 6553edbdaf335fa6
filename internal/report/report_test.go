package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/posting"
	"github.com/cleared-dev/ledger/internal/store"
	"github.com/cleared-dev/ledger/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type books struct {
	store    *memory.Store
	engine   *posting.Engine
	agg      *Aggregator
	accounts map[string]model.Account
}

func newBooks(t *testing.T, cache Cache) *books {
	t.Helper()
	s := memory.New()
	b := &books{store: s, accounts: map[string]model.Account{}}
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, a := range []model.Account{
			{Code: 1010, Name: "Cash", Type: model.AccountTypeAsset, NormalBalance: model.Debit, IsActive: true},
			{Code: 1520, Name: "Accumulated Depreciation", Type: model.AccountTypeAsset, NormalBalance: model.Credit, IsActive: true},
			{Code: 2010, Name: "Loan", Type: model.AccountTypeLiability, NormalBalance: model.Credit, IsActive: true},
			{Code: 3010, Name: "Capital", Type: model.AccountTypeCapital, NormalBalance: model.Credit, IsActive: true},
			{Code: 3020, Name: "Drawings", Type: model.AccountTypeCapital, NormalBalance: model.Debit, IsActive: true},
			{Code: 4010, Name: "Sales", Type: model.AccountTypeRevenue, NormalBalance: model.Credit, IsActive: true},
			{Code: 5010, Name: "Rent", Type: model.AccountTypeExpense, NormalBalance: model.Debit, IsActive: true},
			{Code: 5020, Name: "Depreciation", Type: model.AccountTypeExpense, NormalBalance: model.Debit, IsActive: true},
		} {
			a := a
			if err := tx.InsertAccount(ctx, &a); err != nil {
				return err
			}
			b.accounts[a.Name] = a
		}
		return nil
	})
	require.NoError(t, err)

	var inv posting.Invalidator
	if cache != nil {
		inv = cache
	}
	b.engine = posting.NewEngine(s, posting.Options{Invalidator: inv})
	b.agg = NewAggregator(s, Options{Cache: cache})
	return b
}

func (b *books) post(t *testing.T, date, debit, credit, amount string) model.PostingResult {
	t.Helper()
	res, err := b.engine.CreatePosting(context.Background(), model.Draft{
		Date:        date,
		Description: debit + " / " + credit,
		Entries: []model.EntryDraft{
			{AccountID: b.accounts[debit].ID, Amount: dec(amount), EntryType: model.Debit},
			{AccountID: b.accounts[credit].ID, Amount: dec(amount), EntryType: model.Credit},
		},
	})
	require.NoError(t, err)
	return res
}

func rng(t *testing.T, start, end string) model.DateRange {
	t.Helper()
	r, err := model.ParseDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestBalanceSheet_OwnerInvestment(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")

	bs, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.True(t, bs.TotalAssets.Equal(dec("1000")))
	assert.True(t, bs.TotalCapital.Equal(dec("1000")))
	assert.True(t, bs.TotalLiabilities.IsZero())
	assert.True(t, bs.Balanced)
	assert.Nil(t, bs.Period)

	eq, err := b.agg.CheckEquation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.00", eq.Difference.StringFixed(2))
	assert.True(t, eq.Balanced)
}

func TestBalanceSheet_ContraAccountsSubtract(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")
	b.post(t, "02/01/2024", "Drawings", "Cash", "200")
	b.post(t, "03/01/2024", "Depreciation", "Accumulated Depreciation", "50")
	b.post(t, "04/01/2024", "Cash", "Sales", "300")
	b.post(t, "05/01/2024", "Rent", "Cash", "100")

	bs, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)

	// Cash 1000 - 200 + 300 - 100 = 1000, less 50 accumulated depreciation.
	assert.True(t, bs.TotalAssets.Equal(dec("950")), bs.TotalAssets.String())
	assert.True(t, bs.TotalCapital.Equal(dec("800")), bs.TotalCapital.String())
	assert.True(t, bs.NetIncome.Equal(dec("150")), bs.NetIncome.String())
	assert.True(t, bs.TotalLiabilitiesAndCapital.Equal(dec("950")))
	assert.True(t, bs.Balanced)
	assert.Len(t, bs.Capital, 2)
}

func TestIncomeStatement_AllTime(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "10/01/2024", "Cash", "Sales", "1200.50")
	b.post(t, "11/01/2024", "Rent", "Cash", "400.25")

	is, err := b.agg.IncomeStatement(context.Background())
	require.NoError(t, err)
	assert.True(t, is.TotalRevenue.Equal(dec("1200.50")))
	assert.True(t, is.TotalExpenses.Equal(dec("400.25")))
	assert.True(t, is.NetIncome.Equal(dec("800.25")))
	assert.Len(t, is.Revenue, 1)
	assert.Len(t, is.Expenses, 2)
}

func TestIncomeStatementForPeriod_ZeroActivityAccountsListed(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "15/01/2024", "Cash", "Sales", "100")
	b.post(t, "15/02/2024", "Cash", "Sales", "40")
	b.post(t, "20/02/2024", "Rent", "Cash", "10")

	is, err := b.agg.IncomeStatementForPeriod(context.Background(), rng(t, "01/02/2024", "29/02/2024"))
	require.NoError(t, err)
	assert.True(t, is.TotalRevenue.Equal(dec("40")))
	assert.True(t, is.TotalExpenses.Equal(dec("10")))
	assert.True(t, is.NetIncome.Equal(dec("30")))
	require.NotNil(t, is.Period)
	assert.Equal(t, "01/02/2024", is.Period.Start)

	require.Len(t, is.Expenses, 2)
	assert.Equal(t, "Depreciation", is.Expenses[1].Name)
	assert.True(t, is.Expenses[1].Balance.IsZero())
}

func TestBalanceSheetForPeriod_InclusiveBounds(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "31/01/2024", "Cash", "Loan", "1")
	b.post(t, "01/02/2024", "Cash", "Loan", "10")
	b.post(t, "29/02/2024", "Cash", "Loan", "100")
	b.post(t, "01/03/2024", "Cash", "Loan", "1000")

	bs, err := b.agg.BalanceSheetForPeriod(context.Background(), rng(t, "01/02/2024", "29/02/2024"))
	require.NoError(t, err)
	assert.True(t, bs.TotalAssets.Equal(dec("110")))
	assert.True(t, bs.TotalLiabilities.Equal(dec("110")))

	all, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.True(t, all.TotalAssets.Equal(dec("1111")))
}

func TestAccountLedger_OpeningRunningClosing(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")
	b.post(t, "15/02/2024", "Cash", "Capital", "500")

	l, err := b.agg.AccountLedger(context.Background(), b.accounts["Cash"].ID, rng(t, "01/02/2024", "28/02/2024"))
	require.NoError(t, err)

	assert.True(t, l.OpeningBalance.Equal(dec("1000")))
	require.Len(t, l.Lines, 1)
	assert.True(t, l.Lines[0].RunningBalance.Equal(dec("1500")))
	assert.True(t, l.Lines[0].BalanceEffect.Equal(dec("500")))
	assert.True(t, l.ClosingBalance.Equal(dec("1500")))
	assert.Equal(t, 1, l.Summary.TransactionCount)
	assert.True(t, l.Summary.TotalDebits.Equal(dec("500")))
	assert.True(t, l.Summary.TotalCredits.IsZero())
}

func TestAccountLedger_RunningBalanceFold(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "05/03/2024", "Cash", "Sales", "70")
	b.post(t, "01/03/2024", "Cash", "Capital", "100")
	b.post(t, "03/03/2024", "Rent", "Cash", "30")
	b.post(t, "03/03/2024", "Drawings", "Cash", "5")

	l, err := b.agg.AccountLedger(context.Background(), b.accounts["Cash"].ID, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, l.Lines, 4)

	assert.True(t, l.OpeningBalance.IsZero())
	prev := l.OpeningBalance
	for i, line := range l.Lines {
		assert.True(t, line.RunningBalance.Equal(prev.Add(line.BalanceEffect)), "line %d", i)
		prev = line.RunningBalance
		if i > 0 {
			assert.False(t, line.Date.Before(l.Lines[i-1].Date))
		}
	}
	assert.True(t, l.ClosingBalance.Equal(prev))
	assert.True(t, l.ClosingBalance.Equal(dec("135")))
	assert.True(t, l.Lines[1].TransactionID < l.Lines[2].TransactionID, "same-day lines ordered by transaction id")
	assert.True(t, l.Summary.NetChange.Equal(dec("135")))
}

func TestAccountLedger_CreditNormalAccount(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Sales", "80")
	b.post(t, "02/01/2024", "Sales", "Cash", "30")

	l, err := b.agg.AccountLedger(context.Background(), b.accounts["Sales"].ID, model.DateRange{})
	require.NoError(t, err)
	require.Len(t, l.Lines, 2)
	assert.True(t, l.Lines[0].BalanceEffect.Equal(dec("80")))
	assert.True(t, l.Lines[1].BalanceEffect.Equal(dec("-30")))
	assert.True(t, l.ClosingBalance.Equal(dec("50")))
}

func TestAccountLedger_NotFound(t *testing.T) {
	b := newBooks(t, nil)
	_, err := b.agg.AccountLedger(context.Background(), 404, model.DateRange{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestVerifyBalances_DetectsDrift(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")

	v, err := b.agg.VerifyBalances(context.Background())
	require.NoError(t, err)
	assert.True(t, v.OK)
	assert.Equal(t, len(b.accounts), v.AccountsChecked)

	require.NoError(t, b.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.AdjustBalance(ctx, b.accounts["Cash"].ID, dec("0.01"))
	}))

	v, err = b.agg.VerifyBalances(context.Background())
	require.NoError(t, err)
	assert.False(t, v.OK)
	require.Len(t, v.Drifts, 1)
	assert.True(t, v.Drifts[0].Cached.Equal(dec("1000.01")))
	assert.True(t, v.Drifts[0].Computed.Equal(dec("1000")))
}

type mapCache struct {
	mu     sync.Mutex
	gen    int64
	data   map[string][]byte
	hits   int
	resets int
}

func (c *mapCache) entry(gen int64, key string) string {
	return fmt.Sprintf("%d:%s", gen, key)
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[c.entry(c.gen, key)]
	if !ok {
		return c.gen, false, nil
	}
	c.hits++
	return c.gen, true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, gen int64, key string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[c.entry(gen, key)] = raw
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.resets++
	return nil
}

func TestBalanceSheet_CachedUntilPosting(t *testing.T) {
	cache := &mapCache{}
	b := newBooks(t, cache)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")

	first, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	second, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.True(t, first.TotalAssets.Equal(second.TotalAssets))

	b.post(t, "02/01/2024", "Cash", "Capital", "1")
	third, err := b.agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.True(t, third.TotalAssets.Equal(dec("1001")))

	_, err = b.agg.BalanceSheetForPeriod(context.Background(), rng(t, "01/01/2024", "31/01/2024"))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits, "period reports bypass the cache")
}

// postingReader commits a posting right after the aggregator has read the
// accounts, before it stores the statement it built from them.
type postingReader struct {
	store.Reader
	once  sync.Once
	after func()
}

func (r *postingReader) ListAccounts(ctx context.Context, f store.AccountFilter) ([]model.Account, error) {
	accounts, err := r.Reader.ListAccounts(ctx, f)
	r.once.Do(r.after)
	return accounts, err
}

func TestStatements_PostingDuringFillIsNotMasked(t *testing.T) {
	cache := &mapCache{}
	b := newBooks(t, cache)

	reader := &postingReader{Reader: b.store, after: func() {
		b.post(t, "01/01/2024", "Cash", "Capital", "1000")
	}}
	agg := NewAggregator(reader, Options{Cache: cache})

	built, err := agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.True(t, built.TotalAssets.IsZero(), "built from accounts read before the posting")
	assert.Equal(t, 1, cache.resets)

	bs, err := agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.True(t, bs.TotalAssets.Equal(dec("1000")))
	assert.True(t, bs.Balanced)

	eq, err := agg.CheckEquation(context.Background())
	require.NoError(t, err)
	assert.True(t, eq.TotalAssets.Equal(dec("1000")))

	// The fresh statement is cached under the new generation.
	_, err = agg.BalanceSheet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cache.hits)
}

func TestWriteLedgerCSV(t *testing.T) {
	b := newBooks(t, nil)
	b.post(t, "01/01/2024", "Cash", "Capital", "1000")
	b.post(t, "15/02/2024", "Cash", "Capital", "500")

	l, err := b.agg.AccountLedger(context.Background(), b.accounts["Cash"].ID, rng(t, "01/02/2024", "28/02/2024"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, l))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, LedgerHeader, lines[0])
	assert.Equal(t, "01/02/2024,,Opening balance,,,,,1000.00", lines[1])
	assert.Equal(t, "15/02/2024,TXN-000002,Cash / Capital,,500.00,,500.00,1500.00", lines[2])
	assert.Equal(t, "28/02/2024,,Closing balance,,,,,1500.00", lines[3])
}
