// Package report derives financial statements from the journal store. All-time
// statements read cached account balances; period statements and account
// ledgers rescan the journal.
package report

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/logging"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// Cache keys for the all-time statements.
const (
	KeyBalanceSheet    = "balance-sheet"
	KeyIncomeStatement = "income-statement"
)

// Cache stores all-time statements between postings. Get reports the
// generation it looked in; Set writes only into that generation, so a statement
// built before an invalidation is never served after it.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (gen int64, ok bool, err error)
	Set(ctx context.Context, gen int64, key string, v any) error
	Invalidate(ctx context.Context) error
}

// Period is the inclusive span a statement covers. Nil on all-time statements.
type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func periodOf(r model.DateRange) *Period {
	p := &Period{}
	if !r.Start.IsZero() {
		p.Start = model.FormatDate(r.Start)
	}
	if !r.End.IsZero() {
		p.End = model.FormatDate(r.End)
	}
	return p
}

// AccountBalance is one account line on a statement. Balance is in the
// account's own polarity.
type AccountBalance struct {
	AccountID     int64           `json:"account_id"`
	Code          int             `json:"code"`
	Name          string          `json:"name"`
	Subtype       string          `json:"subtype,omitempty"`
	NormalBalance model.EntryType `json:"normal_balance"`
	Balance       decimal.Decimal `json:"balance"`
}

// BalanceSheet groups asset, liability and capital accounts.
type BalanceSheet struct {
	Period                     *Period          `json:"period,omitempty"`
	Assets                     []AccountBalance `json:"assets"`
	Liabilities                []AccountBalance `json:"liabilities"`
	Capital                    []AccountBalance `json:"capital"`
	TotalAssets                decimal.Decimal  `json:"total_assets"`
	TotalLiabilities           decimal.Decimal  `json:"total_liabilities"`
	TotalCapital               decimal.Decimal  `json:"total_capital"`
	NetIncome                  decimal.Decimal  `json:"net_income"`
	TotalLiabilitiesAndCapital decimal.Decimal  `json:"total_liabilities_and_capital"`
	Balanced                   bool             `json:"balanced"`
}

// IncomeStatement groups revenue and expense accounts.
type IncomeStatement struct {
	Period        *Period          `json:"period,omitempty"`
	Revenue       []AccountBalance `json:"revenue"`
	Expenses      []AccountBalance `json:"expenses"`
	TotalRevenue  decimal.Decimal  `json:"total_revenue"`
	TotalExpenses decimal.Decimal  `json:"total_expenses"`
	NetIncome     decimal.Decimal  `json:"net_income"`
}

// EquationCheck compares assets with liabilities plus capital including net
// income.
type EquationCheck struct {
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalCapital     decimal.Decimal `json:"total_capital"`
	NetIncome        decimal.Decimal `json:"net_income"`
	Difference       decimal.Decimal `json:"difference"`
	Balanced         bool            `json:"balanced"`
}

// Drift is an account whose cached balance disagrees with its journal.
type Drift struct {
	AccountID int64           `json:"account_id"`
	Code      int             `json:"code"`
	Name      string          `json:"name"`
	Cached    decimal.Decimal `json:"cached"`
	Computed  decimal.Decimal `json:"computed"`
}

// Verification is the result of VerifyBalances.
type Verification struct {
	AccountsChecked int     `json:"accounts_checked"`
	Drifts          []Drift `json:"drifts"`
	OK              bool    `json:"ok"`
}

// Options configures an Aggregator.
type Options struct {
	Logger *zap.Logger
	Cache  Cache
}

// Aggregator is the Report Aggregator. It never writes.
type Aggregator struct {
	store store.Reader
	cache Cache
	log   *zap.Logger
}

// NewAggregator creates an Aggregator reading from r.
func NewAggregator(r store.Reader, opts Options) *Aggregator {
	return &Aggregator{store: r, cache: opts.Cache, log: logging.OrNop(opts.Logger)}
}

// BalanceSheet builds the all-time balance sheet from cached balances.
func (a *Aggregator) BalanceSheet(ctx context.Context) (BalanceSheet, error) {
	var bs BalanceSheet
	fill, hit := a.cached(ctx, KeyBalanceSheet, &bs)
	if hit {
		return bs, nil
	}
	accounts, err := a.activeAccounts(ctx)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs = buildBalanceSheet(accounts, cachedBalance)
	fill(bs)
	return bs, nil
}

// BalanceSheetForPeriod builds the balance sheet from journal activity dated
// inside r. Accounts without activity appear with a zero balance.
func (a *Aggregator) BalanceSheetForPeriod(ctx context.Context, r model.DateRange) (BalanceSheet, error) {
	accounts, balance, err := a.periodBalances(ctx, r)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := buildBalanceSheet(accounts, balance)
	bs.Period = periodOf(r)
	return bs, nil
}

// IncomeStatement builds the all-time income statement from cached balances.
func (a *Aggregator) IncomeStatement(ctx context.Context) (IncomeStatement, error) {
	var is IncomeStatement
	fill, hit := a.cached(ctx, KeyIncomeStatement, &is)
	if hit {
		return is, nil
	}
	accounts, err := a.activeAccounts(ctx)
	if err != nil {
		return IncomeStatement{}, err
	}
	is = buildIncomeStatement(accounts, cachedBalance)
	fill(is)
	return is, nil
}

// IncomeStatementForPeriod builds the income statement from journal activity
// dated inside r.
func (a *Aggregator) IncomeStatementForPeriod(ctx context.Context, r model.DateRange) (IncomeStatement, error) {
	accounts, balance, err := a.periodBalances(ctx, r)
	if err != nil {
		return IncomeStatement{}, err
	}
	is := buildIncomeStatement(accounts, balance)
	is.Period = periodOf(r)
	return is, nil
}

// CheckEquation tests assets = liabilities + capital + net income within the
// journal tolerance.
func (a *Aggregator) CheckEquation(ctx context.Context) (EquationCheck, error) {
	bs, err := a.BalanceSheet(ctx)
	if err != nil {
		return EquationCheck{}, err
	}
	diff := bs.TotalAssets.Sub(bs.TotalLiabilitiesAndCapital)
	return EquationCheck{
		TotalAssets:      bs.TotalAssets,
		TotalLiabilities: bs.TotalLiabilities,
		TotalCapital:     bs.TotalCapital,
		NetIncome:        bs.NetIncome,
		Difference:       diff,
		Balanced:         diff.Abs().LessThan(journal.Tolerance),
	}, nil
}

// VerifyBalances recomputes every account's balance from the full journal and
// reports accounts whose cache has drifted.
func (a *Aggregator) VerifyBalances(ctx context.Context) (Verification, error) {
	accounts, err := a.store.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return Verification{}, &model.StoreError{Op: "list accounts", Err: err}
	}
	activity, err := a.store.Activity(ctx, model.DateRange{})
	if err != nil {
		return Verification{}, &model.StoreError{Op: "read journal activity", Err: err}
	}

	v := Verification{AccountsChecked: len(accounts), Drifts: []Drift{}}
	for _, acct := range accounts {
		act := activity[acct.ID]
		computed := model.BalanceFrom(acct.NormalBalance, act.Debits, act.Credits)
		if !computed.Equal(acct.Balance) {
			v.Drifts = append(v.Drifts, Drift{AccountID: acct.ID, Code: acct.Code, Name: acct.Name, Cached: acct.Balance, Computed: computed})
		}
	}
	v.OK = len(v.Drifts) == 0
	if !v.OK {
		a.log.Warn("balance drift detected", zap.Int("accounts", len(v.Drifts)))
	}
	return v, nil
}

func (a *Aggregator) activeAccounts(ctx context.Context) ([]model.Account, error) {
	accounts, err := a.store.ListAccounts(ctx, store.AccountFilter{ActiveOnly: true})
	if err != nil {
		return nil, &model.StoreError{Op: "list accounts", Err: err}
	}
	return accounts, nil
}

func (a *Aggregator) periodBalances(ctx context.Context, r model.DateRange) ([]model.Account, balanceFunc, error) {
	accounts, err := a.activeAccounts(ctx)
	if err != nil {
		return nil, nil, err
	}
	activity, err := a.store.Activity(ctx, r)
	if err != nil {
		return nil, nil, &model.StoreError{Op: "read journal activity", Err: err}
	}
	return accounts, func(acct model.Account) decimal.Decimal {
		act := activity[acct.ID]
		return model.BalanceFrom(acct.NormalBalance, act.Debits, act.Credits)
	}, nil
}

// cached looks key up in the cache. On a miss it returns a fill function that
// stores the freshly built value under the generation the lookup saw.
func (a *Aggregator) cached(ctx context.Context, key string, dst any) (fill func(any), hit bool) {
	skip := func(any) {}
	if a.cache == nil {
		return skip, false
	}
	gen, ok, err := a.cache.Get(ctx, key, dst)
	if err != nil {
		a.log.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return skip, false
	}
	if ok {
		return skip, true
	}
	return func(v any) {
		if err := a.cache.Set(ctx, gen, key, v); err != nil {
			a.log.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
		}
	}, false
}

// balanceFunc yields the balance a statement shows for an account.
type balanceFunc func(model.Account) decimal.Decimal

func cachedBalance(a model.Account) decimal.Decimal { return a.Balance }

// group collects accounts of one type and totals them. An account whose normal
// side differs from its type's natural side (Drawings, Accumulated
// Depreciation) reduces the total.
func group(accounts []model.Account, t model.AccountType, balance balanceFunc) ([]AccountBalance, decimal.Decimal) {
	lines := []AccountBalance{}
	total := decimal.Zero
	for _, acct := range accounts {
		if acct.Type != t {
			continue
		}
		b := balance(acct)
		lines = append(lines, AccountBalance{
			AccountID:     acct.ID,
			Code:          acct.Code,
			Name:          acct.Name,
			Subtype:       acct.Subtype,
			NormalBalance: acct.NormalBalance,
			Balance:       b,
		})
		if acct.NormalBalance == t.NaturalBalance() {
			total = total.Add(b)
		} else {
			total = total.Sub(b)
		}
	}
	return lines, total
}

func buildIncomeStatement(accounts []model.Account, balance balanceFunc) IncomeStatement {
	var is IncomeStatement
	is.Revenue, is.TotalRevenue = group(accounts, model.AccountTypeRevenue, balance)
	is.Expenses, is.TotalExpenses = group(accounts, model.AccountTypeExpense, balance)
	is.NetIncome = is.TotalRevenue.Sub(is.TotalExpenses)
	return is
}

func buildBalanceSheet(accounts []model.Account, balance balanceFunc) BalanceSheet {
	var bs BalanceSheet
	bs.Assets, bs.TotalAssets = group(accounts, model.AccountTypeAsset, balance)
	bs.Liabilities, bs.TotalLiabilities = group(accounts, model.AccountTypeLiability, balance)
	bs.Capital, bs.TotalCapital = group(accounts, model.AccountTypeCapital, balance)
	bs.NetIncome = buildIncomeStatement(accounts, balance).NetIncome
	bs.TotalLiabilitiesAndCapital = bs.TotalLiabilities.Add(bs.TotalCapital).Add(bs.NetIncome)
	bs.Balanced = bs.TotalAssets.Sub(bs.TotalLiabilitiesAndCapital).Abs().LessThan(journal.Tolerance)
	return bs
}

func notFoundOr(err error, entity string, id any, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return &model.NotFoundError{Entity: entity, ID: id}
	}
	return &model.StoreError{Op: op, Err: err}
}
