package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/posting"
	"github.com/cleared-dev/ledger/internal/report"
	"github.com/cleared-dev/ledger/internal/store/memory"
)

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	store   *memory.Store
	handler http.Handler
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	s := memory.New()
	srv := NewServer(
		posting.NewEngine(s, posting.Options{}),
		accounts.NewService(s, accounts.Options{}),
		report.NewAggregator(s, report.Options{}),
		nil,
	)
	return &apiFixture{store: s, handler: srv.Router(Options{})}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (f *apiFixture) createAccount(t *testing.T, name string, typ model.AccountType) model.Account {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/v1/accounts", accounts.NewAccount{Name: name, Type: typ})
	require.Equal(t, http.StatusCreated, code, env.Message)
	return decodeData[model.Account](t, env)
}

func pair(date string, debit, credit model.Account, amount string) model.Draft {
	return model.Draft{
		Date:        date,
		Description: debit.Name + " / " + credit.Name,
		Entries: []model.EntryDraft{
			{AccountID: debit.ID, Amount: decimal.RequireFromString(amount), EntryType: model.Debit},
			{AccountID: credit.ID, Amount: decimal.RequireFromString(amount), EntryType: model.Credit},
		},
	}
}

func TestHealthz(t *testing.T) {
	f := newAPI(t)
	code, env := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", env.Status)
}

func TestTransactions_Lifecycle(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	capital := f.createAccount(t, "Capital", model.AccountTypeCapital)
	rent := f.createAccount(t, "Rent", model.AccountTypeExpense)

	code, env := f.do(t, http.MethodPost, "/v1/transactions", pair("15/01/2024", cash, capital, "1000.00"))
	require.Equal(t, http.StatusCreated, code, env.Message)
	res := decodeData[model.PostingResult](t, env)
	assert.Equal(t, int64(1), res.TransactionNumber)
	assert.True(t, res.TotalDebits.Equal(decimal.RequireFromString("1000")))

	path := fmt.Sprintf("/v1/transactions/%d", res.TransactionID)

	code, env = f.do(t, http.MethodPut, path, pair("16/01/2024", rent, cash, "250.00"))
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = f.do(t, http.MethodPatch, path, model.Metadata{Date: "17/01/2024", Description: "January rent", Reference: "INV-7"})
	require.Equal(t, http.StatusOK, code, env.Message)
	txn := decodeData[model.Transaction](t, env)
	assert.Equal(t, "January rent", txn.Description)

	code, env = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code)
	txn = decodeData[model.Transaction](t, env)
	assert.Len(t, txn.Entries, 2)
	assert.Equal(t, "INV-7", txn.Reference)

	code, env = f.do(t, http.MethodGet, "/v1/transactions?start=01/01/2024&end=31/01/2024&limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]model.Transaction](t, env), 1)

	code, env = f.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", rent.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[model.Account](t, env).Balance.Equal(decimal.RequireFromString("250")))

	code, _ = f.do(t, http.MethodDelete, path, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "error", env.Status)

	code, env = f.do(t, http.MethodGet, "/v1/transactions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(env.Data))
}

func TestTransactions_ImbalanceIs400(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	sales := f.createAccount(t, "Sales", model.AccountTypeRevenue)

	d := pair("15/01/2024", cash, sales, "1000.00")
	d.Entries[1].Amount = decimal.RequireFromString("900.00")

	code, env := f.do(t, http.MethodPost, "/v1/transactions", d)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "Debits (1000.00) do not equal Credits (900.00)")
	data := decodeData[validationData](t, env)
	assert.Equal(t, "1000.00", data.TotalDebits)
	assert.Equal(t, "900.00", data.TotalCredits)
}

func TestTransactions_BadInput(t *testing.T) {
	f := newAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"non-numeric id", http.MethodGet, "/v1/transactions/abc", http.StatusBadRequest},
		{"bad date", http.MethodGet, "/v1/transactions?start=2024-13-45", http.StatusBadRequest},
		{"negative limit", http.MethodGet, "/v1/transactions?limit=-1", http.StatusBadRequest},
		{"delete missing", http.MethodDelete, "/v1/transactions/99", http.StatusNotFound},
		{"missing account", http.MethodGet, "/v1/accounts/42", http.StatusNotFound},
		{"missing ledger", http.MethodGet, "/v1/accounts/42/ledger", http.StatusNotFound},
		{"bad account type", http.MethodGet, "/v1/accounts?type=gadget", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := f.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, "error", env.Status)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", bytes.NewBufferString(`{"date":`))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCapitalisedTypeNames(t *testing.T) {
	f := newAPI(t)

	code, env := f.do(t, http.MethodPost, "/v1/accounts", json.RawMessage(`{"name":"Cash","type":"Asset"}`))
	require.Equal(t, http.StatusCreated, code, env.Message)
	cash := decodeData[model.Account](t, env)
	assert.Equal(t, model.AccountTypeAsset, cash.Type)
	assert.Equal(t, model.Debit, cash.NormalBalance)

	code, env = f.do(t, http.MethodPost, "/v1/accounts", json.RawMessage(`{"name":"Capital","type":"Capital","normal_balance":"Credit"}`))
	require.Equal(t, http.StatusCreated, code, env.Message)
	capital := decodeData[model.Account](t, env)

	body := fmt.Sprintf(`{"date":"01/01/2024","description":"Opening","entries":[`+
		`{"account_id":%d,"amount":"1000.00","entry_type":"Debit"},`+
		`{"account_id":%d,"amount":"1000.00","entry_type":"CREDIT"}]}`, cash.ID, capital.ID)
	code, env = f.do(t, http.MethodPost, "/v1/transactions", json.RawMessage(body))
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = f.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", cash.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[model.Account](t, env).Balance.Equal(decimal.RequireFromString("1000")))

	code, env = f.do(t, http.MethodPost, "/v1/accounts", json.RawMessage(`{"name":"Gadget","type":"Gizmo"}`))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "unknown account type")
}

func TestAccounts_ConflictWhenReferenced(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	capital := f.createAccount(t, "Capital", model.AccountTypeCapital)
	code, _ := f.do(t, http.MethodPost, "/v1/transactions", pair("01/02/2024", cash, capital, "10.00"))
	require.Equal(t, http.StatusCreated, code)

	code, env := f.do(t, http.MethodDelete, fmt.Sprintf("/v1/accounts/%d", cash.ID), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, env.Message, "journal entries")

	name := "Petty Cash"
	code, _ = f.do(t, http.MethodPatch, fmt.Sprintf("/v1/accounts/%d", cash.ID), accounts.Changes{Name: &name})
	assert.Equal(t, http.StatusConflict, code)

	spare := f.createAccount(t, "Spare", model.AccountTypeAsset)
	code, env = f.do(t, http.MethodPatch, fmt.Sprintf("/v1/accounts/%d", spare.ID), accounts.Changes{Name: &name})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Petty Cash", decodeData[model.Account](t, env).Name)

	code, _ = f.do(t, http.MethodDelete, fmt.Sprintf("/v1/accounts/%d", spare.ID), nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodGet, "/v1/accounts?active=true", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]model.Account](t, env), 2)
}

func TestReports(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	capital := f.createAccount(t, "Capital", model.AccountTypeCapital)
	sales := f.createAccount(t, "Sales", model.AccountTypeRevenue)

	for _, d := range []model.Draft{
		pair("01/01/2024", cash, capital, "1000.00"),
		pair("15/01/2024", cash, sales, "500.00"),
	} {
		code, env := f.do(t, http.MethodPost, "/v1/transactions", d)
		require.Equal(t, http.StatusCreated, code, env.Message)
	}

	code, env := f.do(t, http.MethodGet, "/v1/reports/balance-sheet", nil)
	require.Equal(t, http.StatusOK, code)
	bs := decodeData[report.BalanceSheet](t, env)
	assert.True(t, bs.TotalAssets.Equal(decimal.RequireFromString("1500")))
	assert.True(t, bs.Balanced)

	code, env = f.do(t, http.MethodGet, "/v1/reports/income-statement?start=10/01/2024&end=31/01/2024", nil)
	require.Equal(t, http.StatusOK, code)
	is := decodeData[report.IncomeStatement](t, env)
	assert.True(t, is.NetIncome.Equal(decimal.RequireFromString("500")))
	require.NotNil(t, is.Period)
	assert.Equal(t, "10/01/2024", is.Period.Start)

	code, env = f.do(t, http.MethodGet, "/v1/reports/equation", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[report.EquationCheck](t, env).Balanced)

	code, env = f.do(t, http.MethodGet, "/v1/reports/verify", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, decodeData[report.Verification](t, env).OK)

	code, env = f.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d/ledger?start=10/01/2024", cash.ID), nil)
	require.Equal(t, http.StatusOK, code)
	l := decodeData[report.Ledger](t, env)
	assert.True(t, l.OpeningBalance.Equal(decimal.RequireFromString("1000")))
	assert.True(t, l.ClosingBalance.Equal(decimal.RequireFromString("1500")))
	assert.Len(t, l.Lines, 1)
}

func TestResequence(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	capital := f.createAccount(t, "Capital", model.AccountTypeCapital)
	var ids []int64
	for i := 0; i < 3; i++ {
		code, env := f.do(t, http.MethodPost, "/v1/transactions", pair("01/03/2024", cash, capital, "1.00"))
		require.Equal(t, http.StatusCreated, code)
		ids = append(ids, decodeData[model.PostingResult](t, env).TransactionID)
	}
	code, _ := f.do(t, http.MethodDelete, fmt.Sprintf("/v1/transactions/%d", ids[0]), nil)
	require.Equal(t, http.StatusOK, code)

	code, env := f.do(t, http.MethodPost, "/v1/transactions/resequence", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]int{"resequenced": 2}, decodeData[map[string]int](t, env))

	code, env = f.do(t, http.MethodGet, fmt.Sprintf("/v1/transactions/%d", ids[1]), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, int64(1), decodeData[model.Transaction](t, env).TransactionNumber)
}

func TestStoreFailureIsGeneric500(t *testing.T) {
	f := newAPI(t)
	cash := f.createAccount(t, "Cash", model.AccountTypeAsset)
	capital := f.createAccount(t, "Capital", model.AccountTypeCapital)

	f.store.SetFault(func(op string) error {
		if op == "insert entry" {
			return errors.New("disk on fire")
		}
		return nil
	})
	code, env := f.do(t, http.MethodPost, "/v1/transactions", pair("01/01/2024", cash, capital, "5.00"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", env.Message)
	assert.NotContains(t, env.Message, "disk on fire")
}
