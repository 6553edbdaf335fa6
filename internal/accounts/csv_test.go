package accounts

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
)

func TestRoundTrip(t *testing.T) {
	accounts := []model.Account{
		{Code: 1010, Name: "Cash", Type: model.AccountTypeAsset, Subtype: "current", NormalBalance: model.Debit, Balance: decimal.RequireFromString("12.5"), IsActive: true},
		{Code: 3020, Name: "Drawings, owner", Type: model.AccountTypeCapital, NormalBalance: model.Debit},
	}

	var buf bytes.Buffer
	err := WriteAccounts(&buf, accounts)
	require.NoError(t, err)

	got, err := ReadAccounts(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, accounts[0].Code, got[0].Code)
	assert.Equal(t, accounts[0].Name, got[0].Name)
	assert.Equal(t, accounts[0].Subtype, got[0].Subtype)
	assert.True(t, got[0].Balance.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, got[0].IsActive)

	assert.Equal(t, "Drawings, owner", got[1].Name)
	assert.Equal(t, model.Debit, got[1].NormalBalance)
	assert.False(t, got[1].IsActive)
}

func TestReadAccounts_Defaults(t *testing.T) {
	data := Header + "\n2010,Loan,liability,,,,\n3010,Owner,equity,,,,\n"
	got, err := ReadAccounts(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.Credit, got[0].NormalBalance)
	assert.True(t, got[0].Balance.IsZero())
	assert.True(t, got[0].IsActive)
	assert.Equal(t, model.AccountTypeCapital, got[1].Type)
}

func TestReadAccounts_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad header", "id,name,type,subtype,normal,balance,active\n", "unexpected header"},
		{"bad code", Header + "\nabc,Cash,asset,,,,\n", "row 2"},
		{"bad type", Header + "\n1010,Cash,stock,,,,\n", "unknown account type"},
		{"bad normal", Header + "\n1010,Cash,asset,,sideways,,\n", "unknown entry type"},
		{"bad balance", Header + "\n1010,Cash,asset,,,lots,\n", "parsing balance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadAccounts(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReadAccounts_Empty(t *testing.T) {
	got, err := ReadAccounts(strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDefaultChart(t *testing.T) {
	chart := DefaultChart("sole_proprietor")
	require.NotEmpty(t, chart)

	codes := make(map[int]model.Account)
	for _, acct := range chart {
		codes[acct.Code] = acct
	}
	assert.Contains(t, codes, 1010, "expected Cash (1010)")
	assert.Contains(t, codes, 5020, "expected Software & SaaS (5020)")

	drawings, ok := codes[3020]
	require.True(t, ok, "expected Drawings (3020)")
	assert.Equal(t, model.AccountTypeCapital, drawings.Type)
	assert.Equal(t, model.Debit, drawings.NormalBalance)

	for _, acct := range chart {
		assert.NotEmpty(t, acct.Name, "account %d missing name", acct.Code)
		assert.True(t, acct.NormalBalance.Valid(), "account %d missing normal balance", acct.Code)
	}
}

func TestDefaultChart_UnknownEntityType(t *testing.T) {
	// Unknown entity types fall back to the sole proprietor chart.
	assert.Equal(t, DefaultChart("sole_proprietor"), DefaultChart("unknown_type"))
}
