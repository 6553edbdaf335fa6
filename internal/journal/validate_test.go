package journal

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/ledger/internal/model"
)

// mockAccounts implements AccountChecker for testing.
type mockAccounts struct {
	ids map[int64]bool
}

func (m *mockAccounts) Exists(id int64) bool {
	return m.ids[id]
}

func newMockAccounts(ids ...int64) *mockAccounts {
	m := &mockAccounts{ids: make(map[int64]bool)}
	for _, id := range ids {
		m.ids[id] = true
	}
	return m
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func balancedDraft(debitAcct, creditAcct int64, amount string) model.Draft {
	return model.Draft{
		Date:        "01/01/2024",
		Description: "Owner investment",
		Entries: []model.EntryDraft{
			{AccountID: debitAcct, Amount: dec(amount), EntryType: model.Debit},
			{AccountID: creditAcct, Amount: dec(amount), EntryType: model.Credit},
		},
	}
}

func hasProblem(t *testing.T, err error, field string) bool {
	t.Helper()
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	for _, p := range verr.Problems {
		if p.Field == field {
			return true
		}
	}
	return false
}

var defaultAccounts = newMockAccounts(1, 2, 3, 4)

func TestValidate_Balanced(t *testing.T) {
	v, err := Validate(balancedDraft(1, 2, "1000.00"), defaultAccounts)
	require.NoError(t, err)
	assert.True(t, v.TotalDebits.Equal(dec("1000")))
	assert.True(t, v.TotalCredits.Equal(dec("1000")))
	assert.Equal(t, 2024, v.Date.Year())
	assert.Len(t, v.Entries, 2)
}

func TestValidate_Unbalanced(t *testing.T) {
	d := balancedDraft(1, 2, "1000.00")
	d.Entries[1].Amount = dec("900.00")

	_, err := Validate(d, defaultAccounts)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)

	var imb *model.ImbalanceError
	require.ErrorAs(t, err, &imb)
	assert.True(t, imb.TotalDebits.Equal(dec("1000")))
	assert.True(t, imb.TotalCredits.Equal(dec("900")))
	assert.Contains(t, err.Error(), "Debits (1000.00) do not equal Credits (900.00)")
}

func TestValidate_WithinTolerance(t *testing.T) {
	// Two-decimal amounts can only differ by 0.01 or more, so any accepted
	// draft is exactly balanced; a 0.01 gap must be rejected.
	d := balancedDraft(1, 2, "10.00")
	d.Entries[1].Amount = dec("9.99")
	_, err := Validate(d, defaultAccounts)
	var imb *model.ImbalanceError
	assert.ErrorAs(t, err, &imb)
}

func TestValidate_MissingDate(t *testing.T) {
	d := balancedDraft(1, 2, "5.00")
	d.Date = ""
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "date"))
}

func TestValidate_AmbiguousDate(t *testing.T) {
	for _, bad := range []string{"2024/01/01", "01-02-2024", "31/04/2024", "yesterday"} {
		d := balancedDraft(1, 2, "5.00")
		d.Date = bad
		_, err := Validate(d, defaultAccounts)
		assert.True(t, hasProblem(t, err, "date"), "date %q should be rejected", bad)
	}
}

func TestValidate_Description(t *testing.T) {
	d := balancedDraft(1, 2, "5.00")
	d.Description = "   "
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "description"))

	d.Description = strings.Repeat("x", MaxDescriptionLength)
	_, err = Validate(d, defaultAccounts)
	assert.NoError(t, err)

	d.Description = strings.Repeat("é", MaxDescriptionLength+1)
	_, err = Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "description"))
}

func TestValidate_TooFewEntries(t *testing.T) {
	d := balancedDraft(1, 2, "5.00")
	d.Entries = d.Entries[:1]
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries"))
}

func TestValidate_NonPositiveAmount(t *testing.T) {
	d := balancedDraft(1, 2, "0")
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries[0].amount"))
	assert.True(t, hasProblem(t, err, "entries[1].amount"))

	d = balancedDraft(1, 2, "-5")
	_, err = Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries[0].amount"))
}

func TestValidate_TooManyDecimals(t *testing.T) {
	d := balancedDraft(1, 2, "1.005")
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries[0].amount"))
}

func TestValidate_InvalidEntryType(t *testing.T) {
	d := balancedDraft(1, 2, "5.00")
	d.Entries[0].EntryType = "sideways"
	_, err := Validate(d, defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries[0].entry_type"))
}

func TestValidate_UnknownAccount(t *testing.T) {
	_, err := Validate(balancedDraft(1, 99, "5.00"), defaultAccounts)
	assert.True(t, hasProblem(t, err, "entries[1].account_id"))
	assert.Contains(t, err.Error(), "unknown account 99")
}

func TestValidate_SingleAccount(t *testing.T) {
	_, err := Validate(balancedDraft(1, 1, "5.00"), defaultAccounts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 2 distinct accounts")
}

func TestValidate_MultiError(t *testing.T) {
	d := model.Draft{
		Date:        "",
		Description: "",
		Entries: []model.EntryDraft{
			{AccountID: 99, Amount: dec("0"), EntryType: "x"},
			{AccountID: 2, Amount: dec("1.234"), EntryType: model.Credit},
		},
	}
	_, err := Validate(d, defaultAccounts)
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make(map[string]bool)
	for _, p := range verr.Problems {
		fields[p.Field] = true
	}
	for _, want := range []string{"date", "description", "entries[0].amount", "entries[0].entry_type", "entries[0].account_id", "entries[1].amount"} {
		assert.True(t, fields[want], "expected problem for %s", want)
	}
}

func TestValidate_MultiLegBalanced(t *testing.T) {
	d := model.Draft{
		Date:        "15/02/2024",
		Description: "Split sale",
		Reference:   " INV-9 ",
		Entries: []model.EntryDraft{
			{AccountID: 1, Amount: dec("100.00"), EntryType: model.Debit},
			{AccountID: 3, Amount: dec("60.00"), EntryType: model.Credit},
			{AccountID: 4, Amount: dec("40.00"), EntryType: model.Credit},
		},
	}
	v, err := Validate(d, defaultAccounts)
	require.NoError(t, err)
	assert.Equal(t, "INV-9", v.Reference)
	assert.True(t, v.TotalCredits.Equal(dec("100")))
}

func TestValidate_NilChecker(t *testing.T) {
	_, err := Validate(balancedDraft(1, 2, "5.00"), nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestValidateMetadata(t *testing.T) {
	h, err := ValidateMetadata(model.Metadata{Date: "02/03/2024", Description: " Fixed typo ", Reference: "R1"})
	require.NoError(t, err)
	assert.Equal(t, "Fixed typo", h.Description)
	assert.Equal(t, 3, int(h.Date.Month()))

	_, err = ValidateMetadata(model.Metadata{Date: "bad", Description: ""})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
}

func TestActiveAccounts(t *testing.T) {
	set := ActiveAccounts(map[int64]model.Account{
		1: {ID: 1, IsActive: true},
		2: {ID: 2, IsActive: false},
	})
	assert.True(t, set.Exists(1))
	assert.False(t, set.Exists(2))
	assert.False(t, set.Exists(3))
}
