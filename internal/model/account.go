package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies accounts in the chart of accounts.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeCapital   AccountType = "capital"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// AccountTypes lists every account type in balance-sheet then income-statement order.
var AccountTypes = []AccountType{
	AccountTypeAsset,
	AccountTypeLiability,
	AccountTypeCapital,
	AccountTypeRevenue,
	AccountTypeExpense,
}

// ParseAccountType accepts the type names in any case. "equity" is an alias for capital.
func ParseAccountType(s string) (AccountType, error) {
	switch t := AccountType(strings.ToLower(strings.TrimSpace(s))); t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeCapital, AccountTypeRevenue, AccountTypeExpense:
		return t, nil
	case "equity":
		return AccountTypeCapital, nil
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// UnmarshalText normalizes any spelling ParseAccountType accepts. Other values
// are kept as given and rejected later by validation.
func (t *AccountType) UnmarshalText(b []byte) error {
	if parsed, err := ParseAccountType(string(b)); err == nil {
		*t = parsed
		return nil
	}
	*t = AccountType(b)
	return nil
}

// NaturalBalance is the side that increases a typical account of this type.
func (t AccountType) NaturalBalance() EntryType {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return Debit
	default:
		return Credit
	}
}

// EntryType is the side of a journal entry. It doubles as an account's normal balance.
type EntryType string

const (
	Debit  EntryType = "debit"
	Credit EntryType = "credit"
)

// ParseEntryType is case-insensitive and accepts dr/cr.
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debit", "dr":
		return Debit, nil
	case "credit", "cr":
		return Credit, nil
	}
	return "", fmt.Errorf("unknown entry type %q", s)
}

// UnmarshalText normalizes any spelling ParseEntryType accepts. Other values
// are kept as given and rejected later by validation.
func (e *EntryType) UnmarshalText(b []byte) error {
	if parsed, err := ParseEntryType(string(b)); err == nil {
		*e = parsed
		return nil
	}
	*e = EntryType(b)
	return nil
}

// Valid reports whether e is Debit or Credit.
func (e EntryType) Valid() bool {
	return e == Debit || e == Credit
}

// Opposite returns the other side.
func (e EntryType) Opposite() EntryType {
	if e == Debit {
		return Credit
	}
	return Debit
}

// Account is a row in the chart of accounts. Balance is a cache of the signed
// sum of every journal entry posted to the account.
type Account struct {
	ID            int64           `json:"id"`
	Code          int             `json:"code"`
	Name          string          `json:"name"`
	Type          AccountType     `json:"type"`
	Subtype       string          `json:"subtype,omitempty"`
	NormalBalance EntryType       `json:"normal_balance"`
	Balance       decimal.Decimal `json:"balance"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Effect returns the signed change an entry makes to this account's balance:
// +amount when the entry side matches the normal balance, -amount otherwise.
func (a Account) Effect(side EntryType, amount decimal.Decimal) decimal.Decimal {
	return SignedAmount(a.NormalBalance, side, amount)
}

// SignedAmount applies the normal-balance rule without needing a full Account.
func SignedAmount(normal, side EntryType, amount decimal.Decimal) decimal.Decimal {
	if side == normal {
		return amount
	}
	return amount.Neg()
}

// BalanceFrom turns debit and credit totals into a balance with the given polarity.
func BalanceFrom(normal EntryType, debits, credits decimal.Decimal) decimal.Decimal {
	if normal == Debit {
		return debits.Sub(credits)
	}
	return credits.Sub(debits)
}
