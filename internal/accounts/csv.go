package accounts

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// Header is the CSV header for a chart-of-accounts file.
const Header = "code,name,type,subtype,normal_balance,balance,is_active"

const (
	numFields  = 7
	colCode    = 0
	colName    = 1
	colType    = 2
	colSubtype = 3
	colNormal  = 4
	colBalance = 5
	colActive  = 6
)

// ReadAccounts reads a chart-of-accounts CSV. Empty normal_balance takes the
// type's natural side, empty balance is zero and empty is_active is true.
func ReadAccounts(r io.Reader) ([]model.Account, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading accounts CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}
	if got := strings.Join(records[0], ","); got != Header {
		return nil, fmt.Errorf("unexpected header %q, want %q", got, Header)
	}

	var accounts []model.Account
	for i, rec := range records[1:] {
		acct, err := UnmarshalAccount(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// WriteAccounts writes a chart-of-accounts CSV.
func WriteAccounts(w io.Writer, accounts []model.Account) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, acct := range accounts {
		if err := cw.Write(MarshalAccount(acct)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalAccount converts an Account to a CSV row.
func MarshalAccount(acct model.Account) []string {
	row := make([]string, numFields)
	row[colCode] = strconv.Itoa(acct.Code)
	row[colName] = acct.Name
	row[colType] = string(acct.Type)
	row[colSubtype] = acct.Subtype
	row[colNormal] = string(acct.NormalBalance)
	row[colBalance] = acct.Balance.StringFixed(2)
	row[colActive] = strconv.FormatBool(acct.IsActive)
	return row
}

// UnmarshalAccount converts a CSV row to an Account.
func UnmarshalAccount(record []string) (model.Account, error) {
	if len(record) != numFields {
		return model.Account{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	code, err := strconv.Atoi(strings.TrimSpace(record[colCode]))
	if err != nil {
		return model.Account{}, fmt.Errorf("parsing code %q: %w", record[colCode], err)
	}
	typ, err := model.ParseAccountType(strings.TrimSpace(record[colType]))
	if err != nil {
		return model.Account{}, err
	}

	normal := typ.NaturalBalance()
	if s := strings.TrimSpace(record[colNormal]); s != "" {
		if normal, err = model.ParseEntryType(s); err != nil {
			return model.Account{}, err
		}
	}

	balance := decimal.Zero
	if s := strings.TrimSpace(record[colBalance]); s != "" {
		if balance, err = decimal.NewFromString(s); err != nil {
			return model.Account{}, fmt.Errorf("parsing balance %q: %w", s, err)
		}
	}

	active := true
	if s := strings.TrimSpace(record[colActive]); s != "" {
		if active, err = strconv.ParseBool(s); err != nil {
			return model.Account{}, fmt.Errorf("parsing is_active %q: %w", s, err)
		}
	}

	return model.Account{
		Code:          code,
		Name:          record[colName],
		Type:          typ,
		Subtype:       record[colSubtype],
		NormalBalance: normal,
		Balance:       balance,
		IsActive:      active,
	}, nil
}
