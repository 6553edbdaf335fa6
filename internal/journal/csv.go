package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/model"
)

// Header is the CSV header for journal import and export files.
const Header = "ref,date,description,reference,account_code,debit,credit"

const (
	numFields   = 7
	colRef      = 0
	colDate     = 1
	colDesc     = 2
	colRefText  = 3
	colAcctCode = 4
	colDebit    = 5
	colCredit   = 6
)

// CodeResolver maps an account code to its id.
type CodeResolver func(code int) (int64, bool)

// ImportedDraft is a draft read from CSV together with the ref that grouped it.
type ImportedDraft struct {
	Ref   string
	Row   int // first CSV row of the group, 1-based including the header
	Draft model.Draft
}

// ReadDrafts reads a journal CSV and groups rows by ref into drafts, in the
// order each ref first appears. Every row of a group must repeat the same
// date, description and reference.
func ReadDrafts(r io.Reader, resolve CodeResolver) ([]ImportedDraft, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading journal CSV: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	byRef := make(map[string]int)
	var drafts []ImportedDraft
	for i, rec := range records[1:] {
		row := i + 2
		entry, err := unmarshalEntry(rec, resolve)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		ref := strings.TrimSpace(rec[colRef])
		if ref == "" {
			return nil, fmt.Errorf("row %d: ref is required", row)
		}
		idx, ok := byRef[ref]
		if !ok {
			byRef[ref] = len(drafts)
			drafts = append(drafts, ImportedDraft{
				Ref: ref,
				Row: row,
				Draft: model.Draft{
					Date:        strings.TrimSpace(rec[colDate]),
					Description: rec[colDesc],
					Reference:   rec[colRefText],
				},
			})
			idx = len(drafts) - 1
		}

		d := &drafts[idx].Draft
		if strings.TrimSpace(rec[colDate]) != d.Date || rec[colDesc] != d.Description || rec[colRefText] != d.Reference {
			return nil, fmt.Errorf("row %d: ref %s has a different date, description or reference than row %d", row, ref, drafts[idx].Row)
		}
		d.Entries = append(d.Entries, entry)
	}
	return drafts, nil
}

func unmarshalEntry(rec []string, resolve CodeResolver) (model.EntryDraft, error) {
	code, err := strconv.Atoi(strings.TrimSpace(rec[colAcctCode]))
	if err != nil {
		return model.EntryDraft{}, fmt.Errorf("parsing account_code %q: %w", rec[colAcctCode], err)
	}
	accountID, ok := resolve(code)
	if !ok {
		return model.EntryDraft{}, fmt.Errorf("unknown account code %d", code)
	}

	debitText := strings.TrimSpace(rec[colDebit])
	creditText := strings.TrimSpace(rec[colCredit])
	if (debitText == "") == (creditText == "") {
		return model.EntryDraft{}, fmt.Errorf("row must have exactly one of debit or credit")
	}

	entry := model.EntryDraft{AccountID: accountID, EntryType: model.Debit}
	text := debitText
	if creditText != "" {
		entry.EntryType = model.Credit
		text = creditText
	}
	entry.Amount, err = decimal.NewFromString(text)
	if err != nil {
		return model.EntryDraft{}, fmt.Errorf("parsing amount %q: %w", text, err)
	}
	return entry, nil
}

// WriteTransactions writes posted transactions in the import format, one row
// per entry, using the transaction number as ref. codes maps account ids to
// account codes.
func WriteTransactions(w io.Writer, txns []model.Transaction, codes map[int64]int) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for _, t := range txns {
		for _, e := range t.Entries {
			code, ok := codes[e.AccountID]
			if !ok {
				return fmt.Errorf("transaction %d: no code for account %d", t.TransactionNumber, e.AccountID)
			}
			if err := cw.Write(MarshalEntry(t, e, code)); err != nil {
				return fmt.Errorf("writing transaction %d: %w", t.TransactionNumber, err)
			}
		}
	}
	return cw.Error()
}

// MarshalEntry converts one entry of a transaction to a CSV row.
func MarshalEntry(t model.Transaction, e model.JournalEntry, code int) []string {
	row := make([]string, numFields)
	row[colRef] = id.FormatTransactionNumber(t.TransactionNumber)
	row[colDate] = model.FormatDate(t.Date)
	row[colDesc] = t.Description
	row[colRefText] = t.Reference
	row[colAcctCode] = strconv.Itoa(code)
	if e.EntryType == model.Debit {
		row[colDebit] = e.Amount.StringFixed(2)
	} else {
		row[colCredit] = e.Amount.StringFixed(2)
	}
	return row
}
