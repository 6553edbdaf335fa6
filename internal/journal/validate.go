package journal

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledger/internal/model"
)

// MaxDescriptionLength is measured in characters, not bytes.
const MaxDescriptionLength = 200

// MinEntries is the smallest number of lines a double entry can have.
const MinEntries = 2

// Tolerance is the largest debit/credit difference still considered balanced.
var Tolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// AccountChecker tests whether an account can receive postings.
type AccountChecker interface {
	Exists(id int64) bool
}

// Validated is a draft that passed every check.
type Validated struct {
	Date         time.Time
	Description  string
	Reference    string
	Entries      []model.JournalEntry
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

// Header returns the non-financial fields.
func (v Validated) Header() model.TransactionHeader {
	return model.TransactionHeader{Date: v.Date, Description: v.Description, Reference: v.Reference}
}

// Validate checks a draft against the double-entry rules. It does not touch a
// store; accounts answers the resolvability question. All problems are
// collected so a caller can fix them in one round.
func Validate(d model.Draft, accounts AccountChecker) (Validated, error) {
	var problems []model.Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, model.Problem{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	date, dateProblem := validateDate(d.Date)
	if dateProblem != "" {
		add("date", "%s", dateProblem)
	}
	desc := strings.TrimSpace(d.Description)
	if msg := validateDescription(desc); msg != "" {
		add("description", "%s", msg)
	}

	if len(d.Entries) < MinEntries {
		add("entries", "at least %d entries are required, got %d", MinEntries, len(d.Entries))
	}

	entries := make([]model.JournalEntry, 0, len(d.Entries))
	distinct := make(map[int64]bool)
	for i, e := range d.Entries {
		field := fmt.Sprintf("entries[%d]", i)
		if !e.Amount.IsPositive() {
			add(field+".amount", "amount must be greater than zero, got %s", e.Amount.String())
		} else if !e.Amount.Mul(hundred).Equal(e.Amount.Mul(hundred).Floor()) {
			add(field+".amount", "amount %s has more than 2 decimal places", e.Amount.String())
		}
		if !e.EntryType.Valid() {
			add(field+".entry_type", "entry type must be debit or credit, got %q", e.EntryType)
		}
		if e.AccountID <= 0 || accounts == nil || !accounts.Exists(e.AccountID) {
			add(field+".account_id", "unknown account %d", e.AccountID)
		}
		if e.AccountID > 0 {
			distinct[e.AccountID] = true
		}
		entries = append(entries, model.JournalEntry{
			AccountID: e.AccountID,
			Amount:    e.Amount,
			EntryType: e.EntryType,
		})
	}

	debits, credits := model.SumEntries(entries)
	var imbalance *model.ImbalanceError
	if debits.Sub(credits).Abs().GreaterThanOrEqual(Tolerance) {
		imbalance = &model.ImbalanceError{TotalDebits: debits, TotalCredits: credits}
		add("entries", "%s", imbalance.Error())
	}

	if len(d.Entries) >= MinEntries && len(distinct) < 2 {
		add("entries", "a transaction must touch at least 2 distinct accounts")
	}

	if len(problems) > 0 {
		return Validated{}, &model.ValidationError{Problems: problems, Imbalance: imbalance}
	}

	return Validated{
		Date:         date,
		Description:  desc,
		Reference:    strings.TrimSpace(d.Reference),
		Entries:      entries,
		TotalDebits:  debits,
		TotalCredits: credits,
	}, nil
}

// ValidateMetadata checks the fields of a basic edit.
func ValidateMetadata(m model.Metadata) (model.TransactionHeader, error) {
	var problems []model.Problem
	date, dateProblem := validateDate(m.Date)
	if dateProblem != "" {
		problems = append(problems, model.Problem{Field: "date", Message: dateProblem})
	}
	desc := strings.TrimSpace(m.Description)
	if msg := validateDescription(desc); msg != "" {
		problems = append(problems, model.Problem{Field: "description", Message: msg})
	}
	if len(problems) > 0 {
		return model.TransactionHeader{}, &model.ValidationError{Problems: problems}
	}
	return model.TransactionHeader{Date: date, Description: desc, Reference: strings.TrimSpace(m.Reference)}, nil
}

func validateDate(s string) (time.Time, string) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, "date is required"
	}
	t, err := model.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err.Error()
	}
	return t, ""
}

func validateDescription(desc string) string {
	if desc == "" {
		return "description is required"
	}
	if n := utf8.RuneCountInString(desc); n > MaxDescriptionLength {
		return fmt.Sprintf("description is %d characters, maximum is %d", n, MaxDescriptionLength)
	}
	return ""
}

// AccountSet is an AccountChecker over a fixed set of ids.
type AccountSet map[int64]bool

// Exists reports whether id is in the set.
func (s AccountSet) Exists(id int64) bool { return s[id] }

// ActiveAccounts builds an AccountSet from loaded accounts, skipping inactive ones.
func ActiveAccounts(accounts map[int64]model.Account) AccountSet {
	set := make(AccountSet, len(accounts))
	for id, a := range accounts {
		if a.IsActive {
			set[id] = true
		}
	}
	return set
}
