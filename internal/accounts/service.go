// Package accounts administers the chart of accounts. Balances are owned by
// the posting engine; this package only creates accounts and edits them while
// no journal entry references them.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/events"
	"github.com/cleared-dev/ledger/internal/id"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/logging"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

// MaxNameLength is measured in characters.
const MaxNameLength = 100

const defaultMaxAttempts = 5

// Invalidator drops cached reports after the chart changes.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Options configures a Service. Zero values are usable.
type Options struct {
	Logger      *zap.Logger
	Publisher   events.Publisher
	Invalidator Invalidator
}

// NewAccount is the input to Create. Code 0 allocates the next free code in
// the type's range; an empty NormalBalance takes the type's natural side.
type NewAccount struct {
	Code          int               `json:"code,omitempty"`
	Name          string            `json:"name"`
	Type          model.AccountType `json:"type"`
	Subtype       string            `json:"subtype,omitempty"`
	NormalBalance model.EntryType   `json:"normal_balance,omitempty"`
}

// Changes is the input to Update. Nil fields are left as they are.
type Changes struct {
	Name          *string            `json:"name,omitempty"`
	Type          *model.AccountType `json:"type,omitempty"`
	Subtype       *string            `json:"subtype,omitempty"`
	NormalBalance *model.EntryType   `json:"normal_balance,omitempty"`
}

// Service manages accounts in a store.
type Service struct {
	store       store.Store
	log         *zap.Logger
	publisher   events.Publisher
	invalidator Invalidator
}

// NewService creates a Service over s.
func NewService(s store.Store, opts Options) *Service {
	svc := &Service{store: s, log: logging.OrNop(opts.Logger), publisher: opts.Publisher, invalidator: opts.Invalidator}
	if svc.publisher == nil {
		svc.publisher = events.Nop{}
	}
	return svc
}

// Create validates na and inserts it. The code is computed in the same unit
// of work as the insert; a collision with a concurrent create is retried.
func (s *Service) Create(ctx context.Context, na NewAccount) (model.Account, error) {
	a, err := newAccount(na)
	if err != nil {
		return model.Account{}, err
	}

	for attempt := 1; ; attempt++ {
		acct := a
		err = s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if acct.Code == 0 {
				code, err := allocateCode(ctx, tx, acct.Type)
				if err != nil {
					return err
				}
				acct.Code = code
			}
			return tx.InsertAccount(ctx, &acct)
		})
		if err == nil {
			a = acct
			break
		}
		if !store.IsConstraint(err, store.ConstraintAccountCode) {
			return model.Account{}, s.fail("create account", err)
		}
		if a.Code != 0 {
			return model.Account{}, &model.ConflictError{Entity: "account code", ID: a.Code, Reason: "is already in use"}
		}
		if attempt >= defaultMaxAttempts {
			return model.Account{}, s.fail("create account", err)
		}
	}

	s.log.Info("account created", zap.Int64("account_id", a.ID), zap.Int("code", a.Code), zap.String("type", string(a.Type)))
	s.changed(ctx, events.AccountCreated, a)
	return a, nil
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, accountID int64) (model.Account, error) {
	a, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Account{}, &model.NotFoundError{Entity: "account", ID: accountID}
		}
		return model.Account{}, s.fail("get account", err)
	}
	return a, nil
}

// List returns accounts ordered by code.
func (s *Service) List(ctx context.Context, f store.AccountFilter) ([]model.Account, error) {
	accts, err := s.store.ListAccounts(ctx, f)
	if err != nil {
		return nil, s.fail("list accounts", err)
	}
	return accts, nil
}

// Update applies c to an account that has no journal entries. A type change
// moves the account to a fresh code in the new type's range.
func (s *Service) Update(ctx context.Context, accountID int64, c Changes) (model.Account, error) {
	var updated model.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := lockEntryFree(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := applyChanges(&a, c); err != nil {
			return err
		}
		if lo, hi, _ := id.CodeRange(a.Type); a.Code < lo || a.Code > hi {
			if a.Code, err = allocateCode(ctx, tx, a.Type); err != nil {
				return err
			}
		}
		if err := tx.UpdateAccount(ctx, a); err != nil {
			return err
		}
		updated, err = tx.GetAccount(ctx, accountID)
		return err
	})
	if err != nil {
		return model.Account{}, s.fail("update account", err)
	}

	s.log.Info("account updated", zap.Int64("account_id", accountID))
	s.changed(ctx, events.AccountUpdated, updated)
	return updated, nil
}

// Deactivate soft-deletes an account that has no journal entries.
func (s *Service) Deactivate(ctx context.Context, accountID int64) error {
	var a model.Account
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if a, err = lockEntryFree(ctx, tx, accountID); err != nil {
			return err
		}
		a.IsActive = false
		return tx.UpdateAccount(ctx, a)
	})
	if err != nil {
		return s.fail("deactivate account", err)
	}

	s.log.Info("account deactivated", zap.Int64("account_id", accountID))
	s.changed(ctx, events.AccountUpdated, a)
	return nil
}

// Seed creates every account in chart whose code is not already taken and
// returns how many were created.
func (s *Service) Seed(ctx context.Context, chart []model.Account) (int, error) {
	existing, err := s.List(ctx, store.AccountFilter{})
	if err != nil {
		return 0, err
	}
	taken := make(map[int]bool, len(existing))
	for _, a := range existing {
		taken[a.Code] = true
	}

	created := 0
	for _, a := range chart {
		if taken[a.Code] {
			continue
		}
		if _, err := s.Create(ctx, NewAccount{Code: a.Code, Name: a.Name, Type: a.Type, Subtype: a.Subtype, NormalBalance: a.NormalBalance}); err != nil {
			return created, fmt.Errorf("seeding account %d: %w", a.Code, err)
		}
		created++
	}
	return created, nil
}

// CodeResolver snapshots the active chart so journal imports can refer to
// accounts by code.
func (s *Service) CodeResolver(ctx context.Context) (journal.CodeResolver, error) {
	accts, err := s.List(ctx, store.AccountFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	byCode := make(map[int]int64, len(accts))
	for _, a := range accts {
		byCode[a.Code] = a.ID
	}
	return func(code int) (int64, bool) {
		accountID, ok := byCode[code]
		return accountID, ok
	}, nil
}

// Codes maps account ids to codes for exports.
func (s *Service) Codes(ctx context.Context) (map[int64]int, error) {
	accts, err := s.List(ctx, store.AccountFilter{})
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int, len(accts))
	for _, a := range accts {
		out[a.ID] = a.Code
	}
	return out, nil
}

func (s *Service) fail(op string, err error) error {
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return err
	}
	s.log.Error("account operation failed", zap.String("op", op), zap.Error(err))
	return &model.StoreError{Op: op, Err: err}
}

func (s *Service) changed(ctx context.Context, typ string, a model.Account) {
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.log.Warn("report cache invalidation failed", zap.Error(err))
		}
	}
	ev := events.New(typ)
	ev.AccountID = a.ID
	ev.Details = fmt.Sprintf("code=%d name=%s", a.Code, a.Name)
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", zap.String("type", typ), zap.Error(err))
	}
}

func newAccount(na NewAccount) (model.Account, error) {
	var problems []model.Problem
	add := func(field, msg string) { problems = append(problems, model.Problem{Field: field, Message: msg}) }

	name := strings.TrimSpace(na.Name)
	if msg := validateName(name); msg != "" {
		add("name", msg)
	}
	typ, err := model.ParseAccountType(string(na.Type))
	if err != nil {
		add("type", err.Error())
	}
	normal := na.NormalBalance
	if normal == "" && err == nil {
		normal = typ.NaturalBalance()
	}
	if !normal.Valid() {
		add("normal_balance", fmt.Sprintf("normal balance must be debit or credit, got %q", na.NormalBalance))
	}
	if na.Code != 0 && err == nil {
		if owner, ok := id.TypeForCode(na.Code); !ok || owner != typ {
			lo, hi, _ := id.CodeRange(typ)
			add("code", fmt.Sprintf("code %d is outside the %s range %d-%d", na.Code, typ, lo, hi))
		}
	}
	if len(problems) > 0 {
		return model.Account{}, &model.ValidationError{Problems: problems}
	}

	return model.Account{
		Code:          na.Code,
		Name:          name,
		Type:          typ,
		Subtype:       strings.TrimSpace(na.Subtype),
		NormalBalance: normal,
		IsActive:      true,
	}, nil
}

func applyChanges(a *model.Account, c Changes) error {
	var problems []model.Problem
	if c.Name != nil {
		name := strings.TrimSpace(*c.Name)
		if msg := validateName(name); msg != "" {
			problems = append(problems, model.Problem{Field: "name", Message: msg})
		}
		a.Name = name
	}
	if c.Type != nil {
		typ, err := model.ParseAccountType(string(*c.Type))
		if err != nil {
			problems = append(problems, model.Problem{Field: "type", Message: err.Error()})
		} else if typ != a.Type && c.NormalBalance == nil {
			a.NormalBalance = typ.NaturalBalance()
		}
		a.Type = typ
	}
	if c.Subtype != nil {
		a.Subtype = strings.TrimSpace(*c.Subtype)
	}
	if c.NormalBalance != nil {
		if !c.NormalBalance.Valid() {
			problems = append(problems, model.Problem{Field: "normal_balance", Message: fmt.Sprintf("normal balance must be debit or credit, got %q", *c.NormalBalance)})
		}
		a.NormalBalance = *c.NormalBalance
	}
	if len(problems) > 0 {
		return &model.ValidationError{Problems: problems}
	}
	return nil
}

func validateName(name string) string {
	if name == "" {
		return "name is required"
	}
	if n := utf8.RuneCountInString(name); n > MaxNameLength {
		return fmt.Sprintf("name is %d characters, maximum is %d", n, MaxNameLength)
	}
	return ""
}

func allocateCode(ctx context.Context, tx store.Tx, t model.AccountType) (int, error) {
	lo, hi, err := id.CodeRange(t)
	if err != nil {
		return 0, model.NewValidationError("type", "%s", err.Error())
	}
	max, err := tx.MaxAccountCode(ctx, lo, hi)
	if err != nil {
		return 0, fmt.Errorf("reading max account code: %w", err)
	}
	code, err := id.NextAccountCode(t, max)
	if err != nil {
		return 0, &model.ConflictError{Entity: "account type", ID: t, Reason: err.Error()}
	}
	return code, nil
}

// lockEntryFree locks an account that must exist and have no journal entries.
func lockEntryFree(ctx context.Context, tx store.Tx, accountID int64) (model.Account, error) {
	locked, err := tx.LockAccounts(ctx, []int64{accountID})
	if err != nil {
		return model.Account{}, fmt.Errorf("locking account: %w", err)
	}
	a, ok := locked[accountID]
	if !ok {
		return model.Account{}, &model.NotFoundError{Entity: "account", ID: accountID}
	}
	n, err := tx.CountAccountEntries(ctx, accountID)
	if err != nil {
		return model.Account{}, fmt.Errorf("counting entries: %w", err)
	}
	if n > 0 {
		return model.Account{}, &model.ConflictError{Entity: "account", ID: accountID, Reason: fmt.Sprintf("has %d journal entries", n)}
	}
	return a, nil
}
