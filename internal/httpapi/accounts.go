package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/store"
)

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.AccountFilter
	if raw := q.Get("type"); raw != "" {
		t, err := model.ParseAccountType(raw)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		f.Type = t
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(w, "invalid active "+strconv.Quote(raw))
			return
		}
		f.ActiveOnly = active
	}
	list, err := s.accounts.List(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Account{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	var na accounts.NewAccount
	if !decode(w, r, &na) {
		return
	}
	a, err := s.accounts.Create(r.Context(), na)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var c accounts.Changes
	if !decode(w, r, &c) {
		return
	}
	a, err := s.accounts.Update(r.Context(), id, c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.accounts.Deactivate(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deactivated": id})
}

func (s *Server) accountLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dr, ok := queryRange(w, r)
	if !ok {
		return
	}
	l, err := s.reports.AccountLedger(r.Context(), id, dr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}
