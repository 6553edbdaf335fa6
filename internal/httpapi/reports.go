package httpapi

import "net/http"

func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	dr, ok := queryRange(w, r)
	if !ok {
		return
	}
	if dr.IsZero() {
		bs, err := s.reports.BalanceSheet(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, bs)
		return
	}
	bs, err := s.reports.BalanceSheetForPeriod(r.Context(), dr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bs)
}

func (s *Server) incomeStatement(w http.ResponseWriter, r *http.Request) {
	dr, ok := queryRange(w, r)
	if !ok {
		return
	}
	if dr.IsZero() {
		is, err := s.reports.IncomeStatement(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, is)
		return
	}
	is, err := s.reports.IncomeStatementForPeriod(r.Context(), dr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, is)
}

func (s *Server) equation(w http.ResponseWriter, r *http.Request) {
	eq, err := s.reports.CheckEquation(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eq)
}

func (s *Server) verify(w http.ResponseWriter, r *http.Request) {
	v, err := s.reports.VerifyBalances(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
