package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/model"
)

// Envelope wraps every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// validationData is the payload of a 400 response.
type validationData struct {
	Problems     []model.Problem `json:"problems,omitempty"`
	TotalDebits  string          `json:"total_debits,omitempty"`
	TotalCredits string          `json:"total_credits,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Status: "success", Data: data})
}

func writeFail(w http.ResponseWriter, status int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Status: "error", Message: msg, Data: data})
}

// writeError maps the error taxonomy onto status codes. Store failures get a
// generic message; the detail goes to the log only.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *model.ValidationError
		ie *model.ImbalanceError
		nf *model.NotFoundError
		ce *model.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		data := validationData{Problems: ve.Problems}
		if ve.Imbalance != nil {
			data.TotalDebits = ve.Imbalance.TotalDebits.StringFixed(2)
			data.TotalCredits = ve.Imbalance.TotalCredits.StringFixed(2)
		}
		writeFail(w, http.StatusBadRequest, ve.Error(), data)
	case errors.As(err, &ie):
		writeFail(w, http.StatusBadRequest, ie.Error(), validationData{
			TotalDebits:  ie.TotalDebits.StringFixed(2),
			TotalCredits: ie.TotalCredits.StringFixed(2),
		})
	case errors.As(err, &nf):
		writeFail(w, http.StatusNotFound, nf.Error(), nil)
	case errors.As(err, &ce):
		writeFail(w, http.StatusConflict, ce.Error(), nil)
	default:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeFail(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeFail(w, http.StatusBadRequest, msg, nil)
}
