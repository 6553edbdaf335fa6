// Package httpapi exposes the posting engine, account administration and
// reports as a JSON API.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/logging"
	"github.com/cleared-dev/ledger/internal/model"
	"github.com/cleared-dev/ledger/internal/posting"
	"github.com/cleared-dev/ledger/internal/report"
)

// DefaultRequestTimeout applies when Options.RequestTimeout is zero.
const DefaultRequestTimeout = 30 * time.Second

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Server holds the services behind the routes.
type Server struct {
	engine   *posting.Engine
	accounts *accounts.Service
	reports  *report.Aggregator
	log      *zap.Logger
}

// NewServer creates a Server.
func NewServer(engine *posting.Engine, accts *accounts.Service, reports *report.Aggregator, log *zap.Logger) *Server {
	return &Server{engine: engine, accounts: accts, reports: reports, log: logging.OrNop(log)}
}

// Router builds the chi handler tree.
func (s *Server) Router(opts Options) http.Handler {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.listTransactions)
			r.Post("/", s.createTransaction)
			r.Post("/resequence", s.resequence)
			r.Get("/{id}", s.getTransaction)
			r.Put("/{id}", s.editTransaction)
			r.Patch("/{id}", s.updateMetadata)
			r.Delete("/{id}", s.deleteTransaction)
		})
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.listAccounts)
			r.Post("/", s.createAccount)
			r.Get("/{id}", s.getAccount)
			r.Patch("/{id}", s.updateAccount)
			r.Delete("/{id}", s.deactivateAccount)
			r.Get("/{id}/ledger", s.accountLedger)
		})
		r.Route("/reports", func(r chi.Router) {
			r.Get("/balance-sheet", s.balanceSheet)
			r.Get("/income-statement", s.incomeStatement)
			r.Get("/equation", s.equation)
			r.Get("/verify", s.verify)
		})
	})
	return r
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr))
		})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(w, "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

func queryRange(w http.ResponseWriter, r *http.Request) (model.DateRange, bool) {
	q := r.URL.Query()
	dr, err := model.ParseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		badRequest(w, err.Error())
		return model.DateRange{}, false
	}
	return dr, true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(w, "invalid "+key+" "+strconv.Quote(raw))
		return 0, false
	}
	return n, true
}
