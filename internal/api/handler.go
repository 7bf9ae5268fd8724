package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/models"
	"github.com/punchamoorthee/paycore/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	service     *service.PaymentService
	idempotency IdempotencyStore
	logger      *zap.Logger
}

// NewHandler wires the HTTP surface. idem may be nil, in which case the
// Idempotency-Key header is ignored.
func NewHandler(svc *service.PaymentService, idem IdempotencyStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: svc, idempotency: idem, logger: logger}
}

// Routes registers the health check and the v1 API on r.
func (h *Handler) Routes(r *mux.Router) {
	r.Use(h.instrument)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/accounts", h.idempotent(h.CreateAccountHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/bulk", h.idempotent(h.BulkCreateAccountsHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/master", h.GetMasterAccountHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/accounts/{id}/deposit", h.idempotent(h.DepositHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/{id}/withdraw", h.idempotent(h.WithdrawHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/accounts/{id}/transactions", h.GetAccountTransactionsHandler).Methods(http.MethodGet)

	apiV1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transactions/{id}/confirm", h.idempotent(h.ConfirmTransactionHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/transactions/{id}/avoid", h.idempotent(h.AvoidTransactionHandler)).Methods(http.MethodPost)
	apiV1.HandleFunc("/transactions/{id}/refund", h.idempotent(h.RefundHandler)).Methods(http.MethodPost)
}

// statusRecorder captures the status code, and the body when buffer is set.
type statusRecorder struct {
	http.ResponseWriter
	status int
	buffer *bytes.Buffer
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	if r.buffer != nil {
		r.buffer.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

// instrument records request count and latency per route template.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// statusFor maps a domain error to its HTTP status.
func statusFor(err error) int {
	switch {
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySettled):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidCount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNotCompleted),
		errors.Is(err, domain.ErrNotADeposit),
		errors.Is(err, domain.ErrSystemAccount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Error(err),
		)
		if code == http.StatusInternalServerError {
			msg = "Internal Server Error"
		}
	}
	respondWithError(w, code, msg)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
