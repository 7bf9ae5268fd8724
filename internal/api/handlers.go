package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/models"
	"github.com/punchamoorthee/paycore/internal/service"
)

var errEmptyBody = errors.New("empty body")

type fundsOperation func(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Transfer, error)

type transitionOperation func(ctx context.Context, id uuid.UUID) (*domain.Account, error)

func pathID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched
// when optional is set.
func decodeBody(r *http.Request, dst interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		if optional {
			return nil
		}
		return errEmptyBody
	}
	return err
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	account, err := h.service.CreateAccount(r.Context(), req.UserID)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+account.ID.String())
	respondWithJSON(w, http.StatusCreated, models.NewAccount(account))
}

func (h *Handler) BulkCreateAccountsHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BulkCreateAccountsRequest
	if err := decodeBody(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Count == 0 {
		req.Count = service.MaxBulkAccounts
	}

	accounts, err := h.service.CreateAccounts(r.Context(), req.UserID, req.Count)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, models.NewAccounts(accounts))
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	accounts, err := h.service.ListAccounts(r.Context(), limit)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewAccounts(accounts))
}

func (h *Handler) GetMasterAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetMasterAccount(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewAccount(account))
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewAccount(account))
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.service.Deposit)
}

func (h *Handler) WithdrawHandler(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.service.Withdraw)
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, op fundsOperation) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req models.AmountRequest
	if err := decodeBody(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	transfer, err := op(r.Context(), id, req.Amount)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/transactions/"+transfer.ID.String())
	respondWithJSON(w, http.StatusCreated, models.NewTransaction(transfer, h.service.SystemAccountID()))
}

func (h *Handler) GetAccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	transfers, err := h.service.GetAccountTransactions(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewTransactions(transfers, h.service.SystemAccountID()))
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	transfer, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewTransaction(transfer, h.service.SystemAccountID()))
}

func (h *Handler) ConfirmTransactionHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ConfirmTransaction)
}

func (h *Handler) AvoidTransactionHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.AvoidTransaction)
}

func (h *Handler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Refund)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op transitionOperation) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	account, err := op(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewAccount(account))
}
