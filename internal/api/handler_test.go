package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/core"
	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/models"
	"github.com/punchamoorthee/paycore/internal/service"
	"github.com/punchamoorthee/paycore/internal/store"
)

func newTestRouter(t *testing.T, idem IdempotencyStore) *mux.Router {
	t.Helper()
	c := core.New(store.NewMemoryStore(), core.Config{}, zap.NewNop())
	require.NoError(t, c.InitializeSystemAccount(context.Background()))

	r := mux.NewRouter()
	NewHandler(service.NewPaymentService(c, zap.NewNop()), idem, zap.NewNop()).Routes(r)
	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{domain.ErrTransferNotFound, http.StatusNotFound},
		{domain.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{domain.ErrInvalidCount, http.StatusUnprocessableEntity},
		{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{domain.ErrNotCompleted, http.StatusUnprocessableEntity},
		{domain.ErrNotADeposit, http.StatusUnprocessableEntity},
		{domain.ErrSystemAccount, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: overflows_credits", domain.ErrInvalidAmount), http.StatusUnprocessableEntity},
		{domain.ErrAlreadySettled, http.StatusConflict},
		{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{domain.ErrStoreWrite, http.StatusInternalServerError},
		{&domain.BatchError{}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestAPI_PaymentFlow(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/accounts", `{"userId":"u-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	account := decode[models.Account](t, rec)
	assert.Equal(t, "u-1", account.UserID)
	assert.Equal(t, "0.00", account.Balance.String())
	assert.Equal(t, uint32(1), account.Meta.Ledger)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/accounts/"+account.ID+"/deposit", `{"amount": 5.00}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deposit := decode[models.Transaction](t, rec)
	assert.Equal(t, "PENDING", deposit.Status)
	assert.Equal(t, "DEPOSIT", deposit.Type)
	assert.Equal(t, account.ID, deposit.AccountID)
	assert.Equal(t, "5.00", deposit.Amount.String())

	rec = doRequest(t, r, http.MethodPost, "/api/v1/transactions/"+deposit.ID+"/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "5.00", decode[models.Account](t, rec).Balance.String())

	rec = doRequest(t, r, http.MethodPost, "/api/v1/transactions/"+deposit.ID+"/confirm", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/accounts/"+account.ID+"/withdraw", `{"amount": "2.00"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	withdrawal := decode[models.Transaction](t, rec)
	assert.Equal(t, "COMPLETED", withdrawal.Status)
	assert.Equal(t, account.ID, withdrawal.AccountID, "customer side of a withdrawal is the debit leg")

	rec = doRequest(t, r, http.MethodPost, "/api/v1/accounts/"+account.ID+"/withdraw", `{"amount": 10}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, rec).Error, "insufficient funds")

	rec = doRequest(t, r, http.MethodPost, "/api/v1/transactions/"+deposit.ID+"/refund", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "-2.00", decode[models.Account](t, rec).Balance.String())

	rec = doRequest(t, r, http.MethodGet, "/api/v1/accounts/"+account.ID+"/transactions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.Transaction](t, rec)
	require.Len(t, history, 4)
	assert.Equal(t, "REFUND", history[0].Type)
	assert.Equal(t, deposit.ID, history[0].RelatedTransactionID)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/transactions/"+deposit.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "COMPLETED", decode[models.Transaction](t, rec).Status)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/accounts/master", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.DefaultSystemAccountID.String(), decode[models.Account](t, rec).ID)
}

func TestAPI_Void(t *testing.T) {
	r := newTestRouter(t, nil)
	account := decode[models.Account](t, doRequest(t, r, http.MethodPost, "/api/v1/accounts", ""))

	deposit := decode[models.Transaction](t,
		doRequest(t, r, http.MethodPost, "/api/v1/accounts/"+account.ID+"/deposit", `{"amount": 1.5}`))

	rec := doRequest(t, r, http.MethodPost, "/api/v1/transactions/"+deposit.ID+"/avoid", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0.00", decode[models.Account](t, rec).Balance.String())

	rec = doRequest(t, r, http.MethodGet, "/api/v1/transactions/"+deposit.ID, "")
	assert.Equal(t, "FAILED", decode[models.Transaction](t, rec).Status)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/transactions/"+deposit.ID+"/refund", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_Accounts(t *testing.T) {
	r := newTestRouter(t, nil)

	rec := doRequest(t, r, http.MethodPost, "/api/v1/accounts/bulk", `{"userId":"bulk","count":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]models.Account](t, rec), 3)

	rec = doRequest(t, r, http.MethodPost, "/api/v1/accounts/bulk", `{"count":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/accounts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Account](t, rec), 4)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/accounts?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Account](t, rec), 2)

	rec = doRequest(t, r, http.MethodGet, "/api/v1/accounts?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_BadInput(t *testing.T) {
	r := newTestRouter(t, nil)
	account := decode[models.Account](t, doRequest(t, r, http.MethodPost, "/api/v1/accounts", `{}`))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed account id", http.MethodGet, "/api/v1/accounts/not-a-uuid", "", http.StatusBadRequest},
		{"unknown account", http.MethodGet, "/api/v1/accounts/" + uuid.NewString(), "", http.StatusNotFound},
		{"unknown account history", http.MethodGet, "/api/v1/accounts/" + uuid.NewString() + "/transactions", "", http.StatusNotFound},
		{"unknown transaction", http.MethodGet, "/api/v1/transactions/" + uuid.NewString(), "", http.StatusNotFound},
		{"confirm unknown transaction", http.MethodPost, "/api/v1/transactions/" + uuid.NewString() + "/confirm", "", http.StatusNotFound},
		{"malformed transaction id", http.MethodPost, "/api/v1/transactions/xyz/refund", "", http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/v1/accounts/" + account.ID + "/deposit", `{"amount":`, http.StatusBadRequest},
		{"missing body", http.MethodPost, "/api/v1/accounts/" + account.ID + "/deposit", "", http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/api/v1/accounts/" + account.ID + "/deposit", `{"amount":0}`, http.StatusUnprocessableEntity},
		{"negative amount", http.MethodPost, "/api/v1/accounts/" + account.ID + "/withdraw", `{"amount":-1}`, http.StatusUnprocessableEntity},
		{"deposit to unknown account", http.MethodPost, "/api/v1/accounts/" + uuid.NewString() + "/deposit", `{"amount":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestAPI_Health(t *testing.T) {
	r := newTestRouter(t, nil)
	rec := doRequest(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
