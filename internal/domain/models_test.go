package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAccount_Balance(t *testing.T) {
	acc := Account{
		ID:             uuid.New(),
		CreditsPosted:  500,
		DebitsPosted:   200,
		CreditsPending: 1000,
	}
	assert.Equal(t, int64(300), acc.Balance())
}

func TestTransferStatus_External(t *testing.T) {
	assert.Equal(t, "PENDING", StatusPending.External())
	assert.Equal(t, "COMPLETED", StatusPosted.External())
	assert.Equal(t, "FAILED", StatusVoided.External())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusPosted.Terminal())
	assert.True(t, StatusVoided.Terminal())
}

func TestTransfer_Settleable(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{StatusPending, nil},
		{StatusPosted, ErrAlreadySettled},
		{StatusVoided, ErrAlreadySettled},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tr := Transfer{Status: tt.status, Type: TransferTypeDeposit}
			err := tr.Settleable()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestTransfer_Refundable(t *testing.T) {
	tests := []struct {
		name    string
		status  TransferStatus
		kind    TransferType
		wantErr error
	}{
		{"posted deposit", StatusPosted, TransferTypeDeposit, nil},
		{"pending deposit", StatusPending, TransferTypeDeposit, ErrNotCompleted},
		{"voided deposit", StatusVoided, TransferTypeDeposit, ErrNotCompleted},
		{"posted withdrawal", StatusPosted, TransferTypeWithdrawal, ErrNotADeposit},
		{"posted refund", StatusPosted, TransferTypeRefund, ErrNotADeposit},
		{"posted unknown", StatusPosted, TransferTypeUnknown, ErrNotADeposit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Transfer{Status: tt.status, Type: tt.kind}.Refundable()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, IsNotFound(ErrAccountNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrTransferNotFound)))
	assert.False(t, IsNotFound(ErrInsufficientFunds))

	assert.True(t, IsBusiness(ErrNotADeposit))
	assert.True(t, IsBusiness(ErrSystemAccount))
	assert.False(t, IsBusiness(ErrStoreWrite))

	assert.True(t, IsRetryable(fmt.Errorf("deposit: %w", ErrStoreUnavailable)))
	assert.False(t, IsRetryable(ErrStoreWrite))
}

func TestBatchError(t *testing.T) {
	err := error(&BatchError{Failures: []BatchFailure{{Index: 3, Reason: "exists"}}})
	assert.True(t, errors.Is(err, ErrStoreWrite))
	assert.Contains(t, err.Error(), "#3 exists")
}
