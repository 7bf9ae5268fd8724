package core

import (
	"github.com/google/uuid"

	"github.com/punchamoorthee/paycore/internal/domain"
	"github.com/punchamoorthee/paycore/internal/store"
)

func toAccount(rec store.AccountRecord) *domain.Account {
	return &domain.Account{
		ID:             rec.ID,
		OwnerRef:       rec.UserData,
		DebitsPending:  rec.DebitsPending,
		DebitsPosted:   rec.DebitsPosted,
		CreditsPending: rec.CreditsPending,
		CreditsPosted:  rec.CreditsPosted,
		Meta: domain.AccountMeta{
			Ledger: rec.Ledger,
			Code:   rec.Code,
			Flags:  rec.Flags,
		},
		CreatedAt: rec.Timestamp,
	}
}

// toTransfer derives the domain view of a record. resolution is the record
// that posted or voided rec, when rec is a pending transfer that has one.
func toTransfer(rec store.TransferRecord, resolution *store.TransferRecord) *domain.Transfer {
	t := &domain.Transfer{
		ID:              rec.ID,
		DebitAccountID:  rec.DebitAccountID,
		CreditAccountID: rec.CreditAccountID,
		Amount:          rec.Amount,
		Type:            domain.TypeFor(rec.Code),
		Status:          statusOf(rec, resolution),
		CreatedAt:       rec.Timestamp,
	}

	switch {
	case rec.PendingID != uuid.Nil:
		related := rec.PendingID
		t.RelatedTransferID = &related
	case rec.RelatedID != uuid.Nil:
		related := rec.RelatedID
		t.RelatedTransferID = &related
	}
	return t
}

func statusOf(rec store.TransferRecord, resolution *store.TransferRecord) domain.TransferStatus {
	switch {
	case rec.Flags.Has(store.FlagVoidPending):
		return domain.StatusVoided
	case rec.Flags.Has(store.FlagPending):
		if resolution == nil {
			return domain.StatusPending
		}
		if resolution.Flags.Has(store.FlagVoidPending) {
			return domain.StatusVoided
		}
		return domain.StatusPosted
	default:
		return domain.StatusPosted
	}
}
