package service

import (
	"context"

	"github.com/google/uuid"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/outbox"
)

// Store is the transaction-scoped view handed to RunInTx callbacks. Lookups
// return sentinel.ErrNotFound when nothing matches.
type Store interface {
	// Lock serializes work on key until the transaction ends.
	Lock(ctx context.Context, key string) error
	UpsertSite(ctx context.Context, name, address string) (int64, error)

	FindBeneficiary(ctx context.Context, key models.BeneficiaryKey) (*models.Beneficiary, error)
	InsertBeneficiary(ctx context.Context, b *models.Beneficiary) error
	NextRegistrationNumber(ctx context.Context) (int64, error)

	ActiveRation(ctx context.Context, beneficiaryID uuid.UUID) (*models.Ration, error)
	RationByCard(ctx context.Context, cardNumber string) (*models.Ration, error)
	NextCardNumber(ctx context.Context) (int64, error)
	InsertRation(ctx context.Context, r *models.Ration) error

	LastDistribution(ctx context.Context, rationID uuid.UUID) (*models.Distribution, error)
	InsertDistribution(ctx context.Context, d *models.Distribution) error
	InsertSignature(ctx context.Context, sig *models.Signature) error
	AppendEvent(ctx context.Context, e outbox.Entry) error
}

type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Reader serves card lookups outside any transaction.
type Reader interface {
	// FindCard returns sentinel.ErrNotFound for unknown card numbers.
	FindCard(ctx context.Context, cardNumber string) (*models.Card, error)
	ListDistributions(ctx context.Context, rationID uuid.UUID, limit int) ([]models.Distribution, error)
}
