package service

import (
	"context"

	"github.com/google/uuid"

	"aidtrack/internal/distribution/models"
	"aidtrack/internal/outbox"
)

// Upserter creates or updates rows by natural key inside the caller's
// transaction. Repeating a call with the same key returns the same id.
type Upserter interface {
	UpsertSite(ctx context.Context, name, address string) (int64, error)
	UpsertHousehold(ctx context.Context, fields models.HouseholdFields) (uuid.UUID, error)
	UpsertPrincipalRecipient(ctx context.Context, householdID uuid.UUID, name models.PersonName) (uuid.UUID, error)
}

// Store is the transaction-scoped view handed to RunInTx callbacks.
type Store interface {
	Upserter
	// LockToken serializes registrations for one token until the transaction ends.
	LockToken(ctx context.Context, token string) error
	// LastDistribution returns sentinel.ErrNotFound when the household has none.
	LastDistribution(ctx context.Context, householdID uuid.UUID) (*models.Distribution, error)
	InsertDistribution(ctx context.Context, d *models.Distribution) error
	InsertSignature(ctx context.Context, sig *models.Signature) error
	AppendEvent(ctx context.Context, e outbox.Entry) error
}

// TxRunner runs fn in one transaction: every write in fn commits together or
// not at all.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

// Reader serves the read-only endpoints outside any transaction.
type Reader interface {
	// FindHouseholdByToken returns sentinel.ErrNotFound for unknown tokens.
	FindHouseholdByToken(ctx context.Context, token string) (*models.Household, error)
	ListDistributions(ctx context.Context, householdID uuid.UUID, limit int) ([]models.Distribution, error)
}

// CacheInvalidator drops cached lookups after a commit changes them.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}
