package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/nutrition/service"
	"aidtrack/internal/outbox"
	"aidtrack/pkg/platform/sentinel"
)

func beneficiary(siteID int64) *models.Beneficiary {
	return &models.Beneficiary{
		ID:          uuid.New(),
		SiteID:      siteID,
		FirstName:   "Amani",
		LastName:    "Mwamba",
		DateOfBirth: time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC),
		Sex:         models.SexFemale,
		Category:    models.CategoryChild,
	}
}

func TestMemoryBeneficiaryNaturalKey(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		siteID, err := st.UpsertSite(ctx, "Goma Nord", "")
		require.NoError(t, err)
		require.NoError(t, st.InsertBeneficiary(ctx, beneficiary(siteID)))

		found, err := st.FindBeneficiary(ctx, models.BeneficiaryKey{
			FirstName: "AMANI", LastName: "mwamba", DateOfBirth: time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC), SiteID: siteID,
		})
		require.NoError(t, err)
		assert.Equal(t, "Goma Nord", found.SiteName)

		_, err = st.FindBeneficiary(ctx, models.BeneficiaryKey{
			FirstName: "Amani", LastName: "Mwamba", DateOfBirth: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), SiteID: siteID,
		})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		assert.ErrorIs(t, st.InsertBeneficiary(ctx, beneficiary(siteID)), sentinel.ErrConflict)
		return nil
	}))
}

func TestMemoryRationLookups(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	b := beneficiary(1)

	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		require.NoError(t, st.InsertBeneficiary(ctx, b))
		n, err := st.NextCardNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return st.InsertRation(ctx, &models.Ration{
			ID: uuid.New(), BeneficiaryID: b.ID, CardNumber: "R-0001", Status: models.RationActive,
		})
	}))

	card, err := m.FindCard(ctx, "r-0001")
	require.NoError(t, err)
	assert.Equal(t, b.ID, card.Beneficiary.ID)

	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		active, err := st.ActiveRation(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, "R-0001", active.CardNumber)
		return nil
	}))

	require.True(t, m.SetRationStatus("R-0001", models.RationCompleted))
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		_, err := st.ActiveRation(ctx, b.ID)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		return nil
	}))
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ob := outbox.NewMemory()
	m := NewMemory(ob)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		_, _ = st.NextCardNumber(ctx)
		require.NoError(t, st.InsertBeneficiary(ctx, beneficiary(1)))
		e, err := outbox.NewEntry("ration", "R-0001", outbox.EventNutritionBeneficiaryRegistered, map[string]string{}, time.Now())
		require.NoError(t, err)
		require.NoError(t, st.AppendEvent(ctx, e))
		return boom
	})
	require.ErrorIs(t, err, boom)

	beneficiaries, rations, _, _ := m.Counts()
	assert.Zero(t, beneficiaries)
	assert.Zero(t, rations)
	assert.Empty(t, ob.Entries())

	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		n, err := st.NextCardNumber(ctx)
		assert.Equal(t, int64(1), n)
		return err
	}))
}
