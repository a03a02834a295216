package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aidtrack/internal/distribution/models"
	"aidtrack/internal/distribution/service"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

func fields(token string, siteID int64, now time.Time) models.HouseholdFields {
	return models.HouseholdFields{
		ID:                    uuid.New(),
		ExternalHouseholdCode: "HH-1",
		DisplayName:           "Marie Kabila",
		TokenNumber:           token,
		SiteID:                siteID,
		BeneficiaryCount:      5,
		PrimaryRecipientName:  "Marie Kabila",
		Now:                   now,
	}
}

func TestMemoryUpsertsAreIdempotent(t *testing.T) {
	m := NewMemory(nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	type ids struct {
		site      int64
		household uuid.UUID
		recipient uuid.UUID
	}
	upsert := func(siteName, token string) ids {
		var got ids
		err := m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			var err error
			if got.site, err = st.UpsertSite(ctx, siteName, ""); err != nil {
				return err
			}
			if got.household, err = st.UpsertHousehold(ctx, fields(token, got.site, now)); err != nil {
				return err
			}
			got.recipient, err = st.UpsertPrincipalRecipient(ctx, got.household, models.PersonName{First: "Marie", Last: "Kabila"})
			return err
		})
		require.NoError(t, err)
		return got
	}

	first := upsert("Kinshasa Centre", "TK001")
	second := upsert("KINSHASA CENTRE", "tk001")
	assert.Equal(t, first, second)

	sites, households, recipients, _, _ := m.Counts()
	assert.Equal(t, 1, sites)
	assert.Equal(t, 1, households)
	assert.Equal(t, 1, recipients)
}

func TestMemorySiteAddressOnlyOverwrittenWhenSupplied(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		_, err := st.UpsertSite(ctx, "Goma", "Avenue du Lac 1")
		return err
	}))
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		_, err := st.UpsertSite(ctx, "goma", "")
		return err
	}))
	assert.Equal(t, "Avenue du Lac 1", m.state.sites[1].Address)
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	ob := outbox.NewMemory()
	m := NewMemory(ob)
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		siteID, err := st.UpsertSite(ctx, "Goma", "")
		if err != nil {
			return err
		}
		if _, err := st.UpsertHousehold(ctx, fields("TK009", siteID, time.Now())); err != nil {
			return err
		}
		e, err := outbox.NewEntry("household", "TK009", outbox.EventDistributionRegistered, map[string]string{}, time.Now())
		if err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, e); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	sites, households, _, _, _ := m.Counts()
	assert.Zero(t, sites)
	assert.Zero(t, households)
	assert.Empty(t, ob.Entries())

	_, err = m.FindHouseholdByToken(ctx, "TK009")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemoryWindowConflict(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	householdID := uuid.New()

	insert := func() error {
		return m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
			return st.InsertDistribution(ctx, &models.Distribution{
				ID:               uuid.New(),
				HouseholdID:      householdID,
				DistributionDate: time.Now(),
				WindowKey:        "2026-03-01",
				Status:           models.StatusCompleted,
			})
		})
	}
	require.NoError(t, insert())
	assert.ErrorIs(t, insert(), sentinel.ErrConflict)
}

func TestMemoryCancelledContext(t *testing.T) {
	m := NewMemory(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := m.RunInTx(ctx, func(context.Context, service.Store) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var householdID uuid.UUID
	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		siteID, _ := st.UpsertSite(ctx, "Kinshasa Centre", "")
		var err error
		householdID, err = st.UpsertHousehold(ctx, fields("TK001", siteID, base))
		if err != nil {
			return err
		}
		for i := range 3 {
			if err := st.InsertDistribution(ctx, &models.Distribution{
				ID:               uuid.New(),
				HouseholdID:      householdID,
				SiteID:           siteID,
				DistributionDate: base.AddDate(0, 0, i),
				WindowKey:        base.AddDate(0, 0, i).Format(time.DateOnly),
				Status:           models.StatusCompleted,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	history, err := m.ListDistributions(ctx, householdID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, base.AddDate(0, 0, 2), history[0].DistributionDate)
	assert.Equal(t, "Kinshasa Centre", history[0].SiteName)

	require.NoError(t, m.RunInTx(ctx, func(ctx context.Context, st service.Store) error {
		last, err := st.LastDistribution(ctx, householdID)
		require.NoError(t, err)
		assert.Equal(t, base.AddDate(0, 0, 2), last.DistributionDate)
		return nil
	}))
}
