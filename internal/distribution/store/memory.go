package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aidtrack/internal/distribution/models"
	"aidtrack/internal/distribution/service"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
	"aidtrack/pkg/requestcontext"
)

// MemoryStore is the development and test backend. Transactions run one at a
// time on a copy of the state, which replaces the live state only when the
// callback succeeds.
type MemoryStore struct {
	mu      sync.Mutex
	state   *memoryState
	outbox  *outbox.MemoryStore
	timeout time.Duration
}

// NewMemory builds an empty store. Committed events are appended to ob when it
// is non-nil.
func NewMemory(ob *outbox.MemoryStore) *MemoryStore {
	return &MemoryStore{state: newMemoryState(), outbox: ob, timeout: defaultTxTimeout}
}

type memoryState struct {
	nextSiteID    int64
	sites         map[int64]models.Site
	siteByKey     map[string]int64
	households    map[uuid.UUID]models.Household
	byToken       map[string]uuid.UUID
	recipients    map[uuid.UUID]models.Recipient
	principal     map[uuid.UUID]uuid.UUID
	distributions []models.Distribution
	windows       map[string]struct{}
	signatures    []models.Signature
}

func newMemoryState() *memoryState {
	return &memoryState{
		sites:      make(map[int64]models.Site),
		siteByKey:  make(map[string]int64),
		households: make(map[uuid.UUID]models.Household),
		byToken:    make(map[string]uuid.UUID),
		recipients: make(map[uuid.UUID]models.Recipient),
		principal:  make(map[uuid.UUID]uuid.UUID),
		windows:    make(map[string]struct{}),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		nextSiteID:    s.nextSiteID,
		sites:         make(map[int64]models.Site, len(s.sites)),
		siteByKey:     make(map[string]int64, len(s.siteByKey)),
		households:    make(map[uuid.UUID]models.Household, len(s.households)),
		byToken:       make(map[string]uuid.UUID, len(s.byToken)),
		recipients:    make(map[uuid.UUID]models.Recipient, len(s.recipients)),
		principal:     make(map[uuid.UUID]uuid.UUID, len(s.principal)),
		distributions: append([]models.Distribution(nil), s.distributions...),
		windows:       make(map[string]struct{}, len(s.windows)),
		signatures:    append([]models.Signature(nil), s.signatures...),
	}
	for k, v := range s.sites {
		c.sites[k] = v
	}
	for k, v := range s.siteByKey {
		c.siteByKey[k] = v
	}
	for k, v := range s.households {
		c.households[k] = v
	}
	for k, v := range s.byToken {
		c.byToken[k] = v
	}
	for k, v := range s.recipients {
		c.recipients[k] = v
	}
	for k, v := range s.principal {
		c.principal[k] = v
	}
	for k := range s.windows {
		c.windows[k] = struct{}{}
	}
	return c
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	work := &memoryTx{state: m.state.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	m.state = work.state
	if m.outbox != nil {
		for _, e := range work.events {
			_ = m.outbox.Append(ctx, e)
		}
	}
	return nil
}

func (m *MemoryStore) FindHouseholdByToken(_ context.Context, token string) (*models.Household, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.byToken[strings.ToUpper(token)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	hh := m.state.households[id]
	hh.SiteName = m.state.sites[hh.SiteID].Name
	return &hh, nil
}

func (m *MemoryStore) ListDistributions(_ context.Context, householdID uuid.UUID, limit int) ([]models.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Distribution
	for _, d := range m.state.distributions {
		if d.HouseholdID == householdID {
			d.SiteName = m.state.sites[d.SiteID].Name
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistributionDate.After(out[j].DistributionDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Counts reports row counts. Tests use it to assert that nothing leaked from a
// rolled-back transaction.
func (m *MemoryStore) Counts() (sites, households, recipients, distributions, signatures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.sites), len(m.state.households), len(m.state.recipients),
		len(m.state.distributions), len(m.state.signatures)
}

// memoryTx is the service.Store seen inside one in-memory transaction.
type memoryTx struct {
	state  *memoryState
	events []outbox.Entry
}

// LockToken is a no-op: the store lock is held for the whole transaction.
func (t *memoryTx) LockToken(context.Context, string) error {
	return nil
}

func (t *memoryTx) UpsertSite(ctx context.Context, name, address string) (int64, error) {
	now := requestcontext.Now(ctx)
	key := strings.ToLower(name)
	if id, ok := t.state.siteByKey[key]; ok {
		site := t.state.sites[id]
		if address != "" {
			site.Address = address
		}
		site.UpdatedAt = now
		t.state.sites[id] = site
		return id, nil
	}
	t.state.nextSiteID++
	id := t.state.nextSiteID
	t.state.sites[id] = models.Site{ID: id, Name: name, Address: address, CreatedAt: now, UpdatedAt: now}
	t.state.siteByKey[key] = id
	return id, nil
}

func (t *memoryTx) UpsertHousehold(_ context.Context, f models.HouseholdFields) (uuid.UUID, error) {
	token := strings.ToUpper(f.TokenNumber)
	if id, ok := t.state.byToken[token]; ok {
		hh := t.state.households[id]
		hh.ExternalHouseholdCode = f.ExternalHouseholdCode
		hh.DisplayName = f.DisplayName
		hh.SiteID = f.SiteID
		hh.BeneficiaryCount = f.BeneficiaryCount
		hh.PrimaryRecipientName = f.PrimaryRecipientName
		hh.UpdatedAt = f.Now
		t.state.households[id] = hh
		return id, nil
	}
	id := f.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	t.state.households[id] = models.Household{
		ID:                    id,
		ExternalHouseholdCode: f.ExternalHouseholdCode,
		DisplayName:           f.DisplayName,
		TokenNumber:           token,
		SiteID:                f.SiteID,
		BeneficiaryCount:      f.BeneficiaryCount,
		PrimaryRecipientName:  f.PrimaryRecipientName,
		CreatedAt:             f.Now,
		UpdatedAt:             f.Now,
	}
	t.state.byToken[token] = id
	return id, nil
}

func (t *memoryTx) UpsertPrincipalRecipient(ctx context.Context, householdID uuid.UUID, name models.PersonName) (uuid.UUID, error) {
	now := requestcontext.Now(ctx)
	if id, ok := t.state.principal[householdID]; ok {
		r := t.state.recipients[id]
		r.FirstName, r.MiddleName, r.LastName = name.First, name.Middle, name.Last
		r.UpdatedAt = now
		t.state.recipients[id] = r
		return id, nil
	}
	id := uuid.New()
	t.state.recipients[id] = models.Recipient{
		ID:          id,
		HouseholdID: householdID,
		FirstName:   name.First,
		MiddleName:  name.Middle,
		LastName:    name.Last,
		IsPrincipal: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.state.principal[householdID] = id
	return id, nil
}

func (t *memoryTx) LastDistribution(_ context.Context, householdID uuid.UUID) (*models.Distribution, error) {
	var last *models.Distribution
	for i := range t.state.distributions {
		d := &t.state.distributions[i]
		if d.HouseholdID != householdID {
			continue
		}
		if last == nil || d.DistributionDate.After(last.DistributionDate) {
			last = d
		}
	}
	if last == nil {
		return nil, sentinel.ErrNotFound
	}
	out := *last
	return &out, nil
}

func (t *memoryTx) InsertDistribution(_ context.Context, d *models.Distribution) error {
	if d.WindowKey != "" {
		key := d.HouseholdID.String() + "|" + d.WindowKey
		if _, taken := t.state.windows[key]; taken {
			return sentinel.ErrConflict
		}
		t.state.windows[key] = struct{}{}
	}
	t.state.distributions = append(t.state.distributions, *d)
	return nil
}

func (t *memoryTx) InsertSignature(_ context.Context, sig *models.Signature) error {
	t.state.signatures = append(t.state.signatures, *sig)
	return nil
}

func (t *memoryTx) AppendEvent(_ context.Context, e outbox.Entry) error {
	t.events = append(t.events, e)
	return nil
}
