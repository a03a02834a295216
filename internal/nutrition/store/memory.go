package store

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"aidtrack/internal/nutrition/models"
	"aidtrack/internal/nutrition/service"
	"aidtrack/internal/outbox"
	dErrors "aidtrack/pkg/domain-errors"
	"aidtrack/pkg/platform/sentinel"
)

// MemoryStore keeps nutrition data in process. Transactions are serialized and
// commit by swapping in the copy they worked on.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	outbox *outbox.MemoryStore
}

func NewMemory(ob *outbox.MemoryStore) *MemoryStore {
	return &MemoryStore{state: newMemoryState(), outbox: ob}
}

type memoryState struct {
	siteSeq       int64
	cardSeq       int64
	regSeq        int64
	siteNames     map[int64]string
	siteByKey     map[string]int64
	beneficiaries map[uuid.UUID]models.Beneficiary
	byKey         map[string]uuid.UUID
	rations       map[uuid.UUID]models.Ration
	byCard        map[string]uuid.UUID
	distributions []models.Distribution
	signatures    []models.Signature
}

func newMemoryState() *memoryState {
	return &memoryState{
		siteNames:     make(map[int64]string),
		siteByKey:     make(map[string]int64),
		beneficiaries: make(map[uuid.UUID]models.Beneficiary),
		byKey:         make(map[string]uuid.UUID),
		rations:       make(map[uuid.UUID]models.Ration),
		byCard:        make(map[string]uuid.UUID),
	}
}

func (s *memoryState) clone() *memoryState {
	return &memoryState{
		siteSeq:       s.siteSeq,
		cardSeq:       s.cardSeq,
		regSeq:        s.regSeq,
		siteNames:     maps.Clone(s.siteNames),
		siteByKey:     maps.Clone(s.siteByKey),
		beneficiaries: maps.Clone(s.beneficiaries),
		byKey:         maps.Clone(s.byKey),
		rations:       maps.Clone(s.rations),
		byCard:        maps.Clone(s.byCard),
		distributions: append([]models.Distribution(nil), s.distributions...),
		signatures:    append([]models.Signature(nil), s.signatures...),
	}
}

func (m *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

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

func (m *MemoryStore) FindCard(_ context.Context, cardNumber string) (*models.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.byCard[strings.ToUpper(cardNumber)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r := m.state.rations[id]
	b := m.state.beneficiaries[r.BeneficiaryID]
	b.SiteName = m.state.siteNames[b.SiteID]
	return &models.Card{Beneficiary: &b, Ration: &r}, nil
}

func (m *MemoryStore) ListDistributions(_ context.Context, rationID uuid.UUID, limit int) ([]models.Distribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Distribution
	for _, d := range m.state.distributions {
		if d.RationID == rationID {
			d.SiteName = m.state.siteNames[d.SiteID]
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

// SetRationStatus changes a card's status, as a closing or suspension would.
func (m *MemoryStore) SetRationStatus(cardNumber string, status models.RationStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.state.byCard[strings.ToUpper(cardNumber)]
	if !ok {
		return false
	}
	r := m.state.rations[id]
	r.Status = status
	m.state.rations[id] = r
	return true
}

// Counts reports beneficiaries, rations, distributions and signatures.
func (m *MemoryStore) Counts() (beneficiaries, rations, distributions, signatures int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.beneficiaries), len(m.state.rations), len(m.state.distributions), len(m.state.signatures)
}

type memoryTx struct {
	state  *memoryState
	events []outbox.Entry
}

func (t *memoryTx) Lock(context.Context, string) error {
	return nil
}

func (t *memoryTx) UpsertSite(_ context.Context, name, _ string) (int64, error) {
	key := strings.ToLower(name)
	if id, ok := t.state.siteByKey[key]; ok {
		return id, nil
	}
	t.state.siteSeq++
	t.state.siteByKey[key] = t.state.siteSeq
	t.state.siteNames[t.state.siteSeq] = name
	return t.state.siteSeq, nil
}

func (t *memoryTx) FindBeneficiary(_ context.Context, key models.BeneficiaryKey) (*models.Beneficiary, error) {
	id, ok := t.state.byKey[key.String()]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	b := t.state.beneficiaries[id]
	b.SiteName = t.state.siteNames[b.SiteID]
	return &b, nil
}

func (t *memoryTx) InsertBeneficiary(_ context.Context, b *models.Beneficiary) error {
	key := models.BeneficiaryKey{
		FirstName: b.FirstName, LastName: b.LastName, DateOfBirth: b.DateOfBirth, SiteID: b.SiteID,
	}.String()
	if _, taken := t.state.byKey[key]; taken {
		return sentinel.ErrConflict
	}
	t.state.beneficiaries[b.ID] = *b
	t.state.byKey[key] = b.ID
	return nil
}

func (t *memoryTx) NextRegistrationNumber(context.Context) (int64, error) {
	t.state.regSeq++
	return t.state.regSeq, nil
}

func (t *memoryTx) NextCardNumber(context.Context) (int64, error) {
	t.state.cardSeq++
	return t.state.cardSeq, nil
}

func (t *memoryTx) ActiveRation(_ context.Context, beneficiaryID uuid.UUID) (*models.Ration, error) {
	for _, r := range t.state.rations {
		if r.BeneficiaryID == beneficiaryID && r.Status == models.RationActive {
			return &r, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (t *memoryTx) RationByCard(_ context.Context, cardNumber string) (*models.Ration, error) {
	id, ok := t.state.byCard[strings.ToUpper(cardNumber)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	r := t.state.rations[id]
	return &r, nil
}

func (t *memoryTx) InsertRation(_ context.Context, r *models.Ration) error {
	card := strings.ToUpper(r.CardNumber)
	if _, taken := t.state.byCard[card]; taken {
		return sentinel.ErrConflict
	}
	t.state.rations[r.ID] = *r
	t.state.byCard[card] = r.ID
	return nil
}

func (t *memoryTx) LastDistribution(_ context.Context, rationID uuid.UUID) (*models.Distribution, error) {
	var last *models.Distribution
	for i := range t.state.distributions {
		d := &t.state.distributions[i]
		if d.RationID == rationID && (last == nil || d.DistributionDate.After(last.DistributionDate)) {
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
