package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"aidtrack/internal/reconciliation/models"
	"aidtrack/pkg/platform/sentinel"
)

// MemoryStore is the in-process store used by tests and by the server when no
// database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sites    map[string]int64
	waybills []models.Waybill
	records  []models.MPOSRecord
	numbers  map[string]struct{}
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sites:   make(map[string]int64),
		numbers: make(map[string]struct{}),
	}
}

func (s *MemoryStore) InsertWaybill(_ context.Context, w *models.Waybill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := w.WaybillNumber + "|" + strings.ToLower(w.Commodity)
	if _, ok := s.numbers[key]; ok {
		return sentinel.ErrConflict
	}
	s.numbers[key] = struct{}{}
	w.SiteID = s.site(w.SiteName)
	s.waybills = append(s.waybills, *w)
	return nil
}

func (s *MemoryStore) InsertMPOS(_ context.Context, r *models.MPOSRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.SiteID = s.site(r.SiteName)
	s.records = append(s.records, *r)
	return nil
}

func (s *MemoryStore) WaybillTotals(ctx context.Context, f models.Filter) ([]models.Total, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc := make(totals)
	for _, w := range s.waybills {
		if match(f, w.SiteName, w.ReceivedAt) {
			acc.add(w.Commodity, w.Unit, w.Quantity)
		}
	}
	return acc.list(), nil
}

func (s *MemoryStore) MPOSTotals(ctx context.Context, f models.Filter) ([]models.Total, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc := make(totals)
	for _, r := range s.records {
		if match(f, r.SiteName, r.DistributedAt) {
			acc.add(r.Commodity, r.Unit, r.Quantity)
		}
	}
	return acc.list(), nil
}

func (s *MemoryStore) site(name string) int64 {
	key := strings.ToLower(name)
	if id, ok := s.sites[key]; ok {
		return id
	}
	id := int64(len(s.sites) + 1)
	s.sites[key] = id
	return id
}

func match(f models.Filter, site string, at time.Time) bool {
	if f.SiteName != "" && !strings.EqualFold(f.SiteName, site) {
		return false
	}
	return !at.Before(f.From) && at.Before(f.To)
}

type totalKey struct {
	commodity string
	unit      models.Unit
}

type totals map[totalKey]decimal.Decimal

func (t totals) add(commodity string, unit models.Unit, q decimal.Decimal) {
	k := totalKey{commodity: commodity, unit: unit}
	t[k] = t[k].Add(q)
}

func (t totals) list() []models.Total {
	out := make([]models.Total, 0, len(t))
	for k, q := range t {
		out = append(out, models.Total{Commodity: k.commodity, Unit: k.unit, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Commodity != out[j].Commodity {
			return out[i].Commodity < out[j].Commodity
		}
		return out[i].Unit < out[j].Unit
	})
	return out
}
