// Package store provides pdc.Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lease-engine/pdc"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	records     map[string]pdc.Record
	byCheque    map[string]string // cheque number -> record id
	withdrawals []pdc.WithdrawalRecord
}

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]pdc.Record),
		byCheque: make(map[string]string),
	}
}

// Compile-time check that Memory implements pdc.Store.
var _ pdc.Store = (*Memory)(nil)

func (m *Memory) Insert(_ context.Context, rec pdc.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byCheque[rec.ChequeNumber]; taken {
		return pdc.ErrDuplicateCheque
	}
	m.records[rec.ID] = rec
	m.byCheque[rec.ChequeNumber] = rec.ID
	return nil
}

// InsertBatch is all-or-nothing: every failing item is reported and
// nothing is written unless the whole batch is clean.
func (m *Memory) InsertBatch(_ context.Context, recs []pdc.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var failures []pdc.BatchFailure
	for i, rec := range recs {
		if _, taken := m.byCheque[rec.ChequeNumber]; taken {
			failures = append(failures, pdc.BatchFailure{
				Index:        i,
				ChequeNumber: rec.ChequeNumber,
				Reason:       "cheque number already registered",
			})
		}
	}
	if len(failures) > 0 {
		return &pdc.BatchError{Failures: failures}
	}

	for _, rec := range recs {
		m.records[rec.ID] = rec
		m.byCheque[rec.ChequeNumber] = rec.ID
	}
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*pdc.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, pdc.ErrNotFound
	}
	return &rec, nil
}

func (m *Memory) Update(_ context.Context, rec pdc.Record, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(rec, expectedVersion)
}

func (m *Memory) updateLocked(rec pdc.Record, expectedVersion int) error {
	current, ok := m.records[rec.ID]
	if !ok {
		return pdc.ErrNotFound
	}
	if current.Version != expectedVersion {
		return pdc.ErrConflict
	}
	rec.Version = expectedVersion + 1
	m.records[rec.ID] = rec
	return nil
}

func (m *Memory) CreateReplacement(_ context.Context, original pdc.Record, expectedVersion int, replacement pdc.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.byCheque[replacement.ChequeNumber]; taken {
		return pdc.ErrDuplicateCheque
	}
	if err := m.updateLocked(original, expectedVersion); err != nil {
		return err
	}
	m.records[replacement.ID] = replacement
	m.byCheque[replacement.ChequeNumber] = replacement.ID
	return nil
}

func (m *Memory) AppendWithdrawal(_ context.Context, rec pdc.Record, expectedVersion int, wr pdc.WithdrawalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.updateLocked(rec, expectedVersion); err != nil {
		return err
	}
	m.withdrawals = append(m.withdrawals, wr)
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (m *Memory) List(_ context.Context, f pdc.ListFilter) ([]pdc.Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	asOf := f.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	var matched []pdc.Record
	for _, rec := range m.records {
		if matchesFilter(rec, f, asOf) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ChequeDate.Equal(matched[j].ChequeDate) {
			return matched[i].ChequeDate.Before(matched[j].ChequeDate)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	return paginate(matched, f.Limit, f.Offset), total, nil
}

func matchesFilter(rec pdc.Record, f pdc.ListFilter, asOf time.Time) bool {
	if f.Status != "" && rec.EffectiveStatus(asOf) != f.Status {
		return false
	}
	if f.TenantRef != "" && rec.TenantRef != f.TenantRef {
		return false
	}
	if f.BankName != "" && !strings.EqualFold(rec.BankName, f.BankName) {
		return false
	}
	if f.ChequeDateFrom != nil && rec.ChequeDate.Before(*f.ChequeDateFrom) {
		return false
	}
	if f.ChequeDateTo != nil && rec.ChequeDate.After(*f.ChequeDateTo) {
		return false
	}
	return true
}

func (m *Memory) Summary(_ context.Context, asOf time.Time) ([]pdc.StatusSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	byStatus := make(map[pdc.Status]*pdc.StatusSummary)
	for _, rec := range m.records {
		status := rec.EffectiveStatus(asOf)
		s, ok := byStatus[status]
		if !ok {
			s = &pdc.StatusSummary{Status: status, Total: decimal.Zero}
			byStatus[status] = s
		}
		s.Count++
		s.Total = s.Total.Add(rec.Amount)
	}

	out := make([]pdc.StatusSummary, 0, len(byStatus))
	for _, s := range byStatus {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (m *Memory) ListWithdrawals(_ context.Context, f pdc.WithdrawalFilter) ([]pdc.WithdrawalRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []pdc.WithdrawalRecord
	for _, wr := range m.withdrawals {
		if matchesWithdrawalFilter(wr, f) {
			matched = append(matched, wr)
		}
	}
	sortWithdrawals(matched, f.SortBy, f.SortDesc)

	total := len(matched)
	return paginate(matched, f.Limit, f.Offset), total, nil
}

func matchesWithdrawalFilter(wr pdc.WithdrawalRecord, f pdc.WithdrawalFilter) bool {
	if f.Reason != "" && !strings.EqualFold(wr.Reason, f.Reason) {
		return false
	}
	if f.From != nil && wr.WithdrawnAt.Before(*f.From) {
		return false
	}
	if f.To != nil && wr.WithdrawnAt.After(*f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(wr.ChequeNumber), needle) &&
			!strings.Contains(strings.ToLower(wr.TenantRef), needle) {
			return false
		}
	}
	return true
}

func sortWithdrawals(ws []pdc.WithdrawalRecord, sortBy string, desc bool) {
	less := func(i, j int) bool {
		switch sortBy {
		case pdc.SortReason:
			return ws[i].Reason < ws[j].Reason
		case pdc.SortChequeNumber:
			return ws[i].ChequeNumber < ws[j].ChequeNumber
		case pdc.SortCreatedAt:
			return ws[i].CreatedAt.Before(ws[j].CreatedAt)
		default: // pdc.SortWithdrawnAt
			return ws[i].WithdrawnAt.Before(ws[j].WithdrawnAt)
		}
	}
	if desc {
		sort.SliceStable(ws, func(i, j int) bool { return less(j, i) })
	} else {
		sort.SliceStable(ws, less)
	}
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > len(items) {
		offset = len(items)
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
