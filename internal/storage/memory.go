package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// MemoryStore keeps everything in process memory. It backs development
// setups and tests that do not want a database file around.
type MemoryStore struct {
	mu      sync.Mutex
	txs     map[string][]core.Transaction
	plans   map[string][]core.BudgetPlan
	imports map[string][]core.ImportRecord
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		txs:     map[string][]core.Transaction{},
		plans:   map[string][]core.BudgetPlan{},
		imports: map[string][]core.ImportRecord{},
	}
}

func (s *MemoryStore) SaveTransactions(_ context.Context, workspace string, transactions []core.Transaction) error {
	// Validate everything before touching state so a bad row in the middle
	// of a batch does not leave a partial import behind.
	stamped := make([]core.Transaction, len(transactions))
	for i, t := range transactions {
		if err := t.Validate(); err != nil {
			return err
		}
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		stamped[i] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[workspace] = append(s.txs[workspace], stamped...)
	return nil
}

func (s *MemoryStore) ListTransactions(_ context.Context, workspace string) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Transaction(nil), s.txs[workspace]...), nil
}

func (s *MemoryStore) TransactionsInRange(_ context.Context, workspace string, start, end time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Transaction
	for _, t := range s.txs[workspace] {
		if !t.Date.Before(start) && t.Date.Before(end) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountTransactions(_ context.Context, workspace string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.txs[workspace])), nil
}

func (s *MemoryStore) DeleteBySourceFile(_ context.Context, workspace, sourceFile string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.txs[workspace][:0]
	var removed int64
	for _, t := range s.txs[workspace] {
		if t.SourceFile == sourceFile {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.txs[workspace] = kept
	return removed, nil
}

func (s *MemoryStore) SavePlan(_ context.Context, workspace string, plan core.BudgetPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	plans := s.plans[workspace]
	for i, p := range plans {
		if p.ID == plan.ID {
			plans[i] = plan
			return nil
		}
	}
	s.plans[workspace] = append(plans, plan)
	return nil
}

func (s *MemoryStore) PlanForDate(_ context.Context, workspace string, date time.Time) (core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	best := -1
	plans := s.plans[workspace]
	for i, p := range plans {
		if p.Covers(date) && (best < 0 || p.ValidFrom.After(plans[best].ValidFrom)) {
			best = i
		}
	}
	if best < 0 {
		return core.BudgetPlan{}, core.ErrPlanNotFound
	}
	return plans[best], nil
}

func (s *MemoryStore) ListPlans(_ context.Context, workspace string) ([]core.BudgetPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.BudgetPlan(nil), s.plans[workspace]...), nil
}

func (s *MemoryStore) RecordImport(_ context.Context, record core.ImportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID
	if record.ImportedAt.IsZero() {
		record.ImportedAt = time.Now().UTC()
	}
	s.imports[record.Workspace] = append(s.imports[record.Workspace], record)
	return nil
}

func (s *MemoryStore) ListImports(_ context.Context, workspace string) ([]core.ImportRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := append([]core.ImportRecord(nil), s.imports[workspace]...)
	// Newest first, matching the SQLite ordering.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

func (s *MemoryStore) Close() error { return nil }
