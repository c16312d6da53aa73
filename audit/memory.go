package audit

import (
	"context"
	"sync"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Compile-time check to ensure InMemoryRepository implements AuditRepository
var _ interfaces.AuditRepository = (*InMemoryRepository)(nil)

// InMemoryRepository keeps entries in insertion order. Used in development and
// tests. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries []entities.AuditLogEntry
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Append(ctx context.Context, entry entities.AuditLogEntry) error {
	entry.OldComposition = entities.CloneLinks(entry.OldComposition)
	entry.NewComposition = entities.CloneLinks(entry.NewComposition)

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

// Query walks entries newest first. A non-positive limit returns every match.
func (r *InMemoryRepository) Query(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditLogEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		results []entities.AuditLogEntry
		total   int
	)
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !filter.Matches(e) {
			continue
		}
		total++
		if total <= filter.Offset {
			continue
		}
		if filter.Limit > 0 && len(results) >= filter.Limit {
			continue
		}
		// Return copies to prevent external modification
		e.OldComposition = entities.CloneLinks(e.OldComposition)
		e.NewComposition = entities.CloneLinks(e.NewComposition)
		results = append(results, e)
	}

	return results, total, nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
