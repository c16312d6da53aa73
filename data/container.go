// Package data provides the in-memory drug repository. Readers load an immutable
// snapshot through an atomic pointer; writers copy, modify and swap it, so
// lookups never block on mutations.
package data

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

// Compile-time check to ensure DrugContainer implements DrugRepository
var _ interfaces.DrugRepository = (*DrugContainer)(nil)

type snapshot struct {
	drugs       map[string]entities.Drug
	salts       map[string]entities.Salt
	saltsByName map[string]string // normalised name or alias -> salt id
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		drugs:       make(map[string]entities.Drug, len(s.drugs)+1),
		salts:       make(map[string]entities.Salt, len(s.salts)+1),
		saltsByName: make(map[string]string, len(s.saltsByName)+1),
	}
	for k, v := range s.drugs {
		out.drugs[k] = v
	}
	for k, v := range s.salts {
		out.salts[k] = v
	}
	for k, v := range s.saltsByName {
		out.saltsByName[k] = v
	}
	return out
}

// DrugContainer holds drugs and salts with atomic snapshot swaps
type DrugContainer struct {
	state       atomic.Pointer[snapshot]
	writeMu     sync.Mutex
	lastUpdated atomic.Value // time.Time
	updating    atomic.Bool
	clock       clock.Clock
}

// NewDrugContainer creates an empty container
func NewDrugContainer(clk clock.Clock) *DrugContainer {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	dc := &DrugContainer{clock: clk}
	dc.state.Store(&snapshot{
		drugs:       make(map[string]entities.Drug),
		salts:       make(map[string]entities.Salt),
		saltsByName: make(map[string]string),
	})
	dc.lastUpdated.Store(time.Time{})
	return dc
}

// mutate applies fn to a private copy of the current snapshot and publishes it
// when fn succeeds.
func (dc *DrugContainer) mutate(fn func(s *snapshot) error) error {
	dc.writeMu.Lock()
	defer dc.writeMu.Unlock()

	next := dc.state.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	dc.state.Store(next)
	dc.lastUpdated.Store(dc.clock.Now())
	return nil
}

func notFound(drugID string) error {
	return apperrors.NotFound(apperrors.CodeDrugNotFound, fmt.Sprintf("drug %s not found", drugID))
}

// LoadData atomically replaces all drugs and salts
func (dc *DrugContainer) LoadData(drugs []entities.Drug, salts []entities.Salt) {
	next := &snapshot{
		drugs:       make(map[string]entities.Drug, len(drugs)),
		salts:       make(map[string]entities.Salt, len(salts)),
		saltsByName: make(map[string]string, len(salts)),
	}
	for _, s := range salts {
		indexSalt(next, s)
	}
	for _, d := range drugs {
		next.drugs[d.ID] = d.Clone()
	}

	dc.writeMu.Lock()
	dc.state.Store(next)
	dc.writeMu.Unlock()
	dc.lastUpdated.Store(dc.clock.Now())
}

func indexSalt(s *snapshot, salt entities.Salt) {
	s.salts[salt.ID] = salt
	s.saltsByName[entities.NormalizeSaltName(salt.Name)] = salt.ID
	for _, alias := range salt.Aliases {
		if key := entities.NormalizeSaltName(alias); key != "" {
			if _, taken := s.saltsByName[key]; !taken {
				s.saltsByName[key] = salt.ID
			}
		}
	}
}

// GetDrug returns a copy of the drug, including soft-deleted ones
func (dc *DrugContainer) GetDrug(ctx context.Context, drugID string) (entities.Drug, error) {
	d, ok := dc.state.Load().drugs[drugID]
	if !ok {
		return entities.Drug{}, notFound(drugID)
	}
	return d.Clone(), nil
}

// FindCandidates returns drugs sharing any salt with the query, ordered by id
func (dc *DrugContainer) FindCandidates(ctx context.Context, q interfaces.CandidateQuery) ([]entities.Drug, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(q.SaltIDs))
	for _, id := range q.SaltIDs {
		wanted[id] = struct{}{}
	}

	var out []entities.Drug
	for _, d := range dc.state.Load().drugs {
		if d.ID == q.ExcludeDrugID || d.StoreID != q.StoreID || d.IsDeleted() {
			continue
		}
		if q.Status != "" && d.Status != q.Status {
			continue
		}
		if !sharesSalt(d, wanted) {
			continue
		}
		out = append(out, d.Clone())
	}

	slices.SortFunc(out, func(a, b entities.Drug) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func sharesSalt(d entities.Drug, wanted map[string]struct{}) bool {
	for _, l := range d.Links {
		if _, ok := wanted[l.SaltID]; ok {
			return true
		}
	}
	return false
}

// CountActive counts ACTIVE, non-deleted drugs of a store
func (dc *DrugContainer) CountActive(ctx context.Context, storeID string) (int, error) {
	n := 0
	for _, d := range dc.state.Load().drugs {
		if d.StoreID == storeID && d.Status == entities.StatusActive && !d.IsDeleted() {
			n++
		}
	}
	return n, nil
}

func (dc *DrugContainer) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ResolveSalt finds a salt by normalised name or alias, creating it when missing
func (dc *DrugContainer) ResolveSalt(ctx context.Context, name string) (entities.Salt, error) {
	key := entities.NormalizeSaltName(name)
	if key == "" {
		return entities.Salt{}, apperrors.Validation(entities.IssueSaltNameRequired, "salt name is required", nil)
	}

	if id, ok := dc.state.Load().saltsByName[key]; ok {
		return dc.state.Load().salts[id], nil
	}

	var salt entities.Salt
	err := dc.mutate(func(s *snapshot) error {
		// Another writer may have created it since the lock-free lookup
		if id, ok := s.saltsByName[key]; ok {
			salt = s.salts[id]
			return nil
		}
		salt = entities.Salt{ID: uuid.NewString(), Name: name}
		indexSalt(s, salt)
		logging.Debug("Created salt", "salt_id", salt.ID, "name", name)
		return nil
	})
	return salt, err
}

// CreateDrug stores a new drug, assigning an id when none is set
func (dc *DrugContainer) CreateDrug(ctx context.Context, drug entities.Drug) (entities.Drug, error) {
	if drug.ID == "" {
		drug.ID = uuid.NewString()
	}
	drug.UpdatedAt = dc.clock.Now()

	err := dc.mutate(func(s *snapshot) error {
		if _, exists := s.drugs[drug.ID]; exists {
			return apperrors.BusinessLogic("DRUG_EXISTS", fmt.Sprintf("drug %s already exists", drug.ID))
		}
		s.drugs[drug.ID] = drug.Clone()
		return nil
	})
	if err != nil {
		return entities.Drug{}, err
	}
	return drug.Clone(), nil
}

// ReplaceComposition swaps a drug's links and status
func (dc *DrugContainer) ReplaceComposition(ctx context.Context, drugID string, links []entities.CompositionLink,
	status entities.IngestionStatus) (entities.Drug, error) {
	var updated entities.Drug
	err := dc.mutate(func(s *snapshot) error {
		d, ok := s.drugs[drugID]
		if !ok {
			return notFound(drugID)
		}
		d = d.Clone()
		d.Links = entities.CloneLinks(links)
		d.Status = status
		d.UpdatedAt = dc.clock.Now()
		s.drugs[drugID] = d
		updated = d.Clone()
		return nil
	})
	return updated, err
}

// SetStatus changes a drug's ingestion status
func (dc *DrugContainer) SetStatus(ctx context.Context, drugID string, status entities.IngestionStatus) error {
	return dc.mutate(func(s *snapshot) error {
		d, ok := s.drugs[drugID]
		if !ok {
			return notFound(drugID)
		}
		d.Status = status
		d.UpdatedAt = dc.clock.Now()
		s.drugs[drugID] = d
		return nil
	})
}

// SoftDelete marks a drug as deleted; it stays readable through GetDrug
func (dc *DrugContainer) SoftDelete(ctx context.Context, drugID string, at time.Time) error {
	return dc.mutate(func(s *snapshot) error {
		d, ok := s.drugs[drugID]
		if !ok {
			return notFound(drugID)
		}
		d.DeletedAt = &at
		d.UpdatedAt = at
		s.drugs[drugID] = d
		return nil
	})
}

// AddBatch records an inventory batch for a drug
func (dc *DrugContainer) AddBatch(ctx context.Context, drugID string, batch entities.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return dc.mutate(func(s *snapshot) error {
		d, ok := s.drugs[drugID]
		if !ok {
			return notFound(drugID)
		}
		d = d.Clone()
		if batch.ID == "" {
			batch.ID = uuid.NewString()
		}
		d.Batches = append(d.Batches, batch)
		s.drugs[drugID] = d
		return nil
	})
}

// Len returns the number of drugs, including soft-deleted ones
func (dc *DrugContainer) Len() int {
	return len(dc.state.Load().drugs)
}

// GetLastUpdated returns the timestamp of the last data change
func (dc *DrugContainer) GetLastUpdated() time.Time {
	if v := dc.lastUpdated.Load(); v != nil {
		if lastUpdated, ok := v.(time.Time); ok {
			return lastUpdated
		}
	}

	logging.Warn("Could not get the last updated value")
	return time.Time{}
}

// IsUpdating returns true while a seed load is in progress
func (dc *DrugContainer) IsUpdating() bool {
	return dc.updating.Load()
}

// BeginUpdate marks the start of a seed load.
// Returns true if the load can proceed, false if another one is in progress
func (dc *DrugContainer) BeginUpdate() bool {
	return dc.updating.CompareAndSwap(false, true)
}

// EndUpdate marks the end of a seed load
func (dc *DrugContainer) EndUpdate() {
	dc.updating.Store(false)
}
