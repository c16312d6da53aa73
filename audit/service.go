// Package audit records every change to a drug's salt composition and answers
// queries over that history. Entries are append-only.
package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/metrics"
)

// Query pagination bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 500

	// MaxExportRows caps a single CSV export.
	MaxExportRows = 10000
)

// Compile-time check to ensure Service implements AuditLog
var _ interfaces.AuditLog = (*Service)(nil)

// Service appends audit entries to a repository and optionally forwards them
// to a publisher. Publisher failures are logged and never returned.
type Service struct {
	repo      interfaces.AuditRepository
	publisher interfaces.AuditPublisher
	clock     clock.Clock
}

// NewService creates an audit service. publisher may be nil.
func NewService(repo interfaces.AuditRepository, publisher interfaces.AuditPublisher, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{repo: repo, publisher: publisher, clock: clk}
}

func (s *Service) append(ctx context.Context, entry entities.AuditLogEntry) error {
	entry.ID = uuid.NewString()
	entry.Timestamp = s.clock.Now().UTC()
	if entry.UserID == "" {
		entry.UserID = entities.SystemUserID
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		metrics.AuditEntriesTotal.WithLabelValues(string(entry.Action), "error").Inc()
		return apperrors.Database(fmt.Sprintf("failed to record %s audit for drug %s", entry.Action, entry.DrugID), err)
	}
	metrics.AuditEntriesTotal.WithLabelValues(string(entry.Action), "ok").Inc()

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, entry); err != nil {
			logging.Warn("Failed to publish audit entry", "audit_id", entry.ID, "drug_id", entry.DrugID, "error", err)
		}
	}
	return nil
}

// LogCreation records a new drug's initial composition.
func (s *Service) LogCreation(ctx context.Context, drug entities.Drug, mapping entities.MappingInfo, userID, userName string) error {
	entry := entities.AuditLogEntry{
		DrugID:         drug.ID,
		DrugName:       drug.Name,
		UserID:         userID,
		UserName:       userName,
		Action:         entities.AuditCreated,
		OldComposition: []entities.CompositionLink{},
		NewComposition: entities.CloneLinks(drug.Links),
	}
	mapping.Apply(&entry)
	return s.append(ctx, entry)
}

// LogUpdate records a composition replacement.
func (s *Service) LogUpdate(ctx context.Context, drug entities.Drug, oldLinks []entities.CompositionLink,
	mapping entities.MappingInfo, userID, userName string) error {
	entry := entities.AuditLogEntry{
		DrugID:         drug.ID,
		DrugName:       drug.Name,
		UserID:         userID,
		UserName:       userName,
		Action:         entities.AuditUpdated,
		OldComposition: entities.CloneLinks(oldLinks),
		NewComposition: entities.CloneLinks(drug.Links),
	}
	mapping.Apply(&entry)
	return s.append(ctx, entry)
}

// LogDeletion records a soft delete.
func (s *Service) LogDeletion(ctx context.Context, drug entities.Drug, userID, userName string) error {
	return s.append(ctx, entities.AuditLogEntry{
		DrugID:         drug.ID,
		DrugName:       drug.Name,
		UserID:         userID,
		UserName:       userName,
		Action:         entities.AuditDeleted,
		OldComposition: entities.CloneLinks(drug.Links),
		NewComposition: []entities.CompositionLink{},
	})
}

// LogBulkCorrection records one UPDATED entry per item, all sharing batchID.
// Every item is attempted; the returned error joins the individual failures.
func (s *Service) LogBulkCorrection(ctx context.Context, items []interfaces.BulkAuditItem, batchID, userID, userName string) (int, error) {
	var (
		logged int
		errs   []error
	)
	for _, item := range items {
		entry := entities.AuditLogEntry{
			DrugID:         item.Drug.ID,
			DrugName:       item.Drug.Name,
			UserID:         userID,
			UserName:       userName,
			Action:         entities.AuditUpdated,
			BatchID:        batchID,
			OldComposition: entities.CloneLinks(item.OldLinks),
			NewComposition: entities.CloneLinks(item.Drug.Links),
		}
		item.Mapping.Apply(&entry)
		if err := s.append(ctx, entry); err != nil {
			errs = append(errs, err)
			continue
		}
		logged++
	}
	return logged, errors.Join(errs...)
}

// NormalizeFilter applies the default and maximum page size.
func NormalizeFilter(f entities.AuditFilter) entities.AuditFilter {
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultLimit
	case f.Limit > MaxLimit:
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Query returns one page of matching entries, newest first.
func (s *Service) Query(ctx context.Context, filter entities.AuditFilter) (entities.AuditPage, error) {
	filter = NormalizeFilter(filter)

	entries, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return entities.AuditPage{}, apperrors.Database("failed to query audit log", err)
	}
	if entries == nil {
		entries = []entities.AuditLogEntry{}
	}

	return entities.AuditPage{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// ExportCSV renders every matching entry, newest first, up to MaxExportRows.
func (s *Service) ExportCSV(ctx context.Context, filter entities.AuditFilter) ([]byte, error) {
	filter.Limit = MaxExportRows
	filter.Offset = 0

	entries, _, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, apperrors.Database("failed to query audit log for export", err)
	}
	return WriteCSV(entries)
}

// statisticsRepository is implemented by repositories that aggregate in the
// store instead of returning every matching row.
type statisticsRepository interface {
	Statistics(ctx context.Context, filter entities.AuditFilter) (entities.AuditStatistics, error)
}

type statistics struct {
	entities.AuditStatistics
}

func newStatistics() statistics {
	return statistics{entities.AuditStatistics{
		ByAction: map[entities.AuditAction]int{
			entities.AuditCreated: 0,
			entities.AuditUpdated: 0,
			entities.AuditDeleted: 0,
		},
	}}
}

func (s *statistics) add(action entities.AuditAction, autoMapped bool, n int) {
	s.Total += n
	s.ByAction[action] += n
	if autoMapped {
		s.AutoMapped += n
	} else {
		s.Manual += n
	}
}

// Statistics aggregates matching entries by action and mapping origin.
func (s *Service) Statistics(ctx context.Context, filter entities.AuditFilter) (entities.AuditStatistics, error) {
	filter.Limit = 0
	filter.Offset = 0

	if agg, ok := s.repo.(statisticsRepository); ok {
		stats, err := agg.Statistics(ctx, filter)
		if err != nil {
			return entities.AuditStatistics{}, apperrors.Database("failed to aggregate audit log", err)
		}
		return stats, nil
	}

	entries, _, err := s.repo.Query(ctx, filter)
	if err != nil {
		return entities.AuditStatistics{}, apperrors.Database("failed to query audit log for statistics", err)
	}

	stats := newStatistics()
	for _, e := range entries {
		stats.add(e.Action, e.AutoMapped, 1)
	}
	return stats.AuditStatistics, nil
}
