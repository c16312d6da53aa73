package composition

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/metrics"
)

// BulkUpdate applies each update independently in order. Failures are itemised
// in the result and never abort the remaining items. All successful updates share
// one audit batch id.
func (s *Service) BulkUpdate(ctx context.Context, updates []entities.CompositionUpdate, actor interfaces.Actor) entities.BulkResult {
	start := time.Now()
	result := entities.BulkResult{
		BatchID: uuid.NewString(),
		Total:   len(updates),
		Errors:  []entities.BulkItemError{},
	}

	valid, invalid := s.validator.ValidateBulkUpdate(updates)
	for _, item := range invalid {
		result.Fail(item)
	}

	audited := make([]interfaces.BulkAuditItem, 0, len(valid))
	for i, u := range valid {
		if err := ctx.Err(); err != nil {
			result.Fail(entities.BulkItemError{DrugID: u.DrugID, Error: err.Error()})
			continue
		}

		if err := s.checkComposition(u.Links); err != nil {
			result.Fail(entities.BulkItemError{DrugID: u.DrugID, Error: err.Error()})
			continue
		}

		updated, oldLinks, err := s.apply(ctx, u.DrugID, u.Links)
		if err != nil {
			result.Fail(entities.BulkItemError{DrugID: u.DrugID, Error: err.Error()})
			continue
		}
		result.Successful++
		audited = append(audited, interfaces.BulkAuditItem{Drug: updated, OldLinks: oldLinks, Mapping: u.MappingInfo})
		s.invalidateDrug(ctx, u.DrugID)

		if (i+1)%progressEvery == 0 {
			logging.Info("Bulk composition update progress", "batch_id", result.BatchID,
				"processed", i+1, "of", len(valid))
		}
	}

	if len(audited) > 0 {
		logged, err := s.audit.LogBulkCorrection(ctx, audited, result.BatchID, actor.UserID, actor.UserName)
		if err != nil {
			logging.Warn("Failed to audit some bulk corrections", "batch_id", result.BatchID,
				"logged", logged, "expected", len(audited), "error", err)
		}
	}

	metrics.BulkItemsTotal.WithLabelValues("bulk_update", "success").Add(float64(result.Successful))
	metrics.BulkItemsTotal.WithLabelValues("bulk_update", "failed").Add(float64(result.Failed))

	logging.Info("Bulk composition update finished", "batch_id", result.BatchID, "total", result.Total,
		"successful", result.Successful, "failed", result.Failed, "duration", time.Since(start))
	return result
}

// ImportMedicines creates one drug per record in the given store. Only one import
// runs at a time; a concurrent call fails every record with ErrImportInProgress.
func (s *Service) ImportMedicines(ctx context.Context, storeID string, records []entities.ImportRecord, actor interfaces.Actor) entities.BulkResult {
	start := time.Now()
	result := entities.BulkResult{
		BatchID: uuid.NewString(),
		Total:   len(records),
		Errors:  []entities.BulkItemError{},
	}

	if err := s.validator.ValidateID(storeID); err != nil {
		for _, rec := range records {
			result.Fail(entities.BulkItemError{Line: rec.Line, Error: err.Error()})
		}
		return result
	}

	if !s.importing.CompareAndSwap(false, true) {
		logging.Warn("Import rejected, another import is running", "store_id", storeID)
		for _, rec := range records {
			result.Fail(entities.BulkItemError{Line: rec.Line, Error: ErrImportInProgress.Error()})
		}
		return result
	}
	defer s.importing.Store(false)

	valid, invalid := s.validator.ValidateImport(records)
	for _, item := range invalid {
		result.Fail(item)
	}

	for i, rec := range valid {
		if err := ctx.Err(); err != nil {
			result.Fail(entities.BulkItemError{Line: rec.Line, Error: err.Error()})
			continue
		}

		drug := entities.Drug{
			Name:         rec.Name,
			Manufacturer: rec.Manufacturer,
			Form:         rec.Form,
			StoreID:      storeID,
			Links:        rec.Links,
		}
		created, err := s.createForImport(ctx, drug, actor)
		if err != nil {
			result.Fail(entities.BulkItemError{Line: rec.Line, Error: err.Error()})
			continue
		}
		result.Successful++
		logging.Debug("Imported medicine", "line", rec.Line, "drug_id", created.ID)

		if (i+1)%progressEvery == 0 {
			logging.Info("Import progress", "batch_id", result.BatchID, "processed", i+1, "of", len(valid))
		}
	}

	if result.Successful > 0 {
		s.invalidateStore(ctx, storeID)
	}

	metrics.BulkItemsTotal.WithLabelValues("import", "success").Add(float64(result.Successful))
	metrics.BulkItemsTotal.WithLabelValues("import", "failed").Add(float64(result.Failed))

	logging.Info("Import finished", "batch_id", result.BatchID, "store_id", storeID, "total", result.Total,
		"successful", result.Successful, "failed", result.Failed, "duration", time.Since(start))
	return result
}

// createForImport is CreateDrug without the per-drug store invalidation. Salts of
// an imported row are parsed from its composition text, so the entry is auto-mapped.
func (s *Service) createForImport(ctx context.Context, drug entities.Drug, actor interfaces.Actor) (entities.Drug, error) {
	if err := s.checkComposition(drug.Links); err != nil {
		return entities.Drug{}, err
	}
	resolved, err := s.resolve(ctx, drug.Links)
	if err != nil {
		return entities.Drug{}, err
	}
	drug.Links = resolved
	drug.Status = entities.StatusSaltPending
	if len(resolved) > 0 {
		drug.Status = entities.StatusActive
	}

	created, err := s.repo.CreateDrug(ctx, drug)
	if err != nil {
		return entities.Drug{}, storeError("failed to create drug", err)
	}
	if err := s.audit.LogCreation(ctx, created, entities.MappingInfo{AutoMapped: true}, actor.UserID, actor.UserName); err != nil {
		logging.Warn("Failed to audit imported drug", "drug_id", created.ID, "error", err)
	}
	return created, nil
}
