// Package composition applies validated composition changes to drugs, records
// them in the audit log and invalidates the substitute cache.
package composition

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

// progressEvery controls how often bulk loops report progress.
const progressEvery = 100

// ErrImportInProgress is reported when a second import starts before the first ends.
var ErrImportInProgress = errors.New("another import is already in progress")

// Compile-time check to ensure Service implements CompositionManager
var _ interfaces.CompositionManager = (*Service)(nil)

// Service implements the composition mutation flows.
type Service struct {
	repo      interfaces.DrugRepository
	validator interfaces.CompositionValidator
	audit     interfaces.AuditLog
	finder    interfaces.SubstituteFinder
	clock     clock.Clock

	importing atomic.Bool
}

// NewService wires the mutation flows to their collaborators.
func NewService(repo interfaces.DrugRepository, validator interfaces.CompositionValidator,
	auditLog interfaces.AuditLog, finder interfaces.SubstituteFinder, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{
		repo:      repo,
		validator: validator,
		audit:     auditLog,
		finder:    finder,
		clock:     clk,
	}
}

// UpdateComposition replaces a drug's salt links. A non-empty composition makes
// the drug ACTIVE, an empty one sends it back to SALT_PENDING.
func (s *Service) UpdateComposition(ctx context.Context, drugID string, links []entities.CompositionLink,
	mapping entities.MappingInfo, actor interfaces.Actor) (entities.Drug, error) {
	if err := s.validator.ValidateID(drugID); err != nil {
		return entities.Drug{}, apperrors.InvalidArgument(err.Error())
	}
	if err := mapping.Validate(); err != nil {
		return entities.Drug{}, apperrors.Validation(apperrors.CodeInvalidComposition, "mapping is invalid", []apperrors.Detail{{
			Code: entities.IssueInvalidOCR, Field: "ocrConfidence", Index: -1, Message: err.Error(),
		}})
	}
	if err := s.checkComposition(links); err != nil {
		return entities.Drug{}, err
	}

	updated, oldLinks, err := s.apply(ctx, drugID, links)
	if err != nil {
		return entities.Drug{}, err
	}

	if err := s.audit.LogUpdate(ctx, updated, oldLinks, mapping, actor.UserID, actor.UserName); err != nil {
		logging.Warn("Failed to audit composition update", "drug_id", drugID, "error", err)
	}
	s.invalidateDrug(ctx, drugID)

	logging.Info("Composition updated", "drug_id", drugID, "salts", len(updated.Links), "status", updated.Status)
	return updated, nil
}

// apply resolves salts and replaces the composition, returning the updated drug
// and its previous links.
func (s *Service) apply(ctx context.Context, drugID string, links []entities.CompositionLink) (entities.Drug, []entities.CompositionLink, error) {
	current, err := s.liveDrug(ctx, drugID)
	if err != nil {
		return entities.Drug{}, nil, err
	}

	resolved, err := s.resolve(ctx, links)
	if err != nil {
		return entities.Drug{}, nil, err
	}

	status := entities.StatusSaltPending
	if len(resolved) > 0 {
		status = entities.StatusActive
	}

	updated, err := s.repo.ReplaceComposition(ctx, drugID, resolved, status)
	if err != nil {
		return entities.Drug{}, nil, storeError(fmt.Sprintf("failed to update composition of drug %s", drugID), err)
	}
	return updated, current.Links, nil
}

// checkComposition turns validation errors into an apperrors validation error.
func (s *Service) checkComposition(links []entities.CompositionLink) error {
	for i, l := range links {
		if l.SaltName == "" {
			continue
		}
		if err := s.validator.ValidateInput(l.SaltName); err != nil {
			return apperrors.Validation(apperrors.CodeInvalidComposition, "composition is invalid", []apperrors.Detail{{
				Code:    entities.IssueSaltNameRequired,
				Field:   "name",
				Index:   i,
				Message: err.Error(),
			}})
		}
	}

	result := s.validator.ValidateComposition(links)
	if !result.Valid {
		return invalidComposition(result.Errors)
	}
	return nil
}

func invalidComposition(issues []entities.ValidationIssue) error {
	details := make([]apperrors.Detail, len(issues))
	for i, issue := range issues {
		details[i] = apperrors.Detail{
			Code:    issue.Code,
			Field:   issue.Field,
			Index:   issue.Index,
			Message: issue.Message,
		}
	}
	return apperrors.Validation(apperrors.CodeInvalidComposition, "composition is invalid", details)
}

// resolve assigns salt ids to links given by name and fills in order and role.
// Two names resolving to the same salt are rejected as duplicates.
func (s *Service) resolve(ctx context.Context, links []entities.CompositionLink) ([]entities.CompositionLink, error) {
	resolved := entities.CloneLinks(links)
	if resolved == nil {
		resolved = []entities.CompositionLink{}
	}

	for i := range resolved {
		l := &resolved[i]
		if l.SaltID == "" {
			salt, err := s.repo.ResolveSalt(ctx, l.SaltName)
			if err != nil {
				return nil, storeError(fmt.Sprintf("failed to resolve salt %q", l.SaltName), err)
			}
			l.SaltID = salt.ID
			l.SaltName = salt.Name
		}
		l.StrengthUnit = entities.NormalizeUnit(l.StrengthUnit)
		if l.Order == 0 {
			l.Order = i
		}
		if l.Role == "" {
			l.Role = entities.RoleSecondary
			if i == 0 {
				l.Role = entities.RolePrimary
			}
		}
	}

	if result := s.validator.ValidateComposition(resolved); !result.Valid {
		return nil, invalidComposition(result.Errors)
	}
	return resolved, nil
}

// liveDrug loads a drug and rejects soft-deleted ones.
func (s *Service) liveDrug(ctx context.Context, drugID string) (entities.Drug, error) {
	d, err := s.repo.GetDrug(ctx, drugID)
	if err != nil {
		return entities.Drug{}, storeError(fmt.Sprintf("failed to load drug %s", drugID), err)
	}
	if d.IsDeleted() {
		return entities.Drug{}, apperrors.BusinessLogic(apperrors.CodeAlreadyDeleted, fmt.Sprintf("drug %s has been deleted", drugID))
	}
	return d, nil
}

// storeError keeps application errors from the store and wraps anything else.
func storeError(message string, err error) error {
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return apperrors.Database(message, err)
}

func (s *Service) invalidateDrug(ctx context.Context, drugID string) {
	if err := s.finder.InvalidateCache(ctx, drugID); err != nil {
		logging.Warn("Failed to invalidate substitute cache", "drug_id", drugID, "error", err)
	}
}

func (s *Service) invalidateStore(ctx context.Context, storeID string) {
	if err := s.finder.InvalidateStoreCache(ctx, storeID); err != nil {
		logging.Warn("Failed to invalidate store substitute cache", "store_id", storeID, "error", err)
	}
}

// CreateDrug stores a new drug. A new drug may be a substitute for any drug of
// its store, so the whole store's cached results are dropped along with its own.
func (s *Service) CreateDrug(ctx context.Context, drug entities.Drug, actor interfaces.Actor) (entities.Drug, error) {
	if err := s.validator.ValidateID(drug.StoreID); err != nil {
		return entities.Drug{}, apperrors.InvalidArgument(err.Error())
	}
	if err := s.validator.ValidateInput(drug.Name); err != nil {
		return entities.Drug{}, apperrors.Validation(apperrors.CodeInvalidComposition, "drug name is invalid", []apperrors.Detail{{
			Code: "INVALID_NAME", Field: "name", Index: -1, Message: err.Error(),
		}})
	}
	if err := s.checkComposition(drug.Links); err != nil {
		return entities.Drug{}, err
	}

	resolved, err := s.resolve(ctx, drug.Links)
	if err != nil {
		return entities.Drug{}, err
	}
	drug.Links = resolved
	drug.DeletedAt = nil
	if drug.Status == "" {
		drug.Status = entities.StatusSaltPending
		if len(resolved) > 0 {
			drug.Status = entities.StatusActive
		}
	}

	created, err := s.repo.CreateDrug(ctx, drug)
	if err != nil {
		return entities.Drug{}, storeError("failed to create drug", err)
	}

	if err := s.audit.LogCreation(ctx, created, entities.MappingInfo{}, actor.UserID, actor.UserName); err != nil {
		logging.Warn("Failed to audit drug creation", "drug_id", created.ID, "error", err)
	}
	s.invalidateDrug(ctx, created.ID)
	s.invalidateStore(ctx, created.StoreID)

	logging.Info("Drug created", "drug_id", created.ID, "store_id", created.StoreID, "status", created.Status)
	return created, nil
}

// DeleteDrug soft-deletes a drug. Deleting twice is a business-logic error.
func (s *Service) DeleteDrug(ctx context.Context, drugID string, actor interfaces.Actor) error {
	if err := s.validator.ValidateID(drugID); err != nil {
		return apperrors.InvalidArgument(err.Error())
	}

	d, err := s.liveDrug(ctx, drugID)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, drugID, s.clock.Now()); err != nil {
		return storeError(fmt.Sprintf("failed to delete drug %s", drugID), err)
	}

	if err := s.audit.LogDeletion(ctx, d, actor.UserID, actor.UserName); err != nil {
		logging.Warn("Failed to audit drug deletion", "drug_id", drugID, "error", err)
	}
	// Cached results of other drugs may list this one as a substitute
	s.invalidateDrug(ctx, drugID)
	s.invalidateStore(ctx, d.StoreID)

	logging.Info("Drug deleted", "drug_id", drugID)
	return nil
}

// Activate moves a drug with a valid composition to ACTIVE.
func (s *Service) Activate(ctx context.Context, drugID string, actor interfaces.Actor) (entities.Drug, error) {
	if err := s.validator.ValidateID(drugID); err != nil {
		return entities.Drug{}, apperrors.InvalidArgument(err.Error())
	}

	d, err := s.liveDrug(ctx, drugID)
	if err != nil {
		return entities.Drug{}, err
	}

	result := s.validator.ValidateActivation(d)
	if !result.Valid {
		if len(d.Links) == 0 {
			return entities.Drug{}, apperrors.BusinessLogic(apperrors.CodeNoComposition,
				fmt.Sprintf("drug %s has no composition", drugID))
		}
		return entities.Drug{}, invalidComposition(result.Errors)
	}

	if d.Status != entities.StatusActive {
		if err := s.repo.SetStatus(ctx, drugID, entities.StatusActive); err != nil {
			return entities.Drug{}, storeError(fmt.Sprintf("failed to activate drug %s", drugID), err)
		}
		d.Status = entities.StatusActive
		s.invalidateDrug(ctx, drugID)
		s.invalidateStore(ctx, d.StoreID)
	}

	logging.Info("Drug activated", "drug_id", drugID, "user_id", actor.UserID)
	return d, nil
}
