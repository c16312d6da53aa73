// Package interfaces defines core abstractions for the substitute engine
// to improve testability, maintainability, and separation of concerns.
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

// CandidateQuery selects drugs that share at least one salt with a source drug.
type CandidateQuery struct {
	StoreID       string
	ExcludeDrugID string
	Status        entities.IngestionStatus
	SaltIDs       []string
}

// DrugStore defines the read contract for drug records.
// Soft-deleted drugs are never returned by FindCandidates or counted by CountActive.
type DrugStore interface {
	// GetDrug returns a drug with its links, or an apperrors not-found error
	GetDrug(ctx context.Context, drugID string) (entities.Drug, error)

	// FindCandidates returns drugs of the store with the given status that share
	// any salt with the query, each with its batches loaded
	FindCandidates(ctx context.Context, q CandidateQuery) ([]entities.Drug, error)

	CountActive(ctx context.Context, storeID string) (int, error)

	Ping(ctx context.Context) error
}

// CompositionWriter defines the write contract for drug compositions.
type CompositionWriter interface {
	// ResolveSalt finds a salt by normalised name, creating it when missing
	ResolveSalt(ctx context.Context, name string) (entities.Salt, error)

	// CreateDrug stores a new drug and returns it with its assigned id
	CreateDrug(ctx context.Context, drug entities.Drug) (entities.Drug, error)

	// ReplaceComposition swaps the drug's links and status in one step
	ReplaceComposition(ctx context.Context, drugID string, links []entities.CompositionLink,
		status entities.IngestionStatus) (entities.Drug, error)

	SetStatus(ctx context.Context, drugID string, status entities.IngestionStatus) error

	SoftDelete(ctx context.Context, drugID string, at time.Time) error
}

// DrugRepository is a full drug persistence backend.
type DrugRepository interface {
	DrugStore
	CompositionWriter
}

// Cache is a byte-oriented TTL cache with glob invalidation. Only '*' is special
// in DeletePattern patterns.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePattern(ctx context.Context, pattern string) (int, error)
	Exists(ctx context.Context, key string) (bool, error)
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// AuditRepository persists audit entries. Entries are never modified.
type AuditRepository interface {
	Append(ctx context.Context, entry entities.AuditLogEntry) error

	// Query returns matching entries newest first, paginated, and the total match count
	Query(ctx context.Context, filter entities.AuditFilter) ([]entities.AuditLogEntry, int, error)

	Ping(ctx context.Context) error
	Close() error
}

// AuditPublisher forwards appended audit entries to downstream consumers.
type AuditPublisher interface {
	Publish(ctx context.Context, entry entities.AuditLogEntry) error
	Close() error
}

// AuditLog records composition changes and answers audit queries.
type AuditLog interface {
	LogCreation(ctx context.Context, drug entities.Drug, mapping entities.MappingInfo, userID, userName string) error
	LogUpdate(ctx context.Context, drug entities.Drug, oldLinks []entities.CompositionLink,
		mapping entities.MappingInfo, userID, userName string) error
	LogDeletion(ctx context.Context, drug entities.Drug, userID, userName string) error
	LogBulkCorrection(ctx context.Context, updates []BulkAuditItem, batchID, userID, userName string) (int, error)

	Query(ctx context.Context, filter entities.AuditFilter) (entities.AuditPage, error)
	ExportCSV(ctx context.Context, filter entities.AuditFilter) ([]byte, error)
	Statistics(ctx context.Context, filter entities.AuditFilter) (entities.AuditStatistics, error)
}

// BulkAuditItem is one before/after pair of a bulk correction.
type BulkAuditItem struct {
	Drug     entities.Drug
	OldLinks []entities.CompositionLink
	Mapping  entities.MappingInfo
}

// CompositionValidator defines the contract for composition and input validation.
type CompositionValidator interface {
	ValidateComposition(links []entities.CompositionLink) entities.ValidationResult

	// ValidateActivation adds NO_COMPOSITION for drugs without links
	ValidateActivation(drug entities.Drug) entities.ValidationResult

	// ValidateBulkUpdate partitions updates into valid ones and itemised failures
	ValidateBulkUpdate(updates []entities.CompositionUpdate) ([]entities.CompositionUpdate, []entities.BulkItemError)

	ValidateImport(records []entities.ImportRecord) ([]entities.ImportRecord, []entities.BulkItemError)

	// ValidateInput validates user input strings
	ValidateInput(input string) error

	// ValidateID validates drug, store and user identifiers
	ValidateID(input string) error
}

// SubstituteFinder finds substitutes and manages their cached results.
type SubstituteFinder interface {
	FindSubstitutes(ctx context.Context, drugID, storeID string, includePartial bool) ([]entities.Substitute, error)
	InvalidateCache(ctx context.Context, drugID string) error
	InvalidateStoreCache(ctx context.Context, storeID string) error
	InvalidateAll(ctx context.Context) (int, error)
	Stats(ctx context.Context, storeID string) (SubstituteStats, error)
}

// SubstituteStats is the payload of the stats endpoint.
type SubstituteStats struct {
	TotalActiveDrugs int `json:"totalActiveDrugs"`
}

// CompositionManager mutates drug compositions with validation, audit and invalidation.
type CompositionManager interface {
	UpdateComposition(ctx context.Context, drugID string, links []entities.CompositionLink,
		mapping entities.MappingInfo, actor Actor) (entities.Drug, error)
	CreateDrug(ctx context.Context, drug entities.Drug, actor Actor) (entities.Drug, error)
	DeleteDrug(ctx context.Context, drugID string, actor Actor) error
	Activate(ctx context.Context, drugID string, actor Actor) (entities.Drug, error)
	BulkUpdate(ctx context.Context, updates []entities.CompositionUpdate, actor Actor) entities.BulkResult
	ImportMedicines(ctx context.Context, storeID string, records []entities.ImportRecord, actor Actor) entities.BulkResult
}

// Actor identifies who performed a mutation.
type Actor struct {
	UserID   string
	UserName string
}

// Scheduler defines the contract for job scheduling and health monitoring.
type Scheduler interface {
	// Lifecycle management
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
type HTTPHandler interface {
	FindSubstitutes(w http.ResponseWriter, r *http.Request)
	SubstituteStats(w http.ResponseWriter, r *http.Request)
	InvalidateSubstitutes(w http.ResponseWriter, r *http.Request)

	QueryAudit(w http.ResponseWriter, r *http.Request)
	ExportAudit(w http.ResponseWriter, r *http.Request)
	AuditStatistics(w http.ResponseWriter, r *http.Request)

	UpdateComposition(w http.ResponseWriter, r *http.Request)
	BulkUpdateComposition(w http.ResponseWriter, r *http.Request)
	CreateDrug(w http.ResponseWriter, r *http.Request)
	DeleteDrug(w http.ResponseWriter, r *http.Request)
	ActivateDrug(w http.ResponseWriter, r *http.Request)
	ImportMedicines(w http.ResponseWriter, r *http.Request)

	// This will stay in all versions
	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// DataStatus reports the freshness of the in-memory catalogue.
type DataStatus interface {
	GetLastUpdated() time.Time
	IsUpdating() bool
	Len() int
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck(ctx context.Context) (status string, details map[string]any, err error)
}
