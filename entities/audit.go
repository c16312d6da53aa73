package entities

import (
	"fmt"
	"time"
)

// AuditAction is the kind of composition change recorded.
type AuditAction string

const (
	AuditCreated AuditAction = "CREATED"
	AuditUpdated AuditAction = "UPDATED"
	AuditDeleted AuditAction = "DELETED"
)

// SystemUserID marks entries produced without a human actor (imports, jobs).
const SystemUserID = "SYSTEM"

// AuditLogEntry is an immutable record of one composition change.
type AuditLogEntry struct {
	ID             string            `json:"id"`
	DrugID         string            `json:"drugId"`
	DrugName       string            `json:"drugName"`
	UserID         string            `json:"userId"`
	UserName       string            `json:"userName,omitempty"`
	Action         AuditAction       `json:"action"`
	BatchID        string            `json:"batchId,omitempty"`
	OldComposition []CompositionLink `json:"oldValue"`
	NewComposition []CompositionLink `json:"newValue"`
	OCRConfidence  *float64          `json:"ocrConfidence,omitempty"`
	AutoMapped     bool              `json:"wasAutoMapped"`
	Timestamp      time.Time         `json:"timestamp"`
}

// MappingInfo says how a composition was mapped to salts. OCRConfidence is set
// when the salts were read from a scanned strip or label.
type MappingInfo struct {
	AutoMapped    bool     `json:"autoMapped,omitempty"`
	OCRConfidence *float64 `json:"ocrConfidence,omitempty"`
}

// Validate rejects an OCR confidence outside [0, 1].
func (m MappingInfo) Validate() error {
	if m.OCRConfidence != nil && (*m.OCRConfidence < 0 || *m.OCRConfidence > 1) {
		return fmt.Errorf("ocrConfidence must be between 0 and 1, got %g", *m.OCRConfidence)
	}
	return nil
}

// Apply copies the mapping onto an entry.
func (m MappingInfo) Apply(e *AuditLogEntry) {
	e.AutoMapped = m.AutoMapped
	if m.OCRConfidence != nil {
		c := *m.OCRConfidence
		e.OCRConfidence = &c
	}
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	DrugID    string
	UserID    string
	Action    AuditAction
	BatchID   string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// Matches reports whether an entry satisfies every set filter field.
// Date bounds are inclusive.
func (f AuditFilter) Matches(e AuditLogEntry) bool {
	if f.DrugID != "" && e.DrugID != f.DrugID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.BatchID != "" && e.BatchID != f.BatchID {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// AuditPage is one page of audit entries, newest first.
type AuditPage struct {
	Entries []AuditLogEntry `json:"entries"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// AuditStatistics summarises the entries matching a filter.
type AuditStatistics struct {
	Total      int                 `json:"total"`
	ByAction   map[AuditAction]int `json:"byAction"`
	AutoMapped int                 `json:"autoMapped"`
	Manual     int                 `json:"manual"`
}
