// Package entities holds the composition model shared by the matching, ranking,
// validation and audit packages.
package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// IngestionStatus is the workflow state of a drug record.
type IngestionStatus string

const (
	StatusDraft       IngestionStatus = "DRAFT"
	StatusSaltPending IngestionStatus = "SALT_PENDING"
	StatusReview      IngestionStatus = "REVIEW"
	StatusActive      IngestionStatus = "ACTIVE"
	StatusInactive    IngestionStatus = "INACTIVE"
)

// Salt is a named active ingredient.
type Salt struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

// Batch is an inventory batch of a drug in one store. Read-only for this core.
type Batch struct {
	ID         string          `json:"id"`
	Quantity   int64           `json:"quantity"`
	MRP        decimal.Decimal `json:"mrp"`
	ExpiryDate time.Time       `json:"expiryDate"`
}

// Drug is a sellable product with its ordered composition links.
type Drug struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Manufacturer string            `json:"manufacturer"`
	Form         string            `json:"form"`
	StoreID      string            `json:"storeId"`
	Status       IngestionStatus   `json:"ingestionStatus"`
	Links        []CompositionLink `json:"saltLinks"`
	DeletedAt    *time.Time        `json:"deletedAt,omitempty"`
	Batches      []Batch           `json:"batches,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// IsDeleted reports whether the drug carries a soft-delete marker.
func (d *Drug) IsDeleted() bool {
	return d.DeletedAt != nil
}

// SaltIDs returns the salt ids of the drug's composition in link order.
func (d *Drug) SaltIDs() []string {
	ids := make([]string, 0, len(d.Links))
	for _, l := range d.Links {
		if l.SaltID != "" {
			ids = append(ids, l.SaltID)
		}
	}
	return ids
}

// Clone returns a deep copy so callers can hand out drugs without sharing slices.
func (d Drug) Clone() Drug {
	out := d
	out.Links = CloneLinks(d.Links)
	if d.Batches != nil {
		out.Batches = make([]Batch, len(d.Batches))
		copy(out.Batches, d.Batches)
	}
	if d.DeletedAt != nil {
		t := *d.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
