package entities

import "github.com/shopspring/decimal"

// MatchType classifies how a substitute relates to the source drug.
type MatchType string

const (
	MatchExact   MatchType = "EXACT"
	MatchPartial MatchType = "PARTIAL"
)

// Substitute is a derived, non-persisted projection of a candidate drug.
type Substitute struct {
	DrugID         string            `json:"drugId"`
	Name           string            `json:"name"`
	Manufacturer   string            `json:"manufacturer"`
	Form           string            `json:"form"`
	Price          decimal.Decimal   `json:"price"`
	AvailableStock int64             `json:"availableStock"`
	MatchType      MatchType         `json:"matchType"`
	MatchScore     int               `json:"matchScore"`
	Composition    []CompositionLink `json:"composition"`
}

// InStock reports whether any non-expired stock is available.
func (s Substitute) InStock() bool {
	return s.AvailableStock > 0
}
