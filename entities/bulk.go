package entities

// CompositionUpdate is one item of a bulk composition correction.
type CompositionUpdate struct {
	DrugID string            `json:"drugId"`
	Links  []CompositionLink `json:"saltLinks"`
	MappingInfo
}

// ImportRecord is one medicine row of a CSV import.
type ImportRecord struct {
	Line         int               `json:"line"`
	Name         string            `json:"name"`
	Manufacturer string            `json:"manufacturer"`
	Form         string            `json:"form"`
	Composition  string            `json:"composition"`
	Links        []CompositionLink `json:"saltLinks"`
}

// BulkItemError describes why one item of a bulk operation failed.
type BulkItemError struct {
	DrugID string `json:"drugId,omitempty"`
	Line   int    `json:"line,omitempty"`
	Error  string `json:"error"`
}

// BulkResult summarises a bulk operation. Partial failure is not an error.
type BulkResult struct {
	BatchID    string          `json:"batchId,omitempty"`
	Total      int             `json:"total"`
	Successful int             `json:"successful"`
	Failed     int             `json:"failed"`
	Errors     []BulkItemError `json:"errors"`
}

// Fail records a failed item.
func (r *BulkResult) Fail(item BulkItemError) {
	r.Failed++
	r.Errors = append(r.Errors, item)
}
