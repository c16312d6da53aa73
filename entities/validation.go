package entities

// Validation issue codes.
const (
	IssueEmptyComposition = "EMPTY_COMPOSITION"
	IssueUnitRequired     = "UNIT_REQUIRED"
	IssueInvalidStrength  = "INVALID_STRENGTH"
	IssueUnusualStrength  = "UNUSUAL_STRENGTH"
	IssueSaltNameRequired = "SALT_NAME_REQUIRED"
	IssueDuplicateSalt    = "DUPLICATE_SALT"
	IssueNoComposition    = "NO_COMPOSITION"
	IssueInvalidOCR       = "INVALID_OCR_CONFIDENCE"
)

// ValidationIssue is a single error or warning. Index is the link position, -1 for
// issues about the whole composition.
type ValidationIssue struct {
	Code    string `json:"code"`
	Index   int    `json:"index"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ValidationResult is valid iff Errors is empty; warnings never block.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Errors   []ValidationIssue `json:"errors"`
	Warnings []ValidationIssue `json:"warnings"`
}
