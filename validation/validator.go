// Package validation checks salt compositions and request parameters before
// anything is persisted. Every function here is pure.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

// Strengths above this are accepted with a warning.
var unusualStrength = decimal.NewFromInt(10000)

// Pre-compiled regex patterns for performance optimization
var (
	// Input validation: letters (any script with combining marks), digits and the
	// punctuation found in salt and brand names
	inputRegex = regexp.MustCompile(`^[\p{L}\p{M}0-9\s\-\.\+'/%,()]+$`)

	idRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	// Dangerous patterns as strings (faster than regex for simple substring matching)
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"onclick=", "onmouseover=", "onfocus=", "onblur=", "onchange=", "onsubmit=",
		"eval(", "expression(", "url(", "import ", "@import", "binding(", "behavior(",
		// SQL injection patterns
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"update set", "--", "/*", "*/", "xp_", "sp_", "exec(", "execute(",
		// Command injection patterns
		"; ", "| ", "& ", "`", "$(", "${",
		// Path traversal patterns
		"../", "..\\", "%2e%2e", "file://",
		// NoSQL injection patterns
		"{$ne:", "{$gt:", "{$where:", "{$or:", "{$regex:", "{$expr:",
	}
)

// Compile-time check to ensure CompositionValidatorImpl implements CompositionValidator
var _ interfaces.CompositionValidator = (*CompositionValidatorImpl)(nil)

// CompositionValidatorImpl implements the interfaces.CompositionValidator interface
type CompositionValidatorImpl struct{}

// NewCompositionValidator creates a new composition validator
func NewCompositionValidator() interfaces.CompositionValidator {
	return &CompositionValidatorImpl{}
}

// ValidateComposition checks every link and the list as a whole. An empty list is
// valid with an EMPTY_COMPOSITION warning.
func (v *CompositionValidatorImpl) ValidateComposition(links []entities.CompositionLink) entities.ValidationResult {
	result := entities.ValidationResult{
		Errors:   []entities.ValidationIssue{},
		Warnings: []entities.ValidationIssue{},
	}

	if len(links) == 0 {
		result.Warnings = append(result.Warnings, entities.ValidationIssue{
			Code:    entities.IssueEmptyComposition,
			Index:   -1,
			Message: "composition has no salts",
		})
		result.Valid = true
		return result
	}

	seenIDs := make(map[string]int, len(links))
	seenNames := make(map[string]int, len(links))

	for i, link := range links {
		if strings.TrimSpace(link.SaltName) == "" {
			result.Errors = append(result.Errors, entities.ValidationIssue{
				Code:    entities.IssueSaltNameRequired,
				Index:   i,
				Field:   "name",
				Message: fmt.Sprintf("salt %d has no name", i+1),
			})
		}

		if link.StrengthValue != nil {
			if strings.TrimSpace(link.StrengthUnit) == "" {
				result.Errors = append(result.Errors, entities.ValidationIssue{
					Code:    entities.IssueUnitRequired,
					Index:   i,
					Field:   "strengthUnit",
					Message: fmt.Sprintf("salt %d has a strength but no unit", i+1),
				})
			}
			switch {
			case !link.StrengthValue.IsPositive():
				result.Errors = append(result.Errors, entities.ValidationIssue{
					Code:    entities.IssueInvalidStrength,
					Index:   i,
					Field:   "strengthValue",
					Message: fmt.Sprintf("salt %d strength must be greater than 0, got %s", i+1, link.StrengthValue),
				})
			case link.StrengthValue.GreaterThan(unusualStrength):
				result.Warnings = append(result.Warnings, entities.ValidationIssue{
					Code:    entities.IssueUnusualStrength,
					Index:   i,
					Field:   "strengthValue",
					Message: fmt.Sprintf("salt %d strength %s is unusually high", i+1, link.StrengthValue),
				})
			}
		}

		// Resolved links are keyed by id, unresolved ones by normalised name
		if link.SaltID != "" {
			if first, dup := seenIDs[link.SaltID]; dup {
				result.Errors = append(result.Errors, duplicateIssue(i, first))
				continue
			}
			seenIDs[link.SaltID] = i
		} else if name := entities.NormalizeSaltName(link.SaltName); name != "" {
			if first, dup := seenNames[name]; dup {
				result.Errors = append(result.Errors, duplicateIssue(i, first))
				continue
			}
			seenNames[name] = i
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func duplicateIssue(index, first int) entities.ValidationIssue {
	return entities.ValidationIssue{
		Code:    entities.IssueDuplicateSalt,
		Index:   index,
		Field:   "saltId",
		Message: fmt.Sprintf("salt %d duplicates salt %d", index+1, first+1),
	}
}

// ValidateActivation checks that a drug can move to ACTIVE.
func (v *CompositionValidatorImpl) ValidateActivation(drug entities.Drug) entities.ValidationResult {
	if len(drug.Links) == 0 {
		return entities.ValidationResult{
			Valid: false,
			Errors: []entities.ValidationIssue{{
				Code:    entities.IssueNoComposition,
				Index:   -1,
				Message: fmt.Sprintf("drug %s has no composition and cannot be activated", drug.ID),
			}},
			Warnings: []entities.ValidationIssue{},
		}
	}
	return v.ValidateComposition(drug.Links)
}

// ValidateBulkUpdate splits updates into those that can be applied and itemised failures.
func (v *CompositionValidatorImpl) ValidateBulkUpdate(updates []entities.CompositionUpdate) ([]entities.CompositionUpdate, []entities.BulkItemError) {
	valid := make([]entities.CompositionUpdate, 0, len(updates))
	var invalid []entities.BulkItemError

	for _, u := range updates {
		if err := v.ValidateID(u.DrugID); err != nil {
			invalid = append(invalid, entities.BulkItemError{DrugID: u.DrugID, Error: err.Error()})
			continue
		}
		if err := u.MappingInfo.Validate(); err != nil {
			invalid = append(invalid, entities.BulkItemError{DrugID: u.DrugID, Error: entities.IssueInvalidOCR + ": " + err.Error()})
			continue
		}
		result := v.ValidateComposition(u.Links)
		if !result.Valid {
			invalid = append(invalid, entities.BulkItemError{DrugID: u.DrugID, Error: joinIssues(result.Errors)})
			continue
		}
		valid = append(valid, u)
	}

	return valid, invalid
}

// ValidateImport splits parsed CSV records into importable ones and itemised failures.
func (v *CompositionValidatorImpl) ValidateImport(records []entities.ImportRecord) ([]entities.ImportRecord, []entities.BulkItemError) {
	valid := make([]entities.ImportRecord, 0, len(records))
	var invalid []entities.BulkItemError

	for _, rec := range records {
		if strings.TrimSpace(rec.Name) == "" {
			invalid = append(invalid, entities.BulkItemError{Line: rec.Line, Error: "medicine name is required"})
			continue
		}
		result := v.ValidateComposition(rec.Links)
		if !result.Valid {
			invalid = append(invalid, entities.BulkItemError{Line: rec.Line, Error: joinIssues(result.Errors)})
			continue
		}
		valid = append(valid, rec)
	}

	return valid, invalid
}

func joinIssues(issues []entities.ValidationIssue) string {
	msgs := make([]string, len(issues))
	for i, issue := range issues {
		msgs[i] = issue.Code + ": " + issue.Message
	}
	return strings.Join(msgs, "; ")
}

// ValidateInput validates free-text user input such as salt names
func (v *CompositionValidatorImpl) ValidateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("input cannot be empty")
	}

	if len(input) > 200 {
		return fmt.Errorf("input too long: maximum 200 characters")
	}

	// Check for potentially dangerous patterns using string matching
	lowerInput := strings.ToLower(input)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lowerInput, pattern) {
			return fmt.Errorf("input contains potentially dangerous content")
		}
	}

	if !inputRegex.MatchString(input) {
		return fmt.Errorf("input contains invalid characters. Only letters, numbers, spaces and - . + ' / %% , ( ) are allowed")
	}

	// Additional checks for repeated characters (potential DoS)
	if hasExcessiveRepetition(input) {
		return fmt.Errorf("input contains excessive character repetition")
	}

	return nil
}

// ValidateID validates drug, store, salt and user identifiers
func (v *CompositionValidatorImpl) ValidateID(input string) error {
	if input == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if !idRegex.MatchString(input) {
		return fmt.Errorf("id %q is invalid: only letters, digits, '-' and '_' are allowed (max 64)", input)
	}
	return nil
}

// hasExcessiveRepetition checks for the same byte repeated more than 10 times consecutively
func hasExcessiveRepetition(input string) bool {
	run := 1
	for i := 1; i < len(input); i++ {
		if input[i] == input[i-1] {
			run++
			if run > 10 {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
