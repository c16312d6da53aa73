package validation

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func issueCodes(issues []entities.ValidationIssue) []string {
	codes := make([]string, len(issues))
	for i, issue := range issues {
		codes[i] = issue.Code
	}
	return codes
}

func TestValidateComposition(t *testing.T) {
	validator := NewCompositionValidator()

	tests := []struct {
		name         string
		links        []entities.CompositionLink
		wantValid    bool
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:         "empty list warns only",
			links:        nil,
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{entities.IssueEmptyComposition},
		},
		{
			name: "valid single salt",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("500"), StrengthUnit: "mg"},
			},
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
		{
			name: "strength without unit",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("500")},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueUnitRequired},
			wantWarnings: []string{},
		},
		{
			name: "zero strength",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("0"), StrengthUnit: "mg"},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueInvalidStrength},
			wantWarnings: []string{},
		},
		{
			name: "negative strength",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("-5"), StrengthUnit: "mg"},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueInvalidStrength},
			wantWarnings: []string{},
		},
		{
			name: "unusual strength is a warning",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("10000.5"), StrengthUnit: "mg"},
			},
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{entities.IssueUnusualStrength},
		},
		{
			name: "exactly 10000 is fine",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol", StrengthValue: dec("10000"), StrengthUnit: "mg"},
			},
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
		{
			name: "missing name",
			links: []entities.CompositionLink{
				{SaltName: "  ", StrengthValue: dec("5"), StrengthUnit: "mg"},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueSaltNameRequired},
			wantWarnings: []string{},
		},
		{
			name: "duplicate salt id",
			links: []entities.CompositionLink{
				{SaltID: "s1", SaltName: "Paracetamol", StrengthValue: dec("500"), StrengthUnit: "mg"},
				{SaltID: "s1", SaltName: "Paracetamol", StrengthValue: dec("650"), StrengthUnit: "mg"},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueDuplicateSalt},
			wantWarnings: []string{},
		},
		{
			name: "duplicate unresolved name",
			links: []entities.CompositionLink{
				{SaltName: "Paracetamol"},
				{SaltName: "PARACÉTAMOL"},
			},
			wantValid:    false,
			wantErrors:   []string{entities.IssueDuplicateSalt},
			wantWarnings: []string{},
		},
		{
			name: "missing strength is allowed",
			links: []entities.CompositionLink{
				{SaltName: "Lactobacillus"},
			},
			wantValid:    true,
			wantErrors:   []string{},
			wantWarnings: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validator.ValidateComposition(tt.links)

			if result.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if got := issueCodes(result.Errors); strings.Join(got, ",") != strings.Join(tt.wantErrors, ",") {
				t.Errorf("errors = %v, want %v", got, tt.wantErrors)
			}
			if got := issueCodes(result.Warnings); strings.Join(got, ",") != strings.Join(tt.wantWarnings, ",") {
				t.Errorf("warnings = %v, want %v", got, tt.wantWarnings)
			}
		})
	}
}

func TestValidateComposition_IssueCarriesIndexAndField(t *testing.T) {
	validator := NewCompositionValidator()

	result := validator.ValidateComposition([]entities.CompositionLink{
		{SaltName: "Amoxicillin", StrengthValue: dec("500"), StrengthUnit: "mg"},
		{SaltName: "Clavulanic Acid", StrengthValue: dec("125")},
	})

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	issue := result.Errors[0]
	if issue.Index != 1 || issue.Field != "strengthUnit" || issue.Message == "" {
		t.Errorf("unexpected issue: %+v", issue)
	}
}

func TestValidateActivation(t *testing.T) {
	validator := NewCompositionValidator()

	result := validator.ValidateActivation(entities.Drug{ID: "d1"})
	if result.Valid || len(result.Errors) != 1 || result.Errors[0].Code != entities.IssueNoComposition {
		t.Errorf("expected NO_COMPOSITION, got %+v", result)
	}

	result = validator.ValidateActivation(entities.Drug{ID: "d1", Links: []entities.CompositionLink{
		{SaltID: "s1", SaltName: "Paracetamol", StrengthValue: dec("500"), StrengthUnit: "mg"},
	}})
	if !result.Valid {
		t.Errorf("expected valid activation, got %+v", result.Errors)
	}

	result = validator.ValidateActivation(entities.Drug{ID: "d1", Links: []entities.CompositionLink{
		{SaltID: "s1", SaltName: "Paracetamol", StrengthValue: dec("500")},
	}})
	if result.Valid {
		t.Error("expected composition errors to block activation")
	}
}

func TestValidateBulkUpdate(t *testing.T) {
	validator := NewCompositionValidator()

	valid, invalid := validator.ValidateBulkUpdate([]entities.CompositionUpdate{
		{DrugID: "d1", Links: []entities.CompositionLink{{SaltName: "Paracetamol", StrengthValue: dec("500"), StrengthUnit: "mg"}}},
		{DrugID: "d2", Links: []entities.CompositionLink{{SaltName: "Paracetamol", StrengthValue: dec("0"), StrengthUnit: "mg"}}},
		{DrugID: "", Links: nil},
		{DrugID: "d4", Links: nil},
	})

	if len(valid) != 2 || valid[0].DrugID != "d1" || valid[1].DrugID != "d4" {
		t.Errorf("unexpected valid updates: %+v", valid)
	}
	if len(invalid) != 2 {
		t.Fatalf("expected 2 invalid updates, got %+v", invalid)
	}
	if invalid[0].DrugID != "d2" || !strings.Contains(invalid[0].Error, entities.IssueInvalidStrength) {
		t.Errorf("unexpected failure: %+v", invalid[0])
	}
}

func TestValidateImport(t *testing.T) {
	validator := NewCompositionValidator()

	valid, invalid := validator.ValidateImport([]entities.ImportRecord{
		{Line: 2, Name: "Crocin", Links: []entities.CompositionLink{{SaltName: "Paracetamol", StrengthValue: dec("500"), StrengthUnit: "mg"}}},
		{Line: 3, Name: ""},
		{Line: 4, Name: "Broken", Links: []entities.CompositionLink{{SaltName: "", StrengthValue: dec("5"), StrengthUnit: "mg"}}},
	})

	if len(valid) != 1 || valid[0].Line != 2 {
		t.Errorf("unexpected valid records: %+v", valid)
	}
	if len(invalid) != 2 || invalid[0].Line != 3 || invalid[1].Line != 4 {
		t.Errorf("unexpected invalid records: %+v", invalid)
	}
}

func TestValidateInput(t *testing.T) {
	validator := NewCompositionValidator()

	valid := []string{"Paracetamol", "Amoxicillin + Clavulanic Acid", "Vitamin B12", "Paracétamol 500mg", "Insulin 100 IU/ml", "Zinc (as sulphate)"}
	for _, input := range valid {
		if err := validator.ValidateInput(input); err != nil {
			t.Errorf("ValidateInput(%q) unexpected error: %v", input, err)
		}
	}

	invalid := []string{"", "   ", "<script>alert(1)</script>", "x' or 1=1", "a; rm -rf", "../../etc/passwd", "abc\x00def", "aaaaaaaaaaaaaaa", "hello 😀", strings.Repeat("ab", 101)}
	for _, input := range invalid {
		if err := validator.ValidateInput(input); err == nil {
			t.Errorf("ValidateInput(%q) expected error", input)
		}
	}
}

func TestValidateID(t *testing.T) {
	validator := NewCompositionValidator()

	for _, id := range []string{"d1", "550e8400-e29b-41d4-a716-446655440000", "store_01"} {
		if err := validator.ValidateID(id); err != nil {
			t.Errorf("ValidateID(%q) unexpected error: %v", id, err)
		}
	}
	for _, id := range []string{"", "a b", "d1;drop", strings.Repeat("x", 65), "ü"} {
		if err := validator.ValidateID(id); err == nil {
			t.Errorf("ValidateID(%q) expected error", id)
		}
	}
}

func BenchmarkValidateComposition(b *testing.B) {
	validator := NewCompositionValidator()
	links := []entities.CompositionLink{
		{SaltID: "s1", SaltName: "Amoxicillin", StrengthValue: dec("500"), StrengthUnit: "mg"},
		{SaltID: "s2", SaltName: "Clavulanic Acid", StrengthValue: dec("125"), StrengthUnit: "mg"},
	}
	for i := 0; i < b.N; i++ {
		validator.ValidateComposition(links)
	}
}
