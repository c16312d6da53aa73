package composition

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

// ErrEmptyImport is returned for an upload without a header row.
var ErrEmptyImport = errors.New("import file is empty")

// Recognised header names, lower-cased.
var importColumns = map[string][]string{
	"name":         {"name", "medicine", "medicine name", "drug", "drug name"},
	"manufacturer": {"manufacturer", "company", "brand owner"},
	"form":         {"form", "dosage form", "type"},
	"composition":  {"composition", "salts", "salt composition", "generic"},
}

// ParseImportCSV reads a medicines CSV. The body may be UTF-8 or ISO-8859-1; a
// header row naming at least the name and composition columns is required.
// Rows that cannot be read are reported as item errors, not as a failure of the
// whole file.
func ParseImportCSV(r io.Reader) ([]entities.ImportRecord, []entities.BulkItemError, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read import body: %w", err)
	}

	// Spreadsheet exports are either UTF-8 or Latin-1
	var reader io.Reader
	if utf8.Valid(body) {
		reader = bytes.NewReader(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	} else {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmptyImport
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read import header: %w", err)
	}

	idx := columnIndex(header)
	if idx["name"] < 0 || idx["composition"] < 0 {
		return nil, nil, fmt.Errorf("import header must contain name and composition columns, got %q", header)
	}

	var (
		records []entities.ImportRecord
		skipped []entities.BulkItemError
	)
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped = append(skipped, entities.BulkItemError{Line: parseErr.StartLine, Error: parseErr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("failed to read import row: %w", err)
		}

		if isBlank(fields) {
			continue
		}
		line, _ := cr.FieldPos(0)

		rec := entities.ImportRecord{
			Line:         line,
			Name:         field(fields, idx["name"]),
			Manufacturer: field(fields, idx["manufacturer"]),
			Form:         field(fields, idx["form"]),
			Composition:  field(fields, idx["composition"]),
		}
		rec.Links = entities.ParseCompositionText(rec.Composition)
		records = append(records, rec)
	}

	return records, skipped, nil
}

func columnIndex(header []string) map[string]int {
	idx := map[string]int{"name": -1, "manufacturer": -1, "form": -1, "composition": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for column, aliases := range importColumns {
			if idx[column] >= 0 {
				continue
			}
			for _, alias := range aliases {
				if h == alias {
					idx[column] = i
				}
			}
		}
	}
	return idx
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
