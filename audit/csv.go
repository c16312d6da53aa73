package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

var csvHeader = []string{
	"Timestamp",
	"Drug ID",
	"Drug Name",
	"User ID",
	"User Name",
	"Action",
	"Batch ID",
	"Old Value",
	"New Value",
	"Confidence",
	"Auto Mapped",
}

// WriteCSV renders entries with a fixed column order.
func WriteCSV(entries []entities.AuditLogEntry) ([]byte, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	if err := writer.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range entries {
		confidence := ""
		if e.OCRConfidence != nil {
			confidence = strconv.FormatFloat(*e.OCRConfidence, 'f', 2, 64)
		}
		row := []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.DrugID,
			e.DrugName,
			e.UserID,
			e.UserName,
			string(e.Action),
			e.BatchID,
			FormatComposition(e.OldComposition),
			FormatComposition(e.NewComposition),
			confidence,
			strconv.FormatBool(e.AutoMapped),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// FormatComposition renders links as "Amoxicillin 500mg + Clavulanic Acid 125mg".
func FormatComposition(links []entities.CompositionLink) string {
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = l.String()
	}
	return strings.Join(parts, " + ")
}
