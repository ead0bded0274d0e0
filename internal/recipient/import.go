package recipient

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ImportResult summarizes a CSV import
type ImportResult struct {
	Total      int      `json:"total"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// ImportCSV adds recipients from CSV data with a header row. Recognized
// columns are name, email, company and last_purchase_date. Rows that fail
// are counted and reported; they do not stop the import.
func (s *Store) ImportCSV(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	result := &ImportResult{}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.TrimLeadingSpace = true

	header, err := csvReader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	emailIdx, nameIdx, companyIdx, dateIdx := -1, -1, -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		switch col {
		case "email", "e-mail", "email_address":
			emailIdx = i
		case "name", "full_name", "fullname":
			nameIdx = i
		case "company", "organization":
			companyIdx = i
		case "last_purchase_date", "last_purchase", "purchase_date":
			dateIdx = i
		}
	}

	if emailIdx == -1 {
		return nil, fmt.Errorf("email column not found in CSV")
	}
	if nameIdx == -1 {
		return nil, fmt.Errorf("name column not found in CSV")
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		result.Total++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", result.Total, err))
			result.Skipped++
			continue
		}

		r := &Recipient{
			Name:             column(record, nameIdx),
			Email:            column(record, emailIdx),
			Company:          optionalColumn(record, companyIdx),
			LastPurchaseDate: optionalColumn(record, dateIdx),
		}

		if err := s.Add(ctx, r); err != nil {
			if errors.Is(err, ErrDuplicate) {
				result.Duplicates++
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("row %d (%s): %v", result.Total, r.Email, err))
			result.Skipped++
			continue
		}

		result.Imported++
	}

	return result, nil
}

func column(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func optionalColumn(record []string, idx int) *string {
	v := column(record, idx)
	if v == "" {
		return nil
	}
	return &v
}
