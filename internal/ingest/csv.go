// Package ingest parses uploaded recipient lists. The expected format is a
// two-column CSV (name, phone number) with an optional header row.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
)

var (
	phonePattern = regexp.MustCompile(`^\+\d{10,15}$`)
	phoneNoise   = regexp.MustCompile(`[\s\-()]`)
)

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ParseResult struct {
	Recipients []domain.Recipient `json:"recipients"`
	Errors     []RowError         `json:"errors"`
	Total      int                `json:"total"`
	HasErrors  bool               `json:"hasErrors"`
}

// ParseRecipients reads the whole CSV and returns the valid recipients in
// file order plus one RowError per rejected row. Only a malformed file as a
// whole produces an error.
func ParseRecipients(r io.Reader) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV file: %w", err)
	}

	result := &ParseResult{
		Recipients: []domain.Recipient{},
		Errors:     []RowError{},
	}

	startRow := 0
	if len(records) > 0 && looksLikeHeader(records[0]) {
		startRow = 1
	}

	for i := startRow; i < len(records); i++ {
		rowNumber := i + 1
		record := records[i]

		var name, phone string
		if len(record) > 0 {
			name = strings.TrimSpace(record[0])
		}
		if len(record) > 1 {
			phone = strings.TrimSpace(record[1])
		}

		// Skip fully empty rows.
		if name == "" && phone == "" {
			continue
		}

		if name == "" || phone == "" {
			missing := "name"
			if name != "" {
				missing = "phone number"
			}
			result.Errors = append(result.Errors, RowError{
				Row:     rowNumber,
				Message: fmt.Sprintf("missing %s", missing),
			})
			continue
		}

		normalized, ok := NormalizePhone(phone)
		if !ok {
			result.Errors = append(result.Errors, RowError{
				Row:     rowNumber,
				Message: fmt.Sprintf("invalid phone number format: %s, should include country code (e.g. +1234567890)", phone),
			})
			continue
		}

		result.Recipients = append(result.Recipients, domain.Recipient{
			Name:        name,
			PhoneNumber: normalized,
		})
	}

	result.Total = len(result.Recipients)
	result.HasErrors = len(result.Errors) > 0

	return result, nil
}

// NormalizePhone strips separator characters, prefixes a + when the number
// starts with a digit, and validates the +<10-15 digits> shape.
func NormalizePhone(raw string) (string, bool) {
	cleaned := phoneNoise.ReplaceAllString(strings.TrimSpace(raw), "")

	if cleaned != "" && !strings.HasPrefix(cleaned, "+") && cleaned[0] >= '0' && cleaned[0] <= '9' {
		cleaned = "+" + cleaned
	}

	if !phonePattern.MatchString(cleaned) {
		return "", false
	}

	return cleaned, true
}

func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}

	first := strings.ToLower(strings.TrimSpace(record[0]))
	return strings.Contains(first, "name") || strings.Contains(first, "customer")
}
