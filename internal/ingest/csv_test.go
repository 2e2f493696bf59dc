package ingest

import (
	"strings"
	"testing"
)

func TestParseRecipients_WithHeader(t *testing.T) {
	csv := "Name,Phone Number\nAna,+905551234567\nBen,905559876543\n"

	result, err := ParseRecipients(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRecipients returned error: %v", err)
	}

	if len(result.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(result.Recipients))
	}

	if result.Recipients[0].Name != "Ana" || result.Recipients[0].PhoneNumber != "+905551234567" {
		t.Errorf("unexpected first recipient: %+v", result.Recipients[0])
	}

	// The + prefix is added when missing.
	if result.Recipients[1].PhoneNumber != "+905559876543" {
		t.Errorf("expected normalized phone +905559876543, got %q", result.Recipients[1].PhoneNumber)
	}

	if result.HasErrors {
		t.Errorf("expected no row errors, got %+v", result.Errors)
	}
}

func TestParseRecipients_WithoutHeader(t *testing.T) {
	csv := "Ana,+905551234567\nBen,+905559876543\n"

	result, err := ParseRecipients(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRecipients returned error: %v", err)
	}

	if len(result.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(result.Recipients))
	}
}

func TestParseRecipients_RowErrors(t *testing.T) {
	csv := strings.Join([]string{
		"name,phone",
		"Ana,+905551234567",
		"MissingPhone,",
		",+905550001122",
		"BadPhone,12345",
		"Ben,+905559876543",
	}, "\n")

	result, err := ParseRecipients(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRecipients returned error: %v", err)
	}

	if len(result.Recipients) != 2 {
		t.Fatalf("expected 2 valid recipients, got %d", len(result.Recipients))
	}

	if len(result.Errors) != 3 {
		t.Fatalf("expected 3 row errors, got %d: %+v", len(result.Errors), result.Errors)
	}

	if !result.HasErrors {
		t.Errorf("expected HasErrors=true")
	}

	// Row numbers are 1-based and include the header row.
	if result.Errors[0].Row != 3 {
		t.Errorf("expected first error on row 3, got %d", result.Errors[0].Row)
	}

	// Valid recipients keep file order.
	if result.Recipients[0].Name != "Ana" || result.Recipients[1].Name != "Ben" {
		t.Errorf("expected recipients in file order, got %+v", result.Recipients)
	}
}

func TestParseRecipients_SkipsEmptyRows(t *testing.T) {
	csv := "Ana,+905551234567\n,\nBen,+905559876543\n"

	result, err := ParseRecipients(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseRecipients returned error: %v", err)
	}

	if len(result.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(result.Recipients))
	}
	if result.HasErrors {
		t.Errorf("expected no row errors, got %+v", result.Errors)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
		ok       bool
	}{
		{"+905551234567", "+905551234567", true},
		{"905551234567", "+905551234567", true},
		{"(555) 123-4567 89", "+555123456789", true},
		{"+90 555 123-45-67", "+905551234567", true},
		{"(90) 555-123-4567", "+905551234567", true},
		{"+123456789", "", false},          // 9 digits, too short
		{"+1234567890123456", "", false},   // 16 digits, too long
		{"notaphone", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizePhone(tt.raw)
		if ok != tt.ok {
			t.Errorf("NormalizePhone(%q): expected ok=%v, got %v", tt.raw, tt.ok, ok)
			continue
		}
		if ok && got != tt.expected {
			t.Errorf("NormalizePhone(%q) = %q, expected %q", tt.raw, got, tt.expected)
		}
	}
}
