// Package template personalizes campaign message templates. Templates are
// plain strings containing the literal placeholder {name}, matched
// case-insensitively.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/okandemir/whatsapp-campaign-service/internal/domain"
)

// MaxLength mirrors the WhatsApp text message body limit.
const MaxLength = 4096

const DefaultPreviewLimit = 5

var namePlaceholder = regexp.MustCompile(`(?i)\{name\}`)

type ValidationResult struct {
	Valid              bool   `json:"valid"`
	HasNamePlaceholder bool   `json:"hasNamePlaceholder"`
	Message            string `json:"message"`
}

type Preview struct {
	Name             string `json:"name"`
	PhoneNumber      string `json:"phoneNumber"`
	PersonalizedBody string `json:"personalizedBody"`
}

// Validate reports whether a template is usable. Problems are returned in
// the result, not as an error.
func Validate(tmpl string) ValidationResult {
	if strings.TrimSpace(tmpl) == "" {
		return ValidationResult{Valid: false, Message: "template cannot be empty"}
	}

	// Characters, not bytes; templates are routinely non-ASCII.
	if utf8.RuneCountInString(tmpl) > MaxLength {
		return ValidationResult{
			Valid:   false,
			Message: fmt.Sprintf("template exceeds maximum length of %d characters", MaxLength),
		}
	}

	hasName := namePlaceholder.MatchString(tmpl)

	message := "template is valid (no name personalization)"
	if hasName {
		message = "template is valid with name personalization"
	}

	return ValidationResult{
		Valid:              true,
		HasNamePlaceholder: hasName,
		Message:            message,
	}
}

// Personalize replaces every {name} occurrence with name.
func Personalize(tmpl, name string) (string, error) {
	if tmpl == "" || name == "" {
		return "", fmt.Errorf("template and name are required")
	}

	return namePlaceholder.ReplaceAllLiteralString(tmpl, name), nil
}

// GeneratePreviews personalizes the template for the first min(limit, len)
// recipients in list order. An empty recipient list yields an empty slice.
func GeneratePreviews(tmpl string, recipients []domain.Recipient, limit int) ([]Preview, error) {
	if len(recipients) == 0 {
		return []Preview{}, nil
	}

	if limit <= 0 {
		limit = DefaultPreviewLimit
	}
	if limit > len(recipients) {
		limit = len(recipients)
	}

	previews := make([]Preview, 0, limit)
	for _, r := range recipients[:limit] {
		body, err := Personalize(tmpl, r.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to personalize preview for %q: %w", r.Name, err)
		}

		previews = append(previews, Preview{
			Name:             r.Name,
			PhoneNumber:      r.PhoneNumber,
			PersonalizedBody: body,
		})
	}

	return previews, nil
}
