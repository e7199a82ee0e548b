package textutil

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/shirthaus/api/internal/services"
)

// PrintSanitizer strips all markup from customer-supplied print text before it
// is stored on an order line.
type PrintSanitizer struct {
	policy *bluemonday.Policy
}

var _ services.TextSanitizer = (*PrintSanitizer)(nil)

// NewPrintSanitizer builds a sanitizer with the strict no-markup policy.
func NewPrintSanitizer() *PrintSanitizer {
	return &PrintSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes markup and trims surrounding whitespace.
func (s *PrintSanitizer) Sanitize(input string) string {
	if s == nil || s.policy == nil {
		return strings.TrimSpace(input)
	}
	return strings.TrimSpace(s.policy.Sanitize(input))
}
