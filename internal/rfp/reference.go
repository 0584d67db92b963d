package rfp

import (
	"fmt"
	"regexp"
	"strings"
)

// Формат метки в теме письма менять нельзя: по нему ответы поставщиков
// сопоставляются с уже разосланными RFP.
var refPattern = regexp.MustCompile(`\[Ref:([a-fA-F0-9]{24})\]`)

func RefToken(rfpID string) string {
	return "[Ref:" + rfpID + "]"
}

// BuildSubject: "RFP: <title> [Ref:<id>]"
func BuildSubject(title, rfpID string) string {
	return fmt.Sprintf("RFP: %s %s", title, RefToken(rfpID))
}

// ExtractRef возвращает идентификатор из первой метки [Ref:...] в тексте
func ExtractRef(s string) (string, bool) {
	m := refPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.ToLower(m[1]), true
}

// BuildBody - текст письма поставщику
func BuildBody(vendorName, title, description string) string {
	return fmt.Sprintf("Hello %s,\n\nWe have a new request: %s.\n\nRequirements:\n%s\n\nPlease reply to this email with your quote.",
		vendorName, title, description)
}
