// Package identifier normalizes the tax-ID and invoice-reference strings that
// arrive in source spreadsheets and CSV exports.
package identifier

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Clean strips every character that is not an ASCII digit from a raw
// tax ID or invoice reference. Empty input yields the empty string, which is
// the "no identifier" sentinel throughout the pipeline.
func Clean(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ExtractReferenceToken returns the first whitespace-delimited token of
// description that contains at least one digit. The second return value is
// false when the description is blank or no token carries a digit; callers
// treat that as "skip this row".
func ExtractReferenceToken(description string) (string, bool) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", false
	}
	for _, token := range strings.Fields(description) {
		if strings.ContainsFunc(token, unicode.IsDigit) {
			return token, true
		}
	}
	return "", false
}

// Person/company classification used for Colombian tax IDs: nine-digit IDs
// starting with 8 or 9 belong to companies (DIAN id type 31), everything else
// is a natural person (id type 13).
const (
	PersonTypeCompany = "Company"
	PersonTypePerson  = "Person"

	IDTypeCompany = "31"
	IDTypePerson  = "13"
)

// ClassifyPersonType tags a cleaned tax ID as a company or a person.
func ClassifyPersonType(taxID string) (personType, idType string) {
	if len(taxID) == 9 && (taxID[0] == '8' || taxID[0] == '9') {
		return PersonTypeCompany, IDTypeCompany
	}
	return PersonTypePerson, IDTypePerson
}

// ParseAmount parses a monetary field as exported by the accounting system.
// It tolerates currency signs, blank space, and both separator conventions
// ("1.234.567,89" and "1,234,567.89"). The second return value is false when
// the field holds no usable number.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || s == "-" {
		return decimal.Zero, false
	}

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// Both present: the later one is the decimal separator.
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Lone comma with two or fewer trailing digits is a decimal comma,
		// otherwise commas are thousands separators.
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			// "1.234.567" or "1.234" style thousands grouping.
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
