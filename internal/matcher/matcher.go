// Package matcher associates a normalized invoice identifier with the archive
// most likely to contain that invoice.
package matcher

import (
	"path/filepath"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// DefaultCutoff is the minimum similarity ratio for the approximate pass.
const DefaultCutoff = 0.6

// FindBestMatch returns the candidate archive name best matching identifier.
//
// Two passes, first-wins by design: a containment match (identifier inside the
// candidate base name, or vice versa) is preferred over any fuzzy score to
// avoid false positives between visually similar numeric identifiers. Only
// when no candidate contains the identifier does the similarity-ratio pass
// pick the single closest base name above DefaultCutoff.
//
// The returned name is the original (un-normalized) candidate. ok is false
// when the identifier is empty, the candidate list is empty, or nothing
// clears the cutoff.
func FindBestMatch(identifier string, candidates []string) (string, bool) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || len(candidates) == 0 {
		return "", false
	}

	names := make([]string, 0, len(candidates))
	bases := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if name == "" {
			continue
		}
		names = append(names, name)
		bases = append(bases, normalizeBase(name))
	}

	// Pass 1: containment, in input order.
	for i, base := range bases {
		if strings.Contains(base, identifier) || strings.Contains(identifier, base) {
			return names[i], true
		}
	}

	// Pass 2: closest similarity ratio, top-1 only, first wins on ties.
	bestIdx := -1
	bestRatio := 0.0
	for i, base := range bases {
		ratio := levenshtein.RatioForStrings([]rune(identifier), []rune(base), levenshtein.DefaultOptions)
		if ratio >= DefaultCutoff && ratio > bestRatio {
			bestIdx = i
			bestRatio = ratio
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return names[bestIdx], true
}

// normalizeBase strips the extension, lower-cases and trims an archive name.
func normalizeBase(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.ToLower(strings.TrimSpace(base))
}
