package reconciler

import (
	"math/rand"
	"time"
)

const suffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateExternalID builds the external identifier for a newly created
// provider record: the batch date formatted YYYYMMDD plus a random 8-char
// lowercase-alphanumeric suffix, unique even across same-day batches.
//
// dateStr is the raw date cell of the contributing row; DD/MM/YYYY and
// YYYY-MM-DD are accepted, anything else falls back to now (UTC).
func GenerateExternalID(dateStr string, now time.Time, suffix func() string) string {
	day := now.UTC()
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if parsed, err := time.Parse(layout, dateStr); err == nil {
			day = parsed
			break
		}
	}
	return day.Format("20060102") + "_" + suffix()
}

func randomSuffix() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = suffixAlphabet[rand.Intn(len(suffixAlphabet))]
	}
	return string(b)
}
