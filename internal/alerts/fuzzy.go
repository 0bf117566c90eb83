package alerts

import (
	"strings"

	"perpmonitor/internal/models"

	"github.com/agnivade/levenshtein"
)

// maxTypeDistance bounds how sloppy an alert type string may be and still
// normalize, so "heat index" and "HeatIndx" resolve but garbage does not.
const maxTypeDistance = 3

// NormalizeAlertType resolves a free-form alert type string to the
// canonical enum. Comparison is case-insensitive with separators stripped;
// near-misses resolve to the closest enum within a small edit distance.
func NormalizeAlertType(raw string) (models.AlertType, bool) {
	needle := canonicalize(raw)
	if needle == "" {
		return "", false
	}

	best := models.AlertType("")
	bestDist := maxTypeDistance + 1
	for _, t := range models.AllAlertTypes {
		d := levenshtein.ComputeDistance(needle, string(t))
		if d == 0 {
			return t, true
		}
		if d < bestDist {
			bestDist = d
			best = t
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

func canonicalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '.':
			return -1
		}
		return r
	}, s)
}
