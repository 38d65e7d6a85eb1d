package matching

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

// DateDecayDays is the day span over which the date score decays
// linearly to zero. Statement posting dates and ledger dates for the
// same transaction rarely diverge by more than a few days.
const DateDecayDays = 3

// ScoreDate returns 1.0 for identical dates, decaying linearly to 0 at
// DateDecayDays of absolute difference. Symmetric.
func ScoreDate(d1, d2 time.Time) float64 {
	days := absDays(d1, d2)
	if days >= DateDecayDays {
		return 0
	}
	return 1 - float64(days)/float64(DateDecayDays)
}

func absDays(d1, d2 time.Time) int {
	diff := d1.Sub(d2)
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// ScoreAmount returns 1.0 for equal amounts, 0.0 when the absolute
// difference exceeds the tolerance, and interpolates linearly in
// between so rounding or fee differences still register high.
func ScoreAmount(a1, a2, tolerance decimal.Decimal) float64 {
	diff := a1.Sub(a2).Abs()
	if diff.IsZero() {
		return 1
	}
	if tolerance.Sign() <= 0 || diff.GreaterThan(tolerance) {
		return 0
	}
	ratio, _ := diff.Div(tolerance).Float64()
	return 1 - ratio
}

// Normalizer prepares descriptions for similarity scoring: case
// folding, account-scoped alias substitution and whitespace collapse.
type Normalizer struct {
	aliases []models.Alias
}

func NewNormalizer(aliases []models.Alias) *Normalizer {
	return &Normalizer{aliases: aliases}
}

// Normalize applies the full pipeline. Alias patterns are matched
// case-insensitively against the folded text.
func (n *Normalizer) Normalize(s string) string {
	s = strings.ToLower(s)
	for _, a := range n.aliases {
		pattern := strings.ToLower(a.Pattern)
		if pattern == "" {
			continue
		}
		s = strings.ReplaceAll(s, pattern, strings.ToLower(a.Replacement))
	}
	return strings.Join(strings.Fields(s), " ")
}

// ScoreDescription returns the similarity of two normalized
// descriptions in [0,1]: 1.0 for equal strings, 0.0 for disjoint ones.
// It takes the better of a normalized Levenshtein ratio and a token
// containment ratio, so a statement line that is a prefix or subset of
// the ledger description ("pago pse" vs "pago pse internet") still
// scores full similarity.
func (n *Normalizer) ScoreDescription(s1, s2 string) float64 {
	a := n.Normalize(s1)
	b := n.Normalize(s2)
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	editScore := 1 - float64(dist)/float64(maxLen)
	if editScore < 0 {
		editScore = 0
	}

	tokenScore := tokenContainment(a, b)
	if tokenScore > editScore {
		return tokenScore
	}
	return editScore
}

// tokenContainment is the fraction of the smaller token set found in
// the larger one.
func tokenContainment(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	if len(tb) < len(ta) {
		ta, tb = tb, ta
	}
	shared := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(ta))
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}
