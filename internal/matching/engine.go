package matching

import (
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"conciliacion-service/internal/models"
)

// Engine pairs pending extract movements against available system
// movements using weighted similarity scores. It is pure in-memory
// computation; persistence of the produced matches is the caller's
// concern.
type Engine struct {
	cfg  *models.MatchingConfiguration
	norm *Normalizer
	log  zerolog.Logger
}

func NewEngine(cfg *models.MatchingConfiguration, aliases []models.Alias, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:  cfg,
		norm: NewNormalizer(aliases),
		log:  log,
	}
}

// PairScores carries the per-criterion scores of one candidate pair.
type PairScores struct {
	Date        float64
	Amount      float64
	Description float64
	Total       float64
}

// Score computes the full score breakdown for one pair. Used both by
// the assignment loop and by manual operations that record scores for
// audit.
func (e *Engine) Score(ext *models.ExtractMovement, sys *models.SystemMovement) PairScores {
	s := PairScores{
		Date:        ScoreDate(ext.Date, sys.Date),
		Amount:      ScoreAmount(ext.SignedAmount(), signedSystemAmount(sys), e.cfg.ToleranceAmount),
		Description: e.norm.ScoreDescription(ext.Description, sys.Description),
	}
	s.Total = e.cfg.WeightedScore(s.Date, s.Amount, s.Description)
	return s
}

type candidate struct {
	ext        *models.ExtractMovement
	sys        *models.SystemMovement
	scores     PairScores
	dayDiff    int
	amountDiff decimal.Decimal
}

// Run assigns pending extract movements to available system movements
// one-to-one, best pair first. Every pending extract movement yields
// exactly one match; those left unassigned (or whose best pair scores
// below the probable threshold) come back as SIN_MATCH with no system
// movement and zero scores.
//
// The selection order is total: score desc, then smaller day
// difference, then smaller amount difference, then lower extract id,
// then lower system id. Re-running on the same inputs reproduces the
// same assignment.
func (e *Engine) Run(pending []*models.ExtractMovement, available []*models.SystemMovement) []*models.Match {
	candidates := make([]candidate, 0, len(pending)*len(available))
	for _, ext := range pending {
		for _, sys := range available {
			scores := e.Score(ext, sys)
			if scores.Total < e.cfg.MinScoreProbable {
				continue
			}
			candidates = append(candidates, candidate{
				ext:        ext,
				sys:        sys,
				scores:     scores,
				dayDiff:    absDays(ext.Date, sys.Date),
				amountDiff: ext.SignedAmount().Sub(signedSystemAmount(sys)).Abs(),
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.scores.Total != b.scores.Total {
			return a.scores.Total > b.scores.Total
		}
		if a.dayDiff != b.dayDiff {
			return a.dayDiff < b.dayDiff
		}
		if cmp := a.amountDiff.Cmp(b.amountDiff); cmp != 0 {
			return cmp < 0
		}
		if a.ext.ID != b.ext.ID {
			return a.ext.ID < b.ext.ID
		}
		return a.sys.ID < b.sys.ID
	})

	usedExtract := make(map[int64]bool, len(pending))
	usedSystem := make(map[int64]bool, len(available))
	var matches []*models.Match

	for _, c := range candidates {
		if usedExtract[c.ext.ID] || usedSystem[c.sys.ID] {
			continue
		}
		usedExtract[c.ext.ID] = true
		usedSystem[c.sys.ID] = true

		state := e.classify(c.scores)
		e.log.Debug().
			Int64("extract_id", c.ext.ID).
			Int64("system_id", c.sys.ID).
			Float64("score_total", c.scores.Total).
			Str("state", state).
			Msg("pair classified")

		matches = append(matches, &models.Match{
			ExtractMovement:  c.ext,
			SystemMovement:   c.sys,
			State:            state,
			ScoreTotal:       c.scores.Total,
			ScoreDate:        c.scores.Date,
			ScoreAmount:      c.scores.Amount,
			ScoreDescription: c.scores.Description,
			CreatedBy:        "sistema",
		})
	}

	for _, ext := range pending {
		if usedExtract[ext.ID] {
			continue
		}
		matches = append(matches, &models.Match{
			ExtractMovement: ext,
			State:           models.StateSinMatch,
			CreatedBy:       "sistema",
		})
	}

	return matches
}

// classify applies the configured thresholds; a pair whose description
// similarity stays below the configured minimum is never promoted past
// PROBABLE regardless of its total.
func (e *Engine) classify(s PairScores) string {
	state := e.cfg.Classify(s.Total)
	if state == models.StateExacto && s.Description < e.cfg.MinDescriptionSimilarity {
		return models.StateProbable
	}
	return state
}

func signedSystemAmount(m *models.SystemMovement) decimal.Decimal {
	total := m.Amount
	if m.ForeignAmount.Valid {
		total = total.Add(m.ForeignAmount.Decimal)
	}
	return total
}
