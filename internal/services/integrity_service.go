package services

import (
	"github.com/rs/zerolog"

	"conciliacion-service/internal/models"
	"conciliacion-service/internal/repositories"
)

// IntegrityGuard detects and repairs structurally invalid matches:
// orphans (a linked match whose system movement was deleted elsewhere)
// and one-to-many violations (one system movement referenced by more
// than one match). Repairs are best-effort; failures are logged and
// never abort the caller's matching run.
type IntegrityGuard struct {
	matchRepo repositories.MatchRepository
	log       zerolog.Logger
}

func NewIntegrityGuard(matchRepo repositories.MatchRepository, log zerolog.Logger) *IntegrityGuard {
	return &IntegrityGuard{matchRepo: matchRepo, log: log}
}

// RemoveOrphans deletes matches whose state requires a system movement
// but whose reference no longer resolves, freeing their extract
// movements for re-matching. Returns the surviving matches.
func (g *IntegrityGuard) RemoveOrphans(matches []*models.Match) []*models.Match {
	valid := matches[:0]
	for _, m := range matches {
		if m.RequiresSystemMovement() && m.SystemMovement == nil {
			g.log.Warn().
				Int64("match_id", m.ID).
				Str("state", m.State).
				Int64("extract_id", m.ExtractMovement.ID).
				Msg("orphan match detected, deleting")
			if err := g.matchRepo.Delete(m.ID); err != nil {
				g.log.Error().Err(err).Int64("match_id", m.ID).Msg("orphan deletion failed")
				// Keep it out of the valid set anyway; its extract
				// movement must not be treated as linked.
			}
			continue
		}
		valid = append(valid, m)
	}
	return valid
}

// OneToManyViolation groups the matches that reference one system
// movement.
type OneToManyViolation struct {
	SystemMovementID int64           `json:"system_movement_id"`
	Matches          []*models.Match `json:"matches"`
}

// DetectOneToMany finds system movements referenced by more than one
// live match in the period.
func (g *IntegrityGuard) DetectOneToMany(accountID int64, year, month int) ([]OneToManyViolation, error) {
	matches, err := g.matchRepo.GetByPeriod(accountID, year, month)
	if err != nil {
		return nil, err
	}
	bySystem := make(map[int64][]*models.Match)
	for _, m := range matches {
		if m.Linked() {
			bySystem[m.SystemMovement.ID] = append(bySystem[m.SystemMovement.ID], m)
		}
	}
	var violations []OneToManyViolation
	for systemID, group := range bySystem {
		if len(group) > 1 {
			violations = append(violations, OneToManyViolation{
				SystemMovementID: systemID,
				Matches:          group,
			})
		}
	}
	return violations, nil
}

// RepairOneToMany resolves each violation by deleting all but the
// highest-scoring match for the system movement. When the top scores
// tie, every match in the group is deleted: there is no basis to pick
// a winner, and freeing all the extract movements lets the next run
// re-match them cleanly. Returns the number of matches deleted.
//
// After a repair the caller must re-read the period's matches; any
// in-memory set is stale.
func (g *IntegrityGuard) RepairOneToMany(accountID int64, year, month int) (int, error) {
	violations, err := g.DetectOneToMany(accountID, year, month)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, v := range violations {
		best := v.Matches[0]
		tied := false
		for _, m := range v.Matches[1:] {
			switch {
			case m.ScoreTotal > best.ScoreTotal:
				best = m
				tied = false
			case m.ScoreTotal == best.ScoreTotal:
				tied = true
			}
		}
		for _, m := range v.Matches {
			if !tied && m.ID == best.ID {
				continue
			}
			g.log.Warn().
				Int64("match_id", m.ID).
				Int64("system_id", v.SystemMovementID).
				Float64("score_total", m.ScoreTotal).
				Bool("score_tie", tied).
				Msg("one-to-many violation, deleting match")
			if err := g.matchRepo.Delete(m.ID); err != nil {
				g.log.Error().Err(err).Int64("match_id", m.ID).Msg("violation deletion failed")
				continue
			}
			deleted++
		}
	}
	return deleted, nil
}
