// Package resolver turns a scored candidate pair into a merge decision.
package resolver

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Decide picks the survivor for a candidate pair. The rule is deterministic
// and total:
//  1. the organization with more active people survives;
//  2. on a tie, the earlier-created organization survives;
//  3. on an exact timestamp tie, the lower id survives.
//
// The double-tie fallback keeps the rule total for fixture data with shared
// timestamps.
func Decide(pair models.CandidatePair) (models.MergeDecision, error) {
	if pair.A == nil || pair.B == nil {
		return models.MergeDecision{}, httperror.NewHTTPError(http.StatusBadRequest, "candidate pair is missing an organization")
	}
	if pair.A.WorkspaceID != pair.B.WorkspaceID {
		return models.MergeDecision{}, httperror.NewHTTPError(http.StatusBadRequest, "candidate pair crosses workspaces")
	}
	if pair.A.ID == pair.B.ID {
		return models.MergeDecision{}, httperror.NewHTTPError(http.StatusBadRequest, "candidate pair references a single organization")
	}

	primary, secondary := pair.A, pair.B
	if !wins(primary, secondary) {
		primary, secondary = secondary, primary
	}

	return models.MergeDecision{
		WorkspaceID: primary.WorkspaceID,
		PrimaryID:   primary.ID,
		SecondaryID: secondary.ID,
		Score:       pair.Score,
		Strategy:    models.MergeStrategyFuzzyName,
	}, nil
}

func wins(a, b *models.Organization) bool {
	if a.PeopleCount != b.PeopleCount {
		return a.PeopleCount > b.PeopleCount
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
