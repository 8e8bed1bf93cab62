// Package candidates enumerates pairs of organizations within one workspace
// whose name similarity clears the auto-merge threshold.
//
// A full pairwise scan is quadratic in workspace size, so generation blocks
// on the first character of the normalized name: only pairs agreeing on that
// character are ever scored. Within a block, a length pre-filter skips pairs
// whose lengths alone put them below the threshold; that filter is lossless.
// The blocking itself is not: a pair whose normalized names differ in their
// first character is never surfaced even if its similarity would clear the
// threshold. That miss class is the documented trade-off versus the
// unblocked scan.
package candidates

import (
	"context"
	"sort"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

// BlockKey returns the blocking key for an organization: the first character
// of its normalized name. Organizations with no usable name have an empty
// key and join no block. Callers scanning in normalized-name order use the
// key to carry an unfinished block across a page boundary.
func BlockKey(org *models.Organization) string {
	key := org.NormalizedName
	if key == "" {
		key = normalizers.NormalizeCompanyName(org.Name)
	}
	if key == "" {
		return ""
	}
	return key[:1]
}

// Generator enumerates scored candidate pairs.
type Generator struct {
	logger    ectologger.Logger
	scorer    *similarity.Scorer
	threshold float64
	workers   int
}

// NewGenerator creates a generator with the given auto-merge threshold and
// scoring worker count.
func NewGenerator(logger ectologger.Logger, threshold float64, workers int) *Generator {
	if workers < 1 {
		workers = 1
	}
	return &Generator{
		logger:    logger,
		scorer:    similarity.NewScorer(),
		threshold: threshold,
		workers:   workers,
	}
}

// Generate returns every unordered pair of the given organizations whose
// similarity is at or above the threshold. Tombstoned organizations and
// organizations with an empty normalized name are skipped; the caller is
// expected to pass a single workspace's records.
func (g *Generator) Generate(ctx context.Context, workspaceID string, orgs []models.Organization) ([]models.CandidatePair, error) {
	ctx, span := tracing.StartSpan(ctx, "candidates.Generator.Generate")
	defer span.End()

	log := g.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": workspaceID,
		"org_count":    len(orgs),
	})

	blocks := make(map[byte][]*models.Organization)
	skipped := 0
	for i := range orgs {
		org := &orgs[i]
		if org.IsTombstoned() || org.WorkspaceID != workspaceID {
			continue
		}
		key := org.NormalizedName
		if key == "" {
			key = g.scorer.Normalize(org.Name)
			org.NormalizedName = key
		}
		if key == "" {
			skipped++
			continue
		}
		blocks[key[0]] = append(blocks[key[0]], org)
	}

	type blockJob struct {
		members []*models.Organization
	}

	jobs := make(chan blockJob)
	results := make(chan []models.CandidatePair, g.workers)

	var wg sync.WaitGroup
	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				results <- g.scoreBlock(job.members)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, members := range blocks {
			select {
			case <-ctx.Done():
				return
			case jobs <- blockJob{members: members}:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var pairs []models.CandidatePair
	for batch := range results {
		pairs = append(pairs, batch...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Deterministic order: best score first, then by id for stable reruns.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		if pairs[i].A.ID != pairs[j].A.ID {
			return pairs[i].A.ID < pairs[j].A.ID
		}
		return pairs[i].B.ID < pairs[j].B.ID
	})

	log.WithFields(map[string]any{
		"blocks":        len(blocks),
		"pairs":         len(pairs),
		"empty_skipped": skipped,
	}).Debug("Generated candidate pairs")

	return pairs, nil
}

// scoreBlock scores every pair inside one block. Pairs are kept unordered:
// each combination is visited once.
func (g *Generator) scoreBlock(members []*models.Organization) []models.CandidatePair {
	var out []models.CandidatePair
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			if !g.lengthsCanMatch(a.NormalizedName, b.NormalizedName) {
				continue
			}
			score := g.scorer.ScoreNormalized(a.NormalizedName, b.NormalizedName)
			if score >= g.threshold {
				out = append(out, models.CandidatePair{A: a, B: b, Score: score})
			}
		}
	}
	return out
}

// lengthsCanMatch is the lossless pre-filter: edit distance is at least the
// length difference, so similarity is at most 1 - diff/maxLen. If that bound
// is already below the threshold, scoring is pointless.
func (g *Generator) lengthsCanMatch(a, b string) bool {
	la, lb := len(a), len(b)
	maxLen := la
	diff := la - lb
	if lb > la {
		maxLen = lb
		diff = lb - la
	}
	if maxLen == 0 {
		return false
	}
	return 1.0-float64(diff)/float64(maxLen) >= g.threshold
}
