// Package dedupe orchestrates a full deduplication run: the merge pass over
// organization candidates, the orphan-linking pass over activities, and the
// run report handed back to the driver.
package dedupe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/candidates"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolver"
)

var validate = validator.New()

// runLockTTL bounds how long a crashed run can block its workspace.
const runLockTTL = 30 * time.Minute

// OrganizationSource pages through active organizations.
type OrganizationSource interface {
	ListActivePage(ctx context.Context, workspaceID string, limit, offset int) ([]models.Organization, error)
}

// ActivitySource pages through orphaned activities.
type ActivitySource interface {
	ListOrphanedPage(ctx context.Context, workspaceID string, limit, offset int) ([]models.Activity, error)
	CountOrphaned(ctx context.Context, workspaceID string) (int, error)
}

// PersonSource surfaces shared identifiers for the report.
type PersonSource interface {
	SharedEmails(ctx context.Context, workspaceID string) ([]string, error)
}

// MergeExecutor applies one merge decision atomically.
type MergeExecutor interface {
	Execute(ctx context.Context, decision *models.MergeDecision) (*merging.Outcome, error)
}

// IdentityLinker resolves and links orphaned activities.
type IdentityLinker interface {
	Resolve(ctx context.Context, activity *models.Activity) (*models.OrphanResolution, error)
	Link(ctx context.Context, activity *models.Activity) (*models.OrphanResolution, error)
}

// EventSink receives merge and link outcomes.
type EventSink interface {
	EmitEntityMerged(ctx context.Context, record *models.MergeRecord)
	EmitActivityLinked(ctx context.Context, workspaceID string, resolution *models.OrphanResolution)
}

// RunLocker guards a workspace against concurrent runs. Nil disables
// locking.
type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*redis.Lock, error)
}

// Runner executes deduplication runs.
type Runner struct {
	organizations OrganizationSource
	people        PersonSource
	activities    ActivitySource
	executor      MergeExecutor
	linker        IdentityLinker
	emitter       EventSink
	locker        RunLocker
	logger        ectologger.Logger
}

// NewRunner creates a run orchestrator. The locker and emitter may be nil.
func NewRunner(organizations OrganizationSource, people PersonSource, activities ActivitySource, executor MergeExecutor, linker IdentityLinker, emitter EventSink, locker RunLocker, logger ectologger.Logger) *Runner {
	return &Runner{
		organizations: organizations,
		people:        people,
		activities:    activities,
		executor:      executor,
		linker:        linker,
		emitter:       emitter,
		locker:        locker,
		logger:        logger,
	}
}

// Run executes a full deduplication run for one workspace. Per-record
// errors are accumulated into the report and never abort the run;
// persistence failures abort the current page and return. LastCompletedPage
// counts fully scanned offsets only, never re-fetches of one offset, so a
// resumed run can start its scan at LastCompletedPage * PageSize. The
// report is returned even on error.
func (r *Runner) Run(ctx context.Context, params models.RunParams) (*models.RunReport, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Runner.Run")
	defer span.End()

	params = withDefaults(params)
	if err := validate.Struct(params); err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid run parameters: %v", err)
	}

	if r.locker != nil {
		lock, err := r.locker.Acquire(ctx, "dedupe:run:"+params.WorkspaceID, runLockTTL)
		if err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				return nil, httperror.NewHTTPErrorf(http.StatusConflict, "a run is already in progress for workspace %s", params.WorkspaceID)
			}
			return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to acquire run lock")
		}
		defer lock.Release(ctx)
	}

	rep := &models.RunReport{
		WorkspaceID: params.WorkspaceID,
		StartedAt:   time.Now().UTC(),
		DryRun:      params.DryRun,
	}
	timer := time.Now()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": params.WorkspaceID,
		"threshold":    params.AutoMergeThreshold,
		"page_size":    params.PageSize,
		"dry_run":      params.DryRun,
		"trace_id":     tracing.GetTraceID(ctx),
	}).Info("Starting dedupe run")

	err := r.run(ctx, params, rep)

	rep.FinishedAt = time.Now().UTC()
	metrics.RunDuration.WithLabelValues(params.WorkspaceID).Observe(time.Since(timer).Seconds())
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	metrics.RunsTotal.WithLabelValues(params.WorkspaceID, outcome).Inc()

	return rep, err
}

func (r *Runner) run(ctx context.Context, params models.RunParams, rep *models.RunReport) error {
	if !params.SkipMergePass {
		if err := r.mergePass(ctx, params, rep); err != nil {
			return err
		}
	}
	if !params.SkipOrphanPass {
		if err := r.orphanPass(ctx, params, rep); err != nil {
			return err
		}
	}

	shared, err := r.people.SharedEmails(ctx, params.WorkspaceID)
	if err != nil {
		return err
	}
	rep.PeopleWithSharedEmail = shared

	return nil
}

// mergePass pages through active organizations in normalized-name order,
// scores candidates, and applies merge decisions. The scan order clusters
// near-duplicates, and the trailing block of each completed page rides
// along into the next scan so a block split across a page boundary is
// still compared in full. A page that produced merges is re-fetched at the
// same offset because tombstoned rows shift later rows left; the loop
// converges since every merge shrinks the active set.
func (r *Runner) mergePass(ctx context.Context, params models.RunParams, rep *models.RunReport) error {
	generator := candidates.NewGenerator(r.logger, params.AutoMergeThreshold, params.WorkerCount)
	mergedAway := make(map[string]bool)

	var carry []models.Organization
	offset := 0
	for {
		metrics.PagesInFlight.Inc()
		orgs, err := r.organizations.ListActivePage(ctx, params.WorkspaceID, params.PageSize, offset)
		if err != nil {
			metrics.PagesInFlight.Dec()
			return err
		}
		if len(orgs) == 0 {
			metrics.PagesInFlight.Dec()
			break
		}

		scan := make([]models.Organization, 0, len(carry)+len(orgs))
		scan = append(scan, carry...)
		scan = append(scan, orgs...)

		merges, err := r.processOrganizationPage(ctx, params, rep, generator, scan, mergedAway)
		metrics.PagesInFlight.Dec()
		if err != nil {
			return err
		}

		if merges == 0 || params.DryRun {
			rep.LastCompletedPage++
			carry = trailingBlock(scan, mergedAway, params.PageSize)
			if len(orgs) < params.PageSize {
				break
			}
			offset += params.PageSize
		}
	}

	return nil
}

// trailingBlock returns the live tail of a scanned slice that shares the
// blocking key of its last row, capped at limit rows and in scan order.
// Carrying it into the next fetch keeps a block intact across the page
// boundary; members of one block further apart than the cap are the only
// same-block pairs the pass can miss.
func trailingBlock(scan []models.Organization, mergedAway map[string]bool, limit int) []models.Organization {
	var tail []models.Organization
	var key string
	for i := len(scan) - 1; i >= 0 && len(tail) < limit; i-- {
		org := scan[i]
		if mergedAway[org.ID] {
			continue
		}
		k := candidates.BlockKey(&org)
		if k == "" {
			continue
		}
		if key == "" {
			key = k
		}
		if k != key {
			break
		}
		tail = append(tail, org)
	}
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail
}

func (r *Runner) processOrganizationPage(ctx context.Context, params models.RunParams, rep *models.RunReport, generator *candidates.Generator, orgs []models.Organization, mergedAway map[string]bool) (int, error) {
	pairs, err := generator.Generate(ctx, params.WorkspaceID, orgs)
	if err != nil {
		return 0, err
	}
	rep.CandidatesEvaluated += len(pairs)
	metrics.CandidatesEvaluated.WithLabelValues(params.WorkspaceID).Add(float64(len(pairs)))

	merges := 0
	for _, pair := range pairs {
		decision, err := resolver.Decide(pair)
		if err != nil {
			rep.AddSkip(models.ReportItem{
				EntityID:    pair.A.ID,
				SecondaryID: pair.B.ID,
				Reason:      models.ReasonValidation,
				Detail:      err.Error(),
			})
			continue
		}

		if mergedAway[decision.PrimaryID] || mergedAway[decision.SecondaryID] {
			rep.AddSkip(models.ReportItem{
				EntityID:    decision.PrimaryID,
				SecondaryID: decision.SecondaryID,
				Reason:      models.ReasonAlreadyMerged,
			})
			continue
		}

		if params.DryRun {
			rep.Merged++
			rep.MergeRecords = append(rep.MergeRecords, models.MergeRecord{
				WorkspaceID:   decision.WorkspaceID,
				SourceID:      decision.SecondaryID,
				DestinationID: decision.PrimaryID,
				Score:         decision.Score,
				Strategy:      decision.Strategy,
			})
			mergedAway[decision.SecondaryID] = true
			continue
		}

		if err := r.applyMerge(ctx, params, rep, &decision, mergedAway); err != nil {
			return merges, err
		}
		if mergedAway[decision.SecondaryID] {
			merges++
		}
	}

	return merges, nil
}

// applyMerge executes one decision with bounded retries on transaction
// conflicts. Validation, not-found, conflict-exhaustion, and
// already-merged outcomes land in the report; only persistence failures
// propagate and abort the page.
func (r *Runner) applyMerge(ctx context.Context, params models.RunParams, rep *models.RunReport, decision *models.MergeDecision, mergedAway map[string]bool) error {
	timer := time.Now()
	var outcome *merging.Outcome
	err := r.withRetry(ctx, params.MaxRetries, func() error {
		var execErr error
		outcome, execErr = r.executor.Execute(ctx, decision)
		return execErr
	})
	metrics.MergeDuration.WithLabelValues(params.WorkspaceID).Observe(time.Since(timer).Seconds())

	if err != nil {
		item := models.ReportItem{
			EntityID:    decision.PrimaryID,
			SecondaryID: decision.SecondaryID,
			Detail:      err.Error(),
		}
		switch {
		case errors.Is(err, merging.ErrAlreadyMerged):
			item.Reason = models.ReasonAlreadyMerged
			rep.AddSkip(item)
			metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "skipped").Inc()
		case statusCode(err) == http.StatusBadRequest:
			item.Reason = models.ReasonValidation
			rep.AddSkip(item)
			metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "skipped").Inc()
		case statusCode(err) == http.StatusNotFound:
			item.Reason = models.ReasonNotFound
			rep.AddSkip(item)
			metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "skipped").Inc()
		case statusCode(err) == http.StatusConflict:
			item.Reason = models.ReasonConflict
			rep.AddFailure(item)
			metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "conflict").Inc()
		default:
			metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "error").Inc()
			return err
		}
		return nil
	}

	mergedAway[decision.SecondaryID] = true
	rep.Merged++
	rep.MergeRecords = append(rep.MergeRecords, *outcome.Record)
	metrics.MergesTotal.WithLabelValues(params.WorkspaceID, "merged").Inc()
	if r.emitter != nil {
		r.emitter.EmitEntityMerged(ctx, outcome.Record)
	}

	return nil
}

// orphanPass pages through orphaned activities and runs the linker chain
// over each. Activities that stay orphaned remain in the scan set, so the
// pass tracks seen IDs and only advances the offset once a fetch links
// nothing new.
func (r *Runner) orphanPass(ctx context.Context, params models.RunParams, rep *models.RunReport) error {
	backlog, err := r.activities.CountOrphaned(ctx, params.WorkspaceID)
	if err != nil {
		return err
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": params.WorkspaceID,
		"orphans":      backlog,
	}).Info("Starting orphan pass")

	seen := make(map[string]bool)

	offset := 0
	for {
		activities, err := r.activities.ListOrphanedPage(ctx, params.WorkspaceID, params.PageSize, offset)
		if err != nil {
			return err
		}
		if len(activities) == 0 {
			break
		}

		linked := 0
		for i := range activities {
			activity := &activities[i]
			if seen[activity.ID] {
				continue
			}
			seen[activity.ID] = true
			rep.OrphansSeen++

			resolution, err := r.linkOne(ctx, params, activity)
			if err != nil {
				if statusCode(err) == http.StatusConflict {
					rep.AddFailure(models.ReportItem{
						EntityID: activity.ID,
						Reason:   models.ReasonConflict,
						Detail:   err.Error(),
					})
					continue
				}
				if statusCode(err) == http.StatusNotFound {
					rep.AddSkip(models.ReportItem{
						EntityID: activity.ID,
						Reason:   models.ReasonNotFound,
						Detail:   err.Error(),
					})
					continue
				}
				return err
			}

			if resolution == nil {
				rep.OrphansUnresolved = append(rep.OrphansUnresolved, activity.ID)
				metrics.OrphansUnresolved.WithLabelValues(params.WorkspaceID).Inc()
				continue
			}

			rep.OrphansResolved = append(rep.OrphansResolved, *resolution)
			metrics.OrphansResolved.WithLabelValues(params.WorkspaceID, resolution.Strategy).Inc()
			if !params.DryRun && r.emitter != nil {
				r.emitter.EmitActivityLinked(ctx, params.WorkspaceID, resolution)
			}
			if !params.DryRun {
				linked++
			}
		}

		if linked == 0 {
			rep.LastCompletedPage++
			if len(activities) < params.PageSize {
				break
			}
			offset += params.PageSize
		}
	}

	return nil
}

func (r *Runner) linkOne(ctx context.Context, params models.RunParams, activity *models.Activity) (*models.OrphanResolution, error) {
	if params.DryRun {
		return r.linker.Resolve(ctx, activity)
	}

	var resolution *models.OrphanResolution
	err := r.withRetry(ctx, params.MaxRetries, func() error {
		var linkErr error
		resolution, linkErr = r.linker.Link(ctx, activity)
		return linkErr
	})
	return resolution, err
}

// withRetry retries fn on transaction conflicts with doubling backoff,
// up to maxRetries additional attempts. Any other error returns
// immediately.
func (r *Runner) withRetry(ctx context.Context, maxRetries int, fn func() error) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || statusCode(err) != http.StatusConflict || attempt >= maxRetries {
			return err
		}

		r.logger.WithContext(ctx).WithField("attempt", attempt+1).Warn("Transaction conflict, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 2*time.Second {
			backoff = 2 * time.Second
		}
	}
}

func statusCode(err error) int {
	if err == nil || !httperror.IsHTTPError(err) {
		return 0
	}
	return httperror.GetStatusCode(err)
}

func withDefaults(params models.RunParams) models.RunParams {
	defaults := models.DefaultRunParams()
	if params.AutoMergeThreshold == 0 {
		params.AutoMergeThreshold = defaults.AutoMergeThreshold
	}
	if params.PageSize == 0 {
		params.PageSize = defaults.PageSize
	}
	if params.WorkerCount == 0 {
		params.WorkerCount = defaults.WorkerCount
	}
	if params.MaxRetries == 0 {
		params.MaxRetries = defaults.MaxRetries
	}
	return params
}
