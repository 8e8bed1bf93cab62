// Package linker resolves orphaned activities to an owning person or
// organization through an ordered, first-match-wins strategy chain. It
// shares the extraction rules with the matching pipeline but runs as an
// independent pass.
package linker

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

// PersonDirectory is the person lookup surface the strategies use.
type PersonDirectory interface {
	FindByIdentifier(ctx context.Context, workspaceID, identifier string) (*models.Person, error)
	SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Person, error)
	LeastLoaded(ctx context.Context, workspaceID string) (*models.Person, error)
}

// OrganizationDirectory is the organization lookup surface the strategies use.
type OrganizationDirectory interface {
	FindByDomain(ctx context.Context, workspaceID, domain string) (*models.Organization, error)
	SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Organization, error)
	LeastLoaded(ctx context.Context, workspaceID string) (*models.Organization, error)
}

// ActivityStore writes resolved owner links.
type ActivityStore interface {
	SetOwners(ctx context.Context, workspaceID, id string, personID, organizationID *string, strategy string) error
	RecountPerson(ctx context.Context, workspaceID, personID string) (int, error)
}

// Linker runs the strategy chain over orphaned activities.
type Linker struct {
	db            database.DB
	people        PersonDirectory
	organizations OrganizationDirectory
	activities    ActivityStore
	logger        ectologger.Logger
	chain         []strategy
}

// NewLinker creates an identity linker with the full strategy chain.
func NewLinker(db database.DB, people PersonDirectory, organizations OrganizationDirectory, activities ActivityStore, logger ectologger.Logger) *Linker {
	l := &Linker{
		db:            db,
		people:        people,
		organizations: organizations,
		activities:    activities,
		logger:        logger,
	}
	l.chain = []strategy{
		{name: StrategyExactIdentifier, fn: l.exactIdentifier},
		{name: StrategyDomainDerived, fn: l.domainDerived},
		{name: StrategyName, fn: l.nameMatch},
		{name: StrategyOrganizationToken, fn: l.organizationToken},
		{name: StrategyTypeInference, fn: l.typeInference},
		{name: StrategyFallbackDistribution, fn: l.fallbackDistribution},
	}
	return l
}

// Resolve runs the chain against one orphaned activity without writing
// anything. Returns nil when every strategy misses; the activity stays
// orphaned and the caller reports it.
func (l *Linker) Resolve(ctx context.Context, activity *models.Activity) (*models.OrphanResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "linker.Linker.Resolve")
	defer span.End()

	if activity == nil || activity.ID == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "activity is required")
	}
	if !activity.IsOrphaned() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "activity already has an owner")
	}

	for _, s := range l.chain {
		match, err := s.fn(ctx, activity.WorkspaceID, activity)
		if err != nil {
			return nil, err
		}
		if match == nil {
			continue
		}
		return &models.OrphanResolution{
			ActivityID:     activity.ID,
			PersonID:       match.personID,
			OrganizationID: match.organizationID,
			Strategy:       s.name,
			LowConfidence:  match.lowConfidence,
		}, nil
	}

	return nil, nil
}

// Link resolves one orphaned activity and persists the owner link in a
// single transaction, refreshing the owning person's activity count so
// least-loaded selection stays accurate within the run.
func (l *Linker) Link(ctx context.Context, activity *models.Activity) (*models.OrphanResolution, error) {
	ctx, span := tracing.StartSpan(ctx, "linker.Linker.Link")
	defer span.End()

	resolution, err := l.Resolve(ctx, activity)
	if err != nil || resolution == nil {
		return nil, err
	}

	ctxTx, tx, err := l.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to begin link transaction")
	}
	defer tx.Rollback(ctx)

	if err := l.activities.SetOwners(ctxTx, activity.WorkspaceID, activity.ID, resolution.PersonID, resolution.OrganizationID, resolution.Strategy); err != nil {
		return nil, err
	}
	if resolution.PersonID != nil {
		if _, err := l.activities.RecountPerson(ctxTx, activity.WorkspaceID, *resolution.PersonID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if database.IsSerializationFailure(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "link transaction conflict")
		}
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to commit link")
	}

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"activity_id":    activity.ID,
		"strategy":       resolution.Strategy,
		"low_confidence": resolution.LowConfidence,
	}).Debug("Linked orphaned activity")

	return resolution, nil
}
