// Package merging applies merge decisions as atomic cascades: dependents
// move to the survivor, scalar gaps fill from the duplicate, provenance is
// recorded, and the duplicate is tombstoned, all in one transaction.
package merging

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

// ErrAlreadyMerged marks a decision whose duplicate was already absorbed,
// here or in a previous run. Callers skip these rather than fail.
var ErrAlreadyMerged = errors.New("secondary organization already merged")

// OrganizationStore is the organization persistence the executor needs.
type OrganizationStore interface {
	Get(ctx context.Context, workspaceID, id string) (*models.Organization, error)
	UpdateScalars(ctx context.Context, workspaceID, id string, fields map[string]any) error
	SoftDelete(ctx context.Context, workspaceID, id string) error
	RecountPeople(ctx context.Context, workspaceID, id string) (int, error)
}

// PersonStore reassigns people between organizations.
type PersonStore interface {
	ReassignOrganization(ctx context.Context, workspaceID, fromOrgID, toOrgID string) (int64, error)
}

// ActivityStore reassigns activities between organizations.
type ActivityStore interface {
	ReassignOrganization(ctx context.Context, workspaceID, fromOrgID, toOrgID string) (int64, error)
}

// MergeRecordStore appends and checks merge provenance.
type MergeRecordStore interface {
	Append(ctx context.Context, record *models.MergeRecord) (*models.MergeRecord, error)
	ExistsForSource(ctx context.Context, workspaceID, sourceID string) (bool, error)
}

// Outcome summarizes one applied merge.
type Outcome struct {
	Record               *models.MergeRecord
	PeopleReassigned     int64
	ActivitiesReassigned int64
	FieldsFilled         []string
	PeopleCount          int
}

// Executor applies merge decisions.
type Executor struct {
	db            database.DB
	organizations OrganizationStore
	people        PersonStore
	activities    ActivityStore
	records       MergeRecordStore
	logger        ectologger.Logger
}

// NewExecutor creates a merge executor.
func NewExecutor(db database.DB, organizations OrganizationStore, people PersonStore, activities ActivityStore, records MergeRecordStore, logger ectologger.Logger) *Executor {
	return &Executor{
		db:            db,
		organizations: organizations,
		people:        people,
		activities:    activities,
		records:       records,
		logger:        logger,
	}
}

// Execute applies one merge decision inside a single transaction. Either
// the full cascade lands or none of it does. Returns ErrAlreadyMerged when
// the duplicate has a merge record from an earlier pass, a 404 error when
// either organization is gone, and a 409 error on serialization conflicts
// so the caller can retry.
func (e *Executor) Execute(ctx context.Context, decision *models.MergeDecision) (*Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Executor.Execute")
	defer span.End()

	if err := validateDecision(decision); err != nil {
		return nil, err
	}

	merged, err := e.records.ExistsForSource(ctx, decision.WorkspaceID, decision.SecondaryID)
	if err != nil {
		return nil, err
	}
	if merged {
		return nil, ErrAlreadyMerged
	}

	ctxTx, tx, err := e.db.GetTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to begin merge transaction")
	}
	// Rollback with the pre-transaction context so it takes effect on the
	// error paths below; Commit marks the tx closed first on success.
	defer tx.Rollback(ctx)

	outcome, err := e.cascade(ctxTx, decision)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		if database.IsSerializationFailure(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "merge transaction conflict")
		}
		return nil, httperror.NewHTTPError(http.StatusServiceUnavailable, "failed to commit merge")
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id": decision.WorkspaceID,
		"primary_id":   decision.PrimaryID,
		"secondary_id": decision.SecondaryID,
		"score":        decision.Score,
		"people_moved": outcome.PeopleReassigned,
	}).Info("Merged organization")

	return outcome, nil
}

func (e *Executor) cascade(ctx context.Context, decision *models.MergeDecision) (*Outcome, error) {
	primary, err := e.organizations.Get(ctx, decision.WorkspaceID, decision.PrimaryID)
	if err != nil {
		return nil, err
	}
	secondary, err := e.organizations.Get(ctx, decision.WorkspaceID, decision.SecondaryID)
	if err != nil {
		return nil, err
	}

	updates, filled := MergeScalars(primary, secondary)
	if len(updates) > 0 {
		if err := e.organizations.UpdateScalars(ctx, decision.WorkspaceID, primary.ID, updates); err != nil {
			return nil, err
		}
	}

	peopleMoved, err := e.people.ReassignOrganization(ctx, decision.WorkspaceID, secondary.ID, primary.ID)
	if err != nil {
		return nil, err
	}
	activitiesMoved, err := e.activities.ReassignOrganization(ctx, decision.WorkspaceID, secondary.ID, primary.ID)
	if err != nil {
		return nil, err
	}

	record, err := e.records.Append(ctx, &models.MergeRecord{
		WorkspaceID:   decision.WorkspaceID,
		SourceID:      secondary.ID,
		DestinationID: primary.ID,
		Score:         decision.Score,
		Strategy:      decision.Strategy,
	})
	if err != nil {
		return nil, err
	}

	if err := e.organizations.SoftDelete(ctx, decision.WorkspaceID, secondary.ID); err != nil {
		return nil, err
	}

	peopleCount, err := e.organizations.RecountPeople(ctx, decision.WorkspaceID, primary.ID)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		Record:               record,
		PeopleReassigned:     peopleMoved,
		ActivitiesReassigned: activitiesMoved,
		FieldsFilled:         filled,
		PeopleCount:          peopleCount,
	}, nil
}

func validateDecision(decision *models.MergeDecision) error {
	if decision == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "merge decision is required")
	}
	if decision.WorkspaceID == "" || decision.PrimaryID == "" || decision.SecondaryID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "merge decision is missing identifiers")
	}
	if decision.PrimaryID == decision.SecondaryID {
		return httperror.NewHTTPError(http.StatusBadRequest, "cannot merge an organization into itself")
	}
	return nil
}
