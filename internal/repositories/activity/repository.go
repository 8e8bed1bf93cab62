// Package activity persists activity records and their owner links.
package activity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/internal/database"
	"github.com/Ramsey-B/clover/internal/tracing"
	"github.com/Ramsey-B/clover/pkg/models"
)

var columns = []string{
	"id", "workspace_id", "type", "subject", "content",
	"person_id", "organization_id", "link_strategy",
	"created_at", "updated_at", "deleted_at",
}

// Repository handles activity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new activity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new activity.
func (r *Repository) Create(ctx context.Context, a *models.Activity) (*models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.Create")
	defer span.End()

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("activities")
	sb.Cols("id", "workspace_id", "type", "subject", "content", "person_id", "organization_id", "link_strategy", "created_at", "updated_at")
	sb.Values(a.ID, a.WorkspaceID, a.Type, a.Subject, a.Content, a.PersonID, a.OrganizationID, a.LinkStrategy, a.CreatedAt, a.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"activity_id": a.ID}).Error("Failed to create activity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create activity")
	}

	return a, nil
}

// Get retrieves a non-tombstoned activity by ID.
func (r *Repository) Get(ctx context.Context, workspaceID, id string) (*models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("activities")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var a models.Activity
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("activity %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get activity")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get activity")
	}

	return &a, nil
}

// ListOrphanedPage returns a stable page of activities with no owning
// person or organization. Ordering by creation time then ID keeps pages
// consistent across a run even as earlier pages get linked.
func (r *Repository) ListOrphanedPage(ctx context.Context, workspaceID string, limit, offset int) ([]models.Activity, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.ListOrphanedPage")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("activities")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
		sb.IsNull("person_id"),
		sb.IsNull("organization_id"),
	)
	sb.OrderBy("created_at", "id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list orphaned activities")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list orphaned activities")
	}

	return activities, nil
}

// CountOrphaned returns the number of unlinked activities in the workspace.
func (r *Repository) CountOrphaned(ctx context.Context, workspaceID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.CountOrphaned")
	defer span.End()

	query := `
		SELECT COUNT(*) FROM activities
		WHERE workspace_id = $1 AND deleted_at IS NULL
		  AND person_id IS NULL AND organization_id IS NULL`

	var count int
	if err := r.db.GetContext(ctx, &count, query, workspaceID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count orphaned activities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count orphaned activities")
	}

	return count, nil
}

// SetOwners links an activity to its resolved owners and records which
// strategy produced the link. Either owner may be nil.
func (r *Repository) SetOwners(ctx context.Context, workspaceID, id string, personID, organizationID *string, strategy string) error {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.SetOwners")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("activities")
	ub.Set(
		ub.Assign("person_id", personID),
		ub.Assign("organization_id", organizationID),
		ub.Assign("link_strategy", strategy),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("workspace_id", workspaceID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"activity_id": id}).Error("Failed to link activity")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link activity")
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to link activity")
	}
	if rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("activity %s not found", id))
	}

	return nil
}

// ReassignOrganization moves every non-tombstoned activity from one
// organization to another. Returns the number of activities reassigned.
func (r *Repository) ReassignOrganization(ctx context.Context, workspaceID, fromOrgID, toOrgID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.ReassignOrganization")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("activities")
	ub.Set(
		ub.Assign("organization_id", toOrgID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(
		ub.Equal("workspace_id", workspaceID),
		ub.Equal("organization_id", fromOrgID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsSerializationFailure(err) {
			return 0, httperror.NewHTTPError(http.StatusConflict, "activity reassignment conflict")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_organization_id": fromOrgID,
			"to_organization_id":   toOrgID,
		}).Error("Failed to reassign activities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign activities")
	}

	rows, _ := res.RowsAffected()
	return rows, nil
}

// RecountPerson refreshes a person's cached activity count from the
// activities table. Returns the new count.
func (r *Repository) RecountPerson(ctx context.Context, workspaceID, personID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "activity.Repository.RecountPerson")
	defer span.End()

	query := `
		UPDATE people SET activity_count = (
			SELECT COUNT(*) FROM activities
			WHERE activities.person_id = people.id AND activities.deleted_at IS NULL
		), updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2 AND deleted_at IS NULL
		RETURNING activity_count`

	var count int
	if err := r.db.GetContext(ctx, &count, query, personID, workspaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", personID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to recount activities")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to recount activities")
	}

	return count, nil
}
