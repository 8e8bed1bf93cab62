// Package person persists person records, scoped by workspace.
package person

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
	"id", "workspace_id", "full_name", "first_name", "last_name",
	"email", "work_email", "personal_email", "organization_id",
	"activity_count", "created_at", "updated_at", "deleted_at",
}

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new person.
func (r *Repository) Create(ctx context.Context, p *models.Person) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("people")
	sb.Cols("id", "workspace_id", "full_name", "first_name", "last_name", "email", "work_email", "personal_email", "organization_id", "activity_count", "created_at", "updated_at")
	sb.Values(p.ID, p.WorkspaceID, p.FullName, p.FirstName, p.LastName, p.Email, p.WorkEmail, p.PersonalEmail, p.OrganizationID, p.ActivityCount, p.CreatedAt, p.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"person_id": p.ID}).Error("Failed to create person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create person")
	}

	return p, nil
}

// Get retrieves a non-tombstoned person by ID.
func (r *Repository) Get(ctx context.Context, workspaceID, id string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("person %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get person")
	}

	return &p, nil
}

// FindByIdentifier looks up a non-tombstoned person by any identifier field.
func (r *Repository) FindByIdentifier(ctx context.Context, workspaceID, identifier string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByIdentifier")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
		sb.Or(
			sb.Equal("email", identifier),
			sb.Equal("work_email", identifier),
			sb.Equal("personal_email", identifier),
		),
	)
	sb.OrderBy("created_at")
	sb.Limit(1)

	query, args := sb.Build()
	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no person with identifier %s", identifier))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find person by identifier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find person by identifier")
	}

	return &p, nil
}

// SearchByName finds non-tombstoned people whose full name or name
// components contain the fragment, case-insensitively.
func (r *Repository) SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SearchByName")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 10
	}

	pattern := "%" + fragment + "%"
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
		sb.Or(
			sb.ILike("full_name", pattern),
			sb.ILike("first_name", pattern),
			sb.ILike("last_name", pattern),
		),
	)
	sb.OrderBy("activity_count DESC", "created_at")
	sb.Limit(limit)

	query, args := sb.Build()
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search people by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search people")
	}

	return people, nil
}

// LeastLoaded returns the non-tombstoned person with the fewest linked
// activities, used by the linker's fallback distribution.
func (r *Repository) LeastLoaded(ctx context.Context, workspaceID string) (*models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.LeastLoaded")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("people")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("activity_count", "created_at")
	sb.Limit(1)

	query, args := sb.Build()
	var p models.Person
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "no people in workspace")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find least-loaded person")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find least-loaded person")
	}

	return &p, nil
}

// ReassignOrganization moves every non-tombstoned person from one
// organization to another. Returns the number of people reassigned.
func (r *Repository) ReassignOrganization(ctx context.Context, workspaceID, fromOrgID, toOrgID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.ReassignOrganization")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("people")
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
			return 0, httperror.NewHTTPError(http.StatusConflict, "person reassignment conflict")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"from_organization_id": fromOrgID,
			"to_organization_id":   toOrgID,
		}).Error("Failed to reassign people")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to reassign people")
	}

	rows, _ := res.RowsAffected()
	return rows, nil
}

// SharedEmails returns identifier values held by more than one
// non-tombstoned person, for the run report's manual-review section.
func (r *Repository) SharedEmails(ctx context.Context, workspaceID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SharedEmails")
	defer span.End()

	query := `
		SELECT email FROM people
		WHERE workspace_id = $1 AND deleted_at IS NULL AND email IS NOT NULL
		GROUP BY email
		HAVING COUNT(*) > 1
		ORDER BY email`

	var emails []string
	if err := r.db.SelectContext(ctx, &emails, query, workspaceID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to scan for shared emails")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to scan for shared emails")
	}

	return emails, nil
}
