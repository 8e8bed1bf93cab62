// Package organization persists organization records, scoped by workspace.
package organization

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
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

var columns = []string{
	"id", "workspace_id", "name", "normalized_name", "domain", "website",
	"industry", "address", "people_count", "created_at", "updated_at", "deleted_at",
}

// Repository handles organization persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new organization repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Create inserts a new organization.
func (r *Repository) Create(ctx context.Context, org *models.Organization) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.Create")
	defer span.End()

	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.NormalizedName == "" {
		org.NormalizedName = normalizers.Apply(org.Name, "ncompany")
	}
	org.CreatedAt = time.Now().UTC()
	org.UpdatedAt = org.CreatedAt

	sb := database.NewInsertBuilder()
	sb.InsertInto("organizations")
	sb.Cols("id", "workspace_id", "name", "normalized_name", "domain", "website", "industry", "address", "people_count", "created_at", "updated_at")
	sb.Values(org.ID, org.WorkspaceID, org.Name, org.NormalizedName, org.Domain, org.Website, org.Industry, org.Address, org.PeopleCount, org.CreatedAt, org.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": org.ID}).Error("Failed to create organization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create organization")
	}

	return org, nil
}

// Get retrieves a non-tombstoned organization by ID.
func (r *Repository) Get(ctx context.Context, workspaceID, id string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("organizations")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("organization %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get organization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get organization")
	}

	return &org, nil
}

// ListActivePage retrieves one page of non-tombstoned organizations, ordered
// by normalized name then id. The order clusters near-duplicates so the
// merge pass compares them within one page, and keeps pages stable across a
// run.
func (r *Repository) ListActivePage(ctx context.Context, workspaceID string, limit, offset int) ([]models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.ListActivePage")
	defer span.End()

	if limit < 1 {
		limit = 100
	}

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("organizations")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("normalized_name", "id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list organizations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list organizations")
	}

	return orgs, nil
}

// UpdateScalars writes the given column assignments onto a non-tombstoned
// organization.
func (r *Repository) UpdateScalars(ctx context.Context, workspaceID, id string, fields map[string]any) error {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.UpdateScalars")
	defer span.End()

	if len(fields) == 0 {
		return nil
	}

	ub := database.NewUpdateBuilder()
	ub.Update("organizations")
	assignments := make([]string, 0, len(fields)+1)
	for col, val := range fields {
		assignments = append(assignments, ub.Assign(col, val))
	}
	assignments = append(assignments, ub.Assign("updated_at", time.Now().UTC()))
	ub.Set(assignments...)
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("workspace_id", workspaceID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsSerializationFailure(err) {
			return httperror.NewHTTPError(http.StatusConflict, "organization update conflict")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": id}).Error("Failed to update organization")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update organization")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("organization %s not found", id))
	}

	return nil
}

// SoftDelete tombstones an organization. Returns 404 when the organization
// does not exist or is already tombstoned, which keeps reruns idempotent.
func (r *Repository) SoftDelete(ctx context.Context, workspaceID, id string) error {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.SoftDelete")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update("organizations")
	ub.Set(ub.Assign("deleted_at", time.Now().UTC()))
	ub.Where(
		ub.Equal("id", id),
		ub.Equal("workspace_id", workspaceID),
		ub.IsNull("deleted_at"),
	)

	query, args := ub.Build()
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsSerializationFailure(err) {
			return httperror.NewHTTPError(http.StatusConflict, "organization tombstone conflict")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"organization_id": id}).Error("Failed to tombstone organization")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to tombstone organization")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("organization %s not found or already tombstoned", id))
	}

	return nil
}

// RecountPeople recomputes people_count from the people table and writes it
// back, returning the new count. Called inside the merge transaction so the
// survivor's count is consistent at commit.
func (r *Repository) RecountPeople(ctx context.Context, workspaceID, id string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.RecountPeople")
	defer span.End()

	query := `
		UPDATE organizations
		SET people_count = (
			SELECT COUNT(*) FROM people
			WHERE people.organization_id = organizations.id
			  AND people.workspace_id = organizations.workspace_id
			  AND people.deleted_at IS NULL
		), updated_at = $3
		WHERE id = $1 AND workspace_id = $2
		RETURNING people_count`

	var count int
	if err := r.db.GetContext(ctx, &count, query, id, workspaceID, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("organization %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to recount organization people")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to recount organization people")
	}

	return count, nil
}

// FindByDomain looks up a non-tombstoned organization by its normalized
// domain or website.
func (r *Repository) FindByDomain(ctx context.Context, workspaceID, domain string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.FindByDomain")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("organizations")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
		sb.Or(
			sb.Equal("domain", domain),
			sb.Like("website", "%"+domain+"%"),
		),
	)
	sb.OrderBy("created_at")
	sb.Limit(1)

	query, args := sb.Build()
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no organization for domain %s", domain))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find organization by domain")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find organization by domain")
	}

	return &org, nil
}

// SearchByName finds non-tombstoned organizations whose name or normalized
// name contains the fragment, case-insensitively.
func (r *Repository) SearchByName(ctx context.Context, workspaceID, fragment string, limit int) ([]models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.SearchByName")
	defer span.End()

	if limit < 1 || limit > 100 {
		limit = 10
	}

	pattern := "%" + fragment + "%"
	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("organizations")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
		sb.Or(
			sb.ILike("name", pattern),
			sb.ILike("normalized_name", pattern),
		),
	)
	sb.OrderBy("people_count DESC", "created_at")
	sb.Limit(limit)

	query, args := sb.Build()
	var orgs []models.Organization
	if err := r.db.SelectContext(ctx, &orgs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to search organizations by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to search organizations")
	}

	return orgs, nil
}

// LeastLoaded returns the non-tombstoned organization with the fewest
// people, used by the linker's low-confidence fallbacks.
func (r *Repository) LeastLoaded(ctx context.Context, workspaceID string) (*models.Organization, error) {
	ctx, span := tracing.StartSpan(ctx, "organization.Repository.LeastLoaded")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("organizations")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("people_count", "created_at")
	sb.Limit(1)

	query, args := sb.Build()
	var org models.Organization
	if err := r.db.GetContext(ctx, &org, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "no organizations in workspace")
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find least-loaded organization")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find least-loaded organization")
	}

	return &org, nil
}
