// Package mergerecord persists merge provenance. Records are append-only;
// nothing updates or deletes them once written.
package mergerecord

import (
	"context"
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
	"id", "workspace_id", "source_id", "destination_id",
	"score", "strategy", "created_at",
}

// Repository handles merge record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Append writes a merge record.
func (r *Repository) Append(ctx context.Context, record *models.MergeRecord) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Append")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()

	sb := database.NewInsertBuilder()
	sb.InsertInto("merge_records")
	sb.Cols("id", "workspace_id", "source_id", "destination_id", "score", "strategy", "created_at")
	sb.Values(record.ID, record.WorkspaceID, record.SourceID, record.DestinationID, record.Score, record.Strategy, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsSerializationFailure(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "merge record append conflict")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"source_id":      record.SourceID,
			"destination_id": record.DestinationID,
		}).Error("Failed to append merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to append merge record")
	}

	return record, nil
}

// ListByDestination returns the merge history of a surviving entity,
// newest first.
func (r *Repository) ListByDestination(ctx context.Context, workspaceID, destinationID string) ([]models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ListByDestination")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("merge_records")
	sb.Where(
		sb.Equal("workspace_id", workspaceID),
		sb.Equal("destination_id", destinationID),
	)
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var records []models.MergeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge records")
	}

	return records, nil
}

// ExistsForSource reports whether the entity has already been merged
// away. Re-runs use this to skip already-applied decisions.
func (r *Repository) ExistsForSource(ctx context.Context, workspaceID, sourceID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.ExistsForSource")
	defer span.End()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM merge_records
			WHERE workspace_id = $1 AND source_id = $2
		)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, workspaceID, sourceID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to check merge records")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to check merge records")
	}

	return exists, nil
}
