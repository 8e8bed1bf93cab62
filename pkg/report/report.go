// Package report emits the structured run report consumed by operators.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Emitter writes run reports as JSON artifacts and logs a summary.
type Emitter struct {
	logger ectologger.Logger
}

// NewEmitter creates a report emitter.
func NewEmitter(logger ectologger.Logger) *Emitter {
	return &Emitter{logger: logger}
}

// Emit logs the run summary and, when path is non-empty, writes the full
// report to it as indented JSON. The write goes through a temp file and
// rename so a crash never leaves a truncated artifact.
func (e *Emitter) Emit(ctx context.Context, rep *models.RunReport, path string) error {
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"workspace_id":         rep.WorkspaceID,
		"dry_run":              rep.DryRun,
		"candidates_evaluated": rep.CandidatesEvaluated,
		"merged":               rep.Merged,
		"skipped":              rep.Skipped,
		"errors":               rep.Errors,
		"orphans_seen":         rep.OrphansSeen,
		"orphans_resolved":     len(rep.OrphansResolved),
		"orphans_unresolved":   len(rep.OrphansUnresolved),
		"last_completed_page":  rep.LastCompletedPage,
	}).Info("Dedupe run report")

	if path == "" {
		return nil
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}

	e.logger.WithContext(ctx).WithField("path", path).Info("Wrote run report")
	return nil
}
