package models

// RunParams carries the configuration for one deduplication run. Workspace
// scope and thresholds are always explicit parameters supplied by the
// driver, never embedded constants.
type RunParams struct {
	WorkspaceID        string  `json:"workspace_id" validate:"required"`
	AutoMergeThreshold float64 `json:"auto_merge_threshold" validate:"gt=0,lte=1"`
	PageSize           int     `json:"page_size" validate:"gt=0"`
	WorkerCount        int     `json:"worker_count" validate:"gt=0"`
	MaxRetries         int     `json:"max_retries" validate:"gte=0"`
	DryRun             bool    `json:"dry_run"`
	SkipMergePass      bool    `json:"skip_merge_pass"`
	SkipOrphanPass     bool    `json:"skip_orphan_pass"`
}

// DefaultRunParams returns run parameters with the documented defaults.
// The workspace ID must still be supplied by the caller.
func DefaultRunParams() RunParams {
	return RunParams{
		AutoMergeThreshold: 0.85,
		PageSize:           200,
		WorkerCount:        4,
		MaxRetries:         3,
	}
}
