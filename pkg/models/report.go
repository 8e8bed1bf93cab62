package models

import "time"

// Skip/failure reasons recorded on report items.
const (
	ReasonValidation     = "validation"
	ReasonNotFound       = "not_found"
	ReasonConflict       = "transaction_conflict"
	ReasonBelowThreshold = "below_threshold"
	ReasonAlreadyMerged  = "already_merged"
)

// ReportItem is one skipped, errored, or low-confidence entry in the run
// report. Nothing is dropped without a trace.
type ReportItem struct {
	EntityID    string `json:"entity_id"`
	SecondaryID string `json:"secondary_id,omitempty"`
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

// OrphanResolution records one activity resolved by the identity linker,
// tagged with the winning strategy.
type OrphanResolution struct {
	ActivityID     string  `json:"activity_id"`
	PersonID       *string `json:"person_id,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Strategy       string  `json:"strategy"`
	LowConfidence  bool    `json:"low_confidence"`
}

// RunReport is the structured artifact handed to the operator after a run.
type RunReport struct {
	WorkspaceID       string    `json:"workspace_id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	LastCompletedPage int       `json:"last_completed_page"`
	DryRun            bool      `json:"dry_run"`

	CandidatesEvaluated int `json:"candidates_evaluated"`
	Merged              int `json:"merged"`
	Skipped             int `json:"skipped"`
	Errors              int `json:"errors"`

	MergeRecords []MergeRecord `json:"merge_records"`
	SkippedItems []ReportItem  `json:"skipped_items,omitempty"`
	FailedItems  []ReportItem  `json:"failed_items,omitempty"`

	OrphansSeen       int                `json:"orphans_seen"`
	OrphansResolved   []OrphanResolution `json:"orphans_resolved,omitempty"`
	OrphansUnresolved []string           `json:"orphans_unresolved,omitempty"`

	// Report-only observation: people sharing an identifier, surfaced for
	// manual review. Person records are never merged automatically.
	PeopleWithSharedEmail []string `json:"people_with_shared_email,omitempty"`
}

// AddSkip appends a skipped item and bumps the counter.
func (r *RunReport) AddSkip(item ReportItem) {
	r.Skipped++
	r.SkippedItems = append(r.SkippedItems, item)
}

// AddFailure appends a failed item and bumps the counter.
func (r *RunReport) AddFailure(item ReportItem) {
	r.Errors++
	r.FailedItems = append(r.FailedItems, item)
}
