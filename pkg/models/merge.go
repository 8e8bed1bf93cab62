package models

import "time"

// Merge strategy labels recorded on provenance rows.
const (
	MergeStrategyFuzzyName = "fuzzy-name"
	MergeStrategyManual    = "manual"
)

// MergeDecision names the survivor and the duplicate for a scored candidate
// pair. Decisions are deterministic and total: the resolver never returns an
// unresolved tie.
type MergeDecision struct {
	WorkspaceID string  `json:"workspace_id"`
	PrimaryID   string  `json:"primary_id"`
	SecondaryID string  `json:"secondary_id"`
	Score       float64 `json:"score"`
	Strategy    string  `json:"strategy"`
}

// MergeRecord is the provenance row appended to the survivor's audit trail.
// Source is the tombstoned duplicate, destination the survivor. Rows are
// never deleted.
type MergeRecord struct {
	ID            string    `json:"id" db:"id"`
	WorkspaceID   string    `json:"workspace_id" db:"workspace_id"`
	SourceID      string    `json:"source_id" db:"source_id"`
	DestinationID string    `json:"destination_id" db:"destination_id"`
	Score         float64   `json:"score" db:"score"`
	Strategy      string    `json:"strategy" db:"strategy"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// CandidatePair is an unordered pair of organizations whose similarity
// cleared the threshold.
type CandidatePair struct {
	A     *Organization `json:"a"`
	B     *Organization `json:"b"`
	Score float64       `json:"score"`
}
