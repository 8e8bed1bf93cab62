package models

import "time"

// Activity types as tagged by ingestion. The type tag is a hint only;
// type-based inference treats unknown tags as neutral.
const (
	ActivityTypeEmail   = "email"
	ActivityTypeCall    = "call"
	ActivityTypeMeeting = "meeting"
	ActivityTypeNote    = "note"
	ActivityTypeTask    = "task"
)

// Activity is a dependent action/message record. A record with both owner
// references null is orphaned and is a candidate for identity linking.
type Activity struct {
	ID             string     `json:"id" db:"id"`
	WorkspaceID    string     `json:"workspace_id" db:"workspace_id"`
	Type           string     `json:"type" db:"type"`
	Subject        *string    `json:"subject,omitempty" db:"subject"`
	Content        string     `json:"content" db:"content"`
	PersonID       *string    `json:"person_id,omitempty" db:"person_id"`
	OrganizationID *string    `json:"organization_id,omitempty" db:"organization_id"`
	LinkStrategy   *string    `json:"link_strategy,omitempty" db:"link_strategy"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsOrphaned returns true when the activity has no owning person or organization.
func (a *Activity) IsOrphaned() bool {
	return a.PersonID == nil && a.OrganizationID == nil
}

// SearchableText returns the free-text fields scanned by the extraction rules.
func (a *Activity) SearchableText() string {
	if a.Subject != nil && *a.Subject != "" {
		return *a.Subject + "\n" + a.Content
	}
	return a.Content
}

// PersonCentric reports whether the type tag hints at a person-owned record.
func (a *Activity) PersonCentric() bool {
	switch a.Type {
	case ActivityTypeEmail, ActivityTypeCall, ActivityTypeMeeting:
		return true
	}
	return false
}
