package models

import "time"

// Person represents a CRM person record. A person may carry several
// identifier fields (email variants); any of them can match during
// orphan resolution.
type Person struct {
	ID             string     `json:"id" db:"id"`
	WorkspaceID    string     `json:"workspace_id" db:"workspace_id"`
	FullName       string     `json:"full_name" db:"full_name"`
	FirstName      *string    `json:"first_name,omitempty" db:"first_name"`
	LastName       *string    `json:"last_name,omitempty" db:"last_name"`
	Email          *string    `json:"email,omitempty" db:"email"`
	WorkEmail      *string    `json:"work_email,omitempty" db:"work_email"`
	PersonalEmail  *string    `json:"personal_email,omitempty" db:"personal_email"`
	OrganizationID *string    `json:"organization_id,omitempty" db:"organization_id"`
	ActivityCount  int        `json:"activity_count" db:"activity_count"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
