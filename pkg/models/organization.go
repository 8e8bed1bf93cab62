package models

import "time"

// Organization represents a CRM organization record.
// Field order matches schema: id, workspace_id, name, normalized_name, ...
type Organization struct {
	ID             string     `json:"id" db:"id"`
	WorkspaceID    string     `json:"workspace_id" db:"workspace_id"`
	Name           string     `json:"name" db:"name"`
	NormalizedName string     `json:"normalized_name" db:"normalized_name"`
	Domain         *string    `json:"domain,omitempty" db:"domain"`
	Website        *string    `json:"website,omitempty" db:"website"`
	Industry       *string    `json:"industry,omitempty" db:"industry"`
	Address        *string    `json:"address,omitempty" db:"address"`
	PeopleCount    int        `json:"people_count" db:"people_count"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsTombstoned returns true if the organization has been absorbed into a survivor.
func (o *Organization) IsTombstoned() bool {
	return o.DeletedAt != nil
}

// MergeableFields returns the scalar attributes that participate in the
// first-non-null merge, keyed by column name.
func (o *Organization) MergeableFields() map[string]*string {
	return map[string]*string{
		"domain":   o.Domain,
		"website":  o.Website,
		"industry": o.Industry,
		"address":  o.Address,
	}
}
