package merging

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// MergeScalars computes the scalar field updates for a merge: every
// mergeable field that is null on the survivor and non-null on the
// duplicate is filled from the duplicate. Populated survivor fields are
// never overwritten. Returns the column assignments and the names of
// the filled columns, sorted for stable output.
func MergeScalars(primary, secondary *models.Organization) (map[string]any, []string) {
	primaryFields := primary.MergeableFields()
	secondaryFields := secondary.MergeableFields()

	updates := make(map[string]any)
	filled := make([]string, 0, len(primaryFields))
	for column, value := range primaryFields {
		if value != nil {
			continue
		}
		donor := secondaryFields[column]
		if donor == nil {
			continue
		}
		updates[column] = *donor
		filled = append(filled, column)
	}
	sort.Strings(filled)

	return updates, filled
}
