package merging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func strptr(s string) *string { return &s }

func TestMergeScalars(t *testing.T) {
	t.Run("fills nulls from secondary", func(t *testing.T) {
		primary := &models.Organization{}
		secondary := &models.Organization{
			Domain:   strptr("acme.com"),
			Industry: strptr("manufacturing"),
		}

		updates, filled := MergeScalars(primary, secondary)
		assert.Equal(t, map[string]any{
			"domain":   "acme.com",
			"industry": "manufacturing",
		}, updates)
		assert.Equal(t, []string{"domain", "industry"}, filled)
	})

	t.Run("primary values always take precedence", func(t *testing.T) {
		primary := &models.Organization{
			Domain:  strptr("acme.com"),
			Website: strptr("https://acme.com"),
		}
		secondary := &models.Organization{
			Domain:  strptr("acme-widgets.com"),
			Website: strptr("https://acme-widgets.com"),
			Address: strptr("1 Main St"),
		}

		updates, filled := MergeScalars(primary, secondary)
		assert.Equal(t, map[string]any{"address": "1 Main St"}, updates)
		assert.Equal(t, []string{"address"}, filled)
	})

	t.Run("blank survivor values are kept", func(t *testing.T) {
		// a deliberately blanked field is populated, not null
		primary := &models.Organization{Domain: strptr("")}
		secondary := &models.Organization{Domain: strptr("acme.com")}

		updates, filled := MergeScalars(primary, secondary)
		assert.Empty(t, updates)
		assert.Empty(t, filled)
	})

	t.Run("blank donor values still fill nulls", func(t *testing.T) {
		primary := &models.Organization{}
		secondary := &models.Organization{Domain: strptr("")}

		updates, _ := MergeScalars(primary, secondary)
		assert.Equal(t, map[string]any{"domain": ""}, updates)
	})

	t.Run("nothing to fill", func(t *testing.T) {
		updates, filled := MergeScalars(&models.Organization{}, &models.Organization{})
		assert.Empty(t, updates)
		assert.Empty(t, filled)
	})
}
