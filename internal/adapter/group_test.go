package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/model"
)

func TestGroupBundles(t *testing.T) {
	t.Parallel()

	first := LegacyRecord{ID: 1, Address: "100 Oak St, Nashville, TN", Date: "2026-03-01"}
	first.OwnerPhones[0] = "615-555-0000"
	second := LegacyRecord{ID: 2, Address: "100 OAK STREET, Nashville, TN", Date: "2026-04-01"}
	second.OwnerEmails[0] = "owner@example.com"
	other := LegacyRecord{ID: 3, Address: "5 Elm Dr, Lebanon, TN"}
	blankA := LegacyRecord{ID: 4}
	blankB := LegacyRecord{ID: 5}

	var bundles []model.Bundle
	for _, r := range []LegacyRecord{first, second, other, blankA, blankB} {
		bundles = append(bundles, LegacyAdapter{}.Convert(r))
	}

	grouped := GroupBundles(bundles)
	require.Len(t, grouped, 4)

	g := grouped[0]
	assert.Equal(t, "1", g.Property.ID)
	require.Len(t, g.Events, 2)
	assert.Equal(t, "legacy-2", g.Events[1].ID)
	assert.Equal(t, "1", g.Events[1].PropertyID)
	require.Len(t, g.Contacts, 2)
	require.Len(t, g.Links, 2)
	for _, l := range g.Links {
		assert.Equal(t, "1", l.PropertyID)
	}
	require.NoError(t, g.Validate())

	assert.Equal(t, "3", grouped[1].Property.ID)
	assert.Equal(t, "4", grouped[2].Property.ID)
	assert.Equal(t, "5", grouped[3].Property.ID)

	// Input bundles are not modified.
	assert.Len(t, bundles[0].Events, 1)
}
