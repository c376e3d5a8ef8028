package hub_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/expr"
	"github.com/pocketcoach/converse/pkg/hub"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/scoring"
	"github.com/pocketcoach/converse/pkg/tabular"
	"github.com/pocketcoach/converse/pkg/vars"
)

func loadedHub(t *testing.T, store *vars.Store, keeper ports.ScoreSink) *hub.Hub {
	t.Helper()
	table := tabular.NewMemory(0)
	ctx := context.Background()
	rows := []ports.Record{
		{"PartitionKey": hub.Partition, "RowKey": "01", "ID": "Basics", "Type": "folder"},
		{"PartitionKey": hub.Partition, "RowKey": "02", "ID": "Sleep", "Parent": "Basics",
			"Points": "20", "SatisfiedCondition": "Sleep_Done == 'true'"},
		{"PartitionKey": hub.Partition, "RowKey": "03", "ID": "Advanced", "Parent": "Basics",
			"AvailableCondition": "Sleep_Satisfied == 'true'"},
		{"PartitionKey": hub.Partition, "RowKey": "04", "ID": "Secret",
			"ShowCondition": "Unlocked == 'yes'"},
	}
	for _, row := range rows {
		require.NoError(t, table.Insert(ctx, row))
	}

	eval, err := expr.New()
	require.NoError(t, err)
	h := hub.New(table, eval, store, hub.WithScores(keeper))
	require.NoError(t, h.Load(ctx))
	return h
}

func TestHub_Gating(t *testing.T) {
	store := vars.New()
	h := loadedHub(t, store, nil)

	basics, ok := h.Module("Basics")
	require.True(t, ok)
	assert.Equal(t, hub.StatusAvailable, h.Status(basics), "no conditions means available")

	sleep, _ := h.Module("Sleep")
	assert.Equal(t, hub.StatusAvailable, h.Status(sleep))

	advanced, _ := h.Module("Advanced")
	assert.Equal(t, hub.StatusLocked, h.Status(advanced), "gated on Sleep satisfaction")

	secret, _ := h.Module("Secret")
	assert.Equal(t, hub.StatusHidden, h.Status(secret))

	store.Set("Unlocked", "yes")
	assert.Equal(t, hub.StatusAvailable, h.Status(secret))

	assert.Equal(t, []string{"Sleep", "Advanced"}, moduleIDs(h.Children("Basics")))
}

func TestHub_RefreshStampsAndScoresOnce(t *testing.T) {
	store := vars.New()
	keeper := scoring.New(store, "")
	h := loadedHub(t, store, keeper)

	assert.Empty(t, h.Refresh(), "nothing satisfied yet")

	store.Set("Sleep_Done", "true")
	assert.Equal(t, []string{"Sleep"}, h.Refresh())
	assert.Equal(t, 20, keeper.Total())

	v, _ := store.Get("Sleep_Satisfied")
	assert.Equal(t, "true", v)

	// A second pass must not re-award, and the stamp unlocks dependents.
	assert.Empty(t, h.Refresh())
	assert.Equal(t, 20, keeper.Total())
	advanced, _ := h.Module("Advanced")
	assert.Equal(t, hub.StatusAvailable, h.Status(advanced))
}

func TestHub_StampOutlivesCondition(t *testing.T) {
	store := vars.New()
	h := loadedHub(t, store, nil)

	store.Set("Sleep_Done", "true")
	h.Refresh()
	store.Clear("Sleep_Done")

	sleep, _ := h.Module("Sleep")
	assert.Equal(t, hub.StatusSatisfied, h.Status(sleep),
		"changing an answer never un-completes a module")
}

func moduleIDs(ms []hub.Module) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
