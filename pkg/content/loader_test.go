package content_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/content"
	"github.com/pocketcoach/converse/pkg/domain"
	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/tabular"
)

func seedConversation(t *testing.T, table *tabular.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, ports.Record{
		"PartitionKey": "Sleep", "RowKey": "Latest", "ID": "sheet-42",
	}))
	rows := []ports.Record{
		{"PartitionKey": "sheet-42", "RowKey": "001", "ID": "L1", "Content": "Hello!"},
		{"PartitionKey": "sheet-42", "RowKey": "002", "ID": "L2", "Type": "textbox", "Content": "Name?"},
		{"PartitionKey": "sheet-42", "RowKey": "003", "ID": "L3", "Content": "Bye", "Points": "5"},
	}
	for _, row := range rows {
		require.NoError(t, table.Insert(ctx, row))
	}
}

func TestLoader_Load(t *testing.T) {
	table := tabular.NewMemory(2)
	seedConversation(t, table)

	var pages []int
	script, err := content.NewLoader(table).Load(context.Background(), "Sleep", func(lines int) {
		pages = append(pages, lines)
	})
	require.NoError(t, err)

	assert.True(t, script.Loaded())
	assert.Equal(t, 3, script.Len())
	assert.Equal(t, []int{2, 3}, pages, "pages of two rows then one")

	line, ok := script.Line(1)
	require.True(t, ok)
	assert.Equal(t, "L2", line.ID)
	assert.Equal(t, domain.TypeTextbox, line.Kind())

	pos, err := script.Position("l3")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestLoader_UnknownConversation(t *testing.T) {
	table := tabular.NewMemory(0)
	_, err := content.NewLoader(table).Load(context.Background(), "Nope", nil)
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}
