package settings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketcoach/converse/pkg/ports"
	"github.com/pocketcoach/converse/pkg/settings"
	"github.com/pocketcoach/converse/pkg/tabular"
	"github.com/pocketcoach/converse/pkg/timing"
)

func TestSettings_LoadAndApplyToPolicy(t *testing.T) {
	table := tabular.NewMemory(0)
	ctx := context.Background()
	require.NoError(t, table.Insert(ctx, ports.Record{
		"PartitionKey": settings.Partition, "RowKey": "1",
		"Setting": "AgentTypingDuration", "Value": "250",
	}))
	require.NoError(t, table.Insert(ctx, ports.Record{
		"PartitionKey": settings.Partition, "RowKey": "2",
		"Setting": "BetweenBubbleDelay", "Value": "100",
	}))
	require.NoError(t, table.Insert(ctx, ports.Record{
		"PartitionKey": "Other", "RowKey": "3",
		"Setting": "AgentTypingDuration", "Value": "9999",
	}))

	s := settings.New(table)
	var reloads int
	s.Subscribe(func() { reloads++ })
	require.NoError(t, s.Load(ctx))

	v, ok := s.Get("AgentTypingDuration")
	assert.True(t, ok)
	assert.Equal(t, "250", v, "foreign partitions are ignored")
	assert.Equal(t, 1, reloads)

	p := timing.Default().ApplySettings(s.Get)
	assert.Equal(t, "250ms", p.TypingDuration.String())
	assert.Equal(t, "100ms", p.InterBubbleDelay.String())
	assert.Equal(t, timing.DefaultSideSwitchDelay, p.SideSwitchDelay)
}

func TestSettings_GetBeforeLoad(t *testing.T) {
	s := settings.New(tabular.NewMemory(0))
	_, ok := s.Get("anything")
	assert.False(t, ok)
}
