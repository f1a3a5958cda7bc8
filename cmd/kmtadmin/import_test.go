package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/padraicbc/kmtapi/core"
)

type recordingAdvancer map[string]int64

func (r recordingAdvancer) AdvanceCounter(ctx context.Context, key string, v int64) error {
	r[key] = v
	return nil
}

func TestAdvanceCounters(t *testing.T) {
	imp := &importer{
		log:        zap.NewNop(),
		maxMarshal: 412,
		raceDays:   map[string]int64{"20250601": 3, "20250608": 11},
	}
	got := recordingAdvancer{}

	require.NoError(t, imp.advanceCounters(context.Background(), got))
	assert.Equal(t, recordingAdvancer{
		core.MarshalSequenceKey:          412,
		core.RaceSequenceKey("20250601"): 3,
		core.RaceSequenceKey("20250608"): 11,
	}, got)
}

func TestAdvanceCounters_NothingImported(t *testing.T) {
	imp := &importer{log: zap.NewNop()}
	got := recordingAdvancer{}

	require.NoError(t, imp.advanceCounters(context.Background(), got))
	assert.Empty(t, got)
}

func TestAdvanceCounters_EveryBackend(t *testing.T) {
	imp := &importer{
		log:        zap.NewNop(),
		maxMarshal: 250,
		raceDays:   map[string]int64{"20250601": 2},
	}
	pg, rd := recordingAdvancer{}, recordingAdvancer{}

	require.NoError(t, imp.advanceCounters(context.Background(), pg, rd))
	want := recordingAdvancer{
		core.MarshalSequenceKey:          250,
		core.RaceSequenceKey("20250601"): 2,
	}
	assert.Equal(t, want, pg)
	assert.Equal(t, want, rd)
}
