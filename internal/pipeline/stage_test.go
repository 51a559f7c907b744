package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/GemScreener/models"
)

func TestItemHappyPath(t *testing.T) {
	it := NewItem(models.Ticker{Symbol: "GEM"})
	require.NoError(t, it.AdvanceAll(StageFiltered, StageScored, StageSelected, StageTracked, StageClassified))
	assert.Equal(t, StageClassified, it.Stage)
	assert.Len(t, it.History, 6)
	assert.True(t, it.Stage.Terminal())
}

func TestItemRejectsIllegalMoves(t *testing.T) {
	it := NewItem(models.Ticker{Symbol: "GEM"})
	assert.ErrorIs(t, it.Advance(StageSelected), ErrIllegalTransition)
	assert.Equal(t, StageUniverse, it.Stage)

	require.NoError(t, it.Advance(StageRejected))
	assert.True(t, it.Stage.Terminal())
	assert.ErrorIs(t, it.Advance(StageFiltered), ErrIllegalTransition)
}

func TestScoredCannotBeRejected(t *testing.T) {
	assert.False(t, StageScored.CanTransition(StageRejected))
	assert.True(t, StageFiltered.CanTransition(StageRejected))
}
