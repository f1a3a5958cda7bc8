package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/padraicbc/kmtapi/core"
)

func TestError_MatchesByKind(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("create race: %w", &core.Error{Kind: core.KindUnavailable, Msg: "allocate race id", Err: cause})

	assert.ErrorIs(t, err, core.ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, core.ErrConflict)
	assert.Equal(t, core.KindUnavailable, core.KindOf(err))
	assert.Equal(t, "create race: allocate race id: dial tcp: connection refused", err.Error())
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Zero(t, core.KindOf(errors.New("boom")))
	assert.Zero(t, core.KindOf(nil))
}

func TestError_DefaultMessage(t *testing.T) {
	assert.Equal(t, "capacity exceeded", core.ErrCapacityExceeded.Error())
	assert.Equal(t, "not found", core.ErrNotFound.Error())
}

func TestHasRoom(t *testing.T) {
	tests := []struct {
		required, approved int
		want               bool
	}{
		{2, 0, true},
		{2, 1, true},
		{2, 2, false},
		{2, 3, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.HasRoom(tt.required, tt.approved), "required=%d approved=%d", tt.required, tt.approved)
	}
}
