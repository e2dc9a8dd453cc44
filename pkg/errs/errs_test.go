package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindInvalidQuery, 400},
		{KindInvalidTx, 400},
		{KindInvalidAuth, 401},
		{KindUnavailable, 404},
		{KindTimeout, 408},
		{KindStorage, 500},
		{KindConnection, 500},
		{KindUnexpected, 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.kind.Status(), string(tt.kind))
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk on fire")
	err := Wrap(KindStorage, "read node", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindStorage, KindOf(err))
	assert.Equal(t, 500, StatusOf(err))
	assert.Contains(t, err.Error(), "read node")
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestKindSurvivesFurtherWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", E(KindTimeout, "deadline exceeded"))
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindStorage))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnexpected, KindOf(errors.New("who knows")))
	assert.Equal(t, 500, StatusOf(errors.New("who knows")))
}
