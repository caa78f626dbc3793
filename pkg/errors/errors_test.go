package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesPredefinedError(t *testing.T) {
	err := Clone(ErrInvalidTransition, "cannot publish from PENDING")

	require.True(t, errors.Is(err, ErrInvalidTransition))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "cannot publish from PENDING", err.Error())
}

func TestWrappedErrorsStillMatch(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := fmt.Errorf("load submission: %w", WrapAs(ErrStorageUnavailable, cause, "failed to load submission"))

	require.ErrorIs(t, err, ErrStorageUnavailable)
	require.ErrorIs(t, err, cause)

	normalised := FromError(err)
	assert.Equal(t, http.StatusServiceUnavailable, normalised.Status)
	assert.Equal(t, "STORAGE_UNAVAILABLE", normalised.Code)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	normalised := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, normalised.Code)
	assert.Nil(t, FromError(nil))
}
