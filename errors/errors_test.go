package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionConflict(t *testing.T) {
	err := VersionConflict("trip-abc123def456", 1, 2)

	assert.Equal(t, ConflictError, err.Type)
	assert.Equal(t, http.StatusConflict, err.HTTPStatus)
	assert.Contains(t, err.Detail, "trip-abc123def456")
	assert.Contains(t, err.Detail, "assumed version 1")
	assert.Contains(t, err.Detail, "current version is 2")
	assert.True(t, IsConflict(err))
	assert.False(t, IsValidation(err))
}

func TestValidationFailed(t *testing.T) {
	err := ValidationFailed("Invalid date range", "end before start")

	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "Invalid date range")
	assert.Contains(t, err.Error(), "end before start")
}

func TestNotFound(t *testing.T) {
	err := NotFound("Trip", "trip-abc")

	assert.Equal(t, NotFoundError, err.Type)
	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, "Trip not found", err.Message)
}

func TestWrapUnwrap(t *testing.T) {
	raw := errors.New("connection refused")
	err := Wrap(raw, DatabaseError, "query failed")

	assert.ErrorIs(t, err, raw)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Nil(t, Wrap(nil, DatabaseError, "no-op"))
}

func TestIsTypeThroughWrapping(t *testing.T) {
	inner := VersionConflict("trip-1", 1, 3)
	outer := fmt.Errorf("committing update: %w", inner)

	assert.True(t, IsConflict(outer))
	assert.False(t, IsConflict(errors.New("plain")))
}
