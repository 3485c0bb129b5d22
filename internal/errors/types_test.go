package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelsMatchByCode(t *testing.T) {
	wrapped := fmt.Errorf("ingest lecture.pdf: %w", ErrUnprocessable)
	assert.True(t, errors.Is(wrapped, ErrUnprocessable))
	assert.False(t, errors.Is(wrapped, ErrFileTooLarge))

	withCause := ErrIndexingFailed.WithCause(errors.New("milvus timeout"))
	assert.True(t, errors.Is(withCause, ErrIndexingFailed))
	assert.Equal(t, "document could not be indexed: milvus timeout", withCause.Error())
	assert.Nil(t, ErrIndexingFailed.Cause)
}

func TestHTTPCodes(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, ErrUnprocessable.HTTPCode)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrUnsupportedType.HTTPCode)
	assert.Equal(t, http.StatusRequestEntityTooLarge, ErrFileTooLarge.HTTPCode)
	assert.Equal(t, http.StatusBadGateway, ErrBackendUnavailable.HTTPCode)
	assert.Equal(t, http.StatusBadRequest, NewInvalidInputError("notebook_id", "required").HTTPCode)
}

func TestGetAppError(t *testing.T) {
	appErr := GetAppError(fmt.Errorf("wrap: %w", ErrNoContext))
	assert.Equal(t, ErrCodeNoContext, appErr.Code)

	plain := errors.New("disk full")
	appErr = GetAppError(plain)
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.ErrorIs(t, appErr, plain)

	detailed := ErrInvalidInput.WithDetails(map[string]string{"field": "feature"})
	assert.NotNil(t, detailed.Details)
	assert.Nil(t, ErrInvalidInput.Details)
}
