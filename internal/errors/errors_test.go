package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"codeberg.org/mutker/vitalsim/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Scenario not found", f.New(errors.ErrScenarioNotFound).Error())
	assert.Equal(t, "Scenario not found: sepsis", f.WithData(errors.ErrScenarioNotFound, "sepsis").Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "some_unknown_code", f.New("some_unknown_code").Error())
}

func TestWrapUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.New().Wrap(errors.ErrConnectivityFailure, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Ingestion endpoint is unreachable: connection refused", err.Error())
	assert.Equal(t, errors.ErrConnectivityFailure, err.Code())
}

func TestCodeOf(t *testing.T) {
	inner := errors.New().New(errors.ErrScenarioInvalidFormat)
	outer := fmt.Errorf("loading: %w", inner)

	assert.Equal(t, errors.ErrScenarioInvalidFormat, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	err := f.Wrap(errors.ErrInitFailed, f.New(errors.ErrScenarioNotFound))

	assert.True(t, errors.HasCode(err, errors.ErrInitFailed))
	assert.True(t, errors.HasCode(err, errors.ErrScenarioNotFound))
	assert.False(t, errors.HasCode(err, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := errors.New().New(errors.ErrDeliveryAuth).WithMessage("token expired")

	assert.Equal(t, errors.ErrDeliveryAuth, err.Code())
	assert.Equal(t, "token expired", err.Error())
}
