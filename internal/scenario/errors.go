package scenario

import "codeberg.org/mutker/vitalsim/internal/errors"

const (
	ErrNotFound      = errors.ErrScenarioNotFound
	ErrInvalidFormat = errors.ErrScenarioInvalidFormat
	ErrUnknownVital  = errors.ErrorCode("scenario_unknown_vital")
	ErrInvalidName   = errors.ErrorCode("scenario_invalid_name")
)
