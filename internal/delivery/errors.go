package delivery

import (
	"net/http"

	"codeberg.org/mutker/vitalsim/internal/errors"
)

const (
	ErrAuth                   = errors.ErrDeliveryAuth
	ErrValidation             = errors.ErrDeliveryValidation
	ErrNetwork                = errors.ErrDeliveryNetwork
	ErrUnknown                = errors.ErrDeliveryUnknown
	ErrAuthenticationRequired = errors.ErrAuthenticationRequired
	ErrUnsupportedTransport   = errors.ErrorCode("delivery_unsupported_transport")
	ErrNotConnected           = errors.ErrorCode("delivery_not_connected")
	ErrEncodePayload          = errors.ErrorCode("delivery_encode_payload_failed")
)

// localFailures are raised by the client before anything is sent. They keep
// their own code instead of being reported as network errors.
var localFailures = map[errors.ErrorCode]struct{}{
	ErrAuthenticationRequired: {},
	ErrEncodePayload:          {},
}

// Classify maps a failed Result to its error code. It returns an empty code
// for a successful Result.
func Classify(r Result) errors.ErrorCode {
	if r.Success {
		return ""
	}

	if r.Status == 0 {
		if code := errors.CodeOf(r.Err); code != "" {
			if _, ok := localFailures[code]; ok {
				return code
			}
		}
	}

	switch {
	case r.Status == http.StatusUnauthorized || r.Status == http.StatusForbidden:
		return ErrAuth
	case r.Status == http.StatusBadRequest:
		return ErrValidation
	case r.Status == 0:
		return ErrNetwork
	default:
		return ErrUnknown
	}
}

// Failure returns the classified error for a failed Result, or nil.
func (r Result) Failure() error {
	code := Classify(r)
	if code == "" {
		return nil
	}

	if errors.CodeOf(r.Err) == code {
		return r.Err
	}

	errFactory := errors.New()
	if r.Err != nil {
		return errFactory.Wrap(code, r.Err)
	}

	return errFactory.WithData(code, http.StatusText(r.Status))
}
