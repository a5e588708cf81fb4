package delivery_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"codeberg.org/mutker/vitalsim/internal/delivery"
	"codeberg.org/mutker/vitalsim/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		result delivery.Result
		want   errors.ErrorCode
	}{
		{"success", delivery.Result{Success: true, Status: http.StatusCreated}, ""},
		{"unauthorized", delivery.Result{Status: http.StatusUnauthorized}, delivery.ErrAuth},
		{"forbidden", delivery.Result{Status: http.StatusForbidden}, delivery.ErrAuth},
		{"bad request", delivery.Result{Status: http.StatusBadRequest}, delivery.ErrValidation},
		{"no response", delivery.Result{Err: stderrors.New("connection refused")}, delivery.ErrNetwork},
		{"server error", delivery.Result{Status: http.StatusInternalServerError}, delivery.ErrUnknown},
		{"not found", delivery.Result{Status: http.StatusNotFound}, delivery.ErrUnknown},
		{"token missing", delivery.Result{Err: errors.New().New(delivery.ErrAuthenticationRequired)}, delivery.ErrAuthenticationRequired},
		{"encode failure", delivery.Result{Err: errors.New().New(delivery.ErrEncodePayload)}, delivery.ErrEncodePayload},
		{"coded timeout", delivery.Result{Err: errors.New().New(errors.ErrTimeout)}, delivery.ErrNetwork},
		{"unprocessable", delivery.Result{Status: http.StatusUnprocessableEntity}, delivery.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, delivery.Classify(tt.result))
		})
	}
}

func TestResultFailure(t *testing.T) {
	assert.NoError(t, delivery.Result{Success: true, Status: 200}.Failure())

	cause := stderrors.New("dial tcp: connection refused")
	err := delivery.Result{Err: cause}.Failure()
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, delivery.ErrNetwork, errors.CodeOf(err))

	err = delivery.Result{Status: http.StatusForbidden}.Failure()
	assert.Equal(t, delivery.ErrAuth, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "Forbidden")
}

func TestResultFailureKeepsLocalCode(t *testing.T) {
	cause := errors.New().New(delivery.ErrAuthenticationRequired)

	err := delivery.Result{Err: cause}.Failure()
	assert.Equal(t, delivery.ErrAuthenticationRequired, errors.CodeOf(err))
	assert.False(t, errors.HasCode(err, delivery.ErrNetwork))
	assert.Equal(t, cause.Error(), err.Error())
}
