package delivery

import (
	"context"
	"encoding/json"

	"codeberg.org/mutker/vitalsim/internal/generator"
)

// Client transports vitals to the ingestion side. Implementations report the
// outcome of every call in a Result instead of returning an error.
type Client interface {
	// SendData delivers one payload, bounded by the client's own timeout.
	SendData(ctx context.Context, payload *generator.Payload) Result

	// TestConnection is a liveness probe used once before a run starts.
	TestConnection(ctx context.Context) bool

	// SetAuthToken sets the bearer token used by AssignDevice and SendData.
	SetAuthToken(token string)

	// AssignDevice binds deviceID to patientID. It requires an auth token.
	AssignDevice(ctx context.Context, deviceID, patientID, notes string) Result

	Close() error
}

// Result is the structured outcome of a delivery call. Status is zero when no
// response was received.
type Result struct {
	Success bool
	Status  int
	Data    json.RawMessage
	Err     error
}
