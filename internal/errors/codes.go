package errors

// Common error codes
const (
	// System errors
	ErrInternal ErrorCode = "internal_error"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrBindFlags       ErrorCode = "bind_flags_failed"
	ErrInvalidInterval ErrorCode = "invalid_interval"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Scenario errors
	ErrScenarioNotFound      ErrorCode = "scenario_not_found"
	ErrScenarioInvalidFormat ErrorCode = "scenario_invalid_format"

	// Run errors
	ErrConnectivityFailure ErrorCode = "connectivity_failure"
	ErrInvalidState        ErrorCode = "invalid_state"
	ErrAlreadyRunning      ErrorCode = "already_running"
	ErrCancelled           ErrorCode = "cancelled"

	// Delivery errors
	ErrDeliveryAuth           ErrorCode = "delivery_auth_error"
	ErrDeliveryValidation     ErrorCode = "delivery_validation_error"
	ErrDeliveryNetwork        ErrorCode = "delivery_network_error"
	ErrDeliveryUnknown        ErrorCode = "delivery_unknown_error"
	ErrAuthenticationRequired ErrorCode = "authentication_required"

	// Lifecycle errors
	ErrInitFailed     ErrorCode = "initialization_failed"
	ErrShutdownFailed ErrorCode = "shutdown_failed"
	ErrTimeout        ErrorCode = "operation_timeout"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:               "Internal error occurred",
	ErrInvalidConfig:          "Invalid configuration",
	ErrReadConfig:             "Failed to read configuration",
	ErrBindFlags:              "Failed to bind flags",
	ErrInvalidInterval:        "Invalid interval value",
	ErrInvalidLogLevel:        "Invalid log level",
	ErrScenarioNotFound:       "Scenario not found",
	ErrScenarioInvalidFormat:  "Scenario has an invalid format",
	ErrConnectivityFailure:    "Ingestion endpoint is unreachable",
	ErrInvalidState:           "Operation not allowed in current state",
	ErrAlreadyRunning:         "Another simulator is already driving this device",
	ErrDeliveryAuth:           "Delivery rejected: not authorized",
	ErrDeliveryValidation:     "Delivery rejected: invalid payload",
	ErrDeliveryNetwork:        "Delivery failed: no response received",
	ErrDeliveryUnknown:        "Delivery failed: unexpected status",
	ErrAuthenticationRequired: "Authentication token required",
	ErrInitFailed:             "Initialization failed",
	ErrShutdownFailed:         "Shutdown failed",
	ErrTimeout:                "Operation timed out",
	ErrCancelled:              "Cancelled before the run started",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
