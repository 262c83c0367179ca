package coach

import (
	"errors"
	"strings"
)

// FailureKind classifies why a generation attempt did not produce a usable
// model response. String heuristics against provider error messages live
// here and nowhere else; the rest of the package branches on the kind.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureNoCredentials        FailureKind = "no_credentials"
	FailureProviderError        FailureKind = "provider_error"
	FailureSchemaViolation      FailureKind = "schema_violation"
	FailureModelUnavailable     FailureKind = "model_unavailable"
	FailureParameterUnsupported FailureKind = "parameter_unsupported"
)

// classifyError maps a provider error to a failure kind.
func classifyError(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, ErrNotConfigured) {
		return FailureNoCredentials
	}

	var apiErr *APIError
	msg := strings.ToLower(err.Error())
	if errors.As(err, &apiErr) {
		msg = strings.ToLower(apiErr.Message + " " + apiErr.Code)
		if apiErr.StatusCode == 401 || apiErr.StatusCode == 403 {
			return FailureNoCredentials
		}
	}

	switch {
	case isModelUnavailable(msg):
		return FailureModelUnavailable
	case isTemperatureUnsupported(msg):
		return FailureParameterUnsupported
	default:
		return FailureProviderError
	}
}

// isModelUnavailable reports whether the provider message indicates the
// requested model id does not exist or is not accessible to this account.
func isModelUnavailable(msg string) bool {
	return strings.Contains(msg, "model_not_found") ||
		strings.Contains(msg, "does not exist") ||
		(strings.Contains(msg, "model") && strings.Contains(msg, "not found")) ||
		(strings.Contains(msg, "model") && strings.Contains(msg, "no access"))
}

// isTemperatureUnsupported reports whether the provider rejected the
// temperature parameter. Some model families only accept the default.
func isTemperatureUnsupported(msg string) bool {
	return strings.Contains(msg, "temperature") &&
		(strings.Contains(msg, "unsupported") ||
			strings.Contains(msg, "does not support") ||
			strings.Contains(msg, "not supported"))
}

// isBadRequest reports whether the error is a non-retryable request
// rejection: sending the same prompt again cannot succeed, so the
// completion ladder skips its repair attempt.
func isBadRequest(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != 429
	}
	return false
}
