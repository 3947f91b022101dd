package domain

import "fmt"

// ValidationError reports a missing or malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigurationError reports a required setting or secret that is not configured.
type ConfigurationError struct {
	Setting string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("missing configuration: %s", e.Setting)
}

// UpstreamError reports a rejected call to an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
	Err        error
}

func (e UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s send failed: %d %s", e.Service, e.StatusCode, e.Body)
}

func (e UpstreamError) Unwrap() error { return e.Err }

func Invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}
