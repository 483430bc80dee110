package embedding

import "fmt"

// ConfigurationError reports a missing or invalid credential/config value.
// It is fatal to the operation and never retried automatically.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("embedding configuration: %s: %s", e.Field, e.Message)
}

// ProviderError reports an upstream embedding API failure: a non-success
// status, a transport error, or a timeout.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s embedding API call failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s embedding API call failed", e.Provider)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
