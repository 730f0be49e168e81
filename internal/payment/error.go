package payment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConfigured          = errors.New("payment provider not configured")
	ErrUnknownProvider        = errors.New("unknown payment provider")
	ErrPendingPaymentNotFound = errors.New("pending payment not found")
	ErrTransactionNotFound    = errors.New("payment transaction not found")
	ErrProviderConfigNotFound = errors.New("payment provider config not found")
	ErrUnsupported            = errors.New("operation not supported by provider")
	ErrCredentialsRejected    = errors.New("gateway rejected credentials")
	ErrRefundExceedsBalance   = errors.New("refund exceeds remaining paid amount")
)

// ConfigError means a provider was configured without its required credentials.
type ConfigError struct {
	Provider ProviderType
	Missing  []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing credentials: %s", e.Provider, strings.Join(e.Missing, ", "))
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured
}

// RequireCredentials returns a *ConfigError listing every absent key.
func RequireCredentials(provider ProviderType, creds map[string]string, keys ...string) error {
	var missing []string
	for _, k := range keys {
		if strings.TrimSpace(creds[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{Provider: provider, Missing: missing}
	}
	return nil
}

// TransportError means the gateway could not be reached or answered with a
// server-side failure. StatusCode is 0 when no response was received.
type TransportError struct {
	Provider   ProviderType
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: gateway returned %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
