package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Sentinel errors for provider operations.
var (
	// ErrRateLimit indicates the provider returned a rate limit response.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrContextLength indicates the request exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrProviderDown indicates the provider is temporarily unavailable.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrAllProviders indicates all providers in the chain have been exhausted.
	ErrAllProviders = errors.New("all providers failed")

	// ErrNoProvider indicates no provider is configured for the requested role.
	ErrNoProvider = errors.New("no provider configured")
)

// IsRetryable reports whether err is transient, so the chain may fail over
// to another provider.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}

// IsRateLimit reports whether err is or wraps ErrRateLimit.
func IsRateLimit(err error) bool {
	return errors.Is(err, ErrRateLimit)
}

// StatusSentinel classifies an HTTP status returned by a completion
// backend. overflow tells whether a 400 body complains about the context
// window. It returns nil for statuses without a sentinel; backends wrap
// those in their own error. 529 is Anthropic's "overloaded".
func StatusSentinel(status int, overflow bool) error {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusBadRequest && overflow:
		return ErrContextLength
	case status == 529, status >= http.StatusInternalServerError:
		return ErrProviderDown
	}
	return nil
}

// TransportSentinel classifies an error raised before any HTTP status was
// seen. Network failures make the backend unavailable; context errors and
// everything else return nil so the caller keeps them as they are.
func TransportSentinel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrProviderDown
	}
	return nil
}
