package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mpdagents/mpdchat/internal/provider"
)

// mapHTTPError maps a non-2xx status and body to a provider sentinel error.
// It returns nil for 2xx.
func mapHTTPError(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := string(body)
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}
	overflow := strings.Contains(strings.ToLower(msg), "context_length") ||
		apiErr.Error.Code == "context_length_exceeded"

	if sentinel := provider.StatusSentinel(statusCode, overflow); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, msg)
	}
	return fmt.Errorf("openai: HTTP %d: %s", statusCode, msg)
}

// mapConnectionError maps network errors to ErrProviderDown. Context
// errors pass through unchanged.
func mapConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if sentinel := provider.TransportSentinel(err); sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("openai: %w", err)
}
