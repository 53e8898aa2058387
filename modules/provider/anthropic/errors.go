package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/mpdagents/mpdchat/internal/provider"
)

// overflowPhrases are fragments of invalid_request_error messages that
// mean the prompt no longer fits the context window.
var overflowPhrases = []string{"context length", "too many tokens", "token limit", "prompt is too long"}

// mapError converts an Anthropic SDK error into the appropriate provider
// sentinel error. Network errors count as ErrProviderDown; context and
// other non-API errors are returned as-is.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *sdkanthropic.Error
	if !errors.As(err, &apiErr) {
		if sentinel := provider.TransportSentinel(err); sentinel != nil {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
		return err
	}

	overflow := apiErr.StatusCode == http.StatusBadRequest && promptOverflow(apiErr.RawJSON())
	switch sentinel := provider.StatusSentinel(apiErr.StatusCode, overflow); {
	case sentinel != nil:
		return fmt.Errorf("%w (HTTP %d): %s", sentinel, apiErr.StatusCode, apiErr.Error())
	case apiErr.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("anthropic bad request: %w", err)
	default:
		return fmt.Errorf("anthropic error (HTTP %d): %w", apiErr.StatusCode, err)
	}
}

// promptOverflow reports whether a 400 body is about the context window.
// Bodies that are not the documented error envelope are searched as text.
func promptOverflow(raw string) bool {
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	text := raw
	if err := json.Unmarshal([]byte(raw), &body); err == nil {
		if body.Error.Type != "invalid_request_error" {
			return false
		}
		text = body.Error.Message
	}
	text = strings.ToLower(text)
	for _, p := range overflowPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
