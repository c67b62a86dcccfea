package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingCredential means no provider credential is configured. The
	// client must not touch the network in this state.
	ErrMissingCredential = errors.New("voice: provider credential is not configured")
	// ErrSubscriptionRequired means the account tier lacks the cloning
	// capability. Callers should offer a preset voice instead of retrying.
	ErrSubscriptionRequired = errors.New("voice: subscription tier does not allow voice cloning")
	// ErrVoiceNotFound means the provider does not know the voice identifier.
	ErrVoiceNotFound = errors.New("voice: voice not found")

	ErrEmptyText    = errors.New("voice: text must not be empty")
	ErrEmptyVoiceID = errors.New("voice: voice id must not be empty")
)

// ProviderError is the catch-all remote failure, carrying the best message
// the provider gave us.
type ProviderError struct {
	HTTPStatus int
	Status     string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("voice: provider error %d (%s): %s", e.HTTPStatus, e.Status, e.Message)
	}
	return fmt.Sprintf("voice: provider error %d: %s", e.HTTPStatus, e.Message)
}

// Status codes the provider uses in structured error bodies.
const (
	statusCloningTierBlocked = "can_not_use_instant_voice_cloning"
	statusVoiceNotFound      = "voice_not_found"
)

// classifyProviderError inspects a non-success response body once, at the
// HTTP boundary, and returns the specific error kind. Unparseable bodies fall
// back to the raw text.
func classifyProviderError(httpStatus int, body []byte) error {
	status, message := parseErrorDetail(body)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}

	switch status {
	case statusCloningTierBlocked:
		return fmt.Errorf("%w: %s", ErrSubscriptionRequired, message)
	case statusVoiceNotFound:
		return fmt.Errorf("%w: %s", ErrVoiceNotFound, message)
	}
	return &ProviderError{HTTPStatus: httpStatus, Status: status, Message: message}
}

// parseErrorDetail understands both shapes the provider emits:
// {"detail": {"status": "...", "message": "..."}} and {"detail": "..."}.
func parseErrorDetail(body []byte) (status, message string) {
	var structured struct {
		Detail struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		if structured.Detail.Status != "" || structured.Detail.Message != "" {
			return structured.Detail.Status, structured.Detail.Message
		}
	}

	var plain struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &plain); err == nil && plain.Detail != "" {
		return "", plain.Detail
	}
	return "", ""
}
