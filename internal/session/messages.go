package session

import (
	"errors"
	"strings"

	"github.com/fjod/go_storefront/internal/httpclient"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrOAuthFailed  = errors.New("oauth sign-in failed")
)

const (
	sessionEndedMessage = "Your session has ended. Please sign in again."
	genericMessage      = "Something went wrong. Please try again."
)

type inputError struct {
	msg string
}

func (e *inputError) Error() string        { return "invalid input: " + e.msg }
func (e *inputError) Is(target error) bool { return target == ErrInvalidInput }

func invalidInput(msg string) error {
	return &inputError{msg: msg}
}

// UserMessage turns an error from a session operation into text that can be
// shown to the user as is.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var inErr *inputError
	if errors.As(err, &inErr) {
		return upperFirst(inErr.msg) + "."
	}
	if errors.Is(err, ErrOAuthFailed) {
		return "Google sign-in failed. Please try again."
	}
	if errors.Is(err, httpclient.ErrNetwork) {
		return "Cannot reach the server. Check your connection and try again."
	}

	var apiErr *httpclient.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}

	switch {
	case errors.Is(err, httpclient.ErrRefreshRejected), errors.Is(err, httpclient.ErrUnauthorized):
		return sessionEndedMessage
	case errors.Is(err, httpclient.ErrMalformedResponse):
		return "The server sent an unexpected response. Please try again later."
	}
	return genericMessage
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
