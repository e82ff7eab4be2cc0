package session

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/fjod/go_storefront/internal/httpclient"
	"github.com/stretchr/testify/assert"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"invalid input", invalidInput("email is required"), "Email is required."},
		{"oauth", fmt.Errorf("%w: access_denied", ErrOAuthFailed), "Google sign-in failed. Please try again."},
		{"network", fmt.Errorf("%w: dial tcp", httpclient.ErrNetwork), "Cannot reach the server. Check your connection and try again."},
		{"api message", &httpclient.APIError{Status: http.StatusBadRequest, Message: "Email already in use"}, "Email already in use"},
		{"unauthorized without message", &httpclient.APIError{Status: http.StatusUnauthorized}, sessionEndedMessage},
		{"malformed", fmt.Errorf("%w: eof", httpclient.ErrMalformedResponse), "The server sent an unexpected response. Please try again later."},
		{"unknown", errors.New("boom"), genericMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestInvalidInputMatchesSentinel(t *testing.T) {
	assert.ErrorIs(t, invalidInput("password is required"), ErrInvalidInput)
}
