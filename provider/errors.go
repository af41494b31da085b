package provider

import (
	"errors"
	"fmt"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"golang.org/x/oauth2"
)

// Error is a failure reported by the auth provider. Message is shown to
// the user unchanged.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fromRetrieveError maps an OAuth2 token endpoint failure onto Error.
func fromRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return &Error{
			Code:    "unavailable",
			Message: fmt.Sprintf("auth provider unavailable: %v", err),
			Err:     errors.Join(apperrors.ErrProviderUnavailable, err),
		}
	}

	msg := re.ErrorDescription
	if msg == "" {
		msg = re.ErrorCode
	}
	if msg == "" && re.Response != nil {
		msg = re.Response.Status
	}

	var sentinel error = apperrors.ErrProviderUnavailable
	switch re.ErrorCode {
	case "invalid_grant", "invalid_client", "unauthorized_client", "access_denied":
		sentinel = apperrors.ErrInvalidCredentials
	}
	return &Error{Code: re.ErrorCode, Message: msg, Err: errors.Join(sentinel, err)}
}

func unsupported(op string) error {
	return &Error{
		Code:    "unsupported",
		Message: op + " is not supported by this auth provider",
		Err:     apperrors.ErrUnsupported,
	}
}
