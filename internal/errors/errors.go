package errors

import (
	"errors"
	"fmt"
)

// Common error types for the prospecting client
var (
	// Authentication errors
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrProviderUnavailable = errors.New("auth provider unavailable")
	ErrUnsupported         = errors.New("unsupported operation")

	// Session errors
	ErrNoActiveSession    = errors.New("no active session, create or select a session")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmptySessionName   = errors.New("session name is required")
	ErrInvalidResponse    = errors.New("invalid response from server")
	ErrInvalidProfileData = errors.New("invalid profile data structure returned from the server")
	ErrNoProspectsFound   = errors.New("no prospects found with the current filters, try adjusting your search")
	ErrNothingToExport    = errors.New("no prospects to export")

	// Local validation errors
	ErrMissingConnections = errors.New("select at least one connection to find prospects")
	ErrMissingJobTitle    = errors.New("enter a job title filter")
	ErrMissingLinkedInURL = errors.New("enter your LinkedIn URL")
	ErrInvalidLinkedInURL = errors.New("enter a valid LinkedIn URL")
	ErrMissingFile        = errors.New("select a file to upload")
	ErrNotCSV             = errors.New("select a CSV file")

	// Configuration errors
	ErrMissingConfig = errors.New("missing configuration")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
