// Package validation holds the checks views run before any network call.
package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "github.com/matt-kaep/WI-frontend/internal/errors"
	"github.com/matt-kaep/WI-frontend/models"
)

const linkedInMarker = "linkedin.com/"

// Validator provides centralized validation for user input.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateUserCredentials validates login credentials
func (v *Validator) ValidateUserCredentials(email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	// Basic email format validation
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("invalid email format")
	}

	if password == "" {
		return fmt.Errorf("password is required")
	}

	return nil
}

// ValidateLinkedInURL checks that raw looks like a LinkedIn profile link.
func (v *Validator) ValidateLinkedInURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperrors.ErrMissingLinkedInURL
	}
	if !strings.Contains(strings.ToLower(raw), linkedInMarker) {
		return apperrors.ErrInvalidLinkedInURL
	}
	return nil
}

// ValidateUpload checks a connections export before it is sent. A file is
// accepted when its name ends in .csv or its content type is text/csv.
func (v *Validator) ValidateUpload(fileName, contentType, linkedInURL string) error {
	if strings.TrimSpace(fileName) == "" {
		return apperrors.ErrMissingFile
	}
	isCSV := strings.EqualFold(filepath.Ext(fileName), ".csv") ||
		strings.HasPrefix(strings.ToLower(contentType), "text/csv")
	if !isCSV {
		return apperrors.ErrNotCSV
	}
	return v.ValidateLinkedInURL(linkedInURL)
}

// ValidateProspectFilter reports every missing search criterion at once.
func (v *Validator) ValidateProspectFilter(f models.ProspectFilter) error {
	var errs []error
	if len(f.SelectedConnectionIDs) == 0 {
		errs = append(errs, apperrors.ErrMissingConnections)
	}
	if strings.TrimSpace(f.JobTitleFilter) == "" {
		errs = append(errs, apperrors.ErrMissingJobTitle)
	}
	return errors.Join(errs...)
}

// ValidateSessionName validates a new work session name
func (v *Validator) ValidateSessionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.ErrEmptySessionName
	}
	return nil
}
