package models

// WorkSession is a named, user-owned container for one batch of imported
// contacts and its derived analysis artifacts.
type WorkSession struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     *string   `json:"description,omitempty"`
	UserID          string    `json:"user_id"`
	CreatedAt       Timestamp `json:"created_at"`
	UpdatedAt       Timestamp `json:"updated_at"`
	ConnectionCount int       `json:"connection_count"`
	ProfileCount    int       `json:"profile_count"`
	ProspectCount   int       `json:"prospect_count"`
	IsActive        bool      `json:"is_active"`

	// SelectedProfiles is UI-only state kept on the session locally.
	SelectedProfiles []string `json:"selectedProfiles,omitempty"`
}

// Clone returns a deep copy so callers never alias controller state.
func (s WorkSession) Clone() WorkSession {
	c := s
	if s.Description != nil {
		d := *s.Description
		c.Description = &d
	}
	if s.SelectedProfiles != nil {
		c.SelectedProfiles = append([]string(nil), s.SelectedProfiles...)
	}
	return c
}

// CreateSessionRequest is the body of POST /session/create.
type CreateSessionRequest struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Source      string  `json:"source"`
}

// SessionSourceClient tags sessions created from this client.
const SessionSourceClient = "Frontend creation"

// DeleteResult is returned by GET /session/delete/{id}.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionStats holds the per-session counters.
type SessionStats struct {
	ConnectionCount int    `json:"connection_count"`
	ProfileCount    int    `json:"profile_count"`
	ProspectCount   int    `json:"prospect_count"`
	LastActivity    string `json:"last_activity,omitempty"`
	FileName        string `json:"file_name,omitempty"`
}

// ProcessingStatus is the state of a session's import pipeline.
type ProcessingStatus string

const (
	StatusIdle       ProcessingStatus = "idle"
	StatusUploading  ProcessingStatus = "uploading"
	StatusProcessing ProcessingStatus = "processing"
	StatusDone       ProcessingStatus = "done"
	StatusFailed     ProcessingStatus = "failed"
)

// InProgress reports whether the status should keep being polled.
func (s ProcessingStatus) InProgress() bool {
	return s == StatusUploading || s == StatusProcessing
}

// Terminal reports whether processing has finished, successfully or not.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// SessionStatus is returned by GET /session/{id}/status.
type SessionStatus struct {
	Status   ProcessingStatus `json:"status"`
	Message  string           `json:"message,omitempty"`
	Progress *float64         `json:"progress,omitempty"`
}

// UploadResult is returned by POST /upload-connections/.
type UploadResult struct {
	ConnectionCount int    `json:"connection_count"`
	ProfileCount    int    `json:"profile_count"`
	ProspectCount   int    `json:"prospect_count"`
	Message         string `json:"message,omitempty"`
}
