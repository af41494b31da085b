package models

import (
	"bytes"
	"encoding/json"
)

// SharedEntity is a company or school shared between two profiles.
type SharedEntity struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// UnmarshalJSON accepts both {"id","name"} objects and bare strings.
func (e *SharedEntity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*e = SharedEntity{Name: name}
		return nil
	}
	type entity SharedEntity
	var aux entity
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*e = SharedEntity(aux)
	return nil
}

// Connection is a contact imported by the user, scored against the user's
// own profile. Similarity fields are computed server-side and read-only.
type Connection struct {
	ID                           int64          `json:"id"`
	ProfileID                    string         `json:"profile_id"`
	Name                         string         `json:"name"`
	TargetName                   string         `json:"target_name,omitempty"`
	Title                        string         `json:"title,omitempty"`
	Location                     string         `json:"location,omitempty"`
	Industry                     string         `json:"industry,omitempty"`
	ProfileImageURL              string         `json:"profile_image_url,omitempty"`
	ProfileURL                   string         `json:"profile_url,omitempty"`
	OverallSimilarity            float64        `json:"overall_similarity"`
	CompanySimilarity            float64        `json:"company_similarity"`
	EducationSimilarity          float64        `json:"education_similarity"`
	JobTitleSimilarity           float64        `json:"job_title_similarity"`
	FamilyNameSimilarity         float64        `json:"family_name_similarity"`
	SharedCompaniesCount         int            `json:"nbr_shared_companies"`
	SharedSchoolsCount           int            `json:"nbr_shared_schools"`
	SharedCompanies              []SharedEntity `json:"shared_companies,omitempty"`
	SharedSchools                []SharedEntity `json:"shared_schools,omitempty"`
	OverallSimilarityExplanation string         `json:"overall_similarity_explanation,omitempty"`
	IsFavorite                   bool           `json:"is_favorite"`
}

// DisplayName prefers the target name the backend resolved.
func (c Connection) DisplayName() string {
	if c.TargetName != "" {
		return c.TargetName
	}
	return c.Name
}

// ConnectionList decodes either a bare array or a {"connections": [...]} envelope.
type ConnectionList []Connection

func (l *ConnectionList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var list []Connection
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*l = list
		return nil
	}
	var envelope struct {
		Connections []Connection `json:"connections"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Connections
	return nil
}

// FavoriteToggle is returned by PATCH /connections/{id}/toggle-favorite.
type FavoriteToggle struct {
	IsFavorite bool `json:"is_favorite"`
}

// NewConnectionResult is returned by POST /insert_new_connection.
type NewConnectionResult struct {
	Message           string            `json:"message,omitempty"`
	ConnectionDetails ConnectionDetails `json:"connection_details"`
}

type ConnectionDetails struct {
	Name       string `json:"name,omitempty"`
	ProfileID  string `json:"profile_id,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}
