package models

// ProspectFilter is the body of POST /find-prospects/.
type ProspectFilter struct {
	SelectedConnectionIDs   []string `json:"selectedConnectionIds"`
	LocationFilter          string   `json:"locationFilter,omitempty"`
	JobTitleFilter          string   `json:"jobTitleFilter"`
	SpecificCompaniesFilter []string `json:"specificCompaniesFilter,omitempty"`
	SpecificSchoolsFilter   []string `json:"specificSchoolsFilter,omitempty"`
	UseExperience           bool     `json:"useExperience"`
	UseEducation            bool     `json:"useEducation"`
	Limit                   int      `json:"limit,omitempty"`
}

// BasicInfo is the identity block of a profile.
type BasicInfo struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	CurrentTitle   string `json:"current_title,omitempty"`
	CurrentCompany string `json:"current_company,omitempty"`
	Location       string `json:"location,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	ProfileURL     string `json:"profile_url,omitempty"`
}

// Prospect is a candidate profile scored against a focus connection.
type Prospect struct {
	ID                   string         `json:"id,omitempty"`
	SessionID            string         `json:"session_id,omitempty"`
	FocusProfileID       string         `json:"focus_profile_id"`
	ProfileID            string         `json:"profile_id"`
	Name                 string         `json:"name"`
	Title                string         `json:"title,omitempty"`
	Location             string         `json:"location,omitempty"`
	Industry             string         `json:"industry,omitempty"`
	ProfileImageURL      string         `json:"profile_image_url,omitempty"`
	ProfileURL           string         `json:"profile_url,omitempty"`
	OverallSimilarity    float64        `json:"overall_similarity"`
	CompanySimilarity    *float64       `json:"company_similarity,omitempty"`
	EducationSimilarity  *float64       `json:"education_similarity,omitempty"`
	JobTitleSimilarity   *float64       `json:"job_title_similarity,omitempty"`
	SharedCompaniesCount int            `json:"nbr_shared_companies"`
	SharedSchoolsCount   int            `json:"nbr_shared_schools"`
	SharedCompanies      []SharedEntity `json:"shared_companies,omitempty"`
	SharedSchools        []SharedEntity `json:"shared_schools,omitempty"`
	BasicInfo            *BasicInfo     `json:"basic_info,omitempty"`
}

// Experience is one position in a profile resume.
type Experience struct {
	ID          string `json:"id"`
	CompanyName string `json:"company_name"`
	Title       string `json:"title"`
	DateRange   string `json:"date_range,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// Education is one school entry in a profile resume.
type Education struct {
	ID           string `json:"id"`
	SchoolName   string `json:"school_name"`
	Degree       string `json:"degree,omitempty"`
	FieldOfStudy string `json:"field_of_study,omitempty"`
	DateRange    string `json:"date_range,omitempty"`
}

// ProfileResume is returned by GET /profile_resume/.
type ProfileResume struct {
	BasicInfo   *BasicInfo   `json:"profile_basic_info"`
	Experiences []Experience `json:"profile_experience"`
	Education   []Education  `json:"profile_education"`
}
