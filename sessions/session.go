package sessions

import (
	"slices"

	"github.com/matt-kaep/WI-frontend/internal/utils"
	"github.com/matt-kaep/WI-frontend/models"
)

// Patch is a local change to a work session that the server has not
// confirmed. Nil fields are unchanged.
type Patch struct {
	Name            *string
	Description     *string
	ConnectionCount *int
	ProfileCount    *int
	ProspectCount   *int
	// SelectedProfiles is UI-only and never comes back from the server.
	// A non-nil empty slice clears the selection.
	SelectedProfiles []string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil &&
		p.ConnectionCount == nil && p.ProfileCount == nil && p.ProspectCount == nil &&
		p.SelectedProfiles == nil
}

// diff returns the patch that turns base into updated.
func diff(base, updated models.WorkSession) Patch {
	var p Patch
	if updated.Name != base.Name {
		p.Name = utils.Ptr(updated.Name)
	}
	if !sameString(updated.Description, base.Description) {
		p.Description = utils.Ptr(utils.Value(updated.Description))
	}
	if updated.ConnectionCount != base.ConnectionCount {
		p.ConnectionCount = utils.Ptr(updated.ConnectionCount)
	}
	if updated.ProfileCount != base.ProfileCount {
		p.ProfileCount = utils.Ptr(updated.ProfileCount)
	}
	if updated.ProspectCount != base.ProspectCount {
		p.ProspectCount = utils.Ptr(updated.ProspectCount)
	}
	if !slices.Equal(updated.SelectedProfiles, base.SelectedProfiles) {
		p.SelectedProfiles = append([]string{}, updated.SelectedProfiles...)
	}
	return p
}

// apply returns s with p merged over it.
func (p Patch) apply(s models.WorkSession) models.WorkSession {
	out := s.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = utils.Ptr(*p.Description)
	}
	if p.ConnectionCount != nil {
		out.ConnectionCount = *p.ConnectionCount
	}
	if p.ProfileCount != nil {
		out.ProfileCount = *p.ProfileCount
	}
	if p.ProspectCount != nil {
		out.ProspectCount = *p.ProspectCount
	}
	if p.SelectedProfiles != nil {
		out.SelectedProfiles = append([]string(nil), p.SelectedProfiles...)
		if len(out.SelectedProfiles) == 0 {
			out.SelectedProfiles = nil
		}
	}
	return out
}

// rebase keeps what the server has not caught up with. Counters are
// server-owned and always dropped; name and description are dropped once
// the server agrees.
func (p Patch) rebase(server models.WorkSession) Patch {
	p.ConnectionCount, p.ProfileCount, p.ProspectCount = nil, nil, nil
	if p.Name != nil && *p.Name == server.Name {
		p.Name = nil
	}
	if p.Description != nil && *p.Description == utils.Value(server.Description) {
		p.Description = nil
	}
	return p
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
