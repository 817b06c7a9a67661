package model

import "slices"

// Venue is the resolved configuration of one journal's reviews repository.
// Editors holds the editor team membership captured when the snapshot was built.
type Venue struct {
	Repo              string // NWO of the reviews repository
	Name              string
	SiteHost          string
	SiteAPIKey        string
	EditorTeam        string // "org/slug"
	EditorTeamID      int64
	OrganizationID    int64
	Editors           []string
	EICs              []string
	EICTeamName       string
	DOIPrefix         string
	JournalAlias      string
	PapersRepo        string
	ReviewersURL      string
	BuildServiceURL   string
	ArchiveServiceURL string
	AnnounceURL       string
}

// IsEditor reports exact, case-sensitive membership in the editor team.
func (v Venue) IsEditor(handle string) bool {
	return slices.Contains(v.Editors, handle)
}

// IsEIC reports exact, case-sensitive membership in the editor-in-chief list.
func (v Venue) IsEIC(handle string) bool {
	return slices.Contains(v.EICs, handle)
}

// PapersRepoURL is the browsable URL of the papers repository.
func (v Venue) PapersRepoURL() string {
	return "https://github.com/" + v.PapersRepo
}
