package model

// RepoFile is a file stored on a branch of the papers repository.
// SHA is the blob SHA required to delete or replace it.
type RepoFile struct {
	Path        string
	SHA         string
	HTMLURL     string
	DownloadURL string
}

// PullRequest is a pull request opened against the papers repository.
type PullRequest struct {
	Number  int
	HTMLURL string
	Head    string
	Base    string
}

// Artifact is a generated file ready for publication.
type Artifact struct {
	Path    string // destination path inside the papers repository
	Content []byte
}

// PublishRequest describes one run of the artifact publication protocol.
type PublishRequest struct {
	Repo      string
	Alias     string
	Issue     int
	Artifacts []Artifact
	Message   string
	OpenPR    bool
	Merge     bool
	PRTitle   string
	PRBody    string
}

// PublishResult reports the URLs of what was published.
type PublishResult struct {
	Branch      string
	Files       []RepoFile
	PullRequest *PullRequest
	Merged      bool
}

// TypesetRequest asks the typesetter to compile a paper in a working copy.
type TypesetRequest struct {
	Dir       string
	PaperPath string
	Venue     Venue
	Issue     int
	Final     bool // also produce registrar metadata
}

// TypesetResult lists the produced files. CrossrefPath is empty unless Final was set.
type TypesetResult struct {
	PDFPath      string
	CrossrefPath string
}

// BuildResult is the response of an external book build service.
type BuildResult struct {
	BookURL  string
	Existing bool
}
