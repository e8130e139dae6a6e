package model

// StemRole labels one separated source
type StemRole string

const (
	RoleVocals  StemRole = "vocals"
	RoleDrums   StemRole = "drums"
	RoleBass    StemRole = "bass"
	RoleOther   StemRole = "other"
	RoleGuitar  StemRole = "guitar"
	RolePiano   StemRole = "piano"
	RoleKick    StemRole = "kick"
	RoleSnare   StemRole = "snare"
	RoleCymbals StemRole = "cymbals"
	RoleToms    StemRole = "toms"
	// RoleNoVocals is the accompaniment left by a two-stem vocal split
	RoleNoVocals StemRole = "no_vocals"
)

var knownRoles = map[StemRole]bool{
	RoleVocals: true, RoleDrums: true, RoleBass: true, RoleOther: true,
	RoleGuitar: true, RolePiano: true, RoleKick: true, RoleSnare: true,
	RoleCymbals: true, RoleToms: true, RoleNoVocals: true,
}

// KnownRole reports whether role is one of the roles above
func KnownRole(role StemRole) bool { return knownRoles[role] }

// Stem is one separated track stored on disk
type Stem struct {
	Role StemRole
	Path string
}

// StemSet holds the stems produced from a single input
type StemSet struct {
	Input string
	Stems []Stem
}

// Select returns the stems matching roles, ordered by roles
func (s StemSet) Select(roles ...StemRole) []Stem {
	var out []Stem
	for _, role := range roles {
		for _, stem := range s.Stems {
			if stem.Role == role {
				out = append(out, stem)
			}
		}
	}
	return out
}

// Roles lists the roles present in the set
func (s StemSet) Roles() []StemRole {
	roles := make([]StemRole, 0, len(s.Stems))
	for _, stem := range s.Stems {
		roles = append(roles, stem.Role)
	}
	return roles
}

// SourceKind tells acquisition how to interpret a Source locator
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceURL  SourceKind = "url"
)

// Source is one thing to acquire: an uploaded file or a remote locator
type Source struct {
	Kind    SourceKind
	Locator string
}

// FileSource builds a Source for a local path
func FileSource(path string) Source { return Source{Kind: SourceFile, Locator: path} }

// URLSource builds a Source for a remote locator
func URLSource(url string) Source { return Source{Kind: SourceURL, Locator: url} }

// AcquiredInput is a raw input copied into the session's acquisition area
type AcquiredInput struct {
	Name   string
	Path   string
	Source Source
	Meta   *AudioMetadata
}
