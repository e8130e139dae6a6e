package model

import (
	"os"
	"path/filepath"
	"time"
)

// SessionState is the orchestrator's position in the pipeline
type SessionState int

const (
	StateIdle SessionState = iota
	StateAcquired
	StateSeparated
	StateCombined
	StateEnhanced
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquired:
		return "acquired"
	case StateSeparated:
		return "separated"
	case StateCombined:
		return "combined"
	case StateEnhanced:
		return "enhanced"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ArtifactName identifies a persisted stage output
type ArtifactName string

const (
	ArtifactCombined ArtifactName = "combined"
	ArtifactEnhanced ArtifactName = "enhanced"
)

// Parameter ranges accepted for enhancement
const (
	MinEchoReduction = 0.7
	MaxEchoReduction = 0.95
	MinPresence      = 0.1
	MaxPresence      = 0.3
)

// EnhancementParameters are the user-facing knobs of the enhancement stage
type EnhancementParameters struct {
	// EchoReduction is the fraction of estimated noise energy removed
	EchoReduction float64
	// Presence scales the high-frequency band added back onto the body
	Presence float64
}

// DefaultEnhancementParameters returns mid-range values
func DefaultEnhancementParameters() EnhancementParameters {
	return EnhancementParameters{EchoReduction: 0.85, Presence: 0.2}
}

// Clamp returns p with both values forced into their valid ranges
func (p EnhancementParameters) Clamp() EnhancementParameters {
	return EnhancementParameters{
		EchoReduction: clamp(p.EchoReduction, MinEchoReduction, MaxEchoReduction),
		Presence:      clamp(p.Presence, MinPresence, MaxPresence),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Workspace holds the per-session paths. Two sessions never share one.
type Workspace struct {
	Root           string
	AcquisitionDir string
	StemDir        string
	OutputDir      string
	ModelDir       string
}

// NewWorkspace lays out a session namespace under root. Model checkpoints
// live beside the sessions so they are downloaded once.
func NewWorkspace(root, sessionID string) Workspace {
	base := filepath.Join(root, sessionID)
	return Workspace{
		Root:           base,
		AcquisitionDir: filepath.Join(base, "temp"),
		StemDir:        filepath.Join(base, "stems"),
		OutputDir:      filepath.Join(base, "output"),
		ModelDir:       filepath.Join(root, "models"),
	}
}

// Prepare creates every directory of the workspace
func (w Workspace) Prepare() error {
	for _, dir := range []string{w.AcquisitionDir, w.StemDir, w.OutputDir, w.ModelDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ArtifactPath returns the well-known location of an artifact
func (w Workspace) ArtifactPath(name ArtifactName) string {
	return filepath.Join(w.OutputDir, string(name)+".wav")
}

// StemDirFor returns the directory stems of input are written to
func (w Workspace) StemDirFor(input string) string {
	return filepath.Join(w.StemDir, input)
}

// RunOptions configures one orchestration run
type RunOptions struct {
	Model        ModelSelector
	Roles        []StemRole
	Enhancement  EnhancementParameters
	StageTimeout time.Duration
	// CombinedBitDepth is the depth of the intermediate combined artifact.
	CombinedBitDepth int
}

// DefaultRunOptions returns sane defaults
func DefaultRunOptions() *RunOptions {
	return &RunOptions{
		Model:            DefaultModel,
		Roles:            []StemRole{RoleVocals},
		Enhancement:      DefaultEnhancementParameters(),
		StageTimeout:     10 * time.Minute,
		CombinedBitDepth: DefaultBitDepth,
	}
}

// SessionSnapshot is a read-only view of a session
type SessionSnapshot struct {
	ID             string
	State          SessionState
	FailureKind    string
	FailureMessage string
	Inputs         []AcquiredInput
	StemSets       []StemSet
	Artifacts      map[ArtifactName]string
}

// SessionResult is returned by a complete run
type SessionResult struct {
	SessionID    string
	CombinedPath string
	EnhancedPath string
	Combined     time.Duration
	Enhanced     time.Duration
	Elapsed      time.Duration
	FinishedAt   time.Time
}

// BatchJob is one independent session in a batch
type BatchJob struct {
	ID      string
	Sources []Source
	Options *RunOptions
}

// BatchResult holds results of a batch operation
type BatchResult struct {
	JobID  string
	Result *SessionResult
	Err    error
}
