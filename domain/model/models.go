package model

import (
	"fmt"
	"sort"
)

// ModelSelector names one of the supported separation models
type ModelSelector string

const (
	ModelHTDemucs   ModelSelector = "htdemucs"
	ModelHTDemucsFT ModelSelector = "htdemucs_ft"
	ModelMDXExtra   ModelSelector = "mdx_extra"
	ModelDrumSep    ModelSelector = "drumsep"
)

// SeparationModel describes how to invoke a model and what it yields
type SeparationModel struct {
	Selector ModelSelector
	// Identifier is opaque to the pipeline; separators interpret it.
	Identifier string
	Roles      []StemRole
	// DownloadURL is set for models whose checkpoint is fetched on demand.
	DownloadURL string
	// FileName is the checkpoint file name inside the model directory.
	FileName string
	// Checkpoint is the provisioned local path, filled in before separation.
	Checkpoint string
}

var fourStems = []StemRole{RoleVocals, RoleDrums, RoleBass, RoleOther}

var separationModels = map[ModelSelector]SeparationModel{
	ModelHTDemucs: {
		Selector:   ModelHTDemucs,
		Identifier: "htdemucs",
		Roles:      fourStems,
	},
	ModelHTDemucsFT: {
		Selector:   ModelHTDemucsFT,
		Identifier: "htdemucs_ft",
		Roles:      fourStems,
	},
	ModelMDXExtra: {
		Selector:   ModelMDXExtra,
		Identifier: "mdx_extra_q",
		Roles:      fourStems,
	},
	ModelDrumSep: {
		Selector:    ModelDrumSep,
		Identifier:  "modelo_final",
		Roles:       []StemRole{RoleKick, RoleSnare, RoleCymbals, RoleToms},
		DownloadURL: "https://huggingface.co/Eddycrack864/Drumsep/resolve/main/modelo_final.th",
		FileName:    "modelo_final.th",
	},
}

// DefaultModel is used when the caller does not pick one
const DefaultModel = ModelHTDemucs

// LookupModel resolves a selector name
func LookupModel(name string) (SeparationModel, error) {
	m, ok := separationModels[ModelSelector(name)]
	if !ok {
		return SeparationModel{}, fmt.Errorf("unknown separation model %q (known: %v)", name, KnownModels())
	}
	m.Roles = append([]StemRole(nil), m.Roles...)
	return m, nil
}

// KnownModels lists the selector names in stable order
func KnownModels() []string {
	names := make([]string, 0, len(separationModels))
	for k := range separationModels {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Produces reports whether the model yields role
func (m SeparationModel) Produces(role StemRole) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ForRoles narrows a four-stem model to a vocal split when vocals are the
// only role requested, which separators can run as a cheaper two-stem pass.
func (m SeparationModel) ForRoles(roles []StemRole) SeparationModel {
	if len(roles) != 1 || roles[0] != RoleVocals || !m.Produces(RoleVocals) {
		return m
	}
	m.Roles = []StemRole{RoleVocals, RoleNoVocals}
	return m
}

// TwoStem reports whether the model was narrowed to a vocal split
func (m SeparationModel) TwoStem() bool {
	return len(m.Roles) == 2 && m.Roles[0] == RoleVocals && m.Roles[1] == RoleNoVocals
}
