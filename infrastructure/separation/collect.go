// Package separation implements ports.Separator on top of a local demucs
// install, a remote separation service, or a plain Go function.
package separation

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
)

var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
}

// collectStems reads <role>.<ext> files from dir into a StemSet ordered by
// the model's roles, with any unexpected stems after them.
func collectStems(ctx context.Context, storage ports.StorageProvider, dir, input string, m model.SeparationModel) (model.StemSet, error) {
	files, err := storage.List(ctx, dir)
	if err != nil {
		return model.StemSet{}, errors.Wrap(err, "error reading output directory")
	}
	if len(files) == 0 {
		return model.StemSet{}, errors.Newf("no files in output directory %s", dir)
	}

	found := make(map[model.StemRole]string, len(files))
	var extra []model.StemRole
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		if !audioExtensions[ext] {
			continue
		}
		role := model.StemRole(strings.TrimSuffix(filepath.Base(f), filepath.Ext(f)))
		if _, dup := found[role]; dup {
			continue
		}
		found[role] = f
		if !m.Produces(role) {
			extra = append(extra, role)
		}
	}

	set := model.StemSet{Input: input}
	for _, role := range append(append([]model.StemRole(nil), m.Roles...), extra...) {
		if path, ok := found[role]; ok {
			set.Stems = append(set.Stems, model.Stem{Role: role, Path: path})
		}
	}
	if len(set.Stems) == 0 {
		return model.StemSet{}, errors.Newf("no stems in output directory %s", dir)
	}
	return set, nil
}

// missingRoles lists model roles absent from set
func missingRoles(set model.StemSet, m model.SeparationModel) []model.StemRole {
	var missing []model.StemRole
	for _, role := range m.Roles {
		if len(set.Select(role)) == 0 {
			missing = append(missing, role)
		}
	}
	return missing
}
