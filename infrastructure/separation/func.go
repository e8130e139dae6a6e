package separation

import (
	"context"

	"github.com/Skryldev/stem-lab/domain/model"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

// Func adapts an in-process separation routine to ports.Separator
type Func func(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error)

// Separate implements ports.Separator
func (f Func) Separate(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error) {
	set, err := f(ctx, input, m, outDir)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.ErrCodeSeparation) {
			return model.StemSet{}, err
		}
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "separation failed", err)
	}
	if set.Input == "" {
		set.Input = input.Name
	}
	return set, nil
}
