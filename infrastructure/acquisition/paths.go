package acquisition

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Skryldev/stem-lab/domain/ports"
)

// maxNameAttempts bounds the search for a free destination name
const maxNameAttempts = 1000

// freePath returns dir/file, or dir/<stem>-<n><ext> with the smallest n >= 2
// that is not taken yet. Two sources with the same base name never share a
// destination.
func freePath(ctx context.Context, storage ports.StorageProvider, dir, file string) (string, error) {
	ext := filepath.Ext(file)
	stem := strings.TrimSuffix(file, ext)

	candidate := filepath.Join(dir, file)
	for n := 2; n <= maxNameAttempts; n++ {
		taken, err := storage.Exists(ctx, candidate)
		if err != nil {
			return "", errors.Wrapf(err, "check %s", candidate)
		}
		if !taken {
			return candidate, nil
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
	}
	return "", errors.Newf("no free name for %s in %s", file, dir)
}
