package separation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	"github.com/Skryldev/stem-lab/infrastructure/download"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/retry"
)

// Fetcher downloads a URL to a local path
type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (int64, error)
}

// RemoteConfig configures a RemoteSeparator
type RemoteConfig struct {
	// Endpoint receives a multipart POST with "file" and "model" fields
	Endpoint string
	Retry    retry.Config
}

// separateResponse is the service's reply: role name to stem URL
type separateResponse struct {
	Stems map[string]string `json:"stems"`
}

// RemoteSeparator delegates separation to an HTTP service and downloads the
// stems it returns.
type RemoteSeparator struct {
	cfg     RemoteConfig
	client  *http.Client
	fetcher Fetcher
	storage ports.StorageProvider
	log     *logger.Logger
}

// NewRemoteSeparator creates a remote separator
func NewRemoteSeparator(cfg RemoteConfig, client *http.Client, fetcher Fetcher, storage ports.StorageProvider, log *logger.Logger) (*RemoteSeparator, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, pkgerrors.NewValidationError("endpoint", cfg.Endpoint, "separation endpoint must be an absolute url")
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Minute}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RemoteSeparator{cfg: cfg, client: client, fetcher: fetcher, storage: storage, log: log.Named("separate.remote")}, nil
}

// Separate implements ports.Separator
func (r *RemoteSeparator) Separate(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error) {
	log := r.log.With(zap.String("input", input.Name), zap.String("model", m.Identifier))

	var resp separateResponse
	err := retry.Do(ctx, r.cfg.Retry, func() error {
		var err error
		resp, err = r.submit(ctx, input, m)
		if err != nil {
			log.Warn("separation request failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "separation service failed", err)
	}
	if len(resp.Stems) == 0 {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "separation service returned no stems", nil)
	}

	roles := make([]string, 0, len(resp.Stems))
	for role := range resp.Stems {
		// role names become file names, so only known roles are accepted
		if !m.Produces(model.StemRole(role)) && !model.KnownRole(model.StemRole(role)) {
			log.Warn("ignoring unknown stem role", zap.String("role", role))
			continue
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "separation service returned no known stems", nil)
	}
	sort.Strings(roles)

	for _, role := range roles {
		link, err := r.resolve(resp.Stems[role])
		if err != nil {
			return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "bad stem url for "+role, err)
		}
		dest, err := stemPath(outDir, role, path.Ext(link.Path))
		if err != nil {
			return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "bad stem role", err)
		}
		if _, err := r.fetcher.Fetch(ctx, link.String(), dest); err != nil {
			return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cannot download stem "+role, err)
		}
	}

	set, err := collectStems(ctx, r.storage, outDir, input.Name, m)
	if err != nil {
		return model.StemSet{}, pkgerrors.NewSeparationError(input.Name, "cannot collect stems", err)
	}
	log.Info("downloaded stems", zap.Int("stems", len(set.Stems)))
	return set, nil
}

func (r *RemoteSeparator) submit(ctx context.Context, input model.AcquiredInput, m model.SeparationModel) (separateResponse, error) {
	var out separateResponse

	f, err := os.Open(input.Path)
	if err != nil {
		return out, retry.Permanent(errors.Wrapf(err, "open %s", input.Path))
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", m.Identifier); err != nil {
		return out, retry.Permanent(err)
	}
	part, err := mw.CreateFormFile("file", filepath.Base(input.Path))
	if err != nil {
		return out, retry.Permanent(err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, retry.Permanent(errors.Wrap(err, "read input"))
	}
	if err := mw.Close(); err != nil {
		return out, retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, &body)
	if err != nil {
		return out, retry.Permanent(errors.Wrap(err, "build request"))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := r.client.Do(req)
	if err != nil {
		return out, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if err := download.CheckStatus(r.cfg.Endpoint, resp); err != nil {
		return out, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, retry.Permanent(errors.Wrap(err, "decode response"))
	}
	return out, nil
}

// stemPath places role directly inside outDir. Extensions other than the
// audio ones collectStems reads become .wav.
func stemPath(outDir, role, ext string) (string, error) {
	if !audioExtensions[strings.ToLower(ext)] {
		ext = ".wav"
	}
	dest := filepath.Join(outDir, role+ext)
	if filepath.Dir(dest) != filepath.Clean(outDir) {
		return "", errors.Newf("stem %q escapes %s", role, outDir)
	}
	return dest, nil
}

func (r *RemoteSeparator) resolve(link string) (*url.URL, error) {
	base, err := url.Parse(r.cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}
