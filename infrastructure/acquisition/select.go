package acquisition

import (
	"context"
	"net/url"
	"strings"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

// DefaultMediaHosts are the sites routed to yt-dlp rather than a plain GET
var DefaultMediaHosts = []string{
	"youtube.com",
	"youtu.be",
	"soundcloud.com",
	"vimeo.com",
	"bandcamp.com",
	"mixcloud.com",
}

// Selector dispatches each source to the acquirer that can handle it
type Selector struct {
	files  ports.Acquirer
	media  ports.Acquirer
	direct ports.Acquirer
	hosts  []string
}

// NewSelector creates a selector. Any acquirer may be nil, in which case
// sources needing it are rejected.
func NewSelector(files, media, direct ports.Acquirer, mediaHosts []string) *Selector {
	if len(mediaHosts) == 0 {
		mediaHosts = DefaultMediaHosts
	}
	return &Selector{files: files, media: media, direct: direct, hosts: mediaHosts}
}

// Acquire implements ports.Acquirer
func (s *Selector) Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error) {
	var target ports.Acquirer
	switch src.Kind {
	case model.SourceFile:
		target = s.files
	case model.SourceURL:
		u, err := url.Parse(src.Locator)
		if err != nil || u.Host == "" {
			return nil, pkgerrors.NewAcquisitionError("invalid url: "+src.Locator, err)
		}
		if s.isMediaHost(u.Hostname()) {
			target = s.media
		} else {
			target = s.direct
		}
	default:
		return nil, pkgerrors.NewAcquisitionError("unknown source kind "+string(src.Kind), nil)
	}
	if target == nil {
		return nil, pkgerrors.NewAcquisitionError("no acquirer configured for "+src.Locator, nil)
	}
	return target.Acquire(ctx, src, destDir)
}

func (s *Selector) isMediaHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range s.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
