package ffmpeg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Skryldev/stem-lab/domain/model"
)

// ErrNoAudioStream is returned by ParseProbe for files without audio
var ErrNoAudioStream = errors.New("no audio stream")

// ffprobeOutput maps key fields from ffprobe JSON
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		Size       string `json:"size"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		BitRate    string `json:"bit_rate"`
	} `json:"streams"`
}

// ParseProbe reads ffprobe JSON into metadata of the first audio stream
func ParseProbe(data []byte) (*model.AudioMetadata, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "failed to parse ffprobe output")
	}

	meta := &model.AudioMetadata{
		Format: probe.Format.FormatName,
	}

	var durationSec float64
	if _, err := fmt.Sscanf(probe.Format.Duration, "%f", &durationSec); err == nil {
		meta.Duration = time.Duration(durationSec * float64(time.Second))
	}

	fmt.Sscanf(probe.Format.Size, "%d", &meta.Size)

	found := false
	for _, s := range probe.Streams {
		if s.CodecType != "audio" {
			continue
		}
		meta.Codec = s.CodecName
		meta.Channels = s.Channels
		fmt.Sscanf(s.SampleRate, "%d", &meta.SampleRate)
		fmt.Sscanf(s.BitRate, "%d", &meta.Bitrate)
		found = true
		break // take first audio stream
	}
	if !found {
		return meta, ErrNoAudioStream
	}

	return meta, nil
}
