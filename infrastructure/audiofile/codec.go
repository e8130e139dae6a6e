// Package audiofile converts between audio files and mono float buffers.
// 44.1 kHz integer PCM WAV is decoded in-process; anything else goes
// through ffmpeg first.
package audiofile

import (
	"context"
	"io"
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/domain/ports"
	"github.com/Skryldev/stem-lab/infrastructure/ffmpeg"
	"github.com/Skryldev/stem-lab/infrastructure/storage"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
	"github.com/Skryldev/stem-lab/pkg/logger"
)

const (
	wavFormatPCM = 1

	// depth of the intermediate file ffmpeg writes for non-native inputs
	transcodeBitDepth = 24
)

// Config wires a Codec. Executor may be nil, in which case only native
// WAV input can be loaded.
type Config struct {
	Executor ports.FFmpegExecutor
	Storage  ports.StorageProvider
	TempDir  string
	Logger   *logger.Logger
}

// Codec implements ports.BufferCodec
type Codec struct {
	executor ports.FFmpegExecutor
	storage  ports.StorageProvider
	tempDir  string
	log      *logger.Logger
}

// NewCodec creates a codec
func NewCodec(cfg Config) *Codec {
	st := cfg.Storage
	if st == nil {
		st = storage.NewLocalStorage()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Codec{
		executor: cfg.Executor,
		storage:  st,
		tempDir:  cfg.TempDir,
		log:      log.Named("audiofile"),
	}
}

// Load decodes path into a mono buffer at model.CanonicalSampleRate
func (c *Codec) Load(ctx context.Context, path string) (*model.Buffer, error) {
	buf, native, err := decodeFile(path)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "cannot decode wav", err)
	}
	if native {
		return buf, nil
	}
	return c.transcode(ctx, path)
}

func (c *Codec) transcode(ctx context.Context, path string) (*model.Buffer, error) {
	if c.executor == nil {
		return nil, pkgerrors.NewDecodeError(path,
			"input is not 44100 Hz PCM wav and no ffmpeg executor is configured", nil)
	}

	data, err := c.executor.Probe(ctx, path)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "probe failed", err)
	}
	meta, err := ffmpeg.ParseProbe(data)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "unusable input", err)
	}

	tmp, err := c.storage.TempFile(ctx, c.tempDir, "stemlab-*.wav")
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "cannot create temp file", err)
	}
	defer func() {
		if err := c.storage.Remove(context.WithoutCancel(ctx), tmp); err != nil {
			c.log.Warn("failed to remove temp file", zap.String("path", tmp), zap.Error(err))
		}
	}()

	args, err := ffmpeg.TranscodeArgs(path, tmp, model.CanonicalSampleRate, transcodeBitDepth)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "cannot build transcode arguments", err)
	}
	c.log.Debug("transcoding input",
		zap.String("path", path),
		zap.String("codec", meta.Codec),
		zap.Int("sample_rate", meta.SampleRate),
		zap.Int("channels", meta.Channels),
	)
	if err := c.executor.Execute(ctx, args); err != nil {
		return nil, pkgerrors.NewDecodeError(path, "transcode failed", err)
	}

	buf, native, err := decodeFile(tmp)
	if err != nil {
		return nil, pkgerrors.NewDecodeError(path, "cannot decode transcoded wav", err)
	}
	if !native {
		return nil, pkgerrors.NewDecodeError(path, "transcoded output is not 44100 Hz PCM wav", nil)
	}
	return buf, nil
}

func decodeFile(path string) (*model.Buffer, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return decodeWAV(f)
}

// decodeWAV reports native=false, without error, for anything that is not
// integer PCM WAV at the canonical rate so the caller can hand it to ffmpeg.
func decodeWAV(r io.ReadSeeker) (*model.Buffer, bool, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if dec.Err() != nil || dec.NumChans == 0 {
		return nil, false, nil
	}
	// the decoder does not expose the extensible subformat, which may be
	// float, so those files go through ffmpeg too
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, false, nil
	}
	bits := int(dec.BitDepth)
	switch bits {
	case 8, 16, 24, 32:
	default:
		return nil, false, nil
	}
	if int(dec.SampleRate) != model.CanonicalSampleRate {
		return nil, false, nil
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, true, errors.Wrap(err, "read pcm data")
	}
	if want := dec.PCMSize / (bits / 8); len(pcm.Data) < want {
		return nil, true, errors.Newf("truncated pcm data: %d of %d samples", len(pcm.Data), want)
	}

	channels := int(dec.NumChans)
	frames := len(pcm.Data) / channels
	samples := make([]float64, frames)
	scale := math.Pow(2, float64(bits-1))
	for i := range samples {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			v := float64(pcm.Data[i*channels+ch])
			if bits == 8 {
				v -= 128
			}
			sum += v
		}
		samples[i] = sum / float64(channels) / scale
	}
	return model.NewBuffer(samples, int(dec.SampleRate)), true, nil
}

// Save encodes buf as mono integer PCM WAV at bitDepth. Samples are clamped
// to [-1, 1]. The destination is replaced atomically.
func (c *Codec) Save(ctx context.Context, buf *model.Buffer, path string, bitDepth int) error {
	if err := buf.Validate(); err != nil {
		return pkgerrors.NewEncodeError(path, "invalid buffer", err)
	}
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return pkgerrors.NewEncodeError(path, "unsupported bit depth", errors.Newf("bit depth %d", bitDepth))
	}

	data := quantize(buf.Samples, bitDepth)
	err := c.storage.WriteAtomic(ctx, path, func(w io.WriteSeeker) error {
		enc := wav.NewEncoder(w, buf.SampleRate, bitDepth, 1, wavFormatPCM)
		if err := enc.Write(&audio.IntBuffer{
			Data:           data,
			Format:         &audio.Format{SampleRate: buf.SampleRate, NumChannels: 1},
			SourceBitDepth: bitDepth,
		}); err != nil {
			return errors.Wrap(err, "write pcm")
		}
		return errors.Wrap(enc.Close(), "finalize wav header")
	})
	if err != nil {
		return pkgerrors.NewEncodeError(path, "cannot write wav", err)
	}

	c.log.Debug("saved buffer",
		zap.String("path", path),
		zap.Int("bit_depth", bitDepth),
		zap.Duration("duration", buf.Duration()),
	)
	return nil
}

func quantize(samples []float64, bitDepth int) []int {
	peak := math.Pow(2, float64(bitDepth-1)) - 1
	out := make([]int, len(samples))
	for i, v := range samples {
		v = math.Max(-1, math.Min(1, v))
		q := int(math.Round(v * peak))
		if bitDepth == 8 {
			q += 128
		}
		out[i] = q
	}
	return out
}
