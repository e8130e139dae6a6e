package ffmpeg_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/infrastructure/ffmpeg"
	"github.com/Skryldev/stem-lab/internal/mocks"
)

var _ = Describe("TranscodeArgs", func() {
	It("resamples to mono PCM", func() {
		args, err := ffmpeg.TranscodeArgs("in.mp3", "out.wav", 44100, 24)
		Expect(err).NotTo(HaveOccurred())
		Expect(args).To(Equal([]string{
			"-y",
			"-i", "in.mp3",
			"-vn",
			"-af", "aresample=44100,aformat=channel_layouts=mono",
			"-ac", "1",
			"-ar", "44100",
			"-c:a", "pcm_s24le",
			"out.wav",
		}))
	})

	It("rejects odd bit depths", func() {
		_, err := ffmpeg.TranscodeArgs("in.mp3", "out.wav", 44100, 12)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("FilterChainBuilder", func() {
	It("starts empty", func() {
		b := ffmpeg.NewFilterChainBuilder()
		Expect(b.IsEmpty()).To(BeTrue())
		Expect(b.Build()).To(BeEmpty())
	})
})

var _ = Describe("ParseProbe", func() {
	It("reads the first audio stream", func() {
		meta, err := ffmpeg.ParseProbe(mocks.DefaultProbeResponse())
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.SampleRate).To(Equal(48000))
		Expect(meta.Channels).To(Equal(2))
		Expect(meta.Codec).To(Equal("pcm_s16le"))
		Expect(meta.Format).To(Equal("wav"))
		Expect(meta.Duration).To(Equal(120500 * time.Millisecond))
		Expect(meta.Size).To(BeEquivalentTo(23136000))
	})

	It("skips video streams", func() {
		data := []byte(`{"format":{"format_name":"mov"},"streams":[
			{"codec_type":"video","codec_name":"h264"},
			{"codec_type":"audio","codec_name":"aac","sample_rate":"44100","channels":1}]}`)
		meta, err := ffmpeg.ParseProbe(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(meta.Codec).To(Equal("aac"))
		Expect(meta.Channels).To(Equal(1))
	})

	It("reports files without audio", func() {
		data := []byte(`{"format":{"format_name":"mov"},"streams":[{"codec_type":"video"}]}`)
		meta, err := ffmpeg.ParseProbe(data)
		Expect(errors.Is(err, ffmpeg.ErrNoAudioStream)).To(BeTrue())
		Expect(meta.Format).To(Equal("mov"))
	})

	It("rejects malformed output", func() {
		_, err := ffmpeg.ParseProbe([]byte("not json"))
		Expect(err).To(HaveOccurred())
	})
})
