package acquisition_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/infrastructure/acquisition"
	"github.com/Skryldev/stem-lab/infrastructure/storage"
	"github.com/Skryldev/stem-lab/internal/mocks"
	pkgerrors "github.com/Skryldev/stem-lab/pkg/errors"
)

type recordingFetcher struct {
	urls  []string
	dests []string
	err   error
}

func (f *recordingFetcher) Fetch(_ context.Context, url, dest string) (int64, error) {
	f.urls = append(f.urls, url)
	f.dests = append(f.dests, dest)
	if f.err != nil {
		return 0, f.err
	}
	return 4, os.WriteFile(dest, []byte("RIFF"), 0o644)
}

var _ = Describe("FileAcquirer", func() {
	var (
		srcDir, destDir string
		acq             *acquisition.FileAcquirer
	)

	BeforeEach(func() {
		srcDir = GinkgoT().TempDir()
		destDir = GinkgoT().TempDir()
		acq = acquisition.NewFileAcquirer(storage.NewLocalStorage(), nil)
	})

	It("copies the upload and leaves the original", func() {
		src := filepath.Join(srcDir, "My Song.wav")
		Expect(os.WriteFile(src, []byte("audio"), 0o644)).To(Succeed())

		inputs, err := acq.Acquire(context.Background(), model.FileSource(src), destDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(inputs).To(HaveLen(1))
		Expect(inputs[0].Name).To(Equal("My_Song"))
		Expect(inputs[0].Path).To(Equal(filepath.Join(destDir, "My Song.wav")))
		Expect(src).To(BeARegularFile())

		b, err := os.ReadFile(inputs[0].Path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(b)).To(Equal("audio"))
	})

	It("gives same-named uploads from different directories their own copies", func() {
		var sources []model.Source
		for _, sub := range []string{"a", "b"} {
			Expect(os.MkdirAll(filepath.Join(srcDir, sub), 0o755)).To(Succeed())
			src := filepath.Join(srcDir, sub, "take.wav")
			Expect(os.WriteFile(src, []byte("upload "+sub), 0o644)).To(Succeed())
			sources = append(sources, model.FileSource(src))
		}

		var got []model.AcquiredInput
		for _, src := range sources {
			inputs, err := acq.Acquire(context.Background(), src, destDir)
			Expect(err).NotTo(HaveOccurred())
			got = append(got, inputs...)
		}

		Expect(got[0].Path).To(Equal(filepath.Join(destDir, "take.wav")))
		Expect(got[1].Path).To(Equal(filepath.Join(destDir, "take-2.wav")))
		Expect(got[1].Name).To(Equal("take-2"))
		for i, want := range []string{"upload a", "upload b"} {
			b, err := os.ReadFile(got[i].Path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(b)).To(Equal(want))
		}
	})

	It("rejects missing files", func() {
		_, err := acq.Acquire(context.Background(), model.FileSource(filepath.Join(srcDir, "nope.wav")), destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})

	It("rejects directories", func() {
		_, err := acq.Acquire(context.Background(), model.FileSource(srcDir), destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})

	It("rejects url sources", func() {
		_, err := acq.Acquire(context.Background(), model.URLSource("https://example.com/a.wav"), destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})
})

var _ = DescribeTable("InputName",
	func(path, want string) {
		Expect(acquisition.InputName(path)).To(Equal(want))
	},
	Entry("plain", "/a/track.wav", "track"),
	Entry("spaces and symbols", "/a/my track (live)!.mp3", "my_track__live__"),
	Entry("dots only", "/a/...wav", "input"),
	Entry("keeps dashes", "/a/dQw4w9WgXcQ-x.wav", "dQw4w9WgXcQ-x"),
)

var _ = Describe("HTTPAcquirer", func() {
	var (
		fetcher *recordingFetcher
		acq     *acquisition.HTTPAcquirer
		destDir string
	)

	BeforeEach(func() {
		fetcher = &recordingFetcher{}
		acq = acquisition.NewHTTPAcquirer(fetcher, storage.NewLocalStorage())
		destDir = GinkgoT().TempDir()
	})

	It("names the download after the url path", func() {
		inputs, err := acq.Acquire(context.Background(), model.URLSource("https://cdn.example.com/x/take1.flac?sig=abc"), destDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.dests).To(Equal([]string{filepath.Join(destDir, "take1.flac")}))
		Expect(inputs[0].Name).To(Equal("take1"))
	})

	It("falls back to a generic name", func() {
		_, err := acq.Acquire(context.Background(), model.URLSource("https://cdn.example.com/"), destDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(fetcher.dests).To(Equal([]string{filepath.Join(destDir, "download.audio")}))
	})

	It("does not overwrite an earlier download with the same name", func() {
		for i := 0; i < 2; i++ {
			_, err := acq.Acquire(context.Background(), model.URLSource("https://cdn.example.com/x/take.wav"), destDir)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(fetcher.dests).To(Equal([]string{
			filepath.Join(destDir, "take.wav"),
			filepath.Join(destDir, "take-2.wav"),
		}))
	})

	It("rejects other schemes", func() {
		_, err := acq.Acquire(context.Background(), model.URLSource("ftp://example.com/a.wav"), destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
		Expect(fetcher.urls).To(BeEmpty())
	})

	It("wraps download failures", func() {
		fetcher.err = errors.New("connection reset")
		_, err := acq.Acquire(context.Background(), model.URLSource("https://example.com/a.wav"), destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})
})

var _ = Describe("YTDLPAcquirer", func() {
	var (
		runner  *mocks.MockCommandRunner
		acq     *acquisition.YTDLPAcquirer
		destDir string
		src     model.Source
	)

	writeOutput := func(name string) error {
		return os.WriteFile(filepath.Join(destDir, name), []byte("RIFF"), 0o644)
	}

	BeforeEach(func() {
		runner = &mocks.MockCommandRunner{}
		destDir = GinkgoT().TempDir()
		acq = acquisition.NewYTDLPAcquirer("", runner, storage.NewLocalStorage(), nil)
		src = model.URLSource("https://www.youtube.com/watch?v=abc")
	})

	It("returns only the new wav files", func() {
		Expect(writeOutput("old.wav")).To(Succeed())
		runner.RunFunc = func(context.Context, string, string, ...string) ([]byte, error) {
			if err := writeOutput("abc.wav"); err != nil {
				return nil, err
			}
			return nil, writeOutput("abc.webm.part")
		}

		inputs, err := acq.Acquire(context.Background(), src, destDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(inputs).To(HaveLen(1))
		Expect(inputs[0].Name).To(Equal("abc"))

		Expect(runner.Calls).To(HaveLen(1))
		Expect(runner.Calls[0].Name).To(Equal("yt-dlp"))
		Expect(runner.Calls[0].Args).To(ContainElements("-x", "--audio-format", "wav", src.Locator))
	})

	It("clears the cache and retries once", func() {
		attempts := 0
		runner.RunFunc = func(_ context.Context, _, _ string, args ...string) ([]byte, error) {
			if args[0] == "--rm-cache-dir" {
				return nil, nil
			}
			attempts++
			if attempts == 1 {
				return nil, errors.New("HTTP Error 403")
			}
			return nil, writeOutput("abc.wav")
		}

		inputs, err := acq.Acquire(context.Background(), src, destDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(inputs).To(HaveLen(1))
		Expect(runner.Calls).To(HaveLen(3))
		Expect(runner.Calls[1].Args).To(Equal([]string{"--rm-cache-dir"}))
	})

	It("fails when yt-dlp keeps failing", func() {
		runner.RunFunc = func(context.Context, string, string, ...string) ([]byte, error) {
			return nil, errors.New("unsupported url")
		}
		_, err := acq.Acquire(context.Background(), src, destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})

	It("fails when nothing was extracted", func() {
		_, err := acq.Acquire(context.Background(), src, destDir)
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})
})

var _ = Describe("Selector", func() {
	var (
		files, media, direct *mocks.MockAcquirer
		sel                  *acquisition.Selector
	)

	BeforeEach(func() {
		files, media, direct = &mocks.MockAcquirer{}, &mocks.MockAcquirer{}, &mocks.MockAcquirer{}
		sel = acquisition.NewSelector(files, media, direct, nil)
	})

	DescribeTable("routes sources",
		func(src model.Source, want string) {
			_, err := sel.Acquire(context.Background(), src, "/tmp")
			Expect(err).NotTo(HaveOccurred())
			got := map[string]int{"files": len(files.Sources), "media": len(media.Sources), "direct": len(direct.Sources)}
			Expect(got[want]).To(Equal(1))
		},
		Entry("upload", model.FileSource("/in/a.wav"), "files"),
		Entry("youtube", model.URLSource("https://www.youtube.com/watch?v=x"), "media"),
		Entry("short link", model.URLSource("https://youtu.be/x"), "media"),
		Entry("soundcloud", model.URLSource("https://soundcloud.com/a/b"), "media"),
		Entry("direct file", model.URLSource("https://cdn.example.com/a.wav"), "direct"),
		Entry("lookalike host", model.URLSource("https://notyoutube.com/a.wav"), "direct"),
	)

	It("rejects routes without an acquirer", func() {
		sel = acquisition.NewSelector(files, nil, nil, nil)
		_, err := sel.Acquire(context.Background(), model.URLSource("https://youtu.be/x"), "/tmp")
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})

	It("rejects malformed urls", func() {
		_, err := sel.Acquire(context.Background(), model.URLSource("not a url"), "/tmp")
		Expect(pkgerrors.KindOf(err)).To(Equal(pkgerrors.ErrCodeAcquisition))
	})
})
