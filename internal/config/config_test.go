package config_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/internal/config"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

var _ = Describe("Config", func() {
	It("has valid defaults", func() {
		cfg := config.Default()
		Expect(cfg.Validate()).To(Succeed())
		Expect(cfg.Pipeline.StemRoles()).To(Equal([]model.StemRole{model.RoleVocals}))
		Expect(cfg.Pipeline.StageTimeoutDuration()).To(Equal(10 * time.Minute))
		Expect(cfg.Concat.MinSilence()).To(Equal(time.Second))
		Expect(cfg.Concat.KeepSilence()).To(Equal(100 * time.Millisecond))
	})

	Describe("Load", func() {
		It("overlays the file on the defaults", func() {
			path := filepath.Join(GinkgoT().TempDir(), "stemlab.yaml")
			Expect(os.WriteFile(path, []byte(`
workspace:
  root: /data/sessions
pipeline:
  model: htdemucs_ft
  roles: [vocals, drums]
  presence: 0.3
separation:
  mode: remote
  endpoint: http://separator:8000/separate
logging:
  level: debug
`), 0o644)).To(Succeed())

			cfg, err := config.Load(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Workspace.Root).To(Equal("/data/sessions"))
			Expect(cfg.Pipeline.Model).To(Equal("htdemucs_ft"))
			Expect(cfg.Pipeline.Roles).To(Equal([]string{"vocals", "drums"}))
			Expect(cfg.Pipeline.Presence).To(Equal(0.3))
			Expect(cfg.Pipeline.EchoReduction).To(Equal(0.85))
			Expect(cfg.Separation.Mode).To(Equal("remote"))
			Expect(cfg.Logging.Level).To(Equal("debug"))
		})

		It("works without a file", func() {
			cfg, err := config.Load("")
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Pipeline.Workers).To(Equal(2))
		})

		It("reports a missing file", func() {
			_, err := config.Load(filepath.Join(GinkgoT().TempDir(), "nope.yaml"))
			Expect(err).To(MatchError(ContainSubstring("failed to read config file")))
		})

		It("reports malformed yaml", func() {
			path := filepath.Join(GinkgoT().TempDir(), "bad.yaml")
			Expect(os.WriteFile(path, []byte("pipeline: [nope"), 0o644)).To(Succeed())
			_, err := config.Load(path)
			Expect(err).To(MatchError(ContainSubstring("failed to parse config file")))
		})
	})

	Describe("ApplyEnv", func() {
		It("overrides from STEMLAB variables", func() {
			cfg := config.Default()
			err := cfg.ApplyEnv(env(map[string]string{
				"STEMLAB_ROOT":           "/srv/stemlab",
				"STEMLAB_ROLES":          "vocals, bass ,",
				"STEMLAB_WORKERS":        "8",
				"STEMLAB_ECHO_REDUCTION": "0.9",
				"STEMLAB_DEVICE":         "cuda",
				"STEMLAB_LOG_LEVEL":      "",
			}))
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Workspace.Root).To(Equal("/srv/stemlab"))
			Expect(cfg.Pipeline.Roles).To(Equal([]string{"vocals", "bass"}))
			Expect(cfg.Pipeline.Workers).To(Equal(8))
			Expect(cfg.Pipeline.EchoReduction).To(Equal(0.9))
			Expect(cfg.Tools.Device).To(Equal("cuda"))
			Expect(cfg.Logging.Level).To(Equal("info"))
		})

		It("rejects malformed numbers", func() {
			cfg := config.Default()
			err := cfg.ApplyEnv(env(map[string]string{"STEMLAB_WORKERS": "many"}))
			Expect(err).To(MatchError(ContainSubstring("STEMLAB_WORKERS")))
		})
	})

	DescribeTable("Validate rejects",
		func(mutate func(*config.Config), msg string) {
			cfg := config.Default()
			mutate(cfg)
			Expect(cfg.Validate()).To(MatchError(ContainSubstring(msg)))
		},
		Entry("empty root", func(c *config.Config) { c.Workspace.Root = "" }, "root cannot be empty"),
		Entry("unknown model", func(c *config.Config) { c.Pipeline.Model = "spleeter" }, "unknown separation model"),
		Entry("no roles", func(c *config.Config) { c.Pipeline.Roles = nil }, "roles cannot be empty"),
		Entry("echo reduction too low", func(c *config.Config) { c.Pipeline.EchoReduction = 0.5 }, "echo_reduction"),
		Entry("presence too high", func(c *config.Config) { c.Pipeline.Presence = 0.5 }, "presence"),
		Entry("odd bit depth", func(c *config.Config) { c.Pipeline.CombinedBitDepth = 12 }, "combined_bit_depth"),
		Entry("no workers", func(c *config.Config) { c.Pipeline.Workers = 0 }, "workers"),
		Entry("positive threshold", func(c *config.Config) { c.Concat.ThresholdDBFS = 3 }, "threshold_dbfs"),
		Entry("remote without endpoint", func(c *config.Config) { c.Separation.Mode = "remote" }, "endpoint is required"),
		Entry("unknown mode", func(c *config.Config) { c.Separation.Mode = "cloud" }, "mode must be"),
		Entry("zero attempts", func(c *config.Config) { c.Download.MaxAttempts = 0 }, "max_attempts"),
		Entry("unknown level", func(c *config.Config) { c.Logging.Level = "trace" }, "level must be one of"),
	)
})
