package mocks

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Skryldev/stem-lab/domain/model"
)

// MockFFmpegExecutor is a test double for ports.FFmpegExecutor
type MockFFmpegExecutor struct {
	ExecuteFunc  func(ctx context.Context, args []string) error
	ProbeFunc    func(ctx context.Context, inputPath string) ([]byte, error)
	ExecutedArgs [][]string
}

func (m *MockFFmpegExecutor) Execute(ctx context.Context, args []string) error {
	m.ExecutedArgs = append(m.ExecutedArgs, args)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, args)
	}
	return nil
}

func (m *MockFFmpegExecutor) Probe(ctx context.Context, inputPath string) ([]byte, error) {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, inputPath)
	}
	return DefaultProbeResponse(), nil
}

// DefaultProbeResponse is ffprobe JSON for a 2 minute stereo 48 kHz wav
func DefaultProbeResponse() []byte {
	resp := map[string]interface{}{
		"format": map[string]interface{}{
			"duration":    "120.5",
			"bit_rate":    "1536000",
			"size":        "23136000",
			"format_name": "wav",
		},
		"streams": []map[string]interface{}{
			{
				"codec_type":  "audio",
				"codec_name":  "pcm_s16le",
				"sample_rate": "48000",
				"channels":    2,
				"bit_rate":    "1536000",
			},
		},
	}
	b, _ := json.Marshal(resp)
	return b
}

// MockCommandRunner is a test double for ports.CommandRunner
type MockCommandRunner struct {
	mu      sync.Mutex
	RunFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
	Calls   []Command
}

// Command records one runner invocation
type Command struct {
	Dir  string
	Name string
	Args []string
}

func (m *MockCommandRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, Command{Dir: dir, Name: name, Args: args})
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, dir, name, args...)
	}
	return nil, nil
}

// MockStorageProvider is a test double for ports.StorageProvider
type MockStorageProvider struct {
	ExistsFunc      func(ctx context.Context, path string) (bool, error)
	SizeFunc        func(ctx context.Context, path string) (int64, error)
	RemoveFunc      func(ctx context.Context, path string) error
	RemoveAllFunc   func(ctx context.Context, path string) error
	TempFileFunc    func(ctx context.Context, dir, pattern string) (string, error)
	WriteAtomicFunc func(ctx context.Context, path string, write func(w io.WriteSeeker) error) error
	ListFunc        func(ctx context.Context, dir string) ([]string, error)

	mu      sync.Mutex
	Removed []string
}

func (m *MockStorageProvider) Exists(ctx context.Context, path string) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, path)
	}
	return true, nil
}

func (m *MockStorageProvider) Size(ctx context.Context, path string) (int64, error) {
	if m.SizeFunc != nil {
		return m.SizeFunc(ctx, path)
	}
	return 1024, nil
}

func (m *MockStorageProvider) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	m.Removed = append(m.Removed, path)
	m.mu.Unlock()
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, path)
	}
	return nil
}

func (m *MockStorageProvider) RemoveAll(ctx context.Context, path string) error {
	if m.RemoveAllFunc != nil {
		return m.RemoveAllFunc(ctx, path)
	}
	return nil
}

func (m *MockStorageProvider) TempFile(ctx context.Context, dir, pattern string) (string, error) {
	if m.TempFileFunc != nil {
		return m.TempFileFunc(ctx, dir, pattern)
	}
	return "/tmp/mock_temp_file", nil
}

func (m *MockStorageProvider) WriteAtomic(ctx context.Context, path string, write func(w io.WriteSeeker) error) error {
	if m.WriteAtomicFunc != nil {
		return m.WriteAtomicFunc(ctx, path, write)
	}
	return nil
}

func (m *MockStorageProvider) List(ctx context.Context, dir string) ([]string, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, dir)
	}
	return nil, nil
}

// MockAcquirer is a test double for ports.Acquirer
type MockAcquirer struct {
	mu          sync.Mutex
	AcquireFunc func(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error)
	Sources     []model.Source
}

func (m *MockAcquirer) Acquire(ctx context.Context, src model.Source, destDir string) ([]model.AcquiredInput, error) {
	m.mu.Lock()
	m.Sources = append(m.Sources, src)
	m.mu.Unlock()
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, src, destDir)
	}
	return nil, nil
}

// MockSeparator is a test double for ports.Separator
type MockSeparator struct {
	mu           sync.Mutex
	SeparateFunc func(ctx context.Context, input model.AcquiredInput, m model.SeparationModel, outDir string) (model.StemSet, error)
	Models       []model.SeparationModel
}

func (m *MockSeparator) Separate(ctx context.Context, input model.AcquiredInput, sm model.SeparationModel, outDir string) (model.StemSet, error) {
	m.mu.Lock()
	m.Models = append(m.Models, sm)
	m.mu.Unlock()
	if m.SeparateFunc != nil {
		return m.SeparateFunc(ctx, input, sm, outDir)
	}
	return model.StemSet{Input: input.Name}, nil
}

// Calls returns how many times Separate was called
func (m *MockSeparator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Models)
}

// MockModelProvisioner is a test double for ports.ModelProvisioner
type MockModelProvisioner struct {
	EnsureFunc func(ctx context.Context, m model.SeparationModel, dir string) (string, error)
}

func (m *MockModelProvisioner) Ensure(ctx context.Context, sm model.SeparationModel, dir string) (string, error) {
	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx, sm, dir)
	}
	return "", nil
}

// MockBufferCodec is a test double for ports.BufferCodec
type MockBufferCodec struct {
	LoadFunc func(ctx context.Context, path string) (*model.Buffer, error)
	SaveFunc func(ctx context.Context, buf *model.Buffer, path string, bitDepth int) error
}

func (m *MockBufferCodec) Load(ctx context.Context, path string) (*model.Buffer, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, path)
	}
	return model.NewBuffer(nil, model.CanonicalSampleRate), nil
}

func (m *MockBufferCodec) Save(ctx context.Context, buf *model.Buffer, path string, bitDepth int) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, buf, path, bitDepth)
	}
	return nil
}

// MockStageObserver records stage observations
type MockStageObserver struct {
	mu       sync.Mutex
	Stages   []string
	Errors   []error
	Started  int
	Finished int
}

func (m *MockStageObserver) ObserveStage(stage string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stages = append(m.Stages, stage)
	m.Errors = append(m.Errors, err)
}

func (m *MockStageObserver) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Started++
}

func (m *MockStageObserver) SessionFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finished++
}
