package config

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, nn.Inference, cfg.NNMode())
	assert.Equal(t, tensor.Shape{2, 1024, 1024, 3}, cfg.InputShape())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestParse_FullFile(t *testing.T) {
	src := `
mode = "training"

backbone {
  seed         = 42
  weights      = "in.safetensors"
  save_weights = "out.safetensors"
}

input {
  batch  = 1
  height = 64
  width  = 96
}

compute {
  parallel = true
  workers  = 3
}

log {
  level  = "debug"
  format = "json"
}
`
	cfg, err := Parse([]byte(src), "run.hcl")
	require.NoError(t, err)

	assert.Equal(t, Config{
		Mode:        "training",
		Seed:        42,
		Weights:     "in.safetensors",
		SaveWeights: "out.safetensors",
		Batch:       1,
		Height:      64,
		Width:       96,
		Parallel:    true,
		Workers:     3,
		LogLevel:    "debug",
		LogFormat:   "json",
	}, cfg)
	assert.Equal(t, nn.Training, cfg.NNMode())
	assert.Equal(t, tensor.Shape{1, 64, 96, 3}, cfg.InputShape())
	assert.Equal(t, 3, cfg.ParallelConfig().NumWorkers)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`input { height = 512 }`), "partial.hcl")
	require.NoError(t, err)

	want := Default()
	want.Height = 512
	assert.Equal(t, want, cfg)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil, "empty.hcl")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_Functions(t *testing.T) {
	t.Setenv("BACKBONE_TEST_WEIGHTS", "/tmp/w.safetensors")

	cfg, err := Parse([]byte(`
backbone { weights = env("BACKBONE_TEST_WEIGHTS") }
compute { workers = cpu_count }
`), "vars.hcl")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/w.safetensors", cfg.Weights)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		invalid bool
	}{
		{"syntax", `input {`, false},
		{"unknown block", `model { depth = 50 }`, false},
		{"unknown attribute", `input { channels = 4 }`, false},
		{"wrong type", `input { batch = "two" }`, false},
		{"duplicate block", "input {}\ninput {}", false},
		{"bad mode", `mode = "eval"`, true},
		{"zero batch", `input { batch = 0 }`, true},
		{"bad format", `log { format = "xml" }`, true},
		{"bad level", `log { level = "trace" }`, true},
		{"zero workers", `compute { workers = 0 }`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			if tt.invalid {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NotErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), "bad.hcl")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.hcl")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "training"`), 0o600))

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "training", cfg.Mode)

	_, err = Load(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParallelConfig(t *testing.T) {
	cfg := Default()
	cfg.Parallel = false
	assert.Equal(t, parallel.Sequential(), cfg.ParallelConfig())

	cfg.Parallel = true
	cfg.Workers = 1
	assert.False(t, cfg.ParallelConfig().Enabled)
}
