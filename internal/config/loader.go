package config

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/born-ml/backbone/internal/ctxlog"
)

// fileRoot is the top-level shape of a config file.
type fileRoot struct {
	Mode     *string        `hcl:"mode,optional"`
	Backbone *backboneBlock `hcl:"backbone,block"`
	Input    *inputBlock    `hcl:"input,block"`
	Compute  *computeBlock  `hcl:"compute,block"`
	Log      *logBlock      `hcl:"log,block"`
}

type backboneBlock struct {
	Seed        *int64  `hcl:"seed,optional"`
	Weights     *string `hcl:"weights,optional"`
	SaveWeights *string `hcl:"save_weights,optional"`
}

type inputBlock struct {
	Batch  *int `hcl:"batch,optional"`
	Height *int `hcl:"height,optional"`
	Width  *int `hcl:"width,optional"`
}

type computeBlock struct {
	Parallel *bool `hcl:"parallel,optional"`
	Workers  *int  `hcl:"workers,optional"`
}

type logBlock struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

// Load reads the HCL file at path on top of Default and validates the result.
func Load(ctx context.Context, path string) (Config, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL config loader started.", "path", path)

	src, err := os.ReadFile(path) //nolint:gosec // G304: config path comes from the command line
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg, err := Parse(src, path)
	if err != nil {
		return Config{}, err
	}

	logger.Debug("HCL config loaded.", "path", path, "config", cfg)
	return cfg, nil
}

// Parse decodes HCL source on top of Default and validates the result.
// filename is used in diagnostics only.
func Parse(src []byte, filename string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, evalContext(), &root)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	cfg := Default()
	root.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", filename, err)
	}
	return cfg, nil
}

// apply copies every value present in the file into cfg.
func (r *fileRoot) apply(cfg *Config) {
	set(&cfg.Mode, r.Mode)
	if b := r.Backbone; b != nil {
		set(&cfg.Seed, b.Seed)
		set(&cfg.Weights, b.Weights)
		set(&cfg.SaveWeights, b.SaveWeights)
	}
	if in := r.Input; in != nil {
		set(&cfg.Batch, in.Batch)
		set(&cfg.Height, in.Height)
		set(&cfg.Width, in.Width)
	}
	if c := r.Compute; c != nil {
		set(&cfg.Parallel, c.Parallel)
		set(&cfg.Workers, c.Workers)
	}
	if l := r.Log; l != nil {
		set(&cfg.LogLevel, l.Level)
		set(&cfg.LogFormat, l.Format)
	}
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// evalContext exposes cpu_count and env(name) to config expressions.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"cpu_count": cty.NumberIntVal(int64(runtime.NumCPU())),
		},
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

// envFunc returns the value of an environment variable, or "" if unset.
var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})
