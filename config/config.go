// Package config - loads the run configuration from YAML and the environment.
package config

import (
	"image"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-glitch/images"
	"github.com/nvr-ai/go-glitch/inference"
	"github.com/nvr-ai/go-glitch/models/postprocess"
)

// ErrorPolicy decides what a failing image does to the rest of the batch.
type ErrorPolicy string

const (
	// ErrorPolicyAbort cancels the whole run on the first failing image.
	ErrorPolicyAbort ErrorPolicy = "abort"
	// ErrorPolicySkip leaves failing images out of the canvas.
	ErrorPolicySkip ErrorPolicy = "skip"
)

// DefaultImagePaths is the batch used when no paths are given.
var DefaultImagePaths = []string{
	"images/_DSC8834.jpg",
	"images/_DSC8913.jpg",
	"images/_DSC8911.jpg",
	"images/_DSC8914.jpg",
	"images/_DSC8915.jpg",
}

// Config is the full run configuration.
type Config struct {
	Model    ModelConfig           `yaml:"model"`
	NMS      postprocess.NMSConfig `yaml:"nms"`
	Snippet  SnippetConfig         `yaml:"snippet"`
	Text     TextConfig            `yaml:"text"`
	Edges    EdgeConfig            `yaml:"edges"`
	Pipeline PipelineConfig        `yaml:"pipeline"`
	Logging  LoggingConfig         `yaml:"logging"`
	// Output is the directory the canvas is written to.
	Output string `yaml:"output"`
	// Format is the canvas file format: png, jpeg or webp.
	Format string `yaml:"format"`
}

// ModelConfig configures the detector.
type ModelConfig struct {
	inference.Config `yaml:",inline"`
	// FallbackWidth and FallbackHeight are the input resolution assumed for
	// models that leave it dynamic. Zero makes such models an error.
	FallbackWidth  int `yaml:"fallback_width"`
	FallbackHeight int `yaml:"fallback_height"`
}

// Fallback returns the fallback input resolution.
func (m ModelConfig) Fallback() image.Point {
	return image.Point{X: m.FallbackWidth, Y: m.FallbackHeight}
}

// SnippetConfig bounds pasted snippets.
type SnippetConfig struct {
	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
}

// Max returns the maximum snippet size.
func (s SnippetConfig) Max() image.Point {
	return image.Point{X: s.MaxWidth, Y: s.MaxHeight}
}

// TextConfig configures label rendering.
type TextConfig struct {
	// Size is the vertical pixel size.
	Size float64 `yaml:"size"`
	// Stretch is the horizontal scale relative to Size.
	Stretch float64 `yaml:"stretch"`
	// Color is a hex color such as "#ff0000".
	Color string `yaml:"color"`
}

// RGBA parses Color.
func (t TextConfig) RGBA() (color.Color, error) {
	c, err := colorful.Hex(t.Color)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid label color %q", t.Color)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// EdgeConfig configures the edge map every composite is built on.
type EdgeConfig struct {
	// Enabled builds edge composites; false pastes onto the photographs.
	Enabled bool `yaml:"enabled"`
	// Threshold is the gradient magnitude below which pixels are zeroed.
	Threshold uint8 `yaml:"threshold"`
}

// PipelineConfig configures batch execution.
type PipelineConfig struct {
	// Workers is the number of images processed at once.
	Workers int `yaml:"workers"`
	// OnError is the batch error policy.
	OnError ErrorPolicy `yaml:"on_error"`
	// Seed seeds the run's random source.
	Seed int64 `yaml:"seed"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration the tool runs with when nothing is overridden.
//
// The IoU threshold of 10 is above any possible IoU, so suppression never
// discards anything and overlapping near-duplicates all survive. Lower it
// (0.45 is typical) to get one box per object.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Config: inference.Config{
				ModelPath:  "yolov8.onnx",
				InputName:  "images",
				OutputName: "output0",
				Classes:    80,
				Provider:   inference.ProviderCPU,
			},
			FallbackWidth:  640,
			FallbackHeight: 640,
		},
		NMS: postprocess.NMSConfig{
			IoUThreshold:   10.0,
			ScoreThreshold: 0.01,
		},
		Snippet: SnippetConfig{MaxWidth: 600, MaxHeight: 600},
		Text:    TextConfig{Size: 60, Stretch: 1.5, Color: "#ff0000"},
		Edges:   EdgeConfig{Enabled: true, Threshold: 40},
		Pipeline: PipelineConfig{
			Workers: 1,
			OnError: ErrorPolicyAbort,
		},
		Logging: LoggingConfig{Level: "info"},
		Output:  ".",
		Format:  string(images.FormatPNG),
	}
}

// Load overlays the YAML file at path onto the defaults. An empty path
// returns the defaults.
//
// Arguments:
//   - path: The YAML file.
//
// Returns:
//   - *Config: The merged configuration, not yet validated.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	return cfg, nil
}

// ApplyEnv overrides fields from GLITCH_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("GLITCH_MODEL"); v != "" {
		c.Model.ModelPath = v
	}
	if v := os.Getenv("GLITCH_ORT_LIBRARY"); v != "" {
		c.Model.LibraryPath = v
	}
	if v := os.Getenv("GLITCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GLITCH_WORKERS"); v != "" {
		workers, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return errors.Wrapf(err, "invalid GLITCH_WORKERS %q", v)
		}
		c.Pipeline.Workers = workers
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Model.ModelPath == "":
		return errors.New("model path is required")
	case c.Model.Classes <= 0:
		return errors.Errorf("model classes must be > 0 (got %d)", c.Model.Classes)
	case c.Model.FallbackWidth < 0 || c.Model.FallbackHeight < 0:
		return errors.Errorf("fallback input must not be negative (got %dx%d)",
			c.Model.FallbackWidth, c.Model.FallbackHeight)
	case c.Snippet.MaxWidth <= 0 || c.Snippet.MaxHeight <= 0:
		return errors.Errorf("snippet maximum must be > 0 (got %dx%d)", c.Snippet.MaxWidth, c.Snippet.MaxHeight)
	case c.Text.Size <= 0 || c.Text.Stretch <= 0:
		return errors.Errorf("text size and stretch must be > 0 (got %v, %v)", c.Text.Size, c.Text.Stretch)
	case c.NMS.IoUThreshold < 0 || c.NMS.ScoreThreshold < 0:
		return errors.Errorf("nms thresholds must not be negative (got iou=%v, score=%v)",
			c.NMS.IoUThreshold, c.NMS.ScoreThreshold)
	case c.Pipeline.Workers <= 0:
		return errors.Errorf("workers must be > 0 (got %d)", c.Pipeline.Workers)
	}

	switch c.Pipeline.OnError {
	case ErrorPolicyAbort, ErrorPolicySkip:
	default:
		return errors.Errorf("unknown on_error policy %q", c.Pipeline.OnError)
	}

	if _, err := images.ParseFormat(c.Format); err != nil {
		return err
	}
	if _, err := c.Text.RGBA(); err != nil {
		return err
	}
	return nil
}
