// Package main is the glitch command: it blends a batch of photographs into
// one annotated canvas.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-glitch/config"
	"github.com/nvr-ai/go-glitch/images"
	"github.com/nvr-ai/go-glitch/inference"
	"github.com/nvr-ai/go-glitch/logging"
	"github.com/nvr-ai/go-glitch/models/yolov8"
	"github.com/nvr-ai/go-glitch/pipeline"
	"github.com/nvr-ai/go-glitch/profiler"
	"github.com/nvr-ai/go-glitch/util"
)

const (
	flagConfig   = "config"
	flagModel    = "model"
	flagSeed     = "seed"
	flagOutput   = "output"
	flagWorkers  = "workers"
	flagLogLevel = "log-level"
	flagDir      = "dir"
	flagOnError  = "on-error"
	flagIoU      = "iou"
	flagScore    = "score"
	flagRaw      = "raw"
	flagFormat   = "format"
)

func main() {
	app := &cli.App{
		Name:      "glitch",
		Usage:     "blend photographs into one edge-traced canvas with detected objects pasted back in",
		ArgsUsage: "[image ...]",
		Flags:     appFlags(),
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// appFlags returns the command line flags.
func appFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE`",
		},
		&cli.StringFlag{
			Name:  flagModel,
			Usage: "YOLOv8 ONNX model `FILE`",
		},
		&cli.Int64Flag{
			Name:  flagSeed,
			Usage: "seed for the run's random source",
		},
		&cli.StringFlag{
			Name:    flagOutput,
			Aliases: []string{"o"},
			Usage:   "directory the canvas is written to",
		},
		&cli.IntFlag{
			Name:  flagWorkers,
			Usage: "number of images processed at once",
		},
		&cli.StringFlag{
			Name:  flagLogLevel,
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  flagDir,
			Usage: "read every image in `DIR` instead of the positional paths",
		},
		&cli.StringFlag{
			Name:  flagOnError,
			Usage: "abort or skip when an image fails",
		},
		&cli.Float64Flag{
			Name:  flagIoU,
			Usage: "IoU above which same-class detections are suppressed",
		},
		&cli.Float64Flag{
			Name:  flagScore,
			Usage: "minimum detection score",
		},
		&cli.StringFlag{
			Name:  flagFormat,
			Usage: "canvas file format: png, jpeg or webp",
		},
		&cli.BoolFlag{
			Name:  flagRaw,
			Usage: "paste snippets onto the photographs instead of their edge maps",
		},
	}
}

// loadConfig merges defaults, the config file, the environment and flags,
// in increasing precedence.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if c.IsSet(flagModel) {
		cfg.Model.ModelPath = c.String(flagModel)
	}
	if c.IsSet(flagSeed) {
		cfg.Pipeline.Seed = c.Int64(flagSeed)
	}
	if c.IsSet(flagOutput) {
		cfg.Output = c.String(flagOutput)
	}
	if c.IsSet(flagWorkers) {
		cfg.Pipeline.Workers = c.Int(flagWorkers)
	}
	if c.IsSet(flagLogLevel) {
		cfg.Logging.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagOnError) {
		cfg.Pipeline.OnError = config.ErrorPolicy(c.String(flagOnError))
	}
	if c.IsSet(flagIoU) {
		cfg.NMS.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagScore) {
		cfg.NMS.ScoreThreshold = float32(c.Float64(flagScore))
	}
	if c.IsSet(flagFormat) {
		cfg.Format = c.String(flagFormat)
	}
	if c.Bool(flagRaw) {
		cfg.Edges.Enabled = false
	}

	return cfg, cfg.Validate()
}

// loadFiles reads the images named on the command line, the --dir directory
// or the default batch.
func loadFiles(c *cli.Context) ([]util.ImageFile, error) {
	if dir := c.String(flagDir); dir != "" {
		return util.LoadDirectoryImageFiles(dir)
	}
	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = config.DefaultImagePaths
	}
	return util.LoadImages(paths)
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSON)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := loadFiles(c)
	if err != nil {
		return err
	}

	runtime, err := openModel(cfg, logger)
	if err != nil {
		return err
	}
	defer runtime.Close()

	timer := profiler.NewStageTimer()
	p, err := pipeline.New(pipeline.NewState(cfg), runtime, newEdgeDetector(cfg), timer, logger)
	if err != nil {
		return err
	}

	canvas, err := p.Run(ctx, files)
	if canvas == nil {
		return err
	}
	if err != nil {
		logger.Warnw("some images were skipped", "error", err)
	}

	format, err := images.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	output := filepath.Join(cfg.Output, fmt.Sprintf("output-%d%s", time.Now().Unix(), format.Extension()))
	if err := util.SaveImage(output, canvas); err != nil {
		return err
	}

	timer.Report(logger)
	logger.Infow("saved canvas", "path", output, "width", canvas.Rect.Dx(), "height", canvas.Rect.Dy())
	return nil
}

// openModel initializes onnxruntime and opens a session sized for the model.
func openModel(cfg *config.Config, logger *zap.SugaredLogger) (*inference.ONNXRuntime, error) {
	if err := inference.InitializeEnvironment(cfg.Model.LibraryPath); err != nil {
		return nil, err
	}

	declared, err := inference.DeclaredInputShape(cfg.Model.ModelPath, cfg.Model.InputName)
	if err != nil {
		return nil, err
	}

	decoder := yolov8.NewDecoder(yolov8.LabelsFor(cfg.Model.Classes), cfg.NMS, cfg.Model.Fallback())
	size, err := decoder.InputSize(declared)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", cfg.Model.ModelPath)
	}

	return inference.NewONNXRuntime(cfg.Model.Config, size, logger)
}
