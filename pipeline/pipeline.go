package pipeline

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-glitch/config"
	"github.com/nvr-ai/go-glitch/glitch"
	"github.com/nvr-ai/go-glitch/images"
	"github.com/nvr-ai/go-glitch/inference"
	"github.com/nvr-ai/go-glitch/models/postprocess"
	"github.com/nvr-ai/go-glitch/models/yolov8"
	"github.com/nvr-ai/go-glitch/profiler"
	"github.com/nvr-ai/go-glitch/util"
)

// ErrNoImages is returned when a run has no image left to blend.
var ErrNoImages = errors.New("no images to blend")

// Pipeline turns a batch of image files into one canvas.
type Pipeline struct {
	state      *State
	runtime    inference.Runtime
	edges      images.EdgeDetector
	decoder    *yolov8.Decoder
	compositor *glitch.Compositor
	blender    *glitch.Blender
	inputSize  image.Point
	timer      *profiler.StageTimer
	logger     *zap.SugaredLogger
}

// New wires the stages together.
//
// Arguments:
//   - state: The run state.
//   - runtime: The model runtime.
//   - edges: The edge detector, or nil to composite onto the photographs.
//   - timer: Receives per-stage timings; nil creates a private one.
//   - logger: Destination for progress logs; nil discards them.
//
// Returns:
//   - *Pipeline: The pipeline.
//   - error: ErrModelContractViolation if the model input resolution cannot
//     be resolved, or an error for an unusable text configuration.
func New(
	state *State,
	runtime inference.Runtime,
	edges images.EdgeDetector,
	timer *profiler.StageTimer,
	logger *zap.SugaredLogger,
) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if timer == nil {
		timer = profiler.NewStageTimer()
	}
	cfg := state.Config

	labels := yolov8.LabelsFor(cfg.Model.Classes)
	decoder := yolov8.NewDecoder(labels, cfg.NMS, cfg.Model.Fallback())

	inputSize, err := decoder.InputSize(runtime.InputShape())
	if err != nil {
		return nil, err
	}

	face, err := glitch.NewTextFace(cfg.Text.Size, cfg.Text.Stretch)
	if err != nil {
		return nil, err
	}
	labelColor, err := cfg.Text.RGBA()
	if err != nil {
		return nil, err
	}

	if !cfg.NMS.Suppresses() {
		logger.Warnw("iou threshold is at least 1, overlapping detections will not be suppressed",
			"iou_threshold", cfg.NMS.IoUThreshold)
	}

	return &Pipeline{
		state:      state,
		runtime:    runtime,
		edges:      edges,
		decoder:    decoder,
		compositor: glitch.NewCompositor(cfg.Snippet.Max(), face, labels, logger),
		blender:    glitch.NewBlender(face, labelColor, logger),
		inputSize:  inputSize,
		timer:      timer,
		logger:     logger,
	}, nil
}

// InputSize returns the resolved model input resolution.
func (p *Pipeline) InputSize() image.Point {
	return p.inputSize
}

// Run processes every file and blends the results.
//
// Images are processed on up to Pipeline.Workers goroutines. With the abort
// policy the first failure cancels the run. With the skip policy failing
// images are left out and their errors are returned, combined, next to the
// canvas.
//
// Arguments:
//   - ctx: Cancels pending images.
//   - files: The source files, in blend order.
//
// Returns:
//   - *image.NRGBA: The canvas, or nil if the run failed.
//   - error: The abort error, the combined skip errors, or ErrNoImages.
func (p *Pipeline) Run(ctx context.Context, files []util.ImageFile) (*image.NRGBA, error) {
	cfg := p.state.Config
	p.logger.Infow("starting run",
		"images", len(files),
		"seed", p.state.Seed,
		"workers", cfg.Pipeline.Workers,
		"on_error", cfg.Pipeline.OnError,
		"input", p.inputSize,
	)

	composites := make([]*glitch.Composite, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Pipeline.Workers, 1))

	for i, file := range files {
		g.Go(func() error {
			composite, err := p.Process(gctx, i, file)
			if err != nil {
				err = errors.Wrapf(err, "image %d (%s)", i+1, file.Path)
				if cfg.Pipeline.OnError == config.ErrorPolicySkip {
					p.logger.Warnw("skipping image", "image", i+1, "path", file.Path, "error", err)
					failures[i] = err
					return nil
				}
				return err
			}
			composites[i] = composite
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	kept := make([]*glitch.Composite, 0, len(composites))
	for _, c := range composites {
		if c != nil {
			kept = append(kept, c)
		}
	}

	skipped := multierr.Combine(failures...)
	if len(kept) == 0 {
		return nil, multierr.Append(ErrNoImages, skipped)
	}

	done := p.timer.StartOperation("blend")
	canvas, err := p.blender.Combine(kept)
	done()
	if err != nil {
		return nil, multierr.Append(err, skipped)
	}

	return canvas, skipped
}

// Process decodes one file and builds its composite.
//
// Arguments:
//   - ctx: Checked between stages.
//   - index: The position of the file in the batch, for logging.
//   - file: The source file.
//
// Returns:
//   - *glitch.Composite: The composite.
//   - error: A decode, inference or shape error.
func (p *Pipeline) Process(ctx context.Context, index int, file util.ImageFile) (*glitch.Composite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := p.timer.StartOperation("load")
	original, format, err := file.Decode()
	done()
	if err != nil {
		return nil, err
	}

	size := original.Bounds().Size()
	log := p.logger.With("image", index+1, "path", file.Path)
	log.Infow("loaded image", "format", format, "width", size.X, "height", size.Y)

	var edges image.Image
	if p.edges != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		done = p.timer.StartOperation("edges")
		gray, err := p.edges.Detect(original)
		done()
		if err != nil {
			return nil, errors.Wrap(err, "edge detection failed")
		}
		edges = gray
		log.Infow("applied edge detection")
	}

	detections, err := p.Detect(ctx, original)
	if err != nil {
		return nil, err
	}
	log.Infow("decoded detections", "detections", len(detections))

	done = p.timer.StartOperation("compose")
	composite, err := p.compositor.Compose(original, edges, detections)
	done()
	if err != nil {
		return nil, err
	}
	log.Infow("composited image", "kind", composite.Kind.String(), "labels", len(composite.Labels))

	return composite, nil
}

// Detect runs the model on img and returns its suppressed detections in
// image coordinates.
func (p *Pipeline) Detect(ctx context.Context, img image.Image) ([]postprocess.Detection, error) {
	done := p.timer.StartOperation("preprocess")
	input := inference.PrepareInput(img, p.inputSize)
	done()

	done = p.timer.StartOperation("inference")
	output, err := p.runtime.Run(ctx, input)
	done()
	if err != nil {
		return nil, err
	}

	done = p.timer.StartOperation("decode")
	defer done()
	return p.decoder.Decode(output, img.Bounds().Size(), p.inputSize)
}
