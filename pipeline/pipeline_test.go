package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-glitch/config"
	"github.com/nvr-ai/go-glitch/glitch"
	"github.com/nvr-ai/go-glitch/inference"
	"github.com/nvr-ai/go-glitch/models/yolov8"
	"github.com/nvr-ai/go-glitch/profiler"
	"github.com/nvr-ai/go-glitch/util"
)

// fakeRuntime returns canned outputs keyed by the mean of the first input
// channel, which lets each test image pick its own detections.
type fakeRuntime struct {
	mu      sync.Mutex
	shape   []int64
	classes int
	outputs map[int][][]float32
	calls   int
}

func (f *fakeRuntime) InputShape() []int64 { return f.shape }

func (f *fakeRuntime) Run(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	data := input.Data().([]float32)
	key := int(data[0]*255 + 0.5)

	anchors := f.outputs[key]
	attributes := 4 + f.classes
	out := make([]float32, attributes*max(len(anchors), 1))
	for a, values := range anchors {
		for k, v := range values {
			out[k*len(anchors)+a] = v
		}
	}
	return tensor.New(tensor.WithShape(1, attributes, max(len(anchors), 1)), tensor.WithBacking(out)), nil
}

func (f *fakeRuntime) Close() error { return nil }

var _ inference.Runtime = (*fakeRuntime)(nil)

// blackEdges suppresses every pixel.
type blackEdges struct{}

func (blackEdges) Detect(img image.Image) (*image.Gray, error) {
	return image.NewGray(image.Rectangle{Max: img.Bounds().Size()}), nil
}

func pngFile(t *testing.T, path string, w, h int, c color.NRGBA) util.ImageFile {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		copy(img.Pix[i:i+4], []uint8{c.R, c.G, c.B, c.A})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return util.ImageFile{Path: path, Data: buf.Bytes()}
}

func testConfig(workers int, policy config.ErrorPolicy) *config.Config {
	cfg := config.Default()
	cfg.Model.Classes = 2
	cfg.Text.Size = 8
	cfg.Text.Stretch = 1
	cfg.NMS.IoUThreshold = 0.5
	cfg.NMS.ScoreThreshold = 0.25
	cfg.Pipeline.Workers = workers
	cfg.Pipeline.OnError = policy
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config, runtime *fakeRuntime) *Pipeline {
	t.Helper()
	p, err := New(NewState(cfg), runtime, blackEdges{}, profiler.NewStageTimer(), nil)
	require.NoError(t, err)
	return p
}

// TestRun blends a photograph with one detection and a photograph with none.
func TestRun(t *testing.T) {
	for _, workers := range []int{1, 4} {
		runtime := &fakeRuntime{
			shape:   []int64{1, 3, 640, 640},
			classes: 2,
			outputs: map[int][][]float32{
				10: {{320, 320, 200, 200, 0.9, 0.1}},
			},
		}
		p := newTestPipeline(t, testConfig(workers, config.ErrorPolicyAbort), runtime)

		canvas, err := p.Run(context.Background(), []util.ImageFile{
			pngFile(t, "a.png", 320, 160, color.NRGBA{R: 10, G: 200, B: 30, A: 255}),
			pngFile(t, "b.png", 400, 200, color.NRGBA{R: 20, G: 20, B: 20, A: 255}),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, runtime.calls)

		// The canvas takes the smaller image's extent.
		require.Equal(t, image.Rect(0, 0, 320, 160), canvas.Bounds())

		// The detection decodes to (110, 55) with a 99x49 extent.
		assert.Equal(t, color.NRGBA{R: 10, G: 200, B: 30, A: 255}, canvas.NRGBAAt(111, 56))
		assert.Equal(t, color.NRGBA{R: 10, G: 200, B: 30, A: 255}, canvas.NRGBAAt(208, 103))
		assert.Equal(t, glitch.Sentinel, canvas.NRGBAAt(109, 56))
		assert.Equal(t, glitch.Sentinel, canvas.NRGBAAt(5, 5))

		red := 0
		for y := 60; y < 100; y++ {
			for x := 130; x < 190; x++ {
				if c := canvas.NRGBAAt(x, y); c.R > c.G {
					red++
				}
			}
		}
		assert.Greater(t, red, 0, "the label is burned in around the snippet center")
	}
}

// TestRunSkip verifies failing images are dropped and reported.
func TestRunSkip(t *testing.T) {
	runtime := &fakeRuntime{shape: []int64{1, 3, 640, 640}, classes: 2}
	p := newTestPipeline(t, testConfig(2, config.ErrorPolicySkip), runtime)

	canvas, err := p.Run(context.Background(), []util.ImageFile{
		{Path: "broken.png", Data: []byte("not a png")},
		pngFile(t, "good.png", 32, 16, color.NRGBA{R: 1, A: 255}),
	})
	require.NotNil(t, canvas)
	assert.Equal(t, image.Rect(0, 0, 32, 16), canvas.Bounds())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")
}

// TestRunAbort verifies the first failure fails the whole run.
func TestRunAbort(t *testing.T) {
	runtime := &fakeRuntime{shape: []int64{1, 3, 640, 640}, classes: 2}
	p := newTestPipeline(t, testConfig(1, config.ErrorPolicyAbort), runtime)

	canvas, err := p.Run(context.Background(), []util.ImageFile{
		pngFile(t, "good.png", 32, 16, color.NRGBA{R: 1, A: 255}),
		{Path: "broken.png", Data: []byte("not a png")},
	})
	assert.Nil(t, canvas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.png")
}

// TestRunAllFail verifies a run with nothing left to blend fails even when
// skipping.
func TestRunAllFail(t *testing.T) {
	runtime := &fakeRuntime{shape: []int64{1, 3, 640, 640}, classes: 2}
	p := newTestPipeline(t, testConfig(1, config.ErrorPolicySkip), runtime)

	canvas, err := p.Run(context.Background(), []util.ImageFile{{Path: "broken.png"}})
	assert.Nil(t, canvas)
	assert.True(t, errors.Is(err, ErrNoImages))

	_, err = p.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNoImages))
}

// TestRunShapeMismatch verifies a model with the wrong class count is fatal
// for the image.
func TestRunShapeMismatch(t *testing.T) {
	runtime := &fakeRuntime{shape: []int64{1, 3, 640, 640}, classes: 3}
	p := newTestPipeline(t, testConfig(1, config.ErrorPolicyAbort), runtime)

	_, err := p.Run(context.Background(), []util.ImageFile{
		pngFile(t, "a.png", 32, 16, color.NRGBA{R: 1, A: 255}),
	})
	assert.True(t, errors.Is(err, yolov8.ErrShapeMismatch), "got %v", err)
}

// TestRunCanceled verifies a canceled context stops the run.
func TestRunCanceled(t *testing.T) {
	runtime := &fakeRuntime{shape: []int64{1, 3, 640, 640}, classes: 2}
	p := newTestPipeline(t, testConfig(1, config.ErrorPolicyAbort), runtime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, []util.ImageFile{pngFile(t, "a.png", 32, 16, color.NRGBA{R: 1, A: 255})})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Zero(t, runtime.calls)
}

// TestNewInputSize verifies the model contract is resolved at construction.
func TestNewInputSize(t *testing.T) {
	cfg := testConfig(1, config.ErrorPolicyAbort)

	p := newTestPipeline(t, cfg, &fakeRuntime{shape: []int64{1, 3, 480, 800}, classes: 2})
	assert.Equal(t, image.Point{X: 800, Y: 480}, p.InputSize())

	p = newTestPipeline(t, cfg, &fakeRuntime{shape: []int64{1, 3, -1, -1}, classes: 2})
	assert.Equal(t, image.Point{X: 640, Y: 640}, p.InputSize())

	cfg.Model.FallbackWidth, cfg.Model.FallbackHeight = 0, 0
	_, err := New(NewState(cfg), &fakeRuntime{shape: []int64{1, 3, -1, -1}}, nil, nil, nil)
	assert.True(t, errors.Is(err, yolov8.ErrModelContractViolation))
}

// TestNewState verifies the seed drives the random source.
func TestNewState(t *testing.T) {
	cfg := config.Default()
	cfg.Pipeline.Seed = 99

	a, b := NewState(cfg), NewState(cfg)
	assert.Equal(t, int64(99), a.Seed)
	assert.Equal(t, a.Rand.Int63(), b.Rand.Int63())
}
