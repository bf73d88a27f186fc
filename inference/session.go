package inference

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-glitch/models/yolov8"
)

// Provider selects the onnxruntime execution provider.
type Provider string

const (
	// ProviderCPU runs on the default CPU provider.
	ProviderCPU Provider = "cpu"
	// ProviderCoreML runs on Apple's CoreML provider.
	ProviderCoreML Provider = "coreml"
	// ProviderOpenVINO runs on Intel's OpenVINO provider.
	ProviderOpenVINO Provider = "openvino"
)

// Config configures an onnxruntime-backed model.
type Config struct {
	// ModelPath is the path of the .onnx file.
	ModelPath string `json:"path" yaml:"path"`
	// LibraryPath is the onnxruntime shared library. Empty uses SharedLibPath.
	LibraryPath string `json:"runtime_library" yaml:"runtime_library"`
	// InputName is the graph input node.
	InputName string `json:"input_name" yaml:"input_name"`
	// OutputName is the graph output node.
	OutputName string `json:"output_name" yaml:"output_name"`
	// Classes is the number of classes the head scores.
	Classes int `json:"classes" yaml:"classes"`
	// Provider is the execution provider.
	Provider Provider `json:"provider" yaml:"provider"`
	// IntraOpThreads parallelizes execution within graph nodes; 0 lets onnxruntime decide.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
}

// ONNXRuntime runs a YOLOv8 graph through onnxruntime.
//
// The session owns one pair of input/output tensors, so Run calls are
// serialized.
type ONNXRuntime struct {
	mu       sync.Mutex
	session  *ort.AdvancedSession
	input    *ort.Tensor[float32]
	output   *ort.Tensor[float32]
	declared []int64
	logger   *zap.SugaredLogger
}

// InitializeEnvironment loads the onnxruntime shared library once per process.
//
// Arguments:
//   - libPath: The shared library path. Empty uses SharedLibPath.
//
// Returns:
//   - error: An error if the library is missing or fails to initialize.
func InitializeEnvironment(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}

	if libPath == "" {
		var err error
		if libPath, err = SharedLibPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing ORT environment")
	}
	return nil
}

// DeclaredInputShape reads the declared shape of the named graph input.
//
// Arguments:
//   - modelPath: The .onnx file.
//   - inputName: The graph input node.
//
// Returns:
//   - The shape; dynamic dimensions are negative.
//   - error: An error if the model cannot be read or has no such input.
func DeclaredInputShape(modelPath, inputName string) ([]int64, error) {
	inputs, _, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading model info from %s", modelPath)
	}
	for _, info := range inputs {
		if info.Name == inputName {
			return []int64(info.Dimensions), nil
		}
	}
	return nil, errors.Errorf("model %s has no input named %q", modelPath, inputName)
}

// NewONNXRuntime creates a session whose tensors are sized for the given
// model resolution.
//
// Arguments:
//   - config: The model configuration. The environment must be initialized.
//   - size: The resolved model input resolution.
//   - logger: Destination for session diagnostics; nil discards them.
//
// Returns:
//   - *ONNXRuntime: The runtime.
//   - error: An error if the session cannot be created.
func NewONNXRuntime(config Config, size image.Point, logger *zap.SugaredLogger) (*ONNXRuntime, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	declared, err := DeclaredInputShape(config.ModelPath, config.InputName)
	if err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size.Y), int64(size.X)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}

	outputShape := ort.NewShape(1, int64(4+config.Classes), int64(yolov8.Anchors(size)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()

	if err := configureOptions(options, config); err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{config.InputName},
		[]string{config.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	logger.Infow("model session ready",
		"model", config.ModelPath,
		"declared_input", declared,
		"input", inputTensor.GetShape(),
		"output", outputShape,
		"provider", config.Provider,
	)

	return &ONNXRuntime{
		session:  session,
		input:    inputTensor,
		output:   outputTensor,
		declared: declared,
		logger:   logger,
	}, nil
}

func configureOptions(options *ort.SessionOptions, config Config) error {
	if config.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(config.IntraOpThreads); err != nil {
			return errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		return errors.Wrap(err, "error setting graph optimization level")
	}

	switch config.Provider {
	case ProviderCPU, "":
	case ProviderCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return errors.Wrap(err, "error enabling CoreML")
		}
	case ProviderOpenVINO:
		if err := options.AppendExecutionProviderOpenVINO(map[string]string{
			"device_type": "CPU",
			"precision":   "FP32",
		}); err != nil {
			return errors.Wrap(err, "error enabling OpenVINO")
		}
	default:
		return errors.Errorf("unknown execution provider %q", config.Provider)
	}
	return nil
}

// InputShape returns the shape the graph declares for its input.
func (r *ONNXRuntime) InputShape() []int64 {
	return r.declared
}

// Run copies input into the session, executes it and returns a copy of the output.
func (r *ONNXRuntime) Run(ctx context.Context, input *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, errors.New("runtime is closed")
	}

	data, ok := input.Data().([]float32)
	dst := r.input.GetData()
	if !ok || len(data) != len(dst) {
		return nil, errors.Errorf("input tensor %v does not match model input %v", input.Shape(), r.input.GetShape())
	}
	copy(dst, data)

	if err := r.session.Run(); err != nil {
		return nil, errors.Wrap(err, "failed to run inference")
	}

	out := make([]float32, len(r.output.GetData()))
	copy(out, r.output.GetData())

	shape := r.output.GetShape()
	dims := make([]int, len(shape))
	for i, d := range shape {
		dims[i] = int(d)
	}

	return tensor.New(tensor.WithShape(dims...), tensor.WithBacking(out)), nil
}

// Close releases the session and its tensors.
func (r *ONNXRuntime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.input != nil {
		r.input.Destroy()
		r.input = nil
	}
	if r.output != nil {
		r.output.Destroy()
		r.output = nil
	}
	if r.session != nil {
		err := r.session.Destroy()
		r.session = nil
		return err
	}
	return nil
}
