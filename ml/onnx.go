package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"ll97dash/building"
)

// ortEnv guards the process-wide ONNX Runtime initialisation.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXClassifier runs a scikit-learn classifier exported with skl2onnx
// (zipmap disabled). The model takes the already encoded float feature row;
// the encoding lives in a JSON schema file next to the model.
type ONNXClassifier struct {
	schema     Schema
	session    *ort.DynamicAdvancedSession
	inputName  string
	labelName  string
	probaName  string
	numClasses int64
}

// NewONNXClassifier loads modelPath with its schema. libPath points at the
// onnxruntime shared library; empty uses the library's default lookup.
func NewONNXClassifier(modelPath, schemaPath, libPath string) (*ONNXClassifier, error) {
	schema, err := loadSchemaFile(schemaPath)
	if err != nil {
		return nil, err
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	inputName, err := validateONNXInput(inputs, schema.Width())
	if err != nil {
		return nil, err
	}
	labelName, probaName, numClasses, err := validateONNXOutputs(outputs)
	if err != nil {
		return nil, err
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(1)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{inputName},
		[]string{labelName, probaName},
		opts,
	)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}

	return &ONNXClassifier{
		schema:     schema,
		session:    session,
		inputName:  inputName,
		labelName:  labelName,
		probaName:  probaName,
		numClasses: numClasses,
	}, nil
}

func (c *ONNXClassifier) Schema() *Schema { return &c.schema }

// Predict returns the label the model itself emits.
func (c *ONNXClassifier) Predict(record building.BuildingRecord) (bool, error) {
	label, _, err := c.infer(record)
	return label == 1, err
}

func (c *ONNXClassifier) PredictProba(record building.BuildingRecord) (float64, error) {
	_, proba, err := c.infer(record)
	return proba, err
}

func (c *ONNXClassifier) Close() error {
	return c.session.Destroy()
}

func (c *ONNXClassifier) infer(record building.BuildingRecord) (int64, float64, error) {
	features, err := c.schema.Encode(record)
	if err != nil {
		return 0, 0, err
	}
	row := make([]float32, len(features))
	for i, f := range features {
		row[i] = float32(f)
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(row))), row)
	if err != nil {
		return 0, 0, fmt.Errorf("onnx: failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	labelOut, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		return 0, 0, fmt.Errorf("onnx: failed to create label tensor: %w", err)
	}
	defer labelOut.Destroy()

	probaOut, err := ort.NewEmptyTensor[float32](ort.NewShape(1, c.numClasses))
	if err != nil {
		return 0, 0, fmt.Errorf("onnx: failed to create probability tensor: %w", err)
	}
	defer probaOut.Destroy()

	if err := c.session.Run([]ort.Value{in}, []ort.Value{labelOut, probaOut}); err != nil {
		return 0, 0, fmt.Errorf("onnx: inference failed: %w", err)
	}

	label := labelOut.GetData()[0]
	proba := float64(probaOut.GetData()[1])
	if math.IsNaN(proba) {
		return 0, 0, fmt.Errorf("onnx: model returned NaN probability")
	}
	return label, proba, nil
}

func loadSchemaFile(path string) (Schema, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("onnx: read schema: %w", err)
	}
	var schema Schema
	if err := json.Unmarshal(payload, &schema); err != nil {
		return Schema{}, fmt.Errorf("onnx: decode schema: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

// validateONNXInput expects a single [batch, width] input.
func validateONNXInput(inputs []ort.InputOutputInfo, width int) (string, error) {
	if len(inputs) != 1 {
		return "", fmt.Errorf("onnx: expected 1 input, got %d", len(inputs))
	}
	dims := inputs[0].Dimensions
	if len(dims) != 2 {
		return "", fmt.Errorf("onnx: expected 2D input tensor, got %v", dims)
	}
	if dims[1] > 0 && dims[1] != int64(width) {
		return "", fmt.Errorf("onnx: model expects %d features, schema encodes %d", dims[1], width)
	}
	return inputs[0].Name, nil
}

// validateONNXOutputs finds the label and probability outputs. skl2onnx names
// them "label" and "probabilities"; anything else falls back to position.
func validateONNXOutputs(outputs []ort.InputOutputInfo) (string, string, int64, error) {
	if len(outputs) < 2 {
		return "", "", 0, fmt.Errorf("onnx: expected label and probability outputs, got %d", len(outputs))
	}
	label, proba := outputs[0], outputs[1]
	for _, out := range outputs {
		name := strings.ToLower(out.Name)
		switch {
		case strings.Contains(name, "label"):
			label = out
		case strings.Contains(name, "prob"):
			proba = out
		}
	}
	dims := proba.Dimensions
	if len(dims) != 2 {
		return "", "", 0, fmt.Errorf("onnx: expected 2D probability output, got %v (export with zipmap disabled)", dims)
	}
	classes := dims[1]
	if classes <= 0 {
		classes = 2
	}
	if classes != 2 {
		return "", "", 0, fmt.Errorf("onnx: expected a binary classifier, got %d classes", classes)
	}
	return label.Name, proba.Name, classes, nil
}
