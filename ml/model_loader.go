package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Model types accepted by LoadModel.
const (
	TypeDecisionTree = "decision_tree"
	TypeRandomForest = "random_forest"
	TypeONNX         = "onnx"
)

// ModelSpec says where a model lives and how to read it.
type ModelSpec struct {
	Name       string
	Type       string
	Path       string
	SchemaPath string // onnx only; defaults to Path + ".schema.json"
	Library    string // onnx only
}

type loadedModel struct {
	Classifier
	info ModelInfo
}

func (m *loadedModel) Info() ModelInfo { return m.info }

// Close releases native resources held by the classifier, if any.
func (m *loadedModel) Close() error {
	if c, ok := m.Classifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// thresholdModel keeps DecisionThreshold visible through the wrapper so the
// cascade can still check Predict against PredictProba.
type thresholdModel struct {
	*loadedModel
	Thresholder
}

type schemaHolder interface {
	Schema() *Schema
}

func LoadModel(spec ModelSpec) (Model, error) {
	payload, err := os.ReadFile(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s model: %w", spec.Name, err)
	}
	sum := sha256.Sum256(payload)

	var cls Classifier
	switch spec.Type {
	case TypeDecisionTree, TypeRandomForest:
		file, err := decodeTreeFile(payload)
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", spec.Name, err)
		}
		if file.Kind != "" && file.Kind != spec.Type {
			return nil, fmt.Errorf("load %s model: file holds a %s, configured as %s", spec.Name, file.Kind, spec.Type)
		}
		if spec.Type == TypeDecisionTree {
			cls, err = NewDecisionTree(file.Schema, file.Nodes)
		} else {
			cls, err = NewRandomForest(file.Schema, file.Trees)
		}
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", spec.Name, err)
		}
	case TypeONNX:
		schemaPath := spec.SchemaPath
		if schemaPath == "" {
			schemaPath = spec.Path + ".schema.json"
		}
		cls, err = NewONNXClassifier(spec.Path, schemaPath, spec.Library)
		if err != nil {
			return nil, fmt.Errorf("load %s model: %w", spec.Name, err)
		}
	default:
		return nil, fmt.Errorf("load %s model: unsupported model type %q", spec.Name, spec.Type)
	}

	info := ModelInfo{
		Name:   spec.Name,
		Type:   spec.Type,
		Path:   spec.Path,
		SHA256: hex.EncodeToString(sum[:]),
	}
	if sh, ok := cls.(schemaHolder); ok {
		info.Columns = append([]string(nil), sh.Schema().Columns...)
		info.Features = sh.Schema().Width()
	}
	base := &loadedModel{Classifier: cls, info: info}
	if th, ok := cls.(Thresholder); ok {
		t := th.DecisionThreshold()
		base.info.Threshold = &t
		return &thresholdModel{loadedModel: base, Thresholder: th}, nil
	}
	return base, nil
}

// SchemaOf returns the input schema of a model loaded by LoadModel.
func SchemaOf(m Model) (*Schema, bool) {
	var cls Classifier = m
	switch v := m.(type) {
	case *loadedModel:
		cls = v.Classifier
	case *thresholdModel:
		cls = v.loadedModel.Classifier
	}
	sh, ok := cls.(schemaHolder)
	if !ok {
		return nil, false
	}
	return sh.Schema(), true
}
