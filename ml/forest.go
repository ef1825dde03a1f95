package ml

import (
	"errors"
	"fmt"

	"ll97dash/building"
)

// RandomForest averages the leaf probabilities of its trees, as scikit-learn's
// RandomForestClassifier.predict_proba does.
type RandomForest struct {
	schema Schema
	trees  [][]TreeNode
}

func NewRandomForest(schema Schema, trees [][]TreeNode) (*RandomForest, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	width := schema.Width()
	for i, nodes := range trees {
		if err := validateNodes(nodes, width); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &RandomForest{schema: schema, trees: trees}, nil
}

func (rf *RandomForest) Schema() *Schema { return &rf.schema }

func (rf *RandomForest) DecisionThreshold() float64 { return rf.schema.Threshold }

func (rf *RandomForest) PredictProba(record building.BuildingRecord) (float64, error) {
	features, err := rf.schema.Encode(record)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, nodes := range rf.trees {
		p, err := walkTree(nodes, features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(rf.trees)), nil
}

func (rf *RandomForest) Predict(record building.BuildingRecord) (bool, error) {
	p, err := rf.PredictProba(record)
	if err != nil {
		return false, err
	}
	return p >= rf.schema.Threshold, nil
}
