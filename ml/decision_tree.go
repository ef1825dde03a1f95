package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"ll97dash/building"
)

// DecisionTree is a binary tree classifier exported as a flat node array.
type DecisionTree struct {
	schema Schema
	nodes  []TreeNode
}

// TreeNode is one split or leaf. Leaves carry the positive-class probability.
type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	IsLeaf      bool    `json:"is_leaf"`
	Probability float64 `json:"probability"`
}

type treeFile struct {
	Kind   string       `json:"kind"`
	Schema Schema       `json:"schema"`
	Nodes  []TreeNode   `json:"nodes"`
	Trees  [][]TreeNode `json:"trees"`
}

// NewDecisionTree validates nodes against schema.
func NewDecisionTree(schema Schema, nodes []TreeNode) (*DecisionTree, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if err := validateNodes(nodes, schema.Width()); err != nil {
		return nil, err
	}
	return &DecisionTree{schema: schema, nodes: nodes}, nil
}

func (dt *DecisionTree) Schema() *Schema { return &dt.schema }

func (dt *DecisionTree) DecisionThreshold() float64 { return dt.schema.Threshold }

func (dt *DecisionTree) PredictProba(record building.BuildingRecord) (float64, error) {
	features, err := dt.schema.Encode(record)
	if err != nil {
		return 0, err
	}
	return walkTree(dt.nodes, features)
}

func (dt *DecisionTree) Predict(record building.BuildingRecord) (bool, error) {
	p, err := dt.PredictProba(record)
	if err != nil {
		return false, err
	}
	return p >= dt.schema.Threshold, nil
}

func decodeTreeFile(payload []byte) (*treeFile, error) {
	var file treeFile
	if err := json.Unmarshal(payload, &file); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return &file, nil
}

func walkTree(nodes []TreeNode, features []float64) (float64, error) {
	if len(nodes) == 0 {
		return 0, errors.New("model has no nodes")
	}
	idx := 0
	for steps := 0; steps <= len(nodes); steps++ {
		node := nodes[idx]
		if node.IsLeaf {
			return node.Probability, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("tree walk did not reach a leaf")
}

// validateNodes rejects trees that could index outside the feature vector,
// loop, or yield a probability outside [0,1].
func validateNodes(nodes []TreeNode, width int) error {
	if len(nodes) == 0 {
		return errors.New("model has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if math.IsNaN(node.Probability) || node.Probability < 0 || node.Probability > 1 {
				return fmt.Errorf("node %d: probability %v outside [0,1]", i, node.Probability)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= width {
			return fmt.Errorf("node %d: feature index %d outside [0,%d)", i, node.FeatureIdx, width)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("node %d: child %d must point forward inside the tree", i, child)
			}
		}
	}
	return nil
}
