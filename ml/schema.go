package ml

import (
	"errors"
	"fmt"

	"ll97dash/building"
)

// DefaultThreshold matches the argmax decision of a two-class model.
const DefaultThreshold = 0.5

var (
	ErrColumnOrder     = errors.New("model columns do not match the canonical building columns")
	ErrUnknownCategory = errors.New("category not in model vocabulary")
)

// Schema is the input contract stored with every model: the column order the
// model was trained on, the one-hot vocabulary of categorical columns and the
// decision threshold.
type Schema struct {
	Columns    []string            `json:"columns"`
	Categories map[string][]string `json:"categories"`
	Threshold  float64             `json:"threshold"`

	index map[string]map[string]int
}

// Validate checks the schema against the canonical column order and builds
// the category index.
func (s *Schema) Validate() error {
	want := building.Columns()
	if len(s.Columns) != len(want) {
		return fmt.Errorf("%w: got %v, want %v", ErrColumnOrder, s.Columns, want)
	}
	for i := range want {
		if s.Columns[i] != want[i] {
			return fmt.Errorf("%w: got %v, want %v", ErrColumnOrder, s.Columns, want)
		}
	}
	if s.Threshold == 0 {
		s.Threshold = DefaultThreshold
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("threshold %.3f outside [0,1]", s.Threshold)
	}
	vocab := s.Categories[building.ColPropertyType]
	if len(vocab) == 0 {
		return fmt.Errorf("schema has no vocabulary for %s", building.ColPropertyType)
	}
	s.index = make(map[string]map[string]int, len(s.Categories))
	for col, values := range s.Categories {
		if col != building.ColPropertyType {
			return fmt.Errorf("column %s cannot be categorical", col)
		}
		idx := make(map[string]int, len(values))
		for i, v := range values {
			if _, dup := idx[v]; dup {
				return fmt.Errorf("duplicate category %q in %s", v, col)
			}
			idx[v] = i
		}
		s.index[col] = idx
	}
	return nil
}

// Width is the length of an encoded feature vector.
func (s *Schema) Width() int {
	n := 0
	for _, col := range s.Columns {
		if values, ok := s.Categories[col]; ok {
			n += len(values)
		} else {
			n++
		}
	}
	return n
}

// FeatureNames lists the encoded features, one-hot columns expanded as
// "column=value".
func (s *Schema) FeatureNames() []string {
	names := make([]string, 0, s.Width())
	for _, col := range s.Columns {
		if values, ok := s.Categories[col]; ok {
			for _, v := range values {
				names = append(names, col+"="+v)
			}
			continue
		}
		names = append(names, col)
	}
	return names
}

// Encode turns a record into the model's feature vector. Categorical columns
// are one-hot encoded; an unseen category is an error, never an all-zero row.
func (s *Schema) Encode(record building.BuildingRecord) ([]float64, error) {
	vec := make([]float64, 0, s.Width())
	for _, cell := range record.Row() {
		idx, categorical := s.index[cell.Column]
		if !categorical {
			vec = append(vec, cell.Number)
			continue
		}
		pos, ok := idx[cell.Text]
		if !ok {
			return nil, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, cell.Column, cell.Text)
		}
		onehot := make([]float64, len(idx))
		onehot[pos] = 1
		vec = append(vec, onehot...)
	}
	return vec, nil
}

// CheckCatalog reports catalog labels the model has never seen. A catalog
// offering such a label would let users reach undefined model behaviour.
func (s *Schema) CheckCatalog(catalog *building.Catalog) error {
	idx := s.index[building.ColPropertyType]
	var missing []string
	for _, label := range catalog.PropertyTypes() {
		if _, ok := idx[label]; !ok {
			missing = append(missing, label)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("model vocabulary lacks property types %v", missing)
	}
	return nil
}
