package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/Skufu/bpstage/internal/vitals"
)

var ErrFeatureCount = errors.New("feature count mismatch")

// Forest is a random forest exported from the training pipeline. Each tree keeps the
// trainer's flat node arrays; a node is a leaf when its left child is -1.
type Forest struct {
	Classes    []int  `json:"classes"`
	NFeatures  int    `json:"n_features_in"`
	Estimators []Tree `json:"estimators"`
}

// Tree is one decision tree of the ensemble.
type Tree struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

const leaf = -1

// LoadForest decodes and validates a forest artifact.
func LoadForest(r io.Reader) (*Forest, error) {
	var f Forest
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode forest: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Forest) validate() error {
	if len(f.Classes) == 0 {
		return errors.New("forest has no classes")
	}
	if len(f.Estimators) == 0 {
		return errors.New("forest has no estimators")
	}
	if f.NFeatures != vitals.FeatureCount {
		return fmt.Errorf("%w: forest expects %d, readings have %d", ErrFeatureCount, f.NFeatures, vitals.FeatureCount)
	}
	for i, t := range f.Estimators {
		if err := t.validate(f.NFeatures, len(f.Classes)); err != nil {
			return fmt.Errorf("estimator %d: %w", i, err)
		}
	}
	return nil
}

func (t Tree) validate(nFeatures, nClasses int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("empty tree")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		l, r := t.ChildrenLeft[i], t.ChildrenRight[i]
		if l == leaf {
			if len(t.Value[i]) != nClasses {
				return fmt.Errorf("node %d: expected %d class weights, got %d", i, nClasses, len(t.Value[i]))
			}
			continue
		}
		// children always come after their parent, so walks terminate
		if l <= i || l >= n || r <= i || r >= n {
			return fmt.Errorf("node %d: child index out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d: feature %d out of range", i, t.Feature[i])
		}
	}
	return nil
}

// Predict averages the class distribution of every tree and returns the winning class.
func (f *Forest) Predict(_ context.Context, features []float64) (int, error) {
	if len(features) != f.NFeatures {
		return 0, fmt.Errorf("%w: expected %d, got %d", ErrFeatureCount, f.NFeatures, len(features))
	}

	votes := make([]float64, len(f.Classes))
	for _, t := range f.Estimators {
		dist := t.leafValue(features)
		total := lo.Sum(dist)
		if total == 0 {
			continue
		}
		for i, w := range dist {
			votes[i] += w / total
		}
	}

	best := 0
	for i := 1; i < len(votes); i++ {
		if votes[i] > votes[best] {
			best = i
		}
	}
	return f.Classes[best], nil
}

func (t Tree) leafValue(x []float64) []float64 {
	node := 0
	for t.ChildrenLeft[node] != leaf {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}
