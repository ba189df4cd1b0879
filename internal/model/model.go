// Package model wraps the trained blood pressure stage classifier.
//
// The classifier is built once at startup by Load and is read-only afterwards, so a single
// instance is shared by all request handlers without locking.
package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Skufu/bpstage/internal/stage"
	"github.com/Skufu/bpstage/internal/vitals"
)

// Classifier returns a class code for one row of features.
type Classifier interface {
	Predict(ctx context.Context, features []float64) (int, error)
}

// ArtifactStore fetches a serialized model by name.
type ArtifactStore interface {
	Artifact(ctx context.Context, name string) ([]byte, error)
}

const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
	SourceRemote   = "remote"
)

// Source tells Load where the model lives.
type Source struct {
	Kind         string
	Path         string
	Name         string
	Artifacts    ArtifactStore
	InferenceURL string
	APIKey       string
	Timeout      time.Duration
}

// Load builds the classifier described by src.
func Load(ctx context.Context, src Source) (Classifier, error) {
	switch src.Kind {
	case SourceFile, "":
		raw, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, fmt.Errorf("read model %s: %w", src.Path, err)
		}
		return LoadForest(bytes.NewReader(raw))
	case SourcePostgres:
		if src.Artifacts == nil {
			return nil, errors.New("postgres model source needs an artifact store")
		}
		raw, err := src.Artifacts.Artifact(ctx, src.Name)
		if err != nil {
			return nil, fmt.Errorf("fetch model %s: %w", src.Name, err)
		}
		return LoadForest(bytes.NewReader(raw))
	case SourceRemote:
		if src.InferenceURL == "" {
			return nil, errors.New("remote model source needs an inference url")
		}
		return NewRemoteClassifier(src.InferenceURL, src.APIKey, src.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown model source %q", src.Kind)
	}
}

// Result is a decoded prediction.
type Result struct {
	Code  int    `json:"code"`
	Stage string `json:"stage"`
	Text  string `json:"prediction_text"`
}

// Predictor turns an encoded reading into a stage description.
type Predictor struct {
	clf Classifier
	log *slog.Logger
}

func NewPredictor(clf Classifier, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Predictor{clf: clf, log: logger}
}

func (p *Predictor) Predict(ctx context.Context, vec vitals.FeatureVector) (Result, error) {
	code, err := p.clf.Predict(ctx, vec.Slice())
	if err != nil {
		return Result{}, fmt.Errorf("predict: %w", err)
	}
	if !stage.Known(code) {
		p.log.Warn("classifier returned unknown class", "code", code)
	}
	return Result{
		Code:  code,
		Stage: stage.Label(code),
		Text:  stage.Describe(code),
	}, nil
}
