package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteClassifier calls an inference service that hosts the trained model.
type RemoteClassifier struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

type remoteRequest struct {
	Features [][]float64 `json:"features"`
}

type remoteResponse struct {
	Prediction []int `json:"prediction"`
}

// NewRemoteClassifier creates a client for <endpoint>/predict.
func NewRemoteClassifier(endpoint, apiKey string, timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteClassifier{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *RemoteClassifier) Predict(ctx context.Context, features []float64) (int, error) {
	body, err := json.Marshal(remoteRequest{Features: [][]float64{features}})
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Prediction) != 1 {
		return 0, fmt.Errorf("expected one prediction, got %d", len(out.Prediction))
	}
	return out.Prediction[0], nil
}
