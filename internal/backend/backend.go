// Package backend holds the narrow clients for the external model
// services the cascade layers call: an embedding service, a retrieval
// index, and a trained classifier. Each is consumed through an
// interface; the HTTP implementations here are the production wiring.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Neighbor is one retrieved prior routing decision or capability
// document, with the target it supports and a similarity score.
type Neighbor struct {
	Target string  `json:"target"`
	Score  float64 `json:"score"`
	Kind   string  `json:"kind,omitempty"`
}

// Retriever looks up supporting context for a task description.
type Retriever interface {
	Similar(ctx context.Context, text string, limit int) ([]Neighbor, error)
}

// Classifier returns a probability distribution over targets for a task
// description plus optional context-augmented features.
type Classifier interface {
	Classify(ctx context.Context, text string, features map[string]interface{}) (map[string]float64, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c httpClient) post(ctx context.Context, path string, req, resp interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return err
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("backend POST %s: %d %s", path, httpResp.StatusCode, string(data))
	}
	return json.Unmarshal(data, resp)
}

// HTTPEmbedder calls an embedding service's POST /embed endpoint.
type HTTPEmbedder struct {
	httpClient
}

func NewHTTPEmbedder(baseURL string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{newHTTPClient(baseURL, timeout)}
}

func (c *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var resp struct {
		Embedding []float64 `json:"embedding"`
	}
	err := c.post(ctx, "/embed", map[string]string{"text": text}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// HTTPRetriever calls a retrieval index's POST /search endpoint.
type HTTPRetriever struct {
	httpClient
}

func NewHTTPRetriever(baseURL string, timeout time.Duration) *HTTPRetriever {
	return &HTTPRetriever{newHTTPClient(baseURL, timeout)}
}

func (c *HTTPRetriever) Similar(ctx context.Context, text string, limit int) ([]Neighbor, error) {
	var resp struct {
		Results []Neighbor `json:"results"`
	}
	req := map[string]interface{}{"query": text, "limit": limit}
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// HTTPClassifier calls a trained classifier's POST /classify endpoint.
type HTTPClassifier struct {
	httpClient
}

func NewHTTPClassifier(baseURL string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{newHTTPClient(baseURL, timeout)}
}

func (c *HTTPClassifier) Classify(ctx context.Context, text string, features map[string]interface{}) (map[string]float64, error) {
	var resp struct {
		Scores map[string]float64 `json:"scores"`
	}
	req := map[string]interface{}{"text": text}
	if len(features) > 0 {
		req["features"] = features
	}
	if err := c.post(ctx, "/classify", req, &resp); err != nil {
		return nil, err
	}
	return resp.Scores, nil
}
