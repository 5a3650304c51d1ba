package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RemoteBuilder builds sessions on an external training service over HTTP.
//
// Contract (JSON bodies):
//
//	POST   /sessions                    Spec            -> {"session": "<id>"}
//	GET    /sessions/{id}/summary                       -> text
//	GET    /sessions/{id}/model                         -> model JSON
//	POST   /sessions/{id}/epochs        {"epoch": n}    -> epoch metrics
//	PUT    /sessions/{id}/learning-rate {"learningRate": x}
//	POST   /sessions/{id}/checkpoints   {"path": "..."}
//	DELETE /sessions/{id}
type RemoteBuilder struct {
	endpoint string
	client   *http.Client
}

// NewRemoteBuilder creates a builder for the service at endpoint. A nil client
// gets a default one; epochs can run for minutes so the default has no
// overall timeout and relies on the request context instead.
func NewRemoteBuilder(endpoint string, client *http.Client) *RemoteBuilder {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	return &RemoteBuilder{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// Name returns the builder identifier.
func (b *RemoteBuilder) Name() string {
	return "remote"
}

// Build creates a session on the training service.
func (b *RemoteBuilder) Build(ctx context.Context, spec Spec) (Session, error) {
	if len(spec.Train) == 0 {
		return nil, errors.New("remote: spec has no training samples")
	}

	body, err := b.do(ctx, http.MethodPost, "/sessions", spec)
	if err != nil {
		return nil, fmt.Errorf("remote: build: %w", err)
	}

	id := gjson.GetBytes(body, "session").String()
	if id == "" {
		return nil, errors.New("remote: build: response has no session id")
	}

	return &remoteSession{builder: b, id: id}, nil
}

func (b *RemoteBuilder) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(bodyBytes))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}

type remoteSession struct {
	builder *RemoteBuilder
	id      string
}

func (s *remoteSession) path(suffix string) string {
	return "/sessions/" + url.PathEscape(s.id) + suffix
}

func (s *remoteSession) Summary(ctx context.Context) (string, error) {
	body, err := s.builder.do(ctx, http.MethodGet, s.path("/summary"), nil)
	if err != nil {
		return "", fmt.Errorf("remote: summary: %w", err)
	}
	return string(body), nil
}

func (s *remoteSession) Describe(ctx context.Context) ([]byte, error) {
	body, err := s.builder.do(ctx, http.MethodGet, s.path("/model"), nil)
	if err != nil {
		return nil, fmt.Errorf("remote: describe: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.New("remote: describe: model description is not valid JSON")
	}
	return body, nil
}

func (s *remoteSession) FitEpoch(ctx context.Context, epoch int) (EpochMetrics, error) {
	body, err := s.builder.do(ctx, http.MethodPost, s.path("/epochs"), map[string]int{"epoch": epoch})
	if err != nil {
		return EpochMetrics{}, fmt.Errorf("remote: epoch %d: %w", epoch, err)
	}

	m, err := parseEpochMetrics(body)
	if err != nil {
		return EpochMetrics{}, fmt.Errorf("remote: epoch %d: %w", epoch, err)
	}
	m.Epoch = epoch
	return m, nil
}

func (s *remoteSession) SetLearningRate(ctx context.Context, rate float64) error {
	if _, err := s.builder.do(ctx, http.MethodPut, s.path("/learning-rate"), map[string]float64{"learningRate": rate}); err != nil {
		return fmt.Errorf("remote: set learning rate: %w", err)
	}
	return nil
}

func (s *remoteSession) Save(ctx context.Context, path string) error {
	if _, err := s.builder.do(ctx, http.MethodPost, s.path("/checkpoints"), map[string]string{"path": path}); err != nil {
		return fmt.Errorf("remote: save %s: %w", path, err)
	}
	return nil
}

func (s *remoteSession) Close(ctx context.Context) error {
	if _, err := s.builder.do(ctx, http.MethodDelete, s.path(""), nil); err != nil {
		return fmt.Errorf("remote: close: %w", err)
	}
	return nil
}

// parseEpochMetrics reads the metric fields of an epoch response. Keras names
// the accuracy metric after the configured metric, so both spellings are
// accepted.
func parseEpochMetrics(body []byte) (EpochMetrics, error) {
	if !gjson.ValidBytes(body) {
		return EpochMetrics{}, errors.New("epoch response is not valid JSON")
	}

	var m EpochMetrics
	var err error
	if m.Loss, err = requireFloat(body, "loss"); err != nil {
		return EpochMetrics{}, err
	}
	if m.BinaryAccuracy, err = requireFloat(body, "binary_accuracy", "accuracy"); err != nil {
		return EpochMetrics{}, err
	}
	if m.ValLoss, err = requireFloat(body, "val_loss"); err != nil {
		return EpochMetrics{}, err
	}
	if m.ValBinaryAccuracy, err = requireFloat(body, "val_binary_accuracy", "val_accuracy"); err != nil {
		return EpochMetrics{}, err
	}
	m.LearningRate = gjson.GetBytes(body, "lr").Float()
	return m, nil
}

func requireFloat(body []byte, paths ...string) (float64, error) {
	for _, p := range paths {
		if r := gjson.GetBytes(body, p); r.Exists() {
			return r.Float(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing from epoch response", paths[0])
}
