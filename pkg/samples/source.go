// Package samples provides sample sources that list the labelled audio
// segments used to train the morepork classifier.
//
// A source only enumerates segments; reading audio and windowing it into
// fixed-size spectrogram samples is done by the training service. Available
// sources:
//   - FileSource: reads a JSON manifest from disk
//   - HTTPSource: fetches a JSON manifest from an HTTP endpoint
//
// Both sources share the manifest layout, located with gjson paths:
//
//	{
//	  "positive": [{"key": "rec1-0012", "recording": "rec1.wav", "offset": 12.0, "duration": 3.0}],
//	  "negative": [{"key": "rec2-0040", "recording": "rec2.wav", "offset": 40.0, "duration": 3.0}]
//	}
package samples

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Segment is one labelled stretch of a recording.
type Segment struct {
	Key       string  `json:"key"`
	Recording string  `json:"recording,omitempty"`
	Offset    float64 `json:"offset,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// Set holds the positive (morepork call) and negative (background) segments.
type Set struct {
	Positive []Segment
	Negative []Segment
}

// Len returns the total number of segments.
func (s *Set) Len() int {
	return len(s.Positive) + len(s.Negative)
}

// Source is the interface implemented by sample sources.
type Source interface {
	// Load returns the full labelled segment set.
	Load(ctx context.Context) (*Set, error)

	// Name returns a short identifier for the source, e.g. "file" or "http".
	Name() string
}

// Default manifest paths.
const (
	DefaultPositivePath = "positive"
	DefaultNegativePath = "negative"
)

// ErrEmptySet is returned when a manifest lists no segments at all.
var ErrEmptySet = errors.New("sample set is empty")

// parseManifest extracts positive and negative segments from a JSON document.
func parseManifest(body []byte, positivePath, negativePath string) (*Set, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("manifest is not valid JSON")
	}
	if positivePath == "" {
		positivePath = DefaultPositivePath
	}
	if negativePath == "" {
		negativePath = DefaultNegativePath
	}

	positive, err := parseSegments(body, positivePath)
	if err != nil {
		return nil, fmt.Errorf("positive segments: %w", err)
	}
	negative, err := parseSegments(body, negativePath)
	if err != nil {
		return nil, fmt.Errorf("negative segments: %w", err)
	}

	set := &Set{Positive: positive, Negative: negative}
	if set.Len() == 0 {
		return nil, ErrEmptySet
	}
	return set, nil
}

func parseSegments(body []byte, path string) ([]Segment, error) {
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q not found in manifest", path)
	}
	if !result.IsArray() {
		return nil, fmt.Errorf("path %q is not an array", path)
	}

	items := result.Array()
	segments := make([]Segment, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		key := item.Get("key").String()
		if key == "" {
			return nil, fmt.Errorf("segment[%d]: key is required", i)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("segment[%d]: duplicate key %q", i, key)
		}
		seen[key] = struct{}{}

		segments = append(segments, Segment{
			Key:       key,
			Recording: item.Get("recording").String(),
			Offset:    item.Get("offset").Float(),
			Duration:  item.Get("duration").Float(),
		})
	}
	return segments, nil
}
