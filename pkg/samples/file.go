package samples

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// FileSource reads a segment manifest from a local JSON file.
type FileSource struct {
	// Path is the manifest location (required).
	Path string

	// PositivePath and NegativePath are gjson paths to the segment arrays.
	// Defaults: "positive" and "negative".
	PositivePath string
	NegativePath string
}

func (f *FileSource) Name() string { return "file" }

// Load implements Source.
func (f *FileSource) Load(ctx context.Context) (*Set, error) {
	if f.Path == "" {
		return nil, errors.New("file source: path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("file source: %w", err)
	}

	set, err := parseManifest(body, f.PositivePath, f.NegativePath)
	if err != nil {
		return nil, fmt.Errorf("file source %s: %w", f.Path, err)
	}
	return set, nil
}
