package samples

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `{
  "positive": [
    {"key": "rec1-0012", "recording": "rec1.wav", "offset": 12.0, "duration": 3.0},
    {"key": "rec1-0030", "recording": "rec1.wav", "offset": 30.5, "duration": 3.0}
  ],
  "negative": [
    {"key": "rec2-0040", "recording": "rec2.wav", "offset": 40.0, "duration": 3.0}
  ]
}`

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestFileSource_Load(t *testing.T) {
	src := &FileSource{Path: writeManifest(t, testManifest)}

	set, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if len(set.Positive) != 2 {
		t.Errorf("positive = %d, want 2", len(set.Positive))
	}
	if len(set.Negative) != 1 {
		t.Errorf("negative = %d, want 1", len(set.Negative))
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}

	got := set.Positive[1]
	want := Segment{Key: "rec1-0030", Recording: "rec1.wav", Offset: 30.5, Duration: 3.0}
	if got != want {
		t.Errorf("segment = %+v, want %+v", got, want)
	}
}

func TestFileSource_CustomPaths(t *testing.T) {
	content := `{"data": {"calls": [{"key": "a"}], "noise": [{"key": "b"}, {"key": "c"}]}}`
	src := &FileSource{
		Path:         writeManifest(t, content),
		PositivePath: "data.calls",
		NegativePath: "data.noise",
	}

	set, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(set.Positive) != 1 || len(set.Negative) != 2 {
		t.Errorf("got %d positive, %d negative", len(set.Positive), len(set.Negative))
	}
}

func TestFileSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "invalid json", content: `{"positive": [`, wantErr: "not valid JSON"},
		{name: "missing negative", content: `{"positive": [{"key": "a"}]}`, wantErr: `path "negative" not found`},
		{name: "not an array", content: `{"positive": {"key": "a"}, "negative": []}`, wantErr: "not an array"},
		{name: "missing key", content: `{"positive": [{"recording": "x.wav"}], "negative": []}`, wantErr: "key is required"},
		{name: "duplicate key", content: `{"positive": [{"key": "a"}, {"key": "a"}], "negative": []}`, wantErr: "duplicate key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &FileSource{Path: writeManifest(t, tt.content)}
			_, err := src.Load(context.Background())
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestFileSource_EmptySet(t *testing.T) {
	src := &FileSource{Path: writeManifest(t, `{"positive": [], "negative": []}`)}

	_, err := src.Load(context.Background())
	if !errors.Is(err, ErrEmptySet) {
		t.Errorf("error = %v, want ErrEmptySet", err)
	}
}

func TestFileSource_MissingFile(t *testing.T) {
	src := &FileSource{Path: filepath.Join(t.TempDir(), "nope.json")}

	_, err := src.Load(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("error = %v, want os.ErrNotExist", err)
	}
}

func TestFileSource_CanceledContext(t *testing.T) {
	src := &FileSource{Path: writeManifest(t, testManifest)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
