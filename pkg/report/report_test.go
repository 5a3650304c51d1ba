package report

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/HatiCode/morepork/pkg/models"
)

func TestWriteModelFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "morepork-resnet34")

	if err := WriteModelFiles(dir, "Total params: 42", []byte(`{"class_name":"Functional"}`)); err != nil {
		t.Fatalf("WriteModelFiles() error = %v", err)
	}

	summary, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil || string(summary) != "Total params: 42" {
		t.Errorf("summary = %q, err %v", summary, err)
	}
	desc, err := os.ReadFile(filepath.Join(dir, DescriptionFile))
	if err != nil || string(desc) != `{"class_name":"Functional"}` {
		t.Errorf("description = %q, err %v", desc, err)
	}
}

func TestPlotHistory(t *testing.T) {
	h := models.History{
		{Epoch: 0, Loss: 0.9, BinaryAccuracy: 0.55, ValLoss: 0.95, ValBinaryAccuracy: 0.5},
		{Epoch: 1, Loss: 0.7, BinaryAccuracy: 0.65, ValLoss: 0.8, ValBinaryAccuracy: 0.6},
		{Epoch: 2, Loss: 0.5, BinaryAccuracy: 0.75, ValLoss: 0.7, ValBinaryAccuracy: 0.7},
		{Epoch: 3, Loss: 0.4, BinaryAccuracy: 0.8, ValLoss: 0.65, ValBinaryAccuracy: 0.72},
	}
	path := filepath.Join(t.TempDir(), "weights0", HistoryFile)

	if err := PlotHistory(path, h); err != nil {
		t.Fatalf("PlotHistory() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open plot: %v", err)
	}
	defer f.Close()

	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode plot: %v", err)
	}
	if cfg.Width != 1500 || cfg.Height != 500 {
		t.Errorf("plot size = %dx%d, want 1500x500", cfg.Width, cfg.Height)
	}
}

func TestPlotHistory_FlatSeries(t *testing.T) {
	h := models.History{
		{Epoch: 0, Loss: 0.5, BinaryAccuracy: 0.8, ValLoss: 0.5, ValBinaryAccuracy: 0.8},
		{Epoch: 1, Loss: 0.5, BinaryAccuracy: 0.8, ValLoss: 0.5, ValBinaryAccuracy: 0.8},
	}
	if err := PlotHistory(filepath.Join(t.TempDir(), HistoryFile), h); err != nil {
		t.Fatalf("PlotHistory() error = %v", err)
	}
}

func TestPlotHistory_Short(t *testing.T) {
	path := filepath.Join(t.TempDir(), HistoryFile)

	err := PlotHistory(path, models.History{{Epoch: 0}})
	if !errors.Is(err, ErrShortHistory) {
		t.Fatalf("PlotHistory() error = %v, want ErrShortHistory", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("plot written for a single epoch")
	}
}

func TestValueRange(t *testing.T) {
	tests := []struct {
		name    string
		series  [][]float64
		wantMin float64
		wantMax float64
	}{
		{name: "spread", series: [][]float64{{0, 1}, {0.5}}, wantMin: -0.05, wantMax: 1.05},
		{name: "flat", series: [][]float64{{0.8, 0.8}}, wantMin: 0.3, wantMax: 1.3},
		{name: "empty", series: nil, wantMin: 0, wantMax: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valueRange(tt.series...)
			if diff(r.Min, tt.wantMin) > 1e-9 || diff(r.Max, tt.wantMax) > 1e-9 {
				t.Errorf("valueRange() = [%v, %v], want [%v, %v]", r.Min, r.Max, tt.wantMin, tt.wantMax)
			}
		})
	}
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
