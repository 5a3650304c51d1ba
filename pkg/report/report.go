// Package report writes the files that accompany a training run: the model
// summary and description, and a PNG of the per-epoch metrics.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	chart "github.com/wcharczuk/go-chart"

	"github.com/HatiCode/morepork/pkg/models"
)

const (
	// SummaryFile holds the human readable model summary.
	SummaryFile = "model.txt"
	// DescriptionFile holds the JSON model description.
	DescriptionFile = "model.json"
	// HistoryFile is the metrics plot written next to each run's weights.
	HistoryFile = "history.png"

	panelWidth  = 750
	panelHeight = 500
)

// WriteModelFiles writes the model summary and description into dir.
func WriteModelFiles(dir, summary string, description []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, DescriptionFile), description, 0o644); err != nil {
		return fmt.Errorf("write description: %w", err)
	}
	return nil
}

// ErrShortHistory is returned by PlotHistory when there is nothing to draw.
var ErrShortHistory = errors.New("history needs at least 2 epochs to plot")

// PlotHistory renders accuracy and loss side by side and writes the PNG to path.
func PlotHistory(path string, h models.History) error {
	if len(h) < 2 {
		return ErrShortHistory
	}

	epochs := h.Epochs()
	acc, err := renderPanel("Accuracy vs. epochs", "Binary Accuracy", epochs,
		h.Series(func(m models.EpochMetrics) float64 { return m.BinaryAccuracy }),
		h.Series(func(m models.EpochMetrics) float64 { return m.ValBinaryAccuracy }))
	if err != nil {
		return fmt.Errorf("accuracy panel: %w", err)
	}
	loss, err := renderPanel("Loss vs. epochs", "Loss", epochs,
		h.Series(func(m models.EpochMetrics) float64 { return m.Loss }),
		h.Series(func(m models.EpochMetrics) float64 { return m.ValLoss }))
	if err != nil {
		return fmt.Errorf("loss panel: %w", err)
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 2*panelWidth, panelHeight))
	draw.Draw(canvas, image.Rect(0, 0, panelWidth, panelHeight), acc, acc.Bounds().Min, draw.Src)
	draw.Draw(canvas, image.Rect(panelWidth, 0, 2*panelWidth, panelHeight), loss, loss.Bounds().Min, draw.Src)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, canvas); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

func renderPanel(title, yName string, epochs, training, validation []float64) (image.Image, error) {
	graph := chart.Chart{
		Title:      title,
		TitleStyle: chart.StyleShow(),
		Width:      panelWidth,
		Height:     panelHeight,
		XAxis: chart.XAxis{
			Name:      "Epoch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      yName,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
			Range:     valueRange(training, validation),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Training",
				XValues: epochs,
				YValues: training,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorBlue,
				},
			},
			chart.ContinuousSeries{
				Name:    "Validation",
				XValues: epochs,
				YValues: validation,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorOrange,
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return png.Decode(&buf)
}

// valueRange returns a y range covering every finite value. go-chart refuses
// to draw a zero-height range, so flat series get padded.
func valueRange(series ...[]float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range series {
		for _, v := range s {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return &chart.ContinuousRange{Min: 0, Max: 1}
	}

	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*0.05, 0.5)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}
