// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package plots collects metrics during training (see Collector) and renders them as line plots with
// gonum.org/v1/plot, or as tables.
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/support/fsutil"
	"github.com/vishalbelsare/nton/pkg/support/sets"
	"github.com/vishalbelsare/nton/pkg/support/xslices"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
	"k8s.io/klog/v2"
)

// Point represents a training plot point. It is used to save/load plots.
type Point struct {
	// MetricName of this point.
	MetricName string

	// Short name
	Short string

	// MetricType typically will be "loss", "accuracy" or "wer".
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Step is the loop step this metric was measured.
	// Usually, this is an int value, stored as a float64.
	Step float64

	// Value is the metric captured.
	Value float64
}

// MovingAverageLossName is the metric name of the training loop moving average loss.
const MovingAverageLossName = "Train: Moving Average Loss"

// Collector of Points during training. Attach it to a train.Loop with AttachToLoop, and
// add evaluation results with AddEvaluation.
//
// It is not safe for concurrent use.
type Collector struct {
	points     []Point
	incomplete int
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{}
}

// AddPoint adds the point to the collection. Points with NaN or infinite values are dropped, and counted as
// incomplete (see Incomplete).
func (c *Collector) AddPoint(point Point) {
	if math.IsNaN(point.Value) || math.IsInf(point.Value, 0) {
		c.incomplete++
		return
	}
	c.points = append(c.points, point)
}

// Incomplete returns the number of points dropped because their value was NaN or infinite.
func (c *Collector) Incomplete() int { return c.incomplete }

// Points returns the points collected so far, organized by step.
func (c *Collector) Points() Points { return NewPoints(c.points) }

// AttachToLoop registers a hook that records the moving average loss and the train metrics of the loop
// numPoints times during each run (see train.NTimesDuringLoop).
func (c *Collector) AttachToLoop(loop *train.Loop, numPoints int) {
	train.NTimesDuringLoop(loop, numPoints, "plots.Collector", 0, func(loop *train.Loop, _ train.StepResult) error {
		c.AddTrainMetrics(loop)
		return nil
	})
}

// AddTrainMetrics records the current moving average loss and train metrics of the loop.
func (c *Collector) AddTrainMetrics(loop *train.Loop) {
	step := float64(loop.LoopStep)
	c.AddPoint(Point{
		MetricName: MovingAverageLossName,
		Short:      "~Loss",
		MetricType: metrics.LossMetricType,
		Step:       step,
		Value:      loop.MovingAverageLoss(),
	})
	for _, metric := range loop.Trainer.Metrics() {
		c.AddPoint(Point{
			MetricName: "Train: " + metric.Name(),
			Short:      "T/" + metric.ShortName(),
			MetricType: metric.MetricType(),
			Step:       step,
			Value:      metric.Value(),
		})
	}
}

// AddEvaluation records the results of train.Evaluate on the dataset dsName at the given step: the mean loss,
// and the values of evalMetrics.
func (c *Collector) AddEvaluation(step int, dsName string, meanLoss float64, evalMetrics []metrics.Interface,
	values []float64) {
	c.AddPoint(Point{
		MetricName: "Mean Loss on " + dsName,
		Short:      fmt.Sprintf("Loss(%s)", dsName),
		MetricType: metrics.LossMetricType,
		Step:       float64(step),
		Value:      meanLoss,
	})
	for ii, metric := range evalMetrics {
		c.AddPoint(Point{
			MetricName: fmt.Sprintf("%s on %s", metric.Name(), dsName),
			Short:      fmt.Sprintf("%s(%s)", metric.ShortName(), dsName),
			MetricType: metric.MetricType(),
			Step:       float64(step),
			Value:      values[ii],
		})
	}
}

// SavePNG renders one plot per metric type (all types found if metricTypes is empty), stacked vertically,
// with one line per metric, and saves it as a PNG image to filePath. Parent directories are created.
func (c *Collector) SavePNG(filePath string, metricTypes ...string) error {
	points := c.Points()
	if len(metricTypes) == 0 {
		metricTypes = points.MetricTypes()
	}
	if len(metricTypes) == 0 {
		return errors.Errorf("no points to plot in %q", filePath)
	}
	const width, heightPerPlot = 10 * vg.Inch, 4 * vg.Inch
	plots := make([][]*plot.Plot, 0, len(metricTypes))
	for _, metricType := range metricTypes {
		p, err := points.Plot(metricType)
		if err != nil {
			return err
		}
		plots = append(plots, []*plot.Plot{p})
	}

	img := vgimg.New(width, heightPerPlot*vg.Length(len(plots)))
	tiles := draw.Tiles{Rows: len(plots), Cols: 1, PadY: vg.Points(10)}
	canvases := plot.Align(plots, tiles, draw.New(img))
	for row := range plots {
		plots[row][0].Draw(canvases[row][0])
	}

	f, err := fsutil.Create(filePath)
	if err != nil {
		return err
	}
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write plot to %q", filePath)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", filePath)
	}
	klog.V(1).Infof("saved plot of %v to %q", metricTypes, filePath)
	return nil
}

// SavePoints writes the collected points to filePath, one JSON object per line. See LoadPoints.
func (c *Collector) SavePoints(filePath string) error {
	f, err := fsutil.Create(filePath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	for _, point := range c.points {
		if err = enc.Encode(point); err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "failed to encode point %v", point)
		}
	}
	return errors.Wrapf(f.Close(), "failed to close %q", filePath)
}

// LoadPoints parses all plot points saved in the given file. See Collector.SavePoints.
func LoadPoints(filePath string) ([]Point, error) {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read Plots file %q", filepath.Clean(filePath))
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plots file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// Points is a collection of Point objects organized by their Step value.
// It's a `map[float64][]Point` with several utility methods.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual `Point`.
func NewPoints(rawPoints []Point) (points Points) {
	points = make(map[float64][]Point)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Map executes the given function on all individual points, in `Step` order.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range xslices.SortedKeys(points) {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Filter only keeps those points for which `fn` returns true, removing the other ones.
func (points Points) Filter(fn func(p Point) bool) {
	for step, stepPoints := range points {
		kept := slices.DeleteFunc(slices.Clone(stepPoints), func(p Point) bool { return !fn(p) })
		if len(kept) == 0 {
			delete(points, step)
		} else {
			points[step] = kept
		}
	}
}

// Extract converts the Points structure back to a list of individual points, sorted by Point.Step.
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// MetricTypes returns the sorted metric types in the collection.
func (points Points) MetricTypes() []string {
	types := sets.Make[string](0)
	points.Map(func(p *Point) { types.Insert(p.MetricType) })
	return sets.Sorted(types)
}

// MetricsNames return the list of metrics names in the whole collection, sorted alphabetically by their type and
// then by their name.
func (points Points) MetricsNames() []string {
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		nameToType[p.MetricName] = p.MetricType
	})
	names := xslices.SortedKeys(nameToType)
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// Plot creates a line plot of every metric of the given type, over the steps.
func (points Points) Plot(metricType string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = metricType
	p.X.Label.Text = "Step"
	p.Y.Label.Text = metricType
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	lineIdx := 0
	for _, name := range points.MetricsNames() {
		var xys plotter.XYs
		points.Map(func(pt *Point) {
			if pt.MetricName == name && pt.MetricType == metricType {
				xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
			}
		})
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to plot metric %q", name)
		}
		line.Color = plotutil.Color(lineIdx)
		line.Dashes = plotutil.Dashes(lineIdx)
		p.Add(line)
		p.Legend.Add(name, line)
		lineIdx++
	}
	if lineIdx == 0 {
		return nil, errors.Errorf("no points of metric type %q to plot", metricType)
	}
	return p, nil
}

// TableForMetrics returns a table with the first column being the `Step` followed
// by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	table.Headers(append([]string{"Step"}, metrics...)...)
	for _, step := range xslices.SortedKeys(points) {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			if idx := slices.Index(metrics, pt.MetricName); idx != -1 {
				row[idx+1] = fmt.Sprintf("%f", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
