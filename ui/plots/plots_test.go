// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package plots

import (
	"bytes"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
)

func TestPoints(t *testing.T) {
	c := New()
	c.AddPoint(Point{MetricName: "b", MetricType: "loss", Step: 2, Value: 0.5})
	c.AddPoint(Point{MetricName: "a", MetricType: "wer", Step: 1, Value: 1})
	c.AddPoint(Point{MetricName: "b", MetricType: "loss", Step: 1, Value: 1})
	c.AddPoint(Point{MetricName: "b", MetricType: "loss", Step: 3, Value: math.NaN()})
	assert.Equal(t, 1, c.Incomplete())

	points := c.Points()
	assert.Equal(t, []string{"b", "a"}, points.MetricsNames())
	assert.Equal(t, []string{"loss", "wer"}, points.MetricTypes())
	extracted := points.Extract()
	require.Len(t, extracted, 3)
	assert.Equal(t, []float64{1, 1, 2}, []float64{extracted[0].Step, extracted[1].Step, extracted[2].Step})

	points.Filter(func(p Point) bool { return p.MetricName == "b" })
	assert.Len(t, points, 2)
	assert.Equal(t, []string{"b"}, points.MetricsNames())
	assert.Contains(t, points.String(), "0.500000")
}

func TestSaveAndLoadPoints(t *testing.T) {
	c := New()
	c.AddPoint(Point{MetricName: "m", Short: "M", MetricType: "loss", Step: 1, Value: 0.25})
	c.AddPoint(Point{MetricName: "m", Short: "M", MetricType: "loss", Step: 2, Value: 0.125})
	path := filepath.Join(t.TempDir(), "sub", "points.json")
	require.NoError(t, c.SavePoints(path))
	loaded, err := LoadPoints(path)
	require.NoError(t, err)
	assert.Equal(t, c.Points().Extract(), loaded)

	_, err = LoadPoints(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

type repeat struct{}

func (repeat) Name() string { return "repeat" }
func (repeat) Reset()       {}
func (repeat) Yield() (train.Example, error) {
	return train.Example{Question: []string{"k"}, Answer: []string{"v"}}, nil
}

func TestCollectorLoop(t *testing.T) {
	vocab := database.NewVocabulary("k", "v")
	vocab.Freeze()
	content := database.NewContent(1)
	require.NoError(t, content.Add(1, "v", "k"))
	db, err := database.NewDBDist(content, vocab, vocab)
	require.NoError(t, err)
	model, err := nton.New(nton.Config{NumCells: 3, MaxGen: 3, InitStddev: 0.1}, vocab, db, rand.NewPCG(5, 5))
	require.NoError(t, err)
	trainer := train.NewTrainer(model, optimizers.StochasticGradientDescent().WithLearningRate(0.5).Done(),
		metrics.NewMovingAverageAccuracy("Moving Average Accuracy", "~Acc", 0.1))
	loop := train.NewLoop(trainer)

	c := New()
	c.AttachToLoop(loop, 4)
	_, err = loop.RunSteps(repeat{}, 20)
	require.NoError(t, err)

	evalMetrics := []metrics.Interface{metrics.NewMeanWER("Mean Word Error Rate", "WER")}
	ds := train.NewInMemory("kv", []train.Example{{Question: []string{"k"}, Answer: []string{"v"}}})
	meanLoss, values, err := train.Evaluate(model, ds, 0, nil, evalMetrics...)
	require.NoError(t, err)
	c.AddEvaluation(loop.LoopStep, ds.Name(), meanLoss, evalMetrics, values)

	points := c.Points()
	assert.Len(t, points, 5) // 4 train steps plus the evaluation step.
	assert.Contains(t, points.MetricsNames(), MovingAverageLossName)
	assert.Contains(t, points.MetricsNames(), "Mean Word Error Rate on kv")
	assert.Equal(t, []string{metrics.AccuracyMetricType, metrics.LossMetricType, metrics.WERMetricType},
		points.MetricTypes())

	path := filepath.Join(t.TempDir(), "plot.png")
	require.NoError(t, c.SavePNG(path))
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(contents, []byte("\x89PNG")))

	require.NoError(t, c.SavePNG(path, metrics.LossMetricType))
	require.Error(t, New().SavePNG(path))
	require.Error(t, c.SavePNG(path, "unknown"))
}
