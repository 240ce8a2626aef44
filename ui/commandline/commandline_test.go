// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
)

func createTestParams() hparams.Params {
	return hparams.Params{
		"x":          11.0,
		"y":          7,
		"z":          false,
		"s":          "foo",
		"list_int":   []int{},
		"list_float": []float64{},
		"list_str":   []string{},
	}
}

func TestParseSettings(t *testing.T) {
	params := createTestParams()
	paramsSet, err := ParseSettings(params, "x=13;z=true;y=1_000;s=bar;list_int=1,3,7;list_float=0.1,1.2,3e3;list_str=a,b;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "z", "y", "s", "list_int", "list_float", "list_str"}, paramsSet)
	assert.Equal(t, 13.0, params["x"])
	assert.Equal(t, 1000, params["y"])
	assert.Equal(t, true, params["z"])
	assert.Equal(t, "bar", params["s"])
	assert.Equal(t, []int{1, 3, 7}, hparams.GetParamOr(params, "list_int", []int{}))
	assert.Equal(t, []float64{0.1, 1.2, 3e3}, hparams.GetParamOr(params, "list_float", []float64{}))
	assert.Equal(t, []string{"a", "b"}, hparams.GetParamOr(params, "list_str", []string{}))

	// Parameter "q" is unknown.
	_, err = ParseSettings(params, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseSettings(params, "y=3.14")
	require.Error(t, err)
	_, err = ParseSettings(params, "list_int=1,a")
	require.Error(t, err)

	// Malformed settings.
	_, err = ParseSettings(params, "x")
	require.Error(t, err)
	_, err = ParseSettings(params, "x=1=2")
	require.Error(t, err)
}

func TestParseSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(path, []byte("# Comment\nx=1.5\n\ny=2;s=from_file\n"), 0o644))
	params := createTestParams()
	paramsSet, err := ParseSettings(params, "file:"+path+";y=3")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "s", "y"}, paramsSet)
	assert.Equal(t, 1.5, params["x"])
	assert.Equal(t, 3, params["y"])
	assert.Equal(t, "from_file", params["s"])

	assert.Equal(t, "\t\"s\": (string) from_file\n\t\"x\": (float64) 1.5\n\t\"y\": (int) 3",
		SprintModifiedSettings(params, paramsSet))

	_, err = ParseSettings(params, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestSprintSettings(t *testing.T) {
	params := hparams.Params{"b": 1, "a": "x"}
	assert.Equal(t, "\t\"a\": (string) x\n\t\"b\": (int) 1", SprintSettings(params))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.23ms", FormatDuration(1234567*time.Nanosecond))
	assert.Equal(t, "12.35µs", FormatDuration(12346*time.Nanosecond))
	assert.Equal(t, "2.00s", FormatDuration(2*time.Second))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}

func newTestModel(t *testing.T) *nton.Model {
	vocab := database.NewVocabulary("k", "v")
	vocab.Freeze()
	content := database.NewContent(1)
	require.NoError(t, content.Add(1, "v", "k"))
	db, err := database.NewDBDist(content, vocab, vocab)
	require.NoError(t, err)
	model, err := nton.New(nton.Config{NumCells: 3, MaxGen: 3, InitStddev: 0.1}, vocab, db, rand.NewPCG(1, 1))
	require.NoError(t, err)
	return model
}

var keyValueExample = train.Example{Question: []string{"k"}, Answer: []string{"v"}}

// repeat yields the same example forever.
type repeat struct{}

func (repeat) Name() string                   { return "repeat" }
func (repeat) Reset()                         {}
func (repeat) Yield() (train.Example, error) { return keyValueExample, nil }

func captureOutput(t *testing.T) *bytes.Buffer {
	buf := &bytes.Buffer{}
	previous := Output
	Output = buf
	t.Cleanup(func() { Output = previous })
	return buf
}

func TestReportEval(t *testing.T) {
	buf := captureOutput(t)
	model := newTestModel(t)
	ds := train.NewInMemory("kv", []train.Example{keyValueExample, keyValueExample})
	require.NoError(t, ReportEval(model, 0, []metrics.Interface{metrics.NewMeanWER("Mean Word Error Rate", "WER")}, ds))
	out := buf.String()
	assert.Contains(t, out, "Results on kv:")
	assert.Contains(t, out, "Mean loss")
	assert.Contains(t, out, "(WER)")
}

func TestSprintEvaluation(t *testing.T) {
	model := newTestModel(t)
	ds := train.NewInMemory("kv", []train.Example{keyValueExample})
	var evs []train.Evaluation
	_, _, err := train.Evaluate(model, ds, 0, func(ev train.Evaluation) { evs = append(evs, ev) })
	require.NoError(t, err)
	require.Len(t, evs, 1)
	out := SprintEvaluation(model, evs[0])
	assert.Contains(t, out, "Question:")
	assert.Contains(t, out, "Attention")
	for _, step := range evs[0].Generation.Steps {
		assert.Contains(t, out, step.DBSymbol)
	}
}

func TestProgressBar(t *testing.T) {
	buf := captureOutput(t)
	model := newTestModel(t)
	trainer := train.NewTrainer(model, optimizers.StochasticGradientDescent().WithLearningRate(0.1).Done(),
		metrics.NewMovingAverageAccuracy("Moving Average Accuracy", "~Acc", 0.1))
	loop := train.NewLoop(trainer)
	AttachProgressBar(loop, func() (string, string) { return "Extra", "extra_value" })
	for range 2 {
		_, err := loop.RunSteps(repeat{}, 5)
		require.NoError(t, err)
	}
	out := buf.String()
	assert.Contains(t, out, "Loss (moving average)")
	assert.Contains(t, out, "extra_value")
	assert.Contains(t, out, "10 of 10")
}
