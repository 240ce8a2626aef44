// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
	"gonum.org/v1/gonum/mat"
)

// newKeyValueModel creates a model over the symbols "k" and "v", and a database that maps "k" to "v".
func newKeyValueModel(t *testing.T, seed uint64) *nton.Model {
	vocab := database.NewVocabulary("k", "v")
	vocab.Freeze()
	content := database.NewContent(1)
	require.NoError(t, content.Add(1, "v", "k"))
	db, err := database.NewDBDist(content, vocab, vocab)
	require.NoError(t, err)
	model, err := nton.New(nton.Config{NumCells: 3, MaxGen: 3, InitStddev: 0.1}, vocab, db,
		rand.New(rand.NewPCG(seed, seed)))
	require.NoError(t, err)
	return model
}

// repeatDataset yields the same example forever.
type repeatDataset struct {
	ex Example
}

func (ds *repeatDataset) Name() string             { return "repeat" }
func (ds *repeatDataset) Reset()                   {}
func (ds *repeatDataset) Yield() (Example, error) { return ds.ex, nil }

var keyValueExample = Example{Question: []string{"k"}, Answer: []string{"v"}}

func TestSeqLoss(t *testing.T) {
	ys := []*mat.Dense{tensors.Row(0.25, 0.5, 0.25), tensors.Row(0.1, 0.1, 0.8)}

	// Generated longer than target: the extra step gets a zero gradient.
	loss, dY := SeqLoss(ys, []int{1})
	assert.InDelta(t, math.Log(2), loss, 1e-12)
	require.Len(t, dY, 2)
	assert.Equal(t, []float64{0, -2, 0}, tensors.Flat(dY[0]))
	assert.Equal(t, []float64{0, 0, 0}, tensors.Flat(dY[1]))

	// Target longer than generated: only the overlapping prefix counts.
	loss, dY = SeqLoss(ys, []int{1, 2, 0, 0})
	assert.InDelta(t, math.Log(2)-math.Log(0.8), loss, 1e-12)
	require.Len(t, dY, 2)
	assert.InDelta(t, -1.25, dY[1].At(0, 2), 1e-12)

	// Clamped probability.
	loss, dY = SeqLoss([]*mat.Dense{tensors.Row(1, 0)}, []int{1})
	assert.InDelta(t, -math.Log(MinProbability), loss, 1e-9)
	assert.Equal(t, []float64{0, 0}, tensors.Flat(dY[0]))
}

func TestInMemory(t *testing.T) {
	ds := NewInMemory("three", []Example{keyValueExample, keyValueExample, {Question: []string{"v"}}})
	assert.Equal(t, 3, ds.Len())
	examples, err := Collect(ds, 2)
	require.NoError(t, err)
	assert.Len(t, examples, 2)
	examples, err = Collect(ds, 0)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "v -> ", examples[0].String())
	_, err = ds.Yield()
	assert.Equal(t, io.EOF, err)
	ds.Reset()
	ex, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, "k -> v", ex.String())
}

func TestTrainStep(t *testing.T) {
	model := newKeyValueModel(t, 0)
	before := tensors.Clone(model.Params().GetPath("gate/0/b"))
	trainer := NewTrainer(model, optimizers.StochasticGradientDescent().WithLearningRate(0.1).Done())
	result, err := trainer.TrainStep(keyValueExample)
	require.NoError(t, err)
	assert.Equal(t, []int{model.Vocabulary().MustIndex("v")}, result.Target)
	assert.Greater(t, result.Loss, 0.0)
	require.NotNil(t, result.Generation)
	assert.False(t, tensors.InDelta(before, model.Params().GetPath("gate/0/b"), 1e-12), "parameters should change")

	// Unknown symbols are errors, and nothing is updated.
	before = tensors.Clone(model.Params().GetPath("gate/0/b"))
	_, err = trainer.TrainStep(Example{Question: []string{"unknown"}, Answer: []string{"v"}})
	require.Error(t, err)
	assert.True(t, tensors.InDelta(before, model.Params().GetPath("gate/0/b"), 0))
}

func TestLoop(t *testing.T) {
	model := newKeyValueModel(t, 3)
	accuracy := metrics.NewMeanAccuracy("Mean Accuracy", "acc")
	trainer := NewTrainer(model, optimizers.StochasticGradientDescent().WithLearningRate(0.5).Done(), accuracy)
	loop := NewLoop(trainer).WithLossWindow(5)

	var losses []float64
	var order []string
	var started, ended, everyN, nTimes int
	loop.OnStart("count", 0, func(_ *Loop, ds Dataset) error {
		assert.Equal(t, "repeat", ds.Name())
		started++
		return nil
	})
	loop.OnStep("losses", 10, func(loop *Loop, result StepResult) error {
		losses = append(losses, result.Loss)
		if loop.LoopStep == 0 {
			order = append(order, "second")
		}
		return nil
	})
	loop.OnStep("first", -1, func(loop *Loop, _ StepResult) error {
		if loop.LoopStep == 0 {
			order = append(order, "first")
		}
		return nil
	})
	loop.OnEnd("count", 0, func(loop *Loop, result StepResult) error {
		assert.Equal(t, loop.EndStep, loop.LoopStep)
		ended++
		return nil
	})
	EveryNSteps(loop, 50, "every50", 0, func(*Loop, StepResult) error { everyN++; return nil })
	NTimesDuringLoop(loop, 10, "ten", 0, func(*Loop, StepResult) error { nTimes++; return nil })

	ds := &repeatDataset{ex: keyValueExample}
	result, err := loop.RunSteps(ds, 200)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 1, started)
	assert.Equal(t, 1, ended)
	assert.Equal(t, 4, everyN)
	assert.Equal(t, 10, nTimes)
	assert.Equal(t, 200, loop.LoopStep)
	assert.Equal(t, 0, loop.StartStep)
	assert.Equal(t, 200, loop.EndStep)
	assert.Len(t, loop.TrainStepDurations, 200)
	assert.Greater(t, loop.MedianTrainStepDuration(), time.Duration(0))
	require.Len(t, losses, 200)
	assert.Greater(t, losses[0], 10*losses[199], "loss should drop from %.4f, got %.4f", losses[0], losses[199])
	assert.InDelta(t, (losses[195]+losses[196]+losses[197]+losses[198]+losses[199])/5, loop.MovingAverageLoss(), 1e-9)
	assert.Equal(t, model.Vocabulary().MustIndex("v"), result.Generation.Tokens[0])
	acc := accuracy.Value()
	assert.True(t, acc > 0 && acc <= 1, "accuracy %g", acc)

	// Picks up from where it stopped.
	_, err = loop.RunSteps(ds, 3)
	require.NoError(t, err)
	assert.Equal(t, 200, loop.StartStep)
	assert.Equal(t, 203, loop.LoopStep)
}

func TestLoopErrors(t *testing.T) {
	model := newKeyValueModel(t, 0)
	trainer := NewTrainer(model, optimizers.StochasticGradientDescent().Done())

	// Finite dataset with RunSteps.
	loop := NewLoop(trainer)
	_, err := loop.RunSteps(NewInMemory("one", []Example{keyValueExample}), 2)
	require.ErrorContains(t, err, "reached Dataset end after 1 steps")

	// Failing hook.
	loop = NewLoop(trainer)
	loop.OnStep("fail", 0, func(*Loop, StepResult) error { return errors.New("boom") })
	_, err = loop.RunSteps(&repeatDataset{ex: keyValueExample}, 2)
	require.ErrorContains(t, err, "boom")
	assert.Contains(t, err.Error(), `hook "fail"`)
}

func TestRunEpochs(t *testing.T) {
	model := newKeyValueModel(t, 0)
	trainer := NewTrainer(model, optimizers.StochasticGradientDescent().Done())
	loop := NewLoop(trainer)
	var endSteps []int
	loop.OnStep("end", 0, func(loop *Loop, _ StepResult) error {
		endSteps = append(endSteps, loop.EndStep)
		return nil
	})
	ds := NewInMemory("three", []Example{keyValueExample, keyValueExample, keyValueExample})
	_, err := loop.RunEpochs(ds, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, loop.LoopStep)
	// EndStep is only known after the first epoch.
	assert.Equal(t, []int{-1, -1, -1, 6, 6, 6}, endSteps)

	_, err = loop.RunEpochs(NewInMemory("empty", nil), 1)
	require.ErrorContains(t, err, "yielded no examples")
}

func TestEvaluate(t *testing.T) {
	model := newKeyValueModel(t, 3)
	trainer := NewTrainer(model, optimizers.StochasticGradientDescent().WithLearningRate(0.5).Done())
	_, err := NewLoop(trainer).RunSteps(&repeatDataset{ex: keyValueExample}, 200)
	require.NoError(t, err)

	params := model.Params().Clone()
	ds := NewInMemory("eval", []Example{keyValueExample, keyValueExample})
	var evaluated int
	wer, accuracy := metrics.NewMeanWER("Mean WER", "wer"), metrics.NewMeanAccuracy("Mean Accuracy", "acc")
	meanLoss, values, err := Evaluate(model, ds, 0, func(ev Evaluation) {
		evaluated++
		assert.Equal(t, model.Vocabulary().MustIndex("v"), ev.Generation.Tokens[0])
	}, wer, accuracy)
	require.NoError(t, err)
	assert.Equal(t, 2, evaluated)
	require.Len(t, values, 2)
	assert.Less(t, meanLoss, 0.1)
	assert.GreaterOrEqual(t, values[1], 1.0/3.0)
	// All examples generate the same: WER counts the extra generated tokens.
	assert.InDelta(t, 1/values[1]-1, values[0], 1e-9)

	// Parameters are not changed.
	for _, path := range []string{"encoder/Wx", "gate/0/b", "classifier/0/W"} {
		assert.True(t, tensors.InDelta(params.GetPath(path), model.Params().GetPath(path), 0), path)
	}

	// numExamples limits the evaluation.
	evaluated = 0
	_, _, err = Evaluate(model, ds, 1, func(Evaluation) { evaluated++ })
	require.NoError(t, err)
	assert.Equal(t, 1, evaluated)

	_, _, err = Evaluate(model, NewInMemory("empty", nil), 0, nil)
	require.ErrorContains(t, err, "no examples")
}
