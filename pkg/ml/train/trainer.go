// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package train holds tools to train an NTON model: the sequence loss, the Trainer that executes one
// training step per example, the Loop that runs the steps and calls hooks, and evaluation.
package train

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
	"gonum.org/v1/gonum/mat"
)

// Trainer executes one training step per example: zero the gradients, generate, compute the
// loss and its gradients, run the model backward, and update the parameters with the optimizer.
type Trainer struct {
	model        *nton.Model
	optimizer    optimizers.Interface
	trainMetrics []metrics.Interface
}

// StepResult is the outcome of one training step.
type StepResult struct {
	Example Example

	// Target is the answer as token ids.
	Target []int

	// Generation is what the model generated before the parameters update.
	Generation *nton.Generation

	// Loss of the generation, see SeqLoss.
	Loss float64
}

// NewTrainer creates a trainer for the model. trainMetrics are updated after every step with the
// target and the generated tokens.
func NewTrainer(model *nton.Model, optimizer optimizers.Interface, trainMetrics ...metrics.Interface) *Trainer {
	return &Trainer{
		model:        model,
		optimizer:    optimizer,
		trainMetrics: trainMetrics,
	}
}

// Model being trained.
func (t *Trainer) Model() *nton.Model { return t.model }

// Optimizer used to update the parameters.
func (t *Trainer) Optimizer() optimizers.Interface { return t.optimizer }

// Metrics returns the train metrics.
func (t *Trainer) Metrics() []metrics.Interface { return t.trainMetrics }

// ResetTrainMetrics resets the train metrics, typically at the start of a training run.
func (t *Trainer) ResetTrainMetrics() {
	for _, m := range t.trainMetrics {
		m.Reset()
	}
}

// TrainStep trains the model on one example.
//
// Contract violations (panics) during the forward or backward passes are returned as errors. If the loss is
// NaN or infinite, an error is returned and the parameters are not updated.
func (t *Trainer) TrainStep(ex Example) (result StepResult, err error) {
	result.Example = ex
	embeddings, start, target, err := t.model.PrepareExample(ex.Question, ex.Answer)
	if err != nil {
		return result, err
	}
	result.Target = target

	err = exceptions.TryCatch[error](func() {
		t.model.ZeroGrads()
		result.Generation = t.model.Forward(embeddings, start)
		var dY []*mat.Dense
		result.Loss, dY = SeqLoss(result.Generation.Y, target)
		t.model.Backward(result.Generation, dY)
	})
	if err != nil {
		return result, errors.WithMessagef(err, "TrainStep(%s)", ex)
	}
	if math.IsNaN(result.Loss) {
		return result, errors.Errorf("loss is NaN for example %q, training interrupted", ex)
	}
	if math.IsInf(result.Loss, 0) {
		return result, errors.Errorf("loss is infinity (%f) for example %q, training interrupted", result.Loss, ex)
	}
	if err = t.model.Update(t.optimizer); err != nil {
		return result, errors.WithMessage(err, "TrainStep failed to update parameters")
	}
	for _, m := range t.trainMetrics {
		m.Update(target, result.Generation.Tokens)
	}
	return result, nil
}
