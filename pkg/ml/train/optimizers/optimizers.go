// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package optimizers implements the optimizers that update a model's parameters from its accumulated
// gradients. They all implement optimizers.Interface.
package optimizers

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"github.com/vishalbelsare/nton/pkg/support/xslices"
	"gonum.org/v1/gonum/mat"
)

// Interface implemented by optimizer implementations.
type Interface interface {
	// Update applies one optimization step to params, given the gradients of the loss with respect to them.
	// grads must have exactly the same structure (names and shapes) as params, otherwise an error is
	// returned and nothing is updated.
	//
	// Update doesn't zero the gradients.
	Update(params, grads *vars.Vars) error

	// LearningRate currently in use.
	LearningRate() float64

	// SetLearningRate changes the learning rate used by the following updates, e.g. by a schedule.
	SetLearningRate(learningRate float64)

	// Clear resets any state kept by the optimizer (e.g. moments).
	Clear()
}

var (
	// KnownOptimizers is a map of known optimizers by name to their constructors from hyperparameters.
	KnownOptimizers = map[string]func(params hparams.Params) Interface{
		"sgd":  func(params hparams.Params) Interface { return StochasticGradientDescent().FromParams(params).Done() },
		"adam": func(params hparams.Params) Interface { return Adam().FromParams(params).Done() },
	}
)

const (
	// SGDDefaultLearningRate is used by SGD if no learning rate is set.
	SGDDefaultLearningRate = 0.1
)

// FromParams creates the optimizer named in the hyperparameter hparams.ParamOptimizer. The default is "sgd".
func FromParams(params hparams.Params) Interface {
	return ByName(params, hparams.GetParamOr(params, hparams.ParamOptimizer, "sgd"))
}

// ByName returns an optimizer given the name, or panics if one does not exist.
func ByName(params hparams.Params, optName string) Interface {
	optBuilder, found := KnownOptimizers[optName]
	if !found {
		exceptions.Panicf("Unknown optimizer %q, valid values are %v.", optName, xslices.SortedKeys(KnownOptimizers))
	}
	return optBuilder(params)
}

// ClipStepByValue clips each value of step to [-clipByValue, +clipByValue], in place.
// If clipByValue is 0 it does nothing.
func ClipStepByValue(step *mat.Dense, clipByValue float64) {
	if clipByValue == 0 {
		return
	}
	step.Apply(func(_, _ int, v float64) float64 {
		return math.Max(-clipByValue, math.Min(clipByValue, v))
	}, step)
}

// SGDConfig holds the configuration of a plain stochastic gradient descent optimizer.
// Create it with StochasticGradientDescent, and call Done when finished configuring.
type SGDConfig struct {
	learningRate, clipByValue float64
}

// StochasticGradientDescent creates the configuration of an optimizer that updates each parameter with
// `param -= learningRate * grad`, with the step optionally clipped by value.
func StochasticGradientDescent() *SGDConfig {
	return &SGDConfig{learningRate: SGDDefaultLearningRate}
}

// FromParams configures the optimizer from the hyperparameters hparams.ParamLearningRate and
// hparams.ParamClipStepByValue.
func (c *SGDConfig) FromParams(params hparams.Params) *SGDConfig {
	c.learningRate = hparams.GetParamOr(params, hparams.ParamLearningRate, c.learningRate)
	c.clipByValue = hparams.GetParamOr(params, hparams.ParamClipStepByValue, c.clipByValue)
	return c
}

// WithLearningRate sets the learning rate. Default is SGDDefaultLearningRate.
func (c *SGDConfig) WithLearningRate(learningRate float64) *SGDConfig {
	c.learningRate = learningRate
	return c
}

// ClipStepByValue sets the clipping of each value of the update step. 0 (the default) disables it.
func (c *SGDConfig) ClipStepByValue(clipByValue float64) *SGDConfig {
	c.clipByValue = clipByValue
	return c
}

// Done returns the configured optimizer.
func (c *SGDConfig) Done() Interface {
	if c.learningRate <= 0 {
		exceptions.Panicf("SGD learning rate must be > 0, got %g", c.learningRate)
	}
	return &sgd{config: *c}
}

type sgd struct {
	config SGDConfig
}

// Update implements Interface.
func (o *sgd) Update(params, grads *vars.Vars) error {
	if o.config.clipByValue == 0 {
		return params.IncrementBy(grads, -o.config.learningRate)
	}
	if err := params.Compatible(grads); err != nil {
		return errors.WithMessage(err, "SGD update")
	}
	params.Walk(func(path string, param *mat.Dense) {
		step := mat.DenseCopyOf(grads.GetPath(path))
		step.Scale(o.config.learningRate, step)
		ClipStepByValue(step, o.config.clipByValue)
		param.Sub(param, step)
	})
	return nil
}

// LearningRate implements Interface.
func (o *sgd) LearningRate() float64 { return o.config.learningRate }

// SetLearningRate implements Interface.
func (o *sgd) SetLearningRate(learningRate float64) { o.config.learningRate = learningRate }

// Clear implements Interface. SGD has no state.
func (o *sgd) Clear() {}
