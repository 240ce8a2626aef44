// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package optimizers

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"gonum.org/v1/gonum/mat"
)

// AdamDefaultLearningRate is used by Adam if no learning rate is set.
const AdamDefaultLearningRate = 0.001

// Adam optimization is a stochastic gradient descent method based on an adaptive estimation of first-order and
// second-order moments. According to [Kingma et al., 2014](http://arxiv.org/abs/1412.6980),
// the method is "*computationally efficient, has little memory requirement, invariant to diagonal rescaling of
// gradients, and is well suited for problems that are large in terms of data/parameters*".
//
// It returns a configuration object that can be used to set its parameters. Once configured, call AdamConfig.Done.
//
// The step is clipped by value if configured (see AdamConfig.ClipStepByValue).
func Adam() *AdamConfig {
	return &AdamConfig{
		learningRate: AdamDefaultLearningRate,
		beta1:        0.9,
		beta2:        0.999,
		epsilon:      1e-7,
	}
}

// AdamConfig holds the configuration for an Adam optimizer, create using Adam(), and once configured
// call Done.
type AdamConfig struct {
	learningRate float64
	beta1, beta2 float64
	epsilon      float64
	clipByValue  float64
}

// FromParams configures Adam with the hyperparameters: hparams.ParamLearningRate, hparams.ParamAdamBeta1,
// hparams.ParamAdamBeta2, hparams.ParamAdamEpsilon and hparams.ParamClipStepByValue.
func (c *AdamConfig) FromParams(params hparams.Params) *AdamConfig {
	c.learningRate = hparams.GetParamOr(params, hparams.ParamLearningRate, c.learningRate)
	c.beta1 = hparams.GetParamOr(params, hparams.ParamAdamBeta1, c.beta1)
	c.beta2 = hparams.GetParamOr(params, hparams.ParamAdamBeta2, c.beta2)
	c.epsilon = hparams.GetParamOr(params, hparams.ParamAdamEpsilon, c.epsilon)
	c.clipByValue = hparams.GetParamOr(params, hparams.ParamClipStepByValue, c.clipByValue)
	return c
}

// WithLearningRate sets the learning rate. Default is AdamDefaultLearningRate.
func (c *AdamConfig) WithLearningRate(learningRate float64) *AdamConfig {
	c.learningRate = learningRate
	return c
}

// Betas sets the moving average coefficients of the 1st and 2nd moments. Defaults are 0.9 and 0.999.
func (c *AdamConfig) Betas(beta1, beta2 float64) *AdamConfig {
	c.beta1, c.beta2 = beta1, beta2
	return c
}

// Epsilon used in the denominator. Default is 1e-7.
func (c *AdamConfig) Epsilon(epsilon float64) *AdamConfig {
	c.epsilon = epsilon
	return c
}

// ClipStepByValue sets the clipping of each value of the update step. 0 (the default) disables it.
func (c *AdamConfig) ClipStepByValue(clipByValue float64) *AdamConfig {
	c.clipByValue = clipByValue
	return c
}

// Done returns the configured optimizer.
func (c *AdamConfig) Done() Interface {
	if c.learningRate <= 0 {
		exceptions.Panicf("Adam learning rate must be > 0, got %g", c.learningRate)
	}
	if c.beta1 < 0 || c.beta1 >= 1 || c.beta2 < 0 || c.beta2 >= 1 {
		exceptions.Panicf("Adam betas must be in [0, 1), got %g and %g", c.beta1, c.beta2)
	}
	return &adam{config: *c}
}

type adam struct {
	config AdamConfig

	// moment1, moment2 have the same structure as the parameters, created on the first update.
	moment1, moment2 *vars.Vars
	step             int
}

// Update implements Interface.
func (o *adam) Update(params, grads *vars.Vars) error {
	if err := params.Compatible(grads); err != nil {
		return errors.WithMessage(err, "Adam update")
	}
	if o.moment1 == nil {
		o.moment1, o.moment2 = params.ZerosLike(), params.ZerosLike()
	} else if err := params.Compatible(o.moment1); err != nil {
		return errors.WithMessage(err, "Adam update: parameters changed since the first update, call Clear")
	}
	o.step++
	beta1, beta2 := o.config.beta1, o.config.beta2
	debiasTermBeta1 := 1 / (1 - math.Pow(beta1, float64(o.step)))
	debiasTermBeta2 := 1 / (1 - math.Pow(beta2, float64(o.step)))
	params.Walk(func(path string, param *mat.Dense) {
		grad := grads.GetPath(path)
		moment1, moment2 := o.moment1.GetPath(path), o.moment2.GetPath(path)
		step := mat.DenseCopyOf(grad)
		step.Apply(func(r, c int, g float64) float64 {
			m1 := beta1*moment1.At(r, c) + (1-beta1)*g
			m2 := beta2*moment2.At(r, c) + (1-beta2)*g*g
			moment1.Set(r, c, m1)
			moment2.Set(r, c, m2)
			return o.config.learningRate * m1 * debiasTermBeta1 / (math.Sqrt(m2*debiasTermBeta2) + o.config.epsilon)
		}, step)
		ClipStepByValue(step, o.config.clipByValue)
		param.Sub(param, step)
	})
	return nil
}

// LearningRate implements Interface.
func (o *adam) LearningRate() float64 { return o.config.learningRate }

// SetLearningRate implements Interface.
func (o *adam) SetLearningRate(learningRate float64) { o.config.learningRate = learningRate }

// Clear implements Interface: it drops the moments and resets the step count.
func (o *adam) Clear() {
	o.moment1, o.moment2 = nil, nil
	o.step = 0
}
