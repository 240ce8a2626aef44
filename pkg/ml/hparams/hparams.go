// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hparams holds the hyperparameters of a model and its training.
//
// Hyperparameters are a flat map from name to value, where the default value also defines the type
// the value is parsed to (see commandline.ParseSettings). Read them with GetParamOr or MustGetParam.
package hparams

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/support/xslices"
)

// Params maps hyperparameter names to their values.
//
// Values are usually int, float64, bool, string or slices of those.
type Params map[string]any

const (
	// ParamNumCells is the dimension of the hidden and cell states of the LSTMs, and of the attention.
	ParamNumCells = "n_cells"

	// ParamMaxGen is the maximum number of generated steps per example.
	ParamMaxGen = "max_gen"

	// ParamInitStddev is the standard deviation of the random initialization of the weights.
	ParamInitStddev = "init_stddev"

	// ParamForgetBias is the initial value of the LSTMs' forget gate biases.
	ParamForgetBias = "forget_bias"

	// ParamAmplifyPower is the power used by the database entries sharpening (Amplify). 0 uses the default.
	ParamAmplifyPower = "amplify_power"

	// ParamOptimizer is the name of the optimizer, see optimizers.KnownOptimizers.
	ParamOptimizer = "optimizer"

	// ParamLearningRate is the learning rate of the optimizer.
	ParamLearningRate = "learning_rate"

	// ParamAdamBeta1 is Adam's moving average coefficient of the gradients.
	ParamAdamBeta1 = "adam_beta1"

	// ParamAdamBeta2 is Adam's moving average coefficient of the squared gradients.
	ParamAdamBeta2 = "adam_beta2"

	// ParamAdamEpsilon is added to Adam's denominator.
	ParamAdamEpsilon = "adam_epsilon"

	// ParamCosineSchedulePeriod is the period, in steps, of the cosine annealing of the learning rate.
	// 0 disables the schedule. A negative value -k sets the period to 1/k of the steps of the training run.
	ParamCosineSchedulePeriod = "cosine_schedule_steps"

	// ParamCosineScheduleMinLearningRate is the learning rate at the end of each cosine period.
	ParamCosineScheduleMinLearningRate = "cosine_schedule_min_learning_rate"

	// ParamCosineScheduleWarmUp is the number of steps during which the learning rate increases linearly from
	// the minimum learning rate, before the cosine annealing starts.
	ParamCosineScheduleWarmUp = "cosine_schedule_warmup_steps"

	// ParamClipStepByValue clips each value of the update step, after being scaled by the learning rate,
	// to [-clip_step_by_value, +clip_step_by_value]. 0 disables clipping.
	ParamClipStepByValue = "clip_step_by_value"

	// ParamTrainSteps is the number of training examples to train on (one example per step).
	ParamTrainSteps = "train_steps"

	// ParamEvalStep is the number of training steps between evaluations. 0 disables periodic evaluation.
	ParamEvalStep = "eval_step"

	// ParamEvalExamples is the number of test examples used in each evaluation. 0 uses all of them.
	ParamEvalExamples = "eval_examples"

	// ParamLossWindow is the number of steps in the moving average of the training loss.
	ParamLossWindow = "loss_window"

	// ParamSeed seeds the random number generators of the initialization and of the dataset.
	ParamSeed = "seed"
)

// Defaults returns a new set with the default values of all hyperparameters.
func Defaults() Params {
	return Params{
		ParamNumCells:        16,
		ParamMaxGen:          10,
		ParamInitStddev:      0.1,
		ParamForgetBias:      0.0,
		ParamAmplifyPower:    0.0,
		ParamOptimizer:       "sgd",
		ParamLearningRate:    0.1,
		ParamClipStepByValue: 0.0,
		ParamAdamBeta1:       0.9,
		ParamAdamBeta2:       0.999,
		ParamAdamEpsilon:     1e-7,
		ParamTrainSteps:      50_000,
		ParamEvalStep:        1_000,
		ParamEvalExamples:    100,
		ParamLossWindow:      20,
		ParamSeed:            42,

		ParamCosineSchedulePeriod:          0,
		ParamCosineScheduleMinLearningRate: 0.0,
		ParamCosineScheduleWarmUp:          0,
	}
}

// Clone returns a shallow copy of the parameters.
func (p Params) Clone() Params {
	clone := make(Params, len(p))
	for key, value := range p {
		clone[key] = value
	}
	return clone
}

// Keys returns the sorted names of the parameters.
func (p Params) Keys() []string {
	return xslices.SortedKeys(p)
}

// String lists the parameters in alphabetical order.
func (p Params) String() string {
	var sb strings.Builder
	for ii, key := range p.Keys() {
		if ii > 0 {
			sb.WriteString("; ")
		}
		_, _ = fmt.Fprintf(&sb, "%s=%v", key, p[key])
	}
	return sb.String()
}

// MustGetParam returns the value of the parameter converted to T. It panics if the parameter is not
// set, or if it cannot be converted to T.
//
// Numeric values are converted, so an int parameter can be read as float64.
func MustGetParam[T any](p Params, key string) T {
	var t T
	valueAny, found := p[key]
	if !found || valueAny == nil {
		exceptions.Panicf("hyperparameter %q (of type %T) not set", key, t)
	}
	if value, ok := valueAny.(T); ok {
		return value
	}
	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	if !v.CanConvert(typeOfT) {
		exceptions.Panicf("MustGetParam[%T](%q): value (%T) %#v cannot be converted to %T", t, key, valueAny, valueAny, t)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr returns the value of the parameter converted to T, or defaultValue if it is not set
// (or set to nil).
//
// See MustGetParam for the conversion rules.
func GetParamOr[T any](p Params, key string, defaultValue T) T {
	valueAny, found := p[key]
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](p, key)
}
