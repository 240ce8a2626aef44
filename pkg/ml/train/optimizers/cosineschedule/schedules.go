// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cosineschedule implements a cosine annealing schedule for the learning rate.
// See New for details and example of usage, and original paper description in [1]
//
// [1] https://paperswithcode.com/method/cosine-annealing.
package cosineschedule

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
)

// Config of the cosine annealing schedule strategy.
// New creates it and once configured, call Config.Done to create the Schedule.
type Config struct {
	learningRate, minLearningRate float64
	periodNumSteps                int
	warmUpSteps                   int
}

// Schedule computes the learning rate for each training step.
type Schedule struct {
	config Config
}

// New creates a configuration to apply a cosine annealing schedule for the learning rate.
// See details https://paperswithcode.com/method/cosine-annealing.
//
// Example with only one cycle, and a warmup of 1000 steps, attached to a training loop:
//
//	schedule := cosineschedule.New().
//		LearningRate(0.1).
//		MinLearningRate(0.001).
//		WarmUpSteps(1000).
//		PeriodInSteps(-1).Done()
//	schedule.AttachToLoop(loop, optimizer)
//
// Or more simply, pass the hyperparameters (see hparams.ParamCosineSchedulePeriod,
// hparams.ParamCosineScheduleMinLearningRate and hparams.ParamCosineScheduleWarmUp):
//
//	cosineschedule.New().FromParams(params).Done().AttachToLoop(loop, optimizer)
func New() *Config {
	return &Config{}
}

// FromParams configures the cosine annealing from the hyperparameters hparams.ParamCosineSchedulePeriod,
// hparams.ParamLearningRate, hparams.ParamCosineScheduleMinLearningRate and hparams.ParamCosineScheduleWarmUp.
func (opt *Config) FromParams(params hparams.Params) *Config {
	opt.periodNumSteps = hparams.GetParamOr(params, hparams.ParamCosineSchedulePeriod, 0)
	opt.learningRate = hparams.GetParamOr(params, hparams.ParamLearningRate, 0.0)
	opt.minLearningRate = hparams.GetParamOr(params, hparams.ParamCosineScheduleMinLearningRate, 0.0)
	opt.warmUpSteps = hparams.GetParamOr(params, hparams.ParamCosineScheduleWarmUp, 0)
	return opt
}

// PeriodInSteps sets the number of steps for one period of the cosine schedule. The effective
// learning rate decreases over the given period of training steps and then is restarted at
// each new period.
//
// It's common to use only one period (so no annealing, just a cosine schedule), in which case
// set it to -1: a negative value -k sets the period to 1/k of the steps of the training run.
//
// If set to 0, the cosine annealing schedule is disabled.
func (opt *Config) PeriodInSteps(periodSteps int) *Config {
	opt.periodNumSteps = periodSteps
	return opt
}

// MinLearningRate at the end of the cosine cycle. Defaults to 0.0.
func (opt *Config) MinLearningRate(minLearningRate float64) *Config {
	opt.minLearningRate = minLearningRate
	return opt
}

// WarmUpSteps sets the number of steps to linearly increase the learning rate from the minimum
// learning rate to the base learning rate.
//
// The default is 0, which means no warmup.
func (opt *Config) WarmUpSteps(warmUpSteps int) *Config {
	opt.warmUpSteps = warmUpSteps
	return opt
}

// LearningRate at the start of the cosine cycle.
func (opt *Config) LearningRate(learningRate float64) *Config {
	opt.learningRate = learningRate
	return opt
}

// DefaultLastStep is the value used for the last step of the training while one is not yet known.
const DefaultLastStep = 1_000_000_000

// Done finalizes the configuration and returns the Schedule.
//
// It panics if the schedule is enabled and the learning rate is not > 0, or if the minimum learning rate
// is larger than the learning rate.
func (opt *Config) Done() *Schedule {
	if opt.periodNumSteps != 0 {
		if opt.learningRate <= 0 {
			exceptions.Panicf("cosineschedule: learning rate not configured (or <= 0), set it with LearningRate or "+
				"the hyperparameter %q", hparams.ParamLearningRate)
		}
		if opt.minLearningRate > opt.learningRate {
			exceptions.Panicf("cosineschedule: min learning rate %g > learning rate %g",
				opt.minLearningRate, opt.learningRate)
		}
	}
	if opt.warmUpSteps < 0 {
		exceptions.Panicf("cosineschedule: warm up steps must be >= 0, got %d", opt.warmUpSteps)
	}
	return &Schedule{config: *opt}
}

// Enabled returns whether the schedule changes the learning rate.
func (s *Schedule) Enabled() bool {
	return s.config.periodNumSteps != 0
}

// LearningRate for the given step, counting from 0. endStep is one past the last step of the training run,
// and it is only used if the period is given as a fraction of the run. If negative (not known), DefaultLastStep
// is used.
func (s *Schedule) LearningRate(step, endStep int) float64 {
	c := s.config
	if c.periodNumSteps == 0 {
		return c.learningRate
	}
	var ratio float64
	if step < c.warmUpSteps {
		ratio = float64(step) / float64(c.warmUpSteps)
	} else {
		cosineStep := float64(step - c.warmUpSteps)
		var period float64
		if c.periodNumSteps > 0 {
			period = float64(c.periodNumSteps)
		} else {
			if endStep < 0 {
				endStep = DefaultLastStep
			}
			period = max(float64(endStep-c.warmUpSteps)/float64(-c.periodNumSteps), 1)
		}
		// A cycle represents the fraction of a half-circle (180 degrees, or pi radians).
		cycle := cosineStep / period
		cycle -= math.Floor(cycle)
		ratio = (math.Cos(cycle*math.Pi) + 1) / 2
	}
	return ratio*(c.learningRate-c.minLearningRate) + c.minLearningRate
}

// Priority of the loop hook that sets the learning rate: it runs after other OnStep hooks.
const Priority train.Priority = 1000

// AttachToLoop sets the learning rate of the optimizer before every step of the loop.
// It does nothing if the schedule is not Enabled.
func (s *Schedule) AttachToLoop(loop *train.Loop, optimizer optimizers.Interface) {
	if !s.Enabled() {
		return
	}
	loop.OnStart("cosineschedule", Priority, func(loop *train.Loop, _ train.Dataset) error {
		optimizer.SetLearningRate(s.LearningRate(loop.LoopStep, loop.EndStep))
		return nil
	})
	loop.OnStep("cosineschedule", Priority, func(loop *train.Loop, _ train.StepResult) error {
		optimizer.SetLearningRate(s.LearningRate(loop.LoopStep+1, loop.EndStep))
		return nil
	})
}
