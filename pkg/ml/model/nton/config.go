// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nton

import (
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
)

// Config of an NTON model.
type Config struct {
	// NumCells is the dimension of the hidden and cell states of both LSTMs, and of the attention.
	NumCells int

	// MaxGen is the maximum number of generated steps. Generation stops earlier after emitting the end-of-sequence
	// symbol.
	MaxGen int

	// InitStddev is the standard deviation of the normal initialization of all the weights.
	InitStddev float64

	// ForgetBias is the initial value of the forget gate biases of both LSTMs.
	ForgetBias float64
}

// DefaultConfig returns the configuration built from hparams.Defaults.
func DefaultConfig() Config {
	return ConfigFromParams(hparams.Defaults())
}

// ConfigFromParams creates the configuration from the hyperparameters hparams.ParamNumCells,
// hparams.ParamMaxGen, hparams.ParamInitStddev and hparams.ParamForgetBias.
// Missing hyperparameters take their default values.
func ConfigFromParams(params hparams.Params) Config {
	defaults := hparams.Defaults()
	return Config{
		NumCells:   hparams.GetParamOr(params, hparams.ParamNumCells, hparams.MustGetParam[int](defaults, hparams.ParamNumCells)),
		MaxGen:     hparams.GetParamOr(params, hparams.ParamMaxGen, hparams.MustGetParam[int](defaults, hparams.ParamMaxGen)),
		InitStddev: hparams.GetParamOr(params, hparams.ParamInitStddev, hparams.MustGetParam[float64](defaults, hparams.ParamInitStddev)),
		ForgetBias: hparams.GetParamOr(params, hparams.ParamForgetBias, hparams.MustGetParam[float64](defaults, hparams.ParamForgetBias)),
	}
}

// Validate returns an error if the configuration can't be used to build a model.
func (c Config) Validate() error {
	if c.NumCells < 1 {
		return errors.Errorf("NTON config: NumCells must be >= 1, got %d", c.NumCells)
	}
	if c.MaxGen < 1 {
		return errors.Errorf("NTON config: MaxGen must be >= 1, got %d", c.MaxGen)
	}
	if c.InitStddev <= 0 {
		return errors.Errorf("NTON config: InitStddev must be > 0, got %g", c.InitStddev)
	}
	return nil
}
