// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nton

import (
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// StepTrace describes one generated step, for diagnostics.
type StepTrace struct {
	// Token generated (the argmax of the output distribution) and its Symbol.
	Token  int
	Symbol string

	// Alpha are the attention weights over the input positions.
	Alpha []float64

	// Gate is the probability given to the RNN distribution by the switch. The database
	// distribution gets 1-Gate.
	Gate float64

	// RNNToken is the argmax of the classifier distribution, and RNNProb its probability.
	RNNToken  int
	RNNSymbol string
	RNNProb   float64

	// DBToken is the argmax of the database lookup distribution, and DBProb its probability.
	DBToken  int
	DBSymbol string
	DBProb   float64
}

// Generation is the result of Model.Forward, and it holds everything Model.Backward needs.
type Generation struct {
	// Y holds the output distributions, one [1, vocabulary size] row per generated step.
	Y []*mat.Dense

	// Tokens are the generated tokens: the argmax of each Y.
	Tokens []int

	// Steps holds the diagnostic trace of each generated step.
	Steps []StepTrace

	numInputs  int
	encoderAux *vars.Vars
	stepsAux   []*vars.Vars
}

// Len is the number of generated steps.
func (g *Generation) Len() int { return len(g.Y) }

// NumInputs is the length of the input sequence.
func (g *Generation) NumInputs() int { return g.numInputs }
