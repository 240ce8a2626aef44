// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package attention implements content-based attention over a sequence of hidden states.
//
// Given the encoder hidden states H (shaped [N, cells]), the decoder's current hidden state g ([1, cells]) and the
// sequence of input embeddings E ([N, embDim]), it computes:
//
//	M     = tanh(H·Wy + 1·(g·Wh))   // [N, cells]
//	alpha = softmax((M·w)ᵗ)         // [1, N]
//	query = alpha·E                 // [1, embDim]
//
// So the query is the embeddings averaged with the alignment of each position. There is no masking: the whole
// sequence is attended.
package attention

import (
	"math/rand/v2"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config for an Attention block. Create it with New and finish it with Done.
type Config struct {
	cells  int
	stddev float64
}

// New creates the configuration of an Attention block over hidden states with the given number of cells.
func New(cells int) *Config {
	return &Config{cells: cells, stddev: 0.1}
}

// InitStddev configures the standard deviation of the normal distribution used to initialize the weights.
// Default is 0.1.
func (c *Config) InitStddev(stddev float64) *Config {
	c.stddev = stddev
	return c
}

// Done creates the Attention block, initializing its weights from src.
//
// The parameters are "Wy" and "Wh", both shaped [cells, cells], and "w" shaped [cells, 1].
func (c *Config) Done(src rand.Source) *Attention {
	params := vars.With(
		"Wy", tensors.Normal(src, c.cells, c.cells, c.stddev),
		"Wh", tensors.Normal(src, c.cells, c.cells, c.stddev),
		"w", tensors.Normal(src, c.cells, 1, c.stddev),
	)
	return &Attention{ParamBags: nn.NewParamBags(params), cells: c.cells}
}

// Attention is the block `(H, g, E) -> query`, with Backward returning `(dH, dg, dE)`.
type Attention struct {
	nn.ParamBags
	cells int
}

var _ nn.Parametrized = (*Attention)(nil)

// Forward implements nn.Block.
func (a *Attention) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Attention", "inputs", inputs, 3)
	hs, g, emb := inputs[0], inputs[1], inputs[2]
	tensors.AssertDims("Attention hidden states", hs, tensors.UncheckedAxis, a.cells)
	numPositions, _ := hs.Dims()
	tensors.AssertDims("Attention decoder state", g, 1, a.cells)
	tensors.AssertDims("Attention embeddings", emb, numPositions, tensors.UncheckedAxis)
	params := a.Params()

	hsWy, wyAux := nn.DotForward(hs, params.Get("Wy"))
	gWh, whAux := nn.DotForward(g, params.Get("Wh"))
	mx := tensors.Clone(hsWy)
	for r := range numPositions {
		floats.Add(mx.RawRowView(r), gWh.RawRowView(0))
	}
	m, tanhAux := nn.ForwardOne(nn.Tanh{}, mx)
	scores, scoresAux := nn.DotForward(m, params.Get("w"))
	alpha, softmaxAux := nn.ForwardOne(nn.Softmax{}, tensors.Clone(scores.T()))
	query, queryAux := nn.DotForward(alpha, emb)

	aux := vars.With(
		"Wy", wyAux, "Wh", whAux, "tanh", tanhAux,
		"w", scoresAux, "softmax", softmaxAux, "query", queryAux,
		"alpha", alpha,
	)
	return []*mat.Dense{query}, aux
}

// Alpha returns the attention weights ([1, N]) computed by the Forward call that produced aux.
func Alpha(aux *vars.Vars) *mat.Dense {
	return aux.Get("alpha")
}

// Backward implements nn.Block.
func (a *Attention) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Attention", "output gradients", dOutputs, 1)
	dQuery := dOutputs[0]

	grads := nn.Dot{}.Backward(aux.Sub("query"), dQuery)
	dAlpha, dEmb := grads[0], grads[1]
	dScoresT := nn.BackwardOne(nn.Softmax{}, aux.Sub("softmax"), dAlpha)
	grads = nn.Dot{}.Backward(aux.Sub("w"), tensors.Clone(dScoresT.T()))
	dM, dw := grads[0], grads[1]
	dMx := nn.BackwardOne(nn.Tanh{}, aux.Sub("tanh"), dM)

	grads = nn.Dot{}.Backward(aux.Sub("Wy"), dMx)
	dHs, dWy := grads[0], grads[1]

	// g·Wh was broadcast to every position, so its gradient is the sum over positions.
	numPositions, _ := dMx.Dims()
	dgWh := tensors.Zeros(1, a.cells)
	for r := range numPositions {
		floats.Add(dgWh.RawRowView(0), dMx.RawRowView(r))
	}
	grads = nn.Dot{}.Backward(aux.Sub("Wh"), dgWh)
	dg, dWh := grads[0], grads[1]

	a.Accumulate("Wy", dWy)
	a.Accumulate("Wh", dWh)
	a.Accumulate("w", dw)
	return []*mat.Dense{dHs, dg, dEmb}
}
