// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package lstm provides a "Long Short-Term Memory RNN" (LSTM) [1] block, unrolled over an explicit time axis.
//
// An LSTM is a type of recurrent neural network that addresses the vanishing gradient problem in vanilla RNNs through
// additional cells, input and output gates. Intuitively, vanishing gradients are solved through additional additive
// components, and forget gate activations, that allow the gradients to flow through the network without vanishing
// as quickly.
//
// The block takes the sequence X shaped [T, inputDim] and the initial state (h0, c0), each shaped [1, cells], and
// returns all the hidden states H and all the cell states C, each shaped [T, cells]: later blocks may read any past
// state, not only the last one. To run one step at a time (as a decoder does), call it with T=1 and thread the
// returned state into the next call.
//
// The parameters are shared across time steps, so Backward sums their gradients over all steps.
//
// See discussions in [2].
//
// [1] https://www.bioinf.jku.at/publications/older/2604.pdf, Hochreiter & Schmidhuber, 1997
// [2] https://colah.github.io/posts/2015-08-Understanding-LSTMs/
package lstm

import (
	"math"
	"math/rand/v2"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
)

// Gate indices: the columns of the parameters are organized in 4 blocks of `cells` columns each,
// in this order.
const (
	GateInput = iota
	GateForget
	GateOutput
	GateCandidate
	NumGates
)

// Config holds an LSTM configuration. Create it with New, and once finished configuring, create the
// block with Done.
type Config struct {
	inputDim, cells    int
	stddev, forgetBias float64
}

// New creates the configuration of an LSTM taking inputs with inputDim features, and with the given number of cells
// (the dimension of the hidden and cell states).
func New(inputDim, cells int) *Config {
	return &Config{
		inputDim: inputDim,
		cells:    cells,
		stddev:   0.1,
	}
}

// InitStddev configures the standard deviation of the normal distribution used to initialize the weights.
// Default is 0.1.
func (c *Config) InitStddev(stddev float64) *Config {
	c.stddev = stddev
	return c
}

// ForgetBias configures the initial value of the forget gate bias. Default is 0.
func (c *Config) ForgetBias(bias float64) *Config {
	c.forgetBias = bias
	return c
}

// Done creates the LSTM block, initializing its weights from src.
//
// The parameters are:
//   - "Wx": shaped [inputDim, 4*cells], the input projection.
//   - "Wh": shaped [cells, 4*cells], the recurrent projection.
//   - "b": shaped [1, 4*cells], the biases.
func (c *Config) Done(src rand.Source) *LSTM {
	n := c.cells
	b := tensors.Zeros(1, NumGates*n)
	for ii := range n {
		b.Set(0, GateForget*n+ii, c.forgetBias)
	}
	params := vars.With(
		"Wx", tensors.Normal(src, c.inputDim, NumGates*n, c.stddev),
		"Wh", tensors.Normal(src, n, NumGates*n, c.stddev),
		"b", b,
	)
	return &LSTM{ParamBags: nn.NewParamBags(params), inputDim: c.inputDim, cells: n}
}

// LSTM is the recurrent block: Forward(X, h0, c0) -> (H, C), Backward(aux, dH, dC) -> (dX, dh0, dc0).
type LSTM struct {
	nn.ParamBags
	inputDim, cells int
}

var _ nn.Parametrized = (*LSTM)(nil)

// Cells returns the dimension of the hidden and cell states.
func (l *LSTM) Cells() int { return l.cells }

// InputDim returns the dimension of the inputs.
func (l *LSTM) InputDim() int { return l.inputDim }

// InitialState returns zero hidden and cell states, each shaped [1, cells].
func (l *LSTM) InitialState() (h0, c0 *mat.Dense) {
	return tensors.Zeros(1, l.cells), tensors.Zeros(1, l.cells)
}

// gate returns the view of the gate block in a row of 4*cells values.
func (l *LSTM) gate(row []float64, gate int) []float64 {
	return row[gate*l.cells : (gate+1)*l.cells]
}

// Forward implements nn.Block.
func (l *LSTM) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("LSTM", "inputs", inputs, 3)
	x, h0, c0 := inputs[0], inputs[1], inputs[2]
	tensors.AssertDims("LSTM input", x, tensors.UncheckedAxis, l.inputDim)
	tensors.AssertDims("LSTM initial hidden state", h0, 1, l.cells)
	tensors.AssertDims("LSTM initial cell state", c0, 1, l.cells)
	numSteps, _ := x.Dims()
	n := l.cells
	wh, b := l.Params().Get("Wh"), l.Params().Get("b").RawRowView(0)

	// The input projection of all steps at once: gates holds the pre-activations, and is then
	// overwritten in place with the activations.
	projected, inputAux := nn.Dot{}.Forward(x, l.Params().Get("Wx"))
	gates := projected[0]
	hs, cs, tanhCs := tensors.Zeros(numSteps, n), tensors.Zeros(numSteps, n), tensors.Zeros(numSteps, n)
	recurrent := tensors.Zeros(1, NumGates*n)
	hPrev, cPrev := h0.RawRowView(0), c0.RawRowView(0)
	for t := range numSteps {
		recurrent.Mul(mat.NewDense(1, n, hPrev), wh)
		row := gates.RawRowView(t)
		for ii, r := range recurrent.RawRowView(0) {
			row[ii] += r + b[ii]
		}
		for gate := range NumGates {
			values := l.gate(row, gate)
			for ii, v := range values {
				if gate == GateCandidate {
					values[ii] = math.Tanh(v)
				} else {
					values[ii] = nn.SigmoidFn(v)
				}
			}
		}
		i, f, o, g := l.gate(row, GateInput), l.gate(row, GateForget), l.gate(row, GateOutput), l.gate(row, GateCandidate)
		h, c, tanhC := hs.RawRowView(t), cs.RawRowView(t), tanhCs.RawRowView(t)
		for ii := range n {
			c[ii] = f[ii]*cPrev[ii] + i[ii]*g[ii]
			tanhC[ii] = math.Tanh(c[ii])
			h[ii] = o[ii] * tanhC[ii]
		}
		hPrev, cPrev = h, c
	}
	aux := vars.With(
		"h0", h0, "c0", c0,
		"gates", gates, "H", hs, "C", cs, "tanhC", tanhCs,
		"input", inputAux,
	)
	return []*mat.Dense{hs, cs}, aux
}

// Backward implements nn.Block.
//
// It walks the time axis in reverse, carrying the gradients with respect to the previous hidden and cell states.
func (l *LSTM) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("LSTM", "output gradients", dOutputs, 2)
	hs, cs, tanhCs, gates := aux.Get("H"), aux.Get("C"), aux.Get("tanhC"), aux.Get("gates")
	dH, dC := dOutputs[0], dOutputs[1]
	tensors.AssertSameShape("H", hs, "dH", dH)
	tensors.AssertSameShape("C", cs, "dC", dC)
	numSteps, n := hs.Dims()
	wh := l.Params().Get("Wh")

	dPre := tensors.ZerosLike(gates)
	dhNext, dcNext := tensors.Zeros(1, n), tensors.Zeros(1, n)
	dWh := tensors.Zeros(n, NumGates*n)
	for t := numSteps - 1; t >= 0; t-- {
		hPrev, cPrev := aux.Get("h0"), aux.Get("c0")
		if t > 0 {
			hPrev, cPrev = tensors.RowOf(hs, t-1), tensors.RowOf(cs, t-1)
		}
		row, dRow := gates.RawRowView(t), dPre.RawRowView(t)
		i, f, o, g := l.gate(row, GateInput), l.gate(row, GateForget), l.gate(row, GateOutput), l.gate(row, GateCandidate)
		di, df, do, dg := l.gate(dRow, GateInput), l.gate(dRow, GateForget), l.gate(dRow, GateOutput), l.gate(dRow, GateCandidate)
		tanhC, cPrevRow := tanhCs.RawRowView(t), cPrev.RawRowView(0)
		dhRow, dcRow := dH.RawRowView(t), dC.RawRowView(t)
		dhCarry, dcCarry := dhNext.RawRowView(0), dcNext.RawRowView(0)
		for ii := range n {
			dh := dhRow[ii] + dhCarry[ii]
			dc := dcRow[ii] + dcCarry[ii] + dh*o[ii]*(1-tanhC[ii]*tanhC[ii])
			do[ii] = dh * tanhC[ii] * o[ii] * (1 - o[ii])
			di[ii] = dc * g[ii] * i[ii] * (1 - i[ii])
			df[ii] = dc * cPrevRow[ii] * f[ii] * (1 - f[ii])
			dg[ii] = dc * i[ii] * (1 - g[ii]*g[ii])
			dcCarry[ii] = dc * f[ii]
		}

		// Recurrent projection: dh_{t-1} = dPre_t·Whᵗ, dWh += h_{t-1}ᵗ·dPre_t.
		dPreT := mat.NewDense(1, NumGates*n, dRow)
		dhNext.Mul(dPreT, wh.T())
		var step mat.Dense
		step.Mul(hPrev.T(), dPreT)
		dWh.Add(dWh, &step)
	}

	dInput := nn.Dot{}.Backward(aux.Sub("input"), dPre)
	l.Accumulate("Wx", dInput[1])
	l.Accumulate("Wh", dWh)
	db := tensors.Zeros(1, NumGates*n)
	for t := range numSteps {
		tensors.AddInPlace(db, 1, tensors.RowOf(dPre, t))
	}
	l.Accumulate("b", db)
	return []*mat.Dense{dInput[0], dhNext, dcNext}
}
