// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math/rand/v2"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Linear is the parametrized affine block `y = x·W + b`, with W shaped `[inputDim, outputDim]` and
// the 1×outputDim bias b added to every row of x.
//
// Its parameters are named "W" and "b".
type Linear struct {
	ParamBags
	inputDim, outputDim int
}

var _ Parametrized = (*Linear)(nil)

// NewLinear creates a Linear block with weights sampled from a normal distribution with the given standard
// deviation, using src, and zero bias.
func NewLinear(src rand.Source, inputDim, outputDim int, stddev float64) *Linear {
	params := vars.With(
		"W", tensors.Normal(src, inputDim, outputDim, stddev),
		"b", tensors.Zeros(1, outputDim),
	)
	return &Linear{ParamBags: NewParamBags(params), inputDim: inputDim, outputDim: outputDim}
}

// Forward implements Block.
func (l *Linear) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Linear", "inputs", inputs, 1)
	x := inputs[0]
	tensors.AssertDims("Linear input", x, tensors.UncheckedAxis, l.inputDim)
	outputs, dotAux := Dot{}.Forward(x, l.params.Get("W"))
	y := outputs[0]
	bias := l.params.Get("b").RawRowView(0)
	rows, _ := y.Dims()
	for r := range rows {
		row := y.RawRowView(r)
		for ii, b := range bias {
			row[ii] += b
		}
	}
	return []*mat.Dense{y}, vars.New().SetVars("dot", dotAux)
}

// Backward implements Block.
func (l *Linear) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Linear", "output gradients", dOutputs, 1)
	dy := dOutputs[0]
	tensors.AssertDims("Linear output gradient", dy, tensors.UncheckedAxis, l.outputDim)
	dInputs := Dot{}.Backward(aux.Sub("dot"), dy)
	l.Accumulate("W", dInputs[1])

	rows, _ := dy.Dims()
	db := tensors.Zeros(1, l.outputDim)
	for r := range rows {
		tensors.AddInPlace(db, 1, tensors.RowOf(dy, r))
	}
	l.Accumulate("b", db)
	return dInputs[:1]
}
