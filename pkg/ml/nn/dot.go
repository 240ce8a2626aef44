// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Dot is the block `(x, W) -> x·W`, for x shaped `[rows, k]` and W shaped `[k, cols]`.
// A single vector is a 1×k row, so batched and unbatched inputs follow the same rule.
//
// Backward returns `(dy·Wᵗ, xᵗ·dy)`.
type Dot struct{}

var _ Block = Dot{}

// Forward implements Block.
func (Dot) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Dot", "inputs", inputs, 2)
	x, w := inputs[0], inputs[1]
	rows, k := x.Dims()
	tensors.AssertDims("Dot weights", w, k, tensors.UncheckedAxis)
	_, cols := w.Dims()
	y := tensors.Zeros(rows, cols)
	y.Mul(x, w)
	return []*mat.Dense{y}, vars.With("x", x, "W", w)
}

// Backward implements Block.
func (Dot) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Dot", "output gradients", dOutputs, 1)
	x, w, dy := aux.Get("x"), aux.Get("W"), dOutputs[0]
	rows, k := x.Dims()
	_, cols := w.Dims()
	tensors.AssertDims("Dot output gradient", dy, rows, cols)
	dx := tensors.Zeros(rows, k)
	dx.Mul(dy, w.T())
	dw := tensors.Zeros(k, cols)
	dw.Mul(x.T(), dy)
	return []*mat.Dense{dx, dw}
}

// DotForward is a shortcut for Dot{}.Forward(x, w), returning the single output.
func DotForward(x, w *mat.Dense) (*mat.Dense, *vars.Vars) {
	outputs, aux := Dot{}.Forward(x, w)
	return outputs[0], aux
}
