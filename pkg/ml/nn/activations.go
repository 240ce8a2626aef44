// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// elementwise implements a block applying fn to each element. The local derivative is computed from the
// output only, so aux retains only the output.
type elementwise struct {
	name       string
	fn         func(x float64) float64
	derivative func(y float64) float64
}

func (e elementwise) forward(inputs []*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity(e.name, "inputs", inputs, 1)
	x := inputs[0]
	y := tensors.ZerosLike(x)
	y.Apply(func(_, _ int, v float64) float64 { return e.fn(v) }, x)
	return []*mat.Dense{y}, vars.With("y", y)
}

func (e elementwise) backward(aux *vars.Vars, dOutputs []*mat.Dense) []*mat.Dense {
	tensors.AssertArity(e.name, "output gradients", dOutputs, 1)
	y, dy := aux.Get("y"), dOutputs[0]
	tensors.AssertSameShape("y", y, "dy", dy)
	dx := tensors.ZerosLike(y)
	dx.Apply(func(i, j int, v float64) float64 { return v * e.derivative(y.At(i, j)) }, dy)
	return []*mat.Dense{dx}
}

// Tanh is the elementwise hyperbolic tangent block. Backward scales the gradient by `1 - y²`.
type Tanh struct{}

var tanh = elementwise{
	name:       "Tanh",
	fn:         math.Tanh,
	derivative: func(y float64) float64 { return 1 - y*y },
}

// Forward implements Block.
func (Tanh) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) { return tanh.forward(inputs) }

// Backward implements Block.
func (Tanh) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	return tanh.backward(aux, dOutputs)
}

// Sigmoid is the elementwise logistic block `1 / (1 + exp(-x))`. Backward scales the gradient by `y(1-y)`.
type Sigmoid struct{}

var sigmoid = elementwise{
	name:       "Sigmoid",
	fn:         SigmoidFn,
	derivative: func(y float64) float64 { return y * (1 - y) },
}

// SigmoidFn is the logistic function, computed without overflow for large negative inputs.
func SigmoidFn(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Forward implements Block.
func (Sigmoid) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) { return sigmoid.forward(inputs) }

// Backward implements Block.
func (Sigmoid) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	return sigmoid.backward(aux, dOutputs)
}
