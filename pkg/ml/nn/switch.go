// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Switch softly selects between two candidates: `(p, a, b) -> p·a + (1-p)·b`, where p is a 1×1 gate
// (usually in [0, 1]) and a and b have the same shape.
//
// Backward returns `dp = Σ (a-b)⊙dy`, `da = p·dy` and `db = (1-p)·dy`.
type Switch struct{}

// Forward implements Block.
func (Switch) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Switch", "inputs", inputs, 3)
	p, a, b := inputs[0], inputs[1], inputs[2]
	tensors.AssertDims("Switch gate", p, 1, 1)
	tensors.AssertSameShape("a", a, "b", b)
	gate := p.At(0, 0)
	y := tensors.ZerosLike(a)
	y.Apply(func(i, j int, v float64) float64 { return gate*v + (1-gate)*b.At(i, j) }, a)
	return []*mat.Dense{y}, vars.With("p", p, "a", a, "b", b)
}

// Backward implements Block.
func (Switch) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Switch", "output gradients", dOutputs, 1)
	p, a, b, dy := aux.Get("p"), aux.Get("a"), aux.Get("b"), dOutputs[0]
	tensors.AssertSameShape("a", a, "dy", dy)
	gate := p.At(0, 0)

	diff := tensors.ZerosLike(a)
	diff.Sub(a, b)
	diff.MulElem(diff, dy)
	dp := tensors.Scalar(tensors.Sum(diff))

	da := tensors.ZerosLike(dy)
	da.Scale(gate, dy)
	db := tensors.ZerosLike(dy)
	db.Scale(1-gate, dy)
	return []*mat.Dense{dp, da, db}
}
