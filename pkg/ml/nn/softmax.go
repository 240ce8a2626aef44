// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Softmax computes the normalized exponential over each row (the last axis).
//
// It's the equivalent to `exp(x) / rowsum(exp(x))`, but the row maximum is subtracted first, so large
// inputs don't overflow.
//
// Backward implements `dx = y ⊙ (dy - rowsum(y ⊙ dy))`.
type Softmax struct{}

// Forward implements Block.
func (Softmax) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Softmax", "inputs", inputs, 1)
	x := inputs[0]
	rows, _ := x.Dims()
	y := tensors.ZerosLike(x)
	for r := range rows {
		SoftmaxRow(y.RawRowView(r), x.RawRowView(r))
	}
	return []*mat.Dense{y}, vars.With("y", y)
}

// SoftmaxRow writes the softmax of logits into dst, which must have the same length.
func SoftmaxRow(dst, logits []float64) {
	maxLogit := floats.Max(logits)
	var sum float64
	for ii, v := range logits {
		e := math.Exp(v - maxLogit)
		dst[ii] = e
		sum += e
	}
	floats.Scale(1/sum, dst)
}

// Backward implements Block.
func (Softmax) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Softmax", "output gradients", dOutputs, 1)
	y, dy := aux.Get("y"), dOutputs[0]
	tensors.AssertSameShape("y", y, "dy", dy)
	rows, _ := y.Dims()
	dx := tensors.ZerosLike(y)
	for r := range rows {
		yRow, dyRow, dxRow := y.RawRowView(r), dy.RawRowView(r), dx.RawRowView(r)
		dotProduct := floats.Dot(yRow, dyRow)
		for ii := range dxRow {
			dxRow[ii] = yRow[ii] * (dyRow[ii] - dotProduct)
		}
	}
	return []*mat.Dense{dx}
}
