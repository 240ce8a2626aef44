// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// DefaultAmplifyPower is the power used by Amplify when Power is left as 0.
const DefaultAmplifyPower = 2.0

// Amplify sharpens each row of a non-negative (probability-like) input: `y_j = x_j^k / Σ_i x_i^k`.
//
// Larger powers concentrate more of the mass on the largest entries. Rows that are all zero are left as zero,
// with zero gradient.
//
// Backward implements `dx_j = k·x_j^(k-1)/s · (dy_j - Σ_i y_i·dy_i)`, with `s = Σ_i x_i^k`.
type Amplify struct {
	// Power k of the sharpening. It must be >= 1. If 0, DefaultAmplifyPower is used.
	Power float64
}

func (a Amplify) power() float64 {
	if a.Power == 0 {
		return DefaultAmplifyPower
	}
	if a.Power < 1 {
		exceptions.Panicf("Amplify: power must be >= 1, got %g", a.Power)
	}
	return a.Power
}

// Forward implements Block.
func (a Amplify) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Amplify", "inputs", inputs, 1)
	k := a.power()
	x := inputs[0]
	rows, _ := x.Dims()
	y := tensors.ZerosLike(x)
	for r := range rows {
		xRow, yRow := x.RawRowView(r), y.RawRowView(r)
		var sum float64
		for ii, v := range xRow {
			if v < 0 {
				exceptions.Panicf("Amplify: input row %d has negative value %g at column %d", r, v, ii)
			}
			yRow[ii] = math.Pow(v, k)
			sum += yRow[ii]
		}
		if sum == 0 {
			continue
		}
		for ii := range yRow {
			yRow[ii] /= sum
		}
	}
	return []*mat.Dense{y}, vars.With("x", x, "y", y)
}

// Backward implements Block.
func (a Amplify) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Amplify", "output gradients", dOutputs, 1)
	k := a.power()
	x, y, dy := aux.Get("x"), aux.Get("y"), dOutputs[0]
	tensors.AssertSameShape("x", x, "dy", dy)
	rows, _ := x.Dims()
	dx := tensors.ZerosLike(x)
	for r := range rows {
		xRow, yRow, dyRow, dxRow := x.RawRowView(r), y.RawRowView(r), dy.RawRowView(r), dx.RawRowView(r)
		var sum, weighted float64
		for ii, v := range xRow {
			sum += math.Pow(v, k)
			weighted += yRow[ii] * dyRow[ii]
		}
		if sum == 0 {
			continue
		}
		for ii, v := range xRow {
			dxRow[ii] = k * math.Pow(v, k-1) / sum * (dyRow[ii] - weighted)
		}
	}
	return []*mat.Dense{dx}
}
