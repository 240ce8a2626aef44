// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"math"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"gonum.org/v1/gonum/mat"
)

// MinProbability is the value probabilities are clamped to before taking their log in SeqLoss.
const MinProbability = 1e-12

// SeqLoss returns the negative log-likelihood of the target tokens under the generated output distributions
// ys, and its gradient with respect to each of ys.
//
// Only the overlapping prefix, min(len(target), len(ys)) steps, contributes to the loss: generated steps past
// the end of target, and target tokens never generated, are ignored. dY still has one (zero) gradient per
// generated step, as nton.Model.Backward requires.
func SeqLoss(ys []*mat.Dense, target []int) (loss float64, dY []*mat.Dense) {
	dY = make([]*mat.Dense, len(ys))
	for step, y := range ys {
		dy := tensors.ZerosLike(y)
		dY[step] = dy
		if step >= len(target) {
			continue
		}
		prob := y.At(0, target[step])
		if prob < MinProbability {
			// Clamped: no gradient flows through.
			loss -= math.Log(MinProbability)
			continue
		}
		loss -= math.Log(prob)
		dy.Set(0, target[step], -1/prob)
	}
	return
}
