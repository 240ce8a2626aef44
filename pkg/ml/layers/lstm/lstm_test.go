// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package lstm

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/ml/gradcheck"
	"gonum.org/v1/gonum/mat"
)

func TestForwardShapes(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	l := New(3, 4).InitStddev(0.5).ForgetBias(1).Done(rng)
	assert.Equal(t, "[3 16]", tensors.ShapeString(l.Params().Get("Wx")))
	assert.Equal(t, "[4 16]", tensors.ShapeString(l.Params().Get("Wh")))
	assert.Equal(t, 1.0, l.Params().Get("b").At(0, GateForget*4+2))
	assert.Equal(t, 0.0, l.Params().Get("b").At(0, GateInput*4+2))

	h0, c0 := l.InitialState()
	outputs, _ := l.Forward(tensors.Normal(rng, 5, 3, 1), h0, c0)
	require.Len(t, outputs, 2)
	assert.Equal(t, "[5 4]", tensors.ShapeString(outputs[0]))
	assert.Equal(t, "[5 4]", tensors.ShapeString(outputs[1]))
	for _, h := range tensors.Flat(outputs[0]) {
		require.True(t, math.Abs(h) < 1)
	}

	err := exceptions.TryCatch[error](func() { l.Forward(tensors.Normal(rng, 5, 2, 1), h0, c0) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")
}

// Running the whole sequence at once is the same as running it one step at a time, threading the state.
func TestStepByStep(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	l := New(2, 3).InitStddev(1).Done(rng)
	x := tensors.Normal(rng, 4, 2, 1)
	h, c := tensors.Normal(rng, 1, 3, 1), tensors.Normal(rng, 1, 3, 1)
	outputs, _ := l.Forward(x, h, c)
	for step := range 4 {
		stepOutputs, _ := l.Forward(tensors.RowOf(x, step), h, c)
		h, c = stepOutputs[0], stepOutputs[1]
		assert.True(t, tensors.InDelta(tensors.RowOf(outputs[0], step), h, 1e-12), "hidden state at step %d", step)
		assert.True(t, tensors.InDelta(tensors.RowOf(outputs[1], step), c, 1e-12), "cell state at step %d", step)
	}
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	l := New(3, 4).InitStddev(0.5).Done(rng)
	report := gradcheck.ForBlock(l, gradcheck.NormalInputs(1, [2]int{5, 3}, [2]int{1, 4}, [2]int{1, 4})).
		Trials(3).Check(rng)
	require.NoError(t, report.Err())
	require.True(t, report.Clean(), "report: %s", report)

	// Only the hidden states, and only the cell states.
	for _, output := range []int{0, 1} {
		report = gradcheck.ForBlock(l, gradcheck.NormalInputs(1, [2]int{4, 3}, [2]int{1, 4}, [2]int{1, 4})).
			Trials(2).Outputs(output).Check(rng)
		require.True(t, report.Clean(), "output #%d report: %s", output, report)
	}
}

func TestParamGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	l := New(3, 4).InitStddev(0.5).Done(rng)
	x := tensors.Normal(rng, 4, 3, 1)
	h0, c0 := tensors.Normal(rng, 1, 4, 0.5), tensors.Normal(rng, 1, 4, 0.5)
	for _, name := range []string{"Wx", "Wh", "b"} {
		report := gradcheck.ParamAsInput(l, []*mat.Dense{x, h0, c0}, name).Trials(2).Check(rng)
		require.NoError(t, report.Err(), "parameter %q", name)
		require.True(t, report.Clean(), "parameter %q report: %s", name, report)
	}
}

func TestBackwardShapeContract(t *testing.T) {
	rng := rand.New(rand.NewPCG(4, 4))
	l := New(3, 2).Done(rng)
	h0, c0 := l.InitialState()
	_, aux := l.Forward(tensors.Normal(rng, 3, 3, 1), h0, c0)
	err := exceptions.TryCatch[error](func() { l.Backward(aux, tensors.Zeros(2, 2), tensors.Zeros(3, 2)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 0")
}
