// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn_test

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/ml/gradcheck"
	. "github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
)

func requireClean(t *testing.T, report *gradcheck.Report) {
	t.Helper()
	require.NoError(t, report.Err())
	require.True(t, report.Clean(), "gradient check report: %s", report)
	require.Greater(t, report.Checked, 0)
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 42))
	testCases := []struct {
		name  string
		block Block
		gen   gradcheck.GeneratorFn
	}{
		{"Dot/vector", Dot{}, gradcheck.NormalInputs(1, [2]int{1, 4}, [2]int{4, 3})},
		{"Dot/batch", Dot{}, gradcheck.NormalInputs(1, [2]int{5, 4}, [2]int{4, 3})},
		{"Tanh", Tanh{}, gradcheck.NormalInputs(1, [2]int{3, 4})},
		{"Sigmoid", Sigmoid{}, gradcheck.NormalInputs(1, [2]int{3, 4})},
		{"Softmax", Softmax{}, gradcheck.NormalInputs(1, [2]int{3, 6})},
		{"Switch", Switch{}, func(src rand.Source) []*mat.Dense {
			return []*mat.Dense{
				tensors.Uniform(src, 1, 1, 0, 1),
				tensors.Normal(src, 1, 5, 1),
				tensors.Normal(src, 1, 5, 1),
			}
		}},
		{"Amplify/default", Amplify{}, gradcheck.UniformInputs(0.05, 1, [2]int{2, 5})},
		{"Amplify/power=3", Amplify{Power: 3}, gradcheck.UniformInputs(0.05, 1, [2]int{1, 5})},
		{"Linear", NewLinear(rng, 4, 3, 1), gradcheck.NormalInputs(1, [2]int{2, 4})},
		{"Sequential", NewSequential(NewLinear(rng, 4, 6, 1), Tanh{}, NewLinear(rng, 6, 3, 1), Softmax{}),
			gradcheck.NormalInputs(1, [2]int{1, 4})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			requireClean(t, gradcheck.ForBlock(tc.block, tc.gen).Check(rng))
		})
	}
}

func TestParamGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	linear := NewLinear(rng, 4, 3, 1)
	x := tensors.Normal(rng, 2, 4, 1)
	for _, path := range []string{"W", "b"} {
		requireClean(t, gradcheck.ParamAsInput(linear, []*mat.Dense{x}, path).Trials(3).Check(rng))
	}

	seq := NewSequential(NewLinear(rng, 4, 5, 1), Sigmoid{}, NewLinear(rng, 5, 2, 1), Softmax{})
	assert.Equal(t, []string{"0", "2"}, seq.Params().Names())
	assert.Equal(t, 4*5+5+5*2+2, NumParams(seq))
	for _, path := range []string{"0/W", "0/b", "2/W", "2/b"} {
		requireClean(t, gradcheck.ParamAsInput(seq, []*mat.Dense{x}, path).Trials(3).Check(rng))
	}
}

func TestGradientsAccumulate(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	linear := NewLinear(rng, 3, 2, 1)
	x := tensors.Normal(rng, 1, 3, 1)
	dy := tensors.Row(1, -2)

	_, aux := ForwardOne(linear, x)
	BackwardOne(linear, aux, dy)
	once := tensors.Clone(linear.Grads().Get("W"))
	BackwardOne(linear, aux, dy)
	twice := linear.Grads().Get("W")
	tensors.AddInPlace(once, 1, once)
	assert.True(t, tensors.InDelta(once, twice, 1e-12))

	ZeroGrads(linear)
	assert.Equal(t, 0.0, mat.Norm(linear.Grads().Get("W"), 1))
	assert.Equal(t, 0.0, mat.Norm(linear.Grads().Get("b"), 1))
}

func TestSoftmaxStability(t *testing.T) {
	x := tensors.FromRows([][]float64{
		{1000, 999, -1000},
		{-1e6, -1e6 + 1, -1e6 + 2},
		{0, 0, 0},
		{710, 1e-3, -710},
	})
	y, _ := ForwardOne(Softmax{}, x)
	rows, _ := y.Dims()
	for r := range rows {
		row := y.RawRowView(r)
		var sum float64
		for _, v := range row {
			require.False(t, v < 0, "row %d has negative values: %v", r, row)
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-12, "row %d: %v", r, row)
	}
	assert.InDelta(t, 1.0/3, y.At(2, 0), 1e-12)
}

func TestSwitch(t *testing.T) {
	a := tensors.Row(0.1, 0.7, 0.2)
	b := tensors.Row(0.5, 0.25, 0.25)

	outputs, _ := Switch{}.Forward(tensors.Scalar(1), a, b)
	assert.Equal(t, tensors.Flat(a), tensors.Flat(outputs[0]))
	outputs, _ = Switch{}.Forward(tensors.Scalar(0), a, b)
	assert.Equal(t, tensors.Flat(b), tensors.Flat(outputs[0]))

	// Same candidates: the gate gets no gradient.
	_, aux := Switch{}.Forward(tensors.Scalar(0.3), a, tensors.Clone(a))
	grads := Switch{}.Backward(aux, tensors.Row(1, 2, 3))
	require.Len(t, grads, 3)
	assert.Equal(t, 0.0, grads[0].At(0, 0))
	assert.InDelta(t, 0.3*2, grads[1].At(0, 1), 1e-12)
	assert.InDelta(t, 0.7*3, grads[2].At(0, 2), 1e-12)

	err := exceptions.TryCatch[error](func() { Switch{}.Forward(tensors.Row(0.5, 0.5), a, b) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")
}

func TestAmplify(t *testing.T) {
	y, _ := ForwardOne(Amplify{}, tensors.FromRows([][]float64{{0.5, 0.25, 0.25}, {0, 0, 0}}))
	assert.InDelta(t, 0.25/0.375, y.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0625/0.375, y.At(0, 1), 1e-12)
	assert.Equal(t, 0.0, tensors.Sum(tensors.RowOf(y, 1)))

	require.Panics(t, func() { ForwardOne(Amplify{}, tensors.Row(0.5, -0.1)) })
	require.Panics(t, func() { ForwardOne(Amplify{Power: 0.5}, tensors.Row(0.5, 0.5)) })
}

func TestArityAndShapeContracts(t *testing.T) {
	err := exceptions.TryCatch[error](func() { Dot{}.Forward(tensors.Zeros(1, 3)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 inputs")

	err = exceptions.TryCatch[error](func() { Dot{}.Forward(tensors.Zeros(1, 3), tensors.Zeros(4, 2)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 0")

	_, aux := Tanh{}.Forward(tensors.Zeros(2, 3))
	err = exceptions.TryCatch[error](func() { Tanh{}.Backward(aux, tensors.Zeros(2, 2)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")
}

type vocab []string

func (v vocab) Len() int          { return len(v) }
func (v vocab) Rev(id int) string { return v[id] }

func TestOneHot(t *testing.T) {
	emb := NewOneHot(vocab{"[EOS]", "a", "b"})
	assert.Equal(t, 3, emb.Size())
	e := emb.Embed(2, 0)
	assert.Equal(t, []float64{0, 0, 1, 1, 0, 0}, tensors.Flat(e))
	assert.Equal(t, "b", emb.Rev(2))

	outputs, aux := emb.Forward(tensors.FromRows([][]float64{{1}, {2}}))
	assert.Equal(t, []float64{0, 1, 0, 0, 0, 1}, tensors.Flat(outputs[0]))
	dIDs := emb.Backward(aux, tensors.Zeros(2, 3))
	assert.Equal(t, "[2 1]", tensors.ShapeString(dIDs[0]))

	require.Panics(t, func() { emb.Embed(3) })
}
