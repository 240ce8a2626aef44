// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	z := Zeros(2, 3)
	r, c := z.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, 0.0, Sum(z))

	row := Row(1, 2, 3)
	assert.Equal(t, "[1 3]", ShapeString(row))
	assert.Equal(t, 6.0, Sum(row))

	m := FromRows([][]float64{{1, 2}, {3, 4}})
	assert.Equal(t, 3.0, m.At(1, 0))
	assert.Equal(t, []float64{1, 2, 3, 4}, Flat(m))

	oh := OneHotRow(4, 2)
	assert.Equal(t, []float64{0, 0, 1, 0}, Flat(oh))

	require.Panics(t, func() { Zeros(0, 3) })
	require.Panics(t, func() { FromRows([][]float64{{1, 2}, {3}}) })
}

func TestRandomIsReproducible(t *testing.T) {
	a := Normal(rand.NewPCG(42, 42), 3, 4, 0.1)
	b := Normal(rand.NewPCG(42, 42), 3, 4, 0.1)
	require.True(t, InDelta(a, b, 0))
	u := Uniform(rand.NewPCG(1, 2), 10, 10, -1, 1)
	for _, v := range Flat(u) {
		require.True(t, v >= -1 && v < 1)
	}
}

func TestArgmaxAndCountMax(t *testing.T) {
	row := Row(0.1, 0.5, 0.2, 0.5)
	assert.Equal(t, 1, Argmax(row))
	assert.Equal(t, 2, CountMax(row))
	assert.Equal(t, 4, CountMax(Row(1, 1, 1, 1)))
}

func TestAddInPlace(t *testing.T) {
	dst := Row(1, 2, 3)
	AddInPlace(dst, -0.5, Row(2, 2, 2))
	assert.Equal(t, []float64{0, 1, 2}, Flat(dst))
	require.Panics(t, func() { AddInPlace(dst, 1, Row(1, 2)) })
}

func TestAssertDims(t *testing.T) {
	m := Zeros(3, 5)
	require.NotPanics(t, func() { AssertDims("m", m, 3, 5) })
	require.NotPanics(t, func() { AssertDims("m", m, UncheckedAxis, 5) })
	err := exceptions.TryCatch[error](func() { AssertDims("m", m, 3, 4) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")
	err = CheckDims("m", m, 2, UncheckedAxis)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 0")

	err = exceptions.TryCatch[error](func() { AssertSameShape("a", m, "b", Zeros(3, 4)) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "axis 1")
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "[1 2]{{1.00, 2.00}}", Summary(Row(1, 2), 2))
	long := Zeros(1, 10)
	s := Summary(long, 0)
	assert.Contains(t, s, "...")
}
