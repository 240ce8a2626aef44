// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors holds the helpers used to create and manipulate the values flowing through
// the blocks of the model.
//
// The value type is gonum's `*mat.Dense`, and the package follows a few conventions on top of it:
//
//   - A vector is a `1×n` row matrix, so a linear map is always written `y = x·W`.
//   - A scalar (like the gate of a switch) is a `1×1` matrix.
//   - A time sequence of vectors is a `T×n` matrix: row `t` holds step `t`.
//
// Tensors created by this package are always contiguous (stride equals the number of columns),
// which allows Flat to expose the underlying data without copying. Views created with
// `mat.Dense.Slice` are not contiguous and should be cloned before being passed around.
//
// Blocks never alias their outputs with their inputs: every output is freshly allocated.
//
// ## Asserts
//
// Shape contract violations are programming errors, and they panic (through
// github.com/gomlx/exceptions) with a message naming the operand and the offending axis. See
// AssertDims and AssertSameShape. CheckDims returns the same diagnostic as an error instead.
package tensors

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Zeros returns a new rows×cols tensor filled with zeros.
func Zeros(rows, cols int) *mat.Dense {
	if rows <= 0 || cols <= 0 {
		exceptions.Panicf("tensors.Zeros(%d, %d): cannot create a tensor with an axis with dimension <= 0", rows, cols)
	}
	return mat.NewDense(rows, cols, nil)
}

// ZerosLike returns a new tensor of zeros with the same shape as t.
func ZerosLike(t *mat.Dense) *mat.Dense {
	rows, cols := t.Dims()
	return Zeros(rows, cols)
}

// Row returns a 1×n tensor with the given values. The values are copied.
func Row(values ...float64) *mat.Dense {
	if len(values) == 0 {
		exceptions.Panicf("tensors.Row(): at least one value is required")
	}
	data := make([]float64, len(values))
	copy(data, values)
	return mat.NewDense(1, len(values), data)
}

// Scalar returns a 1×1 tensor holding v.
func Scalar(v float64) *mat.Dense {
	return mat.NewDense(1, 1, []float64{v})
}

// FromRows creates a tensor from a regular 2D slice. All rows must have the same length.
func FromRows(rows [][]float64) *mat.Dense {
	if len(rows) == 0 || len(rows[0]) == 0 {
		exceptions.Panicf("tensors.FromRows(): empty rows")
	}
	cols := len(rows[0])
	t := Zeros(len(rows), cols)
	for ii, row := range rows {
		if len(row) != cols {
			exceptions.Panicf("tensors.FromRows(): row %d has %d values, wanted %d", ii, len(row), cols)
		}
		t.SetRow(ii, row)
	}
	return t
}

// OneHotRow returns a 1×size row with 1 at position idx and 0 elsewhere.
func OneHotRow(size, idx int) *mat.Dense {
	if idx < 0 || idx >= size {
		exceptions.Panicf("tensors.OneHotRow(%d, %d): index out-of-bounds", size, idx)
	}
	t := Zeros(1, size)
	t.Set(0, idx, 1)
	return t
}

// Normal returns a rows×cols tensor sampled from a normal distribution with mean 0 and the given
// standard deviation, drawn from the explicitly given random source.
func Normal(src rand.Source, rows, cols int, stddev float64) *mat.Dense {
	dist := distuv.Normal{Mu: 0, Sigma: stddev, Src: src}
	t := Zeros(rows, cols)
	flat := Flat(t)
	for ii := range flat {
		flat[ii] = dist.Rand()
	}
	return t
}

// Uniform returns a rows×cols tensor sampled uniformly from [minValue, maxValue).
func Uniform(src rand.Source, rows, cols int, minValue, maxValue float64) *mat.Dense {
	dist := distuv.Uniform{Min: minValue, Max: maxValue, Src: src}
	t := Zeros(rows, cols)
	flat := Flat(t)
	for ii := range flat {
		flat[ii] = dist.Rand()
	}
	return t
}

// Clone returns a contiguous deep copy of t. It accepts any mat.Matrix, including views.
func Clone(t mat.Matrix) *mat.Dense {
	return mat.DenseCopyOf(t)
}

// Flat returns the underlying data of t in row-major order, without copying.
//
// It panics if t is not contiguous.
func Flat(t *mat.Dense) []float64 {
	raw := t.RawMatrix()
	if raw.Stride != raw.Cols {
		exceptions.Panicf("tensors.Flat(): tensor %dx%d is a non-contiguous view (stride %d)", raw.Rows, raw.Cols, raw.Stride)
	}
	return raw.Data[:raw.Rows*raw.Cols]
}

// RowOf returns a 1×cols copy of row idx of t.
func RowOf(t *mat.Dense, idx int) *mat.Dense {
	return Row(t.RawRowView(idx)...)
}

// Sum returns the sum of all elements of t.
func Sum(t *mat.Dense) float64 {
	return mat.Sum(t)
}

// Size returns the number of elements of t.
func Size(t *mat.Dense) int {
	rows, cols := t.Dims()
	return rows * cols
}

// AddInPlace accumulates `dst += factor * src`. Both must have the same shape.
func AddInPlace(dst *mat.Dense, factor float64, src *mat.Dense) {
	AssertSameShape("dst", dst, "src", src)
	floats.AddScaled(Flat(dst), factor, Flat(src))
}

// Argmax returns the column of the largest value of the 1×n row t.
// Ties are broken by the lowest index.
func Argmax(t *mat.Dense) int {
	AssertDims("argmax input", t, 1, UncheckedAxis)
	return floats.MaxIdx(t.RawRowView(0))
}

// CountMax returns how many entries of the 1×n row t are tied for the maximum value.
func CountMax(t *mat.Dense) int {
	AssertDims("count input", t, 1, UncheckedAxis)
	row := t.RawRowView(0)
	maxValue := floats.Max(row)
	count := 0
	for _, v := range row {
		if v == maxValue {
			count++
		}
	}
	return count
}

// InDelta returns whether t0 and t1 have the same shape and all their values are within delta of each other.
func InDelta(t0, t1 *mat.Dense, delta float64) bool {
	r0, c0 := t0.Dims()
	r1, c1 := t1.Dims()
	if r0 != r1 || c0 != c1 {
		return false
	}
	return mat.EqualApprox(t0, t1, delta)
}

// ShapeString pretty-prints the shape of t, e.g. "[3 16]".
func ShapeString(t mat.Matrix) string {
	if t == nil {
		return "[nil]"
	}
	rows, cols := t.Dims()
	return fmt.Sprintf("[%d %d]", rows, cols)
}

// Summary returns a one line summary of t's content, using the given precision.
// Rows and columns beyond 6 are elided with an ellipsis.
func Summary(t *mat.Dense, precision int) string {
	const maxShown = 6
	rows, cols := t.Dims()
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }
	w("%s{", ShapeString(t))
	for r := 0; r < rows; r++ {
		if rows > maxShown && r == maxShown/2 {
			w("..., ")
			r = rows - maxShown/2
		}
		w("{")
		for c := 0; c < cols; c++ {
			if cols > maxShown && c == maxShown/2 {
				w("..., ")
				c = cols - maxShown/2
			}
			w("%.*f", precision, t.At(r, c))
			if c < cols-1 {
				w(", ")
			}
		}
		w("}")
		if r < rows-1 {
			w(", ")
		}
	}
	w("}")
	return sb.String()
}
