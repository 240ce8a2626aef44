// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package database implements a differentiable ("soft") lookup over a fixed key→value table.
//
// Instead of looking up one discrete key, the table is addressed with a distribution over the keys, and returns
// the expectation of the values: a blend of table rows rather than a single exact row, but one that is
// differentiable with respect to the query distribution.
//
//   - Vocabulary: a frozen symbol ↔ index bijection, with EOS at index 0.
//   - Content: the static records of a table, built in code or loaded from a CSV (LoadCSV).
//   - DBDist: a table as a Block, mapping n key distributions to a value distribution.
//   - DBSet: an index table followed by Amplify and one content table per field.
//   - Field: a single-input/single-output view of one DBSet field.
//
// Tables are built once and are read-only afterwards: lookups never modify them.
package database

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
)

type entry struct {
	keys   []int
	value  int
	weight float64
}

// DBDist is a fixed table mapping arity key distributions, each over the source vocabulary, to a
// distribution over the target vocabulary:
//
//	out[v] = Σ_e weight(e) · Π_k x_k[key_k(e)] · [value(e) = v]
//
// For arity 1 this is the product `x·M`, with the fixed |src|×|dst| matrix M, and it is linear in x.
// Backward is `dx = dy·Mᵗ` (and the equivalent multilinear rule for larger arity).
type DBDist struct {
	arity            int
	srcSize, dstSize int
	entries          []entry

	// matrix is only built for arity 1.
	matrix *mat.Dense
}

var _ nn.Block = (*DBDist)(nil)

// NewDBDist builds the table from the content, with keys from src and values from dst.
// All symbols must be present in the vocabularies.
func NewDBDist(content *Content, src, dst *Vocabulary) (*DBDist, error) {
	if content.Arity() < 1 {
		return nil, errors.Errorf("database content must have at least one key, got arity %d", content.Arity())
	}
	db := &DBDist{
		arity:   content.Arity(),
		srcSize: src.Len(),
		dstSize: dst.Len(),
	}
	for ii, r := range content.Records() {
		e := entry{keys: make([]int, len(r.Keys)), weight: r.Weight}
		for k, key := range r.Keys {
			idx, found := src.Index(key)
			if !found {
				return nil, errors.Errorf("record #%d: key %q not in the source vocabulary", ii, key)
			}
			e.keys[k] = idx
		}
		idx, found := dst.Index(r.Value)
		if !found {
			return nil, errors.Errorf("record #%d: value %q not in the target vocabulary", ii, r.Value)
		}
		e.value = idx
		db.entries = append(db.entries, e)
	}
	if db.arity == 1 {
		db.matrix = tensors.Zeros(db.srcSize, db.dstSize)
		for _, e := range db.entries {
			db.matrix.Set(e.keys[0], e.value, db.matrix.At(e.keys[0], e.value)+e.weight)
		}
	}
	return db, nil
}

// Arity is the number of key inputs.
func (db *DBDist) Arity() int { return db.arity }

// NumEntries in the table.
func (db *DBDist) NumEntries() int { return len(db.entries) }

// Matrix returns a copy of the |src|×|dst| matrix of an arity 1 table. It panics for larger arity.
func (db *DBDist) Matrix() *mat.Dense {
	if db.matrix == nil {
		exceptions.Panicf("DBDist.Matrix(): only defined for arity 1, this table has arity %d", db.arity)
	}
	return tensors.Clone(db.matrix)
}

// Forward implements nn.Block. It takes arity inputs, each shaped [rows, |src|], and returns one output
// shaped [rows, |dst|].
func (db *DBDist) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("DBDist", "inputs", inputs, db.arity)
	rows, _ := inputs[0].Dims()
	aux := vars.New()
	for k, x := range inputs {
		tensors.AssertDims("DBDist input", x, rows, db.srcSize)
		aux.Set(inputName(k), x)
	}
	out := tensors.Zeros(rows, db.dstSize)
	if db.matrix != nil {
		out.Mul(inputs[0], db.matrix)
		return []*mat.Dense{out}, aux
	}
	for r := range rows {
		outRow := out.RawRowView(r)
		for _, e := range db.entries {
			outRow[e.value] += e.weight * db.product(inputs, r, e, -1)
		}
	}
	return []*mat.Dense{out}, aux
}

// product returns Π_k x_k[r, key_k(e)], skipping k == skip.
func (db *DBDist) product(inputs []*mat.Dense, r int, e entry, skip int) float64 {
	p := 1.0
	for k, x := range inputs {
		if k != skip {
			p *= x.At(r, e.keys[k])
		}
	}
	return p
}

func inputName(k int) string {
	return "x" + strconv.Itoa(k)
}

// Backward implements nn.Block.
func (db *DBDist) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("DBDist", "output gradients", dOutputs, 1)
	if aux.Len() != db.arity {
		exceptions.Panicf("DBDist.Backward(): aux has %d inputs, table arity is %d", aux.Len(), db.arity)
	}
	inputs := make([]*mat.Dense, db.arity)
	for k := range inputs {
		inputs[k] = aux.Get(inputName(k))
	}
	rows, _ := inputs[0].Dims()
	dy := dOutputs[0]
	tensors.AssertDims("DBDist output gradient", dy, rows, db.dstSize)

	dInputs := make([]*mat.Dense, db.arity)
	if db.matrix != nil {
		dInputs[0] = tensors.Zeros(rows, db.srcSize)
		dInputs[0].Mul(dy, db.matrix.T())
		return dInputs
	}
	for k := range dInputs {
		dInputs[k] = tensors.Zeros(rows, db.srcSize)
	}
	for r := range rows {
		dyRow := dy.RawRowView(r)
		for _, e := range db.entries {
			g := e.weight * dyRow[e.value]
			if g == 0 {
				continue
			}
			for k, dx := range dInputs {
				dx.Set(r, e.keys[k], dx.At(r, e.keys[k])+g*db.product(inputs, r, e, k))
			}
		}
	}
	return dInputs
}
