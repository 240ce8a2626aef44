// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Symbols is the view of a vocabulary needed by an embedding: its size and the reverse lookup of an index.
type Symbols interface {
	Len() int
	Rev(id int) string
}

// OneHot embeds token indices as one-hot rows over a vocabulary.
//
// As a Block, its input is a T×1 column of indices, and its output the T×|V| embeddings. Indices are discrete,
// so Backward returns a zero gradient for them.
type OneHot struct {
	symbols Symbols
}

// NewOneHot creates a one-hot embedding over the given vocabulary. The vocabulary size must not change
// afterwards (freeze it first).
func NewOneHot(symbols Symbols) *OneHot {
	return &OneHot{symbols: symbols}
}

// Size is the dimension of the embeddings.
func (e *OneHot) Size() int { return e.symbols.Len() }

// Rev returns the symbol of the given index, for diagnostics.
func (e *OneHot) Rev(id int) string { return e.symbols.Rev(id) }

// Embed returns the T×Size() embeddings of the given indices.
func (e *OneHot) Embed(ids ...int) *mat.Dense {
	if len(ids) == 0 {
		exceptions.Panicf("OneHot.Embed(): no indices given")
	}
	size := e.Size()
	emb := tensors.Zeros(len(ids), size)
	for ii, id := range ids {
		if id < 0 || id >= size {
			exceptions.Panicf("OneHot.Embed(): index %d at position %d out of vocabulary of size %d", id, ii, size)
		}
		emb.Set(ii, id, 1)
	}
	return emb
}

// Forward implements Block.
func (e *OneHot) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("OneHot", "inputs", inputs, 1)
	column := inputs[0]
	tensors.AssertDims("OneHot indices", column, tensors.UncheckedAxis, 1)
	rows, _ := column.Dims()
	ids := make([]int, rows)
	for r := range rows {
		ids[r] = int(column.At(r, 0))
	}
	return []*mat.Dense{e.Embed(ids...)}, vars.With("ids", column)
}

// Backward implements Block.
func (e *OneHot) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("OneHot", "output gradients", dOutputs, 1)
	ids := aux.Get("ids")
	rows, _ := ids.Dims()
	tensors.AssertDims("OneHot output gradient", dOutputs[0], rows, e.Size())
	return []*mat.Dense{tensors.ZerosLike(ids)}
}
