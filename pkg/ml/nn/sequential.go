// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nn

import (
	"strconv"

	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Sequential chains blocks with one input and one output each: the output of one block is the input of the next.
//
// The aux bag holds the aux of each member under its position ("0", "1", ...), and Backward replays the members
// in reverse order.
//
// The parameters (and gradients) of the parametrized members are nested under their positions as well, sharing
// the members' tensors: so Params().GetPath("0/W") is the "W" parameter of the first block.
type Sequential struct {
	blocks        []Block
	params, grads *vars.Vars
}

var _ Parametrized = (*Sequential)(nil)

// NewSequential creates a Sequential block from the given blocks.
func NewSequential(blocks ...Block) *Sequential {
	s := &Sequential{blocks: blocks, params: vars.New(), grads: vars.New()}
	for ii, b := range blocks {
		if p, ok := b.(Parametrized); ok {
			s.params.SetVars(strconv.Itoa(ii), p.Params())
			s.grads.SetVars(strconv.Itoa(ii), p.Grads())
		}
	}
	return s
}

// Blocks returns the members of the sequence.
func (s *Sequential) Blocks() []Block { return s.blocks }

// Params implements Parametrized.
func (s *Sequential) Params() *vars.Vars { return s.params }

// Grads implements Parametrized.
func (s *Sequential) Grads() *vars.Vars { return s.grads }

// Forward implements Block.
func (s *Sequential) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Sequential", "inputs", inputs, 1)
	x := inputs[0]
	aux := vars.New()
	for ii, b := range s.blocks {
		var blockAux *vars.Vars
		x, blockAux = ForwardOne(b, x)
		aux.SetVars(strconv.Itoa(ii), blockAux)
	}
	return []*mat.Dense{x}, aux
}

// Backward implements Block.
func (s *Sequential) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Sequential", "output gradients", dOutputs, 1)
	dx := dOutputs[0]
	for ii := len(s.blocks) - 1; ii >= 0; ii-- {
		dx = BackwardOne(s.blocks[ii], aux.Sub(strconv.Itoa(ii)), dx)
	}
	return []*mat.Dense{dx}
}
