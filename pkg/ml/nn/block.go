// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nn defines the Block contract and the primitive differentiable blocks the model is composed of.
//
// A Block is a forward/backward pair: Forward computes the outputs and returns, in an aux bag, whatever the
// matching Backward call needs; Backward takes that aux and one gradient per output, and returns one gradient per
// input, each with the same shape as the corresponding input.
//
// Blocks are stateless apart from the parameter and gradient bags of Parametrized blocks: parameters are only
// changed by an optimizer (through vars.Vars.IncrementBy), and gradients with respect to parameters are *added*
// into the gradient bag by Backward, since a parameter may be used many times (e.g. across time steps) in one
// example. Calling Backward twice with the same aux double-counts.
//
// Contract violations (wrong number of tensors, wrong shapes, mismatched aux) panic with an error, thrown with
// github.com/gomlx/exceptions. Use exceptions.TryCatch to convert them back into errors.
package nn

import (
	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"gonum.org/v1/gonum/mat"
)

// Block is a differentiable operation with a fixed number of inputs and outputs.
type Block interface {
	// Forward computes the outputs of the block, and an aux bag to be given to Backward.
	Forward(inputs ...*mat.Dense) (outputs []*mat.Dense, aux *vars.Vars)

	// Backward takes the aux produced by one Forward call and the gradients of some scalar with respect to each of
	// the outputs, and returns the gradients with respect to each of the inputs.
	Backward(aux *vars.Vars, dOutputs ...*mat.Dense) (dInputs []*mat.Dense)
}

// Parametrized is a Block that owns parameters, and accumulates gradients with respect to them.
// Params and Grads have the exact same structure.
type Parametrized interface {
	Block
	Params() *vars.Vars
	Grads() *vars.Vars
}

// ParamBags holds the parameter and gradient bags of a Parametrized block. It can be embedded
// in a block to implement the Params and Grads methods.
type ParamBags struct {
	params, grads *vars.Vars
}

// NewParamBags creates the bags for the given parameters, with the gradients initialized to zero.
func NewParamBags(params *vars.Vars) ParamBags {
	return ParamBags{params: params, grads: params.ZerosLike()}
}

// Params returns the parameters bag.
func (b *ParamBags) Params() *vars.Vars { return b.params }

// Grads returns the gradients bag.
func (b *ParamBags) Grads() *vars.Vars { return b.grads }

// Accumulate adds g to the gradient of the named parameter.
func (b *ParamBags) Accumulate(name string, g *mat.Dense) {
	tensors.AddInPlace(b.grads.Get(name), 1, g)
}

// ForwardOne calls Forward of a block with one input and one output.
func ForwardOne(b Block, x *mat.Dense) (*mat.Dense, *vars.Vars) {
	outputs, aux := b.Forward(x)
	if len(outputs) != 1 {
		exceptions.Panicf("nn.ForwardOne(%T): block returned %d outputs, wanted 1", b, len(outputs))
	}
	return outputs[0], aux
}

// BackwardOne calls Backward of a block with one input and one output.
func BackwardOne(b Block, aux *vars.Vars, dy *mat.Dense) *mat.Dense {
	dInputs := b.Backward(aux, dy)
	if len(dInputs) != 1 {
		exceptions.Panicf("nn.BackwardOne(%T): block returned %d input gradients, wanted 1", b, len(dInputs))
	}
	return dInputs[0]
}

// ZeroGrads zeroes the gradient bags of all given blocks.
func ZeroGrads(blocks ...Parametrized) {
	for _, b := range blocks {
		b.Grads().Zero()
	}
}

// NumParams returns the total number of scalar parameters of the given blocks.
func NumParams(blocks ...Parametrized) int {
	var count int
	for _, b := range blocks {
		count += b.Params().NumElements()
	}
	return count
}
