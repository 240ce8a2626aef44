// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package database

import (
	"github.com/gomlx/exceptions"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
)

// Field is a single-input/single-output view of one field of a DBSet with an arity 1 index: the query
// distribution goes in, the distribution of the field's values comes out.
//
// It lets a model that expects a single lookup block read a multi-field table.
type Field struct {
	set   *DBSet
	field int
}

var _ nn.Block = (*Field)(nil)

// NewField creates the view of the given field of set.
func NewField(set *DBSet, field int) *Field {
	if set.Arity() != 1 {
		exceptions.Panicf("database.NewField(): the DBSet index must have arity 1, got %d", set.Arity())
	}
	if field < 0 || field >= set.NumFields() {
		exceptions.Panicf("database.NewField(): field %d out of range, DBSet has %d fields", field, set.NumFields())
	}
	return &Field{set: set, field: field}
}

// Forward implements nn.Block.
func (f *Field) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("Field", "inputs", inputs, 1)
	outputs, aux := f.set.Forward(inputs...)
	// The shapes of the other outputs are needed to create their zero gradients.
	shapes := vars.New()
	for ii, y := range outputs {
		shapes.Set(inputName(ii), y)
	}
	return []*mat.Dense{outputs[f.field+1]}, vars.With("set", aux, "outputs", shapes)
}

// Backward implements nn.Block.
func (f *Field) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("Field", "output gradients", dOutputs, 1)
	outputs := aux.Sub("outputs")
	dSetOutputs := make([]*mat.Dense, outputs.Len())
	for ii := range dSetOutputs {
		if ii == f.field+1 {
			tensors.AssertSameShape("field value", outputs.Get(inputName(ii)), "gradient", dOutputs[0])
			dSetOutputs[ii] = dOutputs[0]
		} else {
			dSetOutputs[ii] = tensors.ZerosLike(outputs.Get(inputName(ii)))
		}
	}
	return f.set.Backward(aux.Sub("set"), dSetOutputs...)
}
