// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package vars implements Vars, an ordered bag of named tensors (and nested bags).
//
// Vars serve two purposes:
//
//   - Auxiliary state: what a block's Forward produces for the matching Backward call. The field set
//     is defined per block, and Backward only reads it.
//   - Parameter and gradient storage: a mapping from parameter name to tensor, supporting Zero and
//     IncrementBy (`self += factor * other`), which is all an optimizer needs.
//
// Names are kept in insertion order, so iteration (Names, Walk) is deterministic.
package vars

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/support/sets"
	"gonum.org/v1/gonum/mat"
)

// PathSeparator separates the names of nested Vars in a path, see GetPath.
const PathSeparator = "/"

// Vars is an ordered mapping from a name to either a tensor or a nested *Vars.
//
// The zero value is not usable, create it with New.
type Vars struct {
	names   []string
	entries map[string]any
}

// New creates an empty Vars.
func New() *Vars {
	return &Vars{entries: make(map[string]any)}
}

// With creates a Vars with the given name/tensor pairs, in the given order.
// The pairs are given as alternating `string, *mat.Dense` (or `string, *Vars`) values.
//
// It panics if the arguments are not properly paired.
func With(pairs ...any) *Vars {
	if len(pairs)%2 != 0 {
		exceptions.Panicf("vars.With(): expected name/value pairs, got %d arguments", len(pairs))
	}
	v := New()
	for ii := 0; ii < len(pairs); ii += 2 {
		name, ok := pairs[ii].(string)
		if !ok {
			exceptions.Panicf("vars.With(): argument #%d should be a name (string), got %T", ii, pairs[ii])
		}
		switch value := pairs[ii+1].(type) {
		case *mat.Dense:
			v.Set(name, value)
		case *Vars:
			v.SetVars(name, value)
		default:
			exceptions.Panicf("vars.With(): value for %q must be *mat.Dense or *vars.Vars, got %T", name, value)
		}
	}
	return v
}

func (v *Vars) put(name string, value any) {
	if name == "" || strings.Contains(name, PathSeparator) {
		exceptions.Panicf("vars: invalid name %q: it must be non-empty and not contain %q", name, PathSeparator)
	}
	if _, found := v.entries[name]; !found {
		v.names = append(v.names, name)
	}
	v.entries[name] = value
}

// Set the tensor under the given name. If the name is new, it is appended to the order.
// It returns v, so calls can be chained.
func (v *Vars) Set(name string, t *mat.Dense) *Vars {
	if t == nil {
		exceptions.Panicf("vars.Set(%q): nil tensor", name)
	}
	v.put(name, t)
	return v
}

// SetVars sets a nested Vars under the given name.
func (v *Vars) SetVars(name string, sub *Vars) *Vars {
	if sub == nil {
		exceptions.Panicf("vars.SetVars(%q): nil Vars", name)
	}
	v.put(name, sub)
	return v
}

// Has returns whether there is an entry (tensor or nested Vars) with the given name.
func (v *Vars) Has(name string) bool {
	_, found := v.entries[name]
	return found
}

// Len returns the number of entries (not recursive).
func (v *Vars) Len() int {
	return len(v.names)
}

// Names returns the entry names in insertion order. The returned slice must not be modified.
func (v *Vars) Names() []string {
	return v.names
}

// Get returns the tensor under the given name.
//
// It panics if it doesn't exist or if it is a nested Vars: aux and parameter field sets are fixed per block,
// so a missing field is a programming error.
func (v *Vars) Get(name string) *mat.Dense {
	value, found := v.entries[name]
	if !found {
		exceptions.Panicf("vars.Get(%q): no such field, available fields are %q", name, v.names)
	}
	t, ok := value.(*mat.Dense)
	if !ok {
		exceptions.Panicf("vars.Get(%q): field is a nested Vars, not a tensor", name)
	}
	return t
}

// Sub returns the nested Vars under the given name. It panics if it doesn't exist or is not a Vars.
func (v *Vars) Sub(name string) *Vars {
	value, found := v.entries[name]
	if !found {
		exceptions.Panicf("vars.Sub(%q): no such field, available fields are %q", name, v.names)
	}
	sub, ok := value.(*Vars)
	if !ok {
		exceptions.Panicf("vars.Sub(%q): field is a tensor, not a nested Vars", name)
	}
	return sub
}

// GetPath returns the tensor in the given path, a list of names separated by PathSeparator (e.g.: "0/W").
func (v *Vars) GetPath(path string) *mat.Dense {
	parts := strings.Split(path, PathSeparator)
	current := v
	for _, name := range parts[:len(parts)-1] {
		current = current.Sub(name)
	}
	return current.Get(parts[len(parts)-1])
}

// Walk calls fn for every tensor, recursively, in order. The path uses PathSeparator between nested names.
func (v *Vars) Walk(fn func(path string, t *mat.Dense)) {
	v.walk("", fn)
}

func (v *Vars) walk(prefix string, fn func(path string, t *mat.Dense)) {
	for _, name := range v.names {
		path := prefix + name
		switch value := v.entries[name].(type) {
		case *mat.Dense:
			fn(path, value)
		case *Vars:
			value.walk(path+PathSeparator, fn)
		}
	}
}

// NumElements returns the total number of scalar values held, recursively.
func (v *Vars) NumElements() int {
	var count int
	v.Walk(func(_ string, t *mat.Dense) {
		count += tensors.Size(t)
	})
	return count
}

// Zero sets every tensor, recursively, to 0.
func (v *Vars) Zero() {
	v.Walk(func(_ string, t *mat.Dense) {
		t.Zero()
	})
}

// ZerosLike returns a new Vars with the same structure as v, with all tensors set to zero.
// It is used to create the gradient bag matching a parameter bag.
func (v *Vars) ZerosLike() *Vars {
	res := New()
	for _, name := range v.names {
		switch value := v.entries[name].(type) {
		case *mat.Dense:
			res.Set(name, tensors.ZerosLike(value))
		case *Vars:
			res.SetVars(name, value.ZerosLike())
		}
	}
	return res
}

// Clone returns a deep copy of v.
func (v *Vars) Clone() *Vars {
	res := New()
	for _, name := range v.names {
		switch value := v.entries[name].(type) {
		case *mat.Dense:
			res.Set(name, tensors.Clone(value))
		case *Vars:
			res.SetVars(name, value.Clone())
		}
	}
	return res
}

// IncrementBy performs `v += factor * other`, field by field, recursively.
//
// Field sets and shapes must match exactly, otherwise an error is returned and v is not modified.
func (v *Vars) IncrementBy(other *Vars, factor float64) error {
	if err := v.Compatible(other); err != nil {
		return err
	}
	v.increment(other, factor)
	return nil
}

func (v *Vars) increment(other *Vars, factor float64) {
	for _, name := range v.names {
		switch value := v.entries[name].(type) {
		case *mat.Dense:
			tensors.AddInPlace(value, factor, other.entries[name].(*mat.Dense))
		case *Vars:
			value.increment(other.entries[name].(*Vars), factor)
		}
	}
}

// Compatible returns an error if v and other don't have the same fields, of the same kinds and shapes.
func (v *Vars) Compatible(other *Vars) error {
	return v.checkCompatible("", other)
}

// checkCompatible checks that v and other have the same fields, of the same kinds and shapes.
func (v *Vars) checkCompatible(prefix string, other *Vars) error {
	if other == nil {
		return errors.Errorf("vars: cannot combine with a nil Vars at %q", prefix)
	}
	mine, theirs := sets.MakeWith(v.names...), sets.MakeWith(other.names...)
	if !mine.Equal(theirs) {
		return errors.Errorf("vars: field sets differ at %q: missing %q, unexpected %q",
			prefix, sets.Sorted(mine.Sub(theirs)), sets.Sorted(theirs.Sub(mine)))
	}
	for _, name := range v.names {
		path := prefix + name
		switch value := v.entries[name].(type) {
		case *mat.Dense:
			otherT, ok := other.entries[name].(*mat.Dense)
			if !ok {
				return errors.Errorf("vars: field %q is a tensor, but a nested Vars in the other bag", path)
			}
			if err := tensors.CheckDims(path, otherT, value.RawMatrix().Rows, value.RawMatrix().Cols); err != nil {
				return errors.WithMessage(err, "vars: incompatible shapes")
			}
		case *Vars:
			otherSub, ok := other.entries[name].(*Vars)
			if !ok {
				return errors.Errorf("vars: field %q is a nested Vars, but a tensor in the other bag", path)
			}
			if err := value.checkCompatible(path+PathSeparator, otherSub); err != nil {
				return err
			}
		}
	}
	return nil
}

// String implements fmt.Stringer, listing each tensor path and shape.
func (v *Vars) String() string {
	var parts []string
	v.Walk(func(path string, t *mat.Dense) {
		parts = append(parts, fmt.Sprintf("%s:%s", path, tensors.ShapeString(t)))
	})
	return "Vars{" + strings.Join(parts, ", ") + "}"
}
