// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package database

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// DBSet is a table of records with several fields. A lookup takes two stages:
//
//  1. The index table maps the query distributions (over the vocabulary) to a distribution over the
//     entries (the records), which is sharpened with Amplify.
//  2. Each content table maps the entry distribution to the distribution of one field's values.
//
// Forward takes as many inputs as the index arity, and returns `(entryDist, field_0, ..., field_{m-1})`.
//
// The number of entries tied for the maximum weight (before sharpening), for each query row, is a
// diagnostic kept in aux, see TiedEntries. Backward doesn't use it.
type DBSet struct {
	index    *DBDist
	amplify  nn.Amplify
	contents []*DBDist
}

var _ nn.Block = (*DBSet)(nil)

// NewDBSet creates the DBSet from the index content (keys from vocab, values from entryVocab) and the content
// of each field (keys from entryVocab, values from vocab). amplifyPower is the power of the Amplify sharpening,
// 0 for nn.DefaultAmplifyPower.
func NewDBSet(index *Content, fields []*Content, vocab, entryVocab *Vocabulary, amplifyPower float64) (*DBSet, error) {
	indexDB, err := NewDBDist(index, vocab, entryVocab)
	if err != nil {
		return nil, errors.WithMessage(err, "building DBSet index table")
	}
	set := &DBSet{index: indexDB, amplify: nn.Amplify{Power: amplifyPower}}
	for ii, field := range fields {
		if field.Arity() != 1 {
			return nil, errors.Errorf("DBSet field #%d must have arity 1, got %d", ii, field.Arity())
		}
		db, err := NewDBDist(field, entryVocab, vocab)
		if err != nil {
			return nil, errors.WithMessagef(err, "building DBSet field #%d table", ii)
		}
		set.contents = append(set.contents, db)
	}
	return set, nil
}

// Arity is the number of query inputs, the arity of the index table.
func (s *DBSet) Arity() int { return s.index.Arity() }

// NumFields is the number of content tables. Forward returns NumFields()+1 outputs.
func (s *DBSet) NumFields() int { return len(s.contents) }

// Forward implements nn.Block.
func (s *DBSet) Forward(inputs ...*mat.Dense) ([]*mat.Dense, *vars.Vars) {
	tensors.AssertArity("DBSet", "inputs", inputs, s.index.Arity())
	indexOutputs, indexAux := s.index.Forward(inputs...)
	rawEntries := indexOutputs[0]
	rows, _ := rawEntries.Dims()
	tied := tensors.Zeros(rows, 1)
	for r := range rows {
		tied.Set(r, 0, float64(tensors.CountMax(tensors.RowOf(rawEntries, r))))
	}
	entryDist, amplifyAux := nn.ForwardOne(s.amplify, rawEntries)

	outputs := []*mat.Dense{entryDist}
	fieldsAux := vars.New()
	for ii, content := range s.contents {
		value, aux := nn.ForwardOne(content, entryDist)
		outputs = append(outputs, value)
		fieldsAux.SetVars(strconv.Itoa(ii), aux)
	}
	if klog.V(3).Enabled() {
		klog.Infof("DBSet: entries tied for maximum weight per row: %v", tensors.Flat(tied))
	}
	aux := vars.With(
		"index", indexAux,
		"amplify", amplifyAux,
		"fields", fieldsAux,
		"tied", tied,
	)
	return outputs, aux
}

// TiedEntries returns, for each query row, the number of entries tied for the maximum weight in the lookup
// that produced aux.
func TiedEntries(aux *vars.Vars) []int {
	tied := aux.Get("tied")
	rows, _ := tied.Dims()
	counts := make([]int, rows)
	for r := range counts {
		counts[r] = int(tied.At(r, 0))
	}
	return counts
}

// Backward implements nn.Block.
func (s *DBSet) Backward(aux *vars.Vars, dOutputs ...*mat.Dense) []*mat.Dense {
	tensors.AssertArity("DBSet", "output gradients", dOutputs, len(s.contents)+1)
	dEntries := tensors.Clone(dOutputs[0])
	fieldsAux := aux.Sub("fields")
	for ii, content := range s.contents {
		tensors.AddInPlace(dEntries, 1, nn.BackwardOne(content, fieldsAux.Sub(strconv.Itoa(ii)), dOutputs[ii+1]))
	}
	dEntries = nn.BackwardOne(s.amplify, aux.Sub("amplify"), dEntries)
	return s.index.Backward(aux.Sub("index"), dEntries)
}
