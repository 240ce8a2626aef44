// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package database

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// EOS is the end-of-sequence symbol. It is always present in a Vocabulary, with index EOSIndex.
const EOS = "[EOS]"

// EOSIndex is the index of EOS in every Vocabulary.
const EOSIndex = 0

// Vocabulary is a bijection between symbols and indices 0...Len()-1, in insertion order.
//
// Once frozen, inserting new symbols is an error. It is not safe for concurrent insertion, but a frozen
// Vocabulary can be read concurrently.
type Vocabulary struct {
	symbols []string
	index   map[string]int
	frozen  bool
}

// NewVocabulary creates a Vocabulary holding only EOS, plus the given symbols.
func NewVocabulary(symbols ...string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int)}
	v.MustAdd(EOS)
	v.MustAdd(symbols...)
	return v
}

// Add inserts the symbols not yet present. It returns the index of the last symbol given.
//
// It returns an error if the vocabulary is frozen and a symbol is new.
func (v *Vocabulary) Add(symbols ...string) (idx int, err error) {
	for _, symbol := range symbols {
		var found bool
		idx, found = v.index[symbol]
		if found {
			continue
		}
		if v.frozen {
			return 0, errors.Errorf("vocabulary is frozen, cannot add new symbol %q", symbol)
		}
		idx = len(v.symbols)
		v.symbols = append(v.symbols, symbol)
		v.index[symbol] = idx
	}
	return idx, nil
}

// MustAdd is like Add, but panics on error.
func (v *Vocabulary) MustAdd(symbols ...string) int {
	idx, err := v.Add(symbols...)
	if err != nil {
		panic(err)
	}
	return idx
}

// Freeze the vocabulary: no new symbols can be added afterwards.
func (v *Vocabulary) Freeze() { v.frozen = true }

// Frozen returns whether Freeze was called.
func (v *Vocabulary) Frozen() bool { return v.frozen }

// Len returns the number of symbols.
func (v *Vocabulary) Len() int { return len(v.symbols) }

// Index returns the index of the symbol, and whether it was found.
func (v *Vocabulary) Index(symbol string) (int, bool) {
	idx, found := v.index[symbol]
	return idx, found
}

// MustIndex returns the index of the symbol, and panics if it is unknown.
func (v *Vocabulary) MustIndex(symbol string) int {
	idx, found := v.index[symbol]
	if !found {
		exceptions.Panicf("unknown symbol %q in vocabulary of %d symbols", symbol, len(v.symbols))
	}
	return idx
}

// Rev returns the symbol for the index.
func (v *Vocabulary) Rev(idx int) string {
	if idx < 0 || idx >= len(v.symbols) {
		exceptions.Panicf("index %d out of vocabulary of %d symbols", idx, len(v.symbols))
	}
	return v.symbols[idx]
}

// Symbols returns all symbols in index order. The returned slice must not be modified.
func (v *Vocabulary) Symbols() []string { return v.symbols }

// WordsToIDs converts words to their indices. It returns an error on the first unknown word.
func (v *Vocabulary) WordsToIDs(words []string) ([]int, error) {
	ids := make([]int, len(words))
	for ii, word := range words {
		idx, found := v.index[word]
		if !found {
			return nil, errors.Errorf("unknown word %q at position %d", word, ii)
		}
		ids[ii] = idx
	}
	return ids, nil
}

// IDsToWords converts indices to their symbols.
func (v *Vocabulary) IDsToWords(ids []int) []string {
	words := make([]string, len(ids))
	for ii, id := range ids {
		words[ii] = v.Rev(id)
	}
	return words
}
