// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Example is one question and its expected answer, as sequences of vocabulary symbols.
// The answer usually ends with database.EOS.
type Example struct {
	Question, Answer []string
}

// String returns the question and the answer separated by " -> ".
func (ex Example) String() string {
	return strings.Join(ex.Question, " ") + " -> " + strings.Join(ex.Answer, " ")
}

// Dataset provides the examples for a Trainer, one at a time.
type Dataset interface {
	// Name identifies the dataset. Used for debugging, pretty-printing and plots.
	Name() string

	// Reset restarts the dataset from the beginning. Can be called after io.EOF is reached,
	// for instance when running another evaluation on a test dataset.
	Reset()

	// Yield one example or an error.
	//
	// If the error is io.EOF the training or evaluation terminates normally, as it indicates the end of data for
	// finite datasets (maybe the end of an epoch).
	//
	// If using Loop.RunSteps for training having an infinite dataset stream is ok. But careful
	// not to use Loop.RunEpochs on a dataset configured to loop indefinitely.
	Yield() (Example, error)
}

// InMemory is a finite Dataset over a slice of examples.
type InMemory struct {
	name     string
	examples []Example
	next     int
}

var _ Dataset = (*InMemory)(nil)

// NewInMemory creates a finite dataset that yields the given examples in order.
func NewInMemory(name string, examples []Example) *InMemory {
	return &InMemory{name: name, examples: examples}
}

// Name implements Dataset.
func (ds *InMemory) Name() string { return ds.name }

// Reset implements Dataset.
func (ds *InMemory) Reset() { ds.next = 0 }

// Len is the number of examples.
func (ds *InMemory) Len() int { return len(ds.examples) }

// Yield implements Dataset.
func (ds *InMemory) Yield() (Example, error) {
	if ds.next >= len(ds.examples) {
		return Example{}, io.EOF
	}
	ds.next++
	return ds.examples[ds.next-1], nil
}

// Collect reads up to n examples from ds (all of them until io.EOF if n <= 0).
func Collect(ds Dataset, n int) ([]Example, error) {
	var examples []Example
	for n <= 0 || len(examples) < n {
		ex, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "reading dataset %q", ds.Name())
		}
		examples = append(examples, ex)
	}
	return examples, nil
}
