// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package datasets

import (
	"io"
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/ml/train"
)

func numbered(n int) *train.InMemory {
	examples := make([]train.Example, n)
	for ii := range examples {
		examples[ii] = train.Example{Question: []string{strconv.Itoa(ii)}}
	}
	return train.NewInMemory("numbered", examples)
}

func questions(t *testing.T, ds train.Dataset) []string {
	examples, err := train.Collect(ds, 0)
	require.NoError(t, err)
	var qs []string
	for _, ex := range examples {
		qs = append(qs, ex.Question[0])
	}
	return qs
}

func TestTake(t *testing.T) {
	ds := Take(numbered(5), 2)
	assert.Equal(t, "numbered [Take 2]", ds.Name())
	assert.Equal(t, []string{"0", "1"}, questions(t, ds))
	ds.Reset()
	assert.Equal(t, []string{"0", "1"}, questions(t, ds))

	// Fewer examples than requested.
	assert.Equal(t, []string{"0", "1", "2"}, questions(t, Take(numbered(3), 10)))
}

// failing yields n examples and then an error.
type failing struct {
	n, count int
}

func (ds *failing) Name() string { return "failing" }
func (ds *failing) Reset()       { ds.count = 0 }
func (ds *failing) Yield() (train.Example, error) {
	if ds.count >= ds.n {
		return train.Example{}, errors.New("broken source")
	}
	ds.count++
	return train.Example{Question: []string{"q"}}, nil
}

func TestReadAhead(t *testing.T) {
	ds := ReadAhead(numbered(20), 3)
	defer ds.Done()
	assert.Equal(t, "numbered", ds.Name())
	want := make([]string, 20)
	for ii := range want {
		want[ii] = strconv.Itoa(ii)
	}
	assert.Equal(t, want, questions(t, ds))
	_, err := ds.Yield()
	assert.Equal(t, io.EOF, err)

	// Reset in the middle of the dataset.
	ds.Reset()
	ex, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, "0", ex.Question[0])
	ds.Reset()
	assert.Equal(t, want, questions(t, ds))

	ds.Done()
	_, err = ds.Yield()
	require.ErrorContains(t, err, "after Done")
	ds.Done() // No-op.
}

func TestReadAheadError(t *testing.T) {
	ds := ReadAhead(&failing{n: 2}, 5)
	defer ds.Done()
	for range 2 {
		_, err := ds.Yield()
		require.NoError(t, err)
	}
	_, err := ds.Yield()
	require.ErrorContains(t, err, "broken source")

	// Generation restarts after Reset.
	ds.Reset()
	_, err = ds.Yield()
	require.NoError(t, err)
}
