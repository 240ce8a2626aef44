// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package datasets is a collection of utility datasets (train.Dataset) that can be combined:
// `Take` and `ReadAhead`.
//
// Sub-packages implement concrete datasets, e.g. calc.
package datasets

import (
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"k8s.io/klog/v2"
)

// takeDataset implements a `train.Dataset` that only yields `take` examples.
type takeDataset struct {
	ds          train.Dataset
	count, take int
}

// Take returns a wrapper to `ds`, a `train.Dataset` that only yields `n` examples.
func Take(ds train.Dataset, n int) train.Dataset {
	return &takeDataset{
		ds:   ds,
		take: n,
	}
}

// Name implements train.Dataset. It returns the dataset name.
func (ds *takeDataset) Name() string {
	return fmt.Sprintf("%s [Take %d]", ds.ds.Name(), ds.take)
}

// Reset implements train.Dataset.
func (ds *takeDataset) Reset() {
	ds.ds.Reset()
	ds.count = 0
}

// Yield implements train.Dataset.
func (ds *takeDataset) Yield() (train.Example, error) {
	if ds.count >= ds.take {
		return train.Example{}, io.EOF
	}
	ds.count++
	return ds.ds.Yield()
}

type yieldUnit struct {
	ex  train.Example
	err error
}

// ReadAheadDataset is a wrapper around a `train.Dataset` that generates examples in a separate goroutine,
// so they are ready when Yield is called. See ReadAhead.
type ReadAheadDataset struct {
	ds         train.Dataset
	bufferSize int

	buffer chan yieldUnit
	stop   chan struct{}
	wg     sync.WaitGroup
}

var _ train.Dataset = (*ReadAheadDataset)(nil)

// ReadAhead returns a Dataset that reads up to bufferSize examples of the given `ds` ahead of time,
// so that when Yield is called, the results are immediate. The order of the examples is preserved.
//
// The underlying ds is only accessed by the reading goroutine (and by Reset, after the goroutine stopped),
// so it doesn't need to be safe for concurrent use.
//
// To avoid leaking the goroutine, call ReadAheadDataset.Done when finished.
func ReadAhead(ds train.Dataset, bufferSize int) *ReadAheadDataset {
	r := &ReadAheadDataset{
		ds:         ds,
		bufferSize: max(bufferSize, 1),
	}
	r.start()
	return r
}

func (r *ReadAheadDataset) start() {
	buffer := make(chan yieldUnit, r.bufferSize)
	stop := make(chan struct{})
	r.buffer, r.stop = buffer, stop
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(buffer)
		for {
			ex, err := r.ds.Yield()
			if err == io.EOF {
				return
			}
			select {
			case buffer <- yieldUnit{ex: ex, err: err}:
			case <-stop:
				return
			}
			if err != nil {
				// The error is delivered to Yield, and generation stops until Reset.
				return
			}
		}
	}()
}

// halt stops the reading goroutine and discards the examples read ahead.
func (r *ReadAheadDataset) halt() {
	close(r.stop)
	r.wg.Wait()
	r.buffer, r.stop = nil, nil
}

// Name implements train.Dataset.
func (r *ReadAheadDataset) Name() string {
	return r.ds.Name()
}

// Reset implements train.Dataset.
func (r *ReadAheadDataset) Reset() {
	if r.buffer == nil {
		klog.Warningf("ReadAheadDataset(%q).Reset called after Done", r.Name())
		return
	}
	r.halt()
	r.ds.Reset()
	r.start()
}

// Yield implements train.Dataset.
func (r *ReadAheadDataset) Yield() (train.Example, error) {
	if r.buffer == nil {
		return train.Example{}, errors.Errorf("ReadAheadDataset(%q).Yield called after Done", r.Name())
	}
	unit, ok := <-r.buffer
	if !ok {
		return train.Example{}, io.EOF
	}
	return unit.ex, unit.err
}

// Done stops the reading goroutine. The dataset can't be used afterwards.
func (r *ReadAheadDataset) Done() {
	if r.buffer != nil {
		r.halt()
	}
}
