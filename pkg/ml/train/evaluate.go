// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package train

import (
	"io"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
)

// Evaluation is one evaluated example.
type Evaluation struct {
	Example    Example
	Target     []int
	Generation *nton.Generation
	Loss       float64
}

// Evaluate generates answers for up to numExamples examples of ds (all of them until io.EOF if numExamples <= 0)
// and updates the given metrics, which are reset first. ds is reset before and after.
//
// It returns the mean loss and the metric values, in the same order as evalMetrics. The model parameters
// and gradients are not changed.
//
// If onExample is not nil, it is called for each evaluated example.
func Evaluate(model *nton.Model, ds Dataset, numExamples int, onExample func(ev Evaluation),
	evalMetrics ...metrics.Interface) (meanLoss float64, values []float64, err error) {
	ds.Reset()
	defer ds.Reset()
	for _, m := range evalMetrics {
		m.Reset()
	}
	var count int
	for numExamples <= 0 || count < numExamples {
		ex, err := ds.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "Evaluate(%q) failed reading example #%d", ds.Name(), count)
		}
		embeddings, start, target, err := model.PrepareExample(ex.Question, ex.Answer)
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "Evaluate(%q) example #%d", ds.Name(), count)
		}
		ev := Evaluation{Example: ex, Target: target}
		err = exceptions.TryCatch[error](func() {
			ev.Generation = model.Forward(embeddings, start)
			ev.Loss, _ = SeqLoss(ev.Generation.Y, target)
		})
		if err != nil {
			return 0, nil, errors.WithMessagef(err, "Evaluate(%q) example #%d", ds.Name(), count)
		}
		for _, m := range evalMetrics {
			m.Update(target, ev.Generation.Tokens)
		}
		if onExample != nil {
			onExample(ev)
		}
		meanLoss += ev.Loss
		count++
	}
	if count == 0 {
		return 0, nil, errors.Errorf("Evaluate(%q): dataset yielded no examples", ds.Name())
	}
	meanLoss /= float64(count)
	values = make([]float64, len(evalMetrics))
	for ii, m := range evalMetrics {
		values[ii] = m.Value()
	}
	return meanLoss, values, nil
}
