// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamingMedian(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	metric := NewMedianMetric("median", "~", "test", nil, nil).WithSampleSize(10_000).WithRNG(rng)

	t.Run("Random 1/r numbers", func(t *testing.T) {
		// Sample from 0.01 < r < 1.0 randomly and feed 1/r, an asymmetric distribution.
		const numExamples = 100_001
		values := make([]float64, 0, numExamples)
		for range numExamples {
			r := 1 / (rng.Float64()*0.99 + 0.01)
			values = append(values, r)
			metric.Add(r)
		}
		slices.Sort(values)
		want := values[numExamples/2]
		require.InDelta(t, want, metric.Value(), 0.1)
	})

	t.Run("Exact while within sample size", func(t *testing.T) {
		metric.Reset()
		for _, x := range []float64{5, 1, 4, 2, 3} {
			metric.Add(x)
		}
		assert.Equal(t, 3.0, metric.Value())
	})

	t.Run("WER", func(t *testing.T) {
		wer := NewMedianWER("Median WER", "~wer")
		wer.Update([]int{1, 0}, []int{1, 0})
		wer.Update([]int{1, 0}, []int{2, 0})
		wer.Update([]int{1, 0}, []int{2, 3})
		assert.Equal(t, 0.5, wer.Value())
		wer.Reset()
		require.Panics(t, func() { wer.Value() })
	})
}
