// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"math/rand/v2"
	"slices"

	"github.com/gomlx/exceptions"
)

// StreamingMedianMetric implements a metric that keeps an approximate median of a score from a streaming
// input, using reservoir sampling.
type StreamingMedianMetric struct {
	baseMetric
	maxNumSamples, samplesSeen int
	samples                    []float64
	rng                        *rand.Rand
}

// NewMedianMetric creates a streaming median metric from any ScoreFn function.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMedianMetric(
	name, shortName, metricType string,
	scoreFn ScoreFn,
	prettyPrintFn PrettyPrintFn,
) *StreamingMedianMetric {
	return &StreamingMedianMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			scoreFn:    scoreFn,
			pPrintFn:   prettyPrintFn,
		},
		maxNumSamples: 10_001,
	}
}

// WithSampleSize configures the default number of random samples to keep to estimate the median.
func (m *StreamingMedianMetric) WithSampleSize(n int) *StreamingMedianMetric {
	if n <= 0 {
		exceptions.Panicf("streaming median metric %q: sample size must be > 0, got %d", m.name, n)
	}
	m.maxNumSamples = n
	return m
}

// WithRNG sets the random number generator used to select the samples kept.
// If not set, a randomly seeded one is created on first use.
func (m *StreamingMedianMetric) WithRNG(rng *rand.Rand) *StreamingMedianMetric {
	m.rng = rng
	return m
}

func (m *StreamingMedianMetric) Update(target, generated []int) {
	m.baseMetric.Update(target, generated)
	m.Add(m.last)
}

// Add a score directly to the sampled stream.
func (m *StreamingMedianMetric) Add(x float64) {
	if m.samples == nil {
		m.samples = make([]float64, 0, min(m.maxNumSamples, 1024))
		m.samplesSeen = 0
		if m.rng == nil {
			m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		}
	}
	m.samplesSeen++

	// Simple case: we have space to simply store the new sampled x.
	if len(m.samples) < m.maxNumSamples {
		m.samples = append(m.samples, x)
		return
	}

	// We must decide whether to keep x:
	if m.rng.Float64() >= float64(m.maxNumSamples)/float64(m.samplesSeen) {
		return
	}
	// We replace the new sampled x in a random position.
	m.samples[m.rng.IntN(m.maxNumSamples)] = x
}

func (m *StreamingMedianMetric) Value() float64 {
	if len(m.samples) == 0 {
		exceptions.Panicf("streaming median metric %q has seen no samples to read", m.name)
	}
	slices.Sort(m.samples)
	return m.samples[len(m.samples)/2]
}

// Reset deletes all samples.
func (m *StreamingMedianMetric) Reset() {
	m.baseMetric.Reset()
	m.samples = nil
	m.samplesSeen = 0
}

// NewMedianWER returns a new streaming median word error rate metric with the given names.
func NewMedianWER(name, shortName string) *StreamingMedianMetric {
	return NewMedianMetric(name, shortName, WERMetricType, WordErrorRate, nil)
}
