// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package metrics holds a library of metrics over generated token sequences, and defines
// the Interface they implement.
//
// Metrics are updated one example at a time, with the target tokens and the generated tokens,
// and can be read at any time.
package metrics

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Interface for a Metric.
type Interface interface {
	// Name of the metric.
	Name() string

	// ShortName is a shortened version of the name (preferably a few characters) to display in progress bars or
	// similar UIs.
	ShortName() string

	// MetricType is a key for metrics that share the same quantity or semantics. Eg.:
	// "Mean WER" and "Median WER" would both have the same "wer" metric type, and for instance,
	// can be displayed on the same table column.
	MetricType() string

	// Update the metric with one example: the target tokens and the generated ones.
	Update(target, generated []int)

	// Value returns the current value of the metric. It panics if the metric hasn't been updated
	// since the last Reset.
	Value() float64

	// PrettyPrint is used to pretty-print a metric value, usually in a short form.
	PrettyPrint(value float64) string

	// Reset metrics internal counters when starting a new evaluation.
	Reset()
}

const (
	// LossMetricType is the type of loss metrics.
	LossMetricType = "loss"

	// AccuracyMetricType is the type of accuracy metrics.
	AccuracyMetricType = "accuracy"

	// WERMetricType is the type of word error rate metrics.
	WERMetricType = "wer"
)

// ScoreFn scores one example, given the target and the generated tokens.
type ScoreFn func(target, generated []int) float64

// PrettyPrintFn is a function to convert a metric value to a string.
type PrettyPrintFn func(value float64) string

// baseMetric implements a metric that reports the score of the last example.
type baseMetric struct {
	name, shortName, metricType string
	scoreFn                     ScoreFn
	pPrintFn                    PrettyPrintFn // if nil will display default.

	last    float64
	updated bool
}

func (m *baseMetric) Name() string {
	return m.name
}

func (m *baseMetric) ShortName() string {
	return m.shortName
}

func (m *baseMetric) MetricType() string {
	return m.metricType
}

func (m *baseMetric) Update(target, generated []int) {
	m.last = m.scoreFn(target, generated)
	m.updated = true
}

func (m *baseMetric) Value() float64 {
	if !m.updated {
		exceptions.Panicf("metric %q has seen no examples to read", m.name)
	}
	return m.last
}

func (m *baseMetric) PrettyPrint(value float64) string {
	if m.pPrintFn == nil {
		return fmt.Sprintf("%.3g", value)
	}
	return m.pPrintFn(value)
}

func (m *baseMetric) Reset() {
	m.updated = false
}

// NewBaseMetric creates a stateless metric from any ScoreFn function, it will return the metric
// calculated solely on the last example.
// pPrintFn can be left as nil, and a default will be used.
func NewBaseMetric(name, shortName, metricType string, scoreFn ScoreFn, pPrintFn PrettyPrintFn) Interface {
	return &baseMetric{
		name: name, shortName: shortName, metricType: metricType,
		scoreFn: scoreFn, pPrintFn: pPrintFn}
}

// MeanMetric implements a metric that keeps the mean of a score over all examples seen since the last Reset.
type MeanMetric struct {
	baseMetric
	total  float64
	weight float64
}

// NewMeanMetric creates a metric from any ScoreFn function.
//
// `prettyPrintFn` can be left as nil, and a default will be used.
func NewMeanMetric(
	name, shortName, metricType string,
	scoreFn ScoreFn,
	prettyPrintFn PrettyPrintFn,
) *MeanMetric {
	return &MeanMetric{
		baseMetric: baseMetric{
			name:       name,
			shortName:  shortName,
			metricType: metricType,
			scoreFn:    scoreFn,
			pPrintFn:   prettyPrintFn,
		},
	}
}

func (m *MeanMetric) Update(target, generated []int) {
	m.baseMetric.Update(target, generated)
	m.total += m.last
	m.weight++
}

func (m *MeanMetric) Value() float64 {
	if m.weight == 0 {
		exceptions.Panicf("metric %q has seen no examples to read", m.name)
	}
	return m.total / m.weight
}

func (m *MeanMetric) Reset() {
	m.baseMetric.Reset()
	m.total, m.weight = 0, 0
}

// movingAverageMetric implements a metric that keeps an exponential moving average of a score.
//
// It behaves just like a MeanMetric, but each new example has weight of newExampleWeight, and
// the stored weight is capped at (1-newExampleWeight).
type movingAverageMetric struct {
	MeanMetric
	newExampleWeight float64
}

// NewExponentialMovingAverageMetric creates a metric from any ScoreFn function. It takes new examples with
// the given weight.
//
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
//
// This doesn't have a set prior, it will start being a normal average until there are enough terms, and it becomes
// an exponential moving average after that.
func NewExponentialMovingAverageMetric(
	name, shortName, metricType string,
	scoreFn ScoreFn,
	prettyPrintFn PrettyPrintFn,
	newExampleWeight float64,
) Interface {
	if newExampleWeight <= 0 || newExampleWeight >= 1 {
		exceptions.Panicf("metric %q: newExampleWeight must be in (0, 1), got %g", name, newExampleWeight)
	}
	return &movingAverageMetric{
		MeanMetric:       *NewMeanMetric(name, shortName, metricType, scoreFn, prettyPrintFn),
		newExampleWeight: newExampleWeight,
	}
}

func (m *movingAverageMetric) Update(target, generated []int) {
	m.baseMetric.Update(target, generated)
	previousWeight := min(m.weight, 1/m.newExampleWeight-1)
	m.total = m.total*previousWeight/max(m.weight, 1) + m.last
	m.weight = previousWeight + 1
}

// WordErrorRate is the Levenshtein (edit) distance between generated and target, divided by the
// length of target.
//
// An empty target gives 0 if generated is also empty, and 1 otherwise.
func WordErrorRate(target, generated []int) float64 {
	if len(target) == 0 {
		if len(generated) == 0 {
			return 0
		}
		return 1
	}
	return float64(EditDistance(target, generated)) / float64(len(target))
}

// EditDistance is the minimum number of insertions, deletions and substitutions to transform a into b.
func EditDistance[T comparable](a, b []T) int {
	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for jj := range previous {
		previous[jj] = jj
	}
	for ii := range a {
		current[0] = ii + 1
		for jj := range b {
			cost := 1
			if a[ii] == b[jj] {
				cost = 0
			}
			current[jj+1] = min(previous[jj+1]+1, current[jj]+1, previous[jj]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(b)]
}

// Accuracy is the fraction of positions where generated matches target, over the longest of the two.
// Two empty sequences have accuracy 1.
func Accuracy(target, generated []int) float64 {
	length := max(len(target), len(generated))
	if length == 0 {
		return 1
	}
	var matches int
	for ii := range min(len(target), len(generated)) {
		if target[ii] == generated[ii] {
			matches++
		}
	}
	return float64(matches) / float64(length)
}

func accuracyPPrint(value float64) string {
	return fmt.Sprintf("%.2f%%", value*100.0)
}

// NewMeanWER returns a new mean word error rate metric with the given names.
func NewMeanWER(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, WERMetricType, WordErrorRate, nil)
}

// NewMeanAccuracy returns a new mean accuracy metric with the given names.
func NewMeanAccuracy(name, shortName string) *MeanMetric {
	return NewMeanMetric(name, shortName, AccuracyMetricType, Accuracy, accuracyPPrint)
}

// NewMovingAverageAccuracy returns a new accuracy metric with the given names.
// A typical value of newExampleWeight is 0.01, the smaller the value, the slower the moving average moves.
func NewMovingAverageAccuracy(name, shortName string, newExampleWeight float64) Interface {
	return NewExponentialMovingAverageMetric(name, shortName, AccuracyMetricType, Accuracy, accuracyPPrint,
		newExampleWeight)
}
