// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package.
package xslices

import (
	"cmp"
	"slices"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// At takes an element at the given `index`, where `index` can be negative, in which case it takes from the end
// of the slice.
func At[T any](slice []T, index int) T {
	if index < 0 {
		index = len(slice) + index
	}
	return slice[index]
}

// Last returns the last element of a slice.
func Last[T any](slice []T) T {
	return At(slice, -1)
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// SortedKeys returns the keys of the map, sorted.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// Iota returns a slice of incremental values, starting with start and with len elements.
//
// Eg: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T interface {
	constraints.Integer | constraints.Float
}](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Mean returns the arithmetic mean of the values, or 0 for an empty slice.
func Mean[T constraints.Integer | constraints.Float](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += float64(v)
	}
	return sum / float64(len(values))
}

// Ring is a fixed capacity FIFO of values: once full, pushing a new value drops the oldest.
// It is used to keep moving averages of training metrics.
type Ring[T constraints.Integer | constraints.Float] struct {
	values []T
	next   int
	full   bool
}

// NewRing creates a Ring with the given capacity, which must be > 0.
func NewRing[T constraints.Integer | constraints.Float](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{values: make([]T, capacity)}
}

// Push appends value, dropping the oldest one if the ring is full.
func (r *Ring[T]) Push(value T) {
	r.values[r.next] = value
	r.next++
	if r.next == len(r.values) {
		r.next = 0
		r.full = true
	}
}

// Len returns the number of values currently held.
func (r *Ring[T]) Len() int {
	if r.full {
		return len(r.values)
	}
	return r.next
}

// Mean of the values held, or 0 if empty.
func (r *Ring[T]) Mean() float64 {
	return Mean(r.values[:r.Len()])
}
