// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package database

import (
	"io"
	"math"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Record is one entry of a database table: its keys map to Value with the given Weight.
type Record struct {
	Keys   []string
	Value  string
	Weight float64
}

// Content is the static content of a database table, with a fixed number of keys (arity) per record.
type Content struct {
	arity   int
	records []Record
}

// NewContent creates an empty Content for records with the given number of keys.
func NewContent(arity int) *Content {
	return &Content{arity: arity}
}

// Arity is the number of keys of each record.
func (c *Content) Arity() int { return c.arity }

// Records returns the records, in insertion order. The returned slice must not be modified.
func (c *Content) Records() []Record { return c.records }

// Add a record mapping the keys to value with the given weight.
// It returns an error if the number of keys doesn't match the arity, or the weight is not finite.
func (c *Content) Add(weight float64, value string, keys ...string) error {
	if len(keys) != c.arity {
		return errors.Errorf("record for value %q has %d keys, content arity is %d", value, len(keys), c.arity)
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return errors.Errorf("record for value %q has invalid weight %g", value, weight)
	}
	c.records = append(c.records, Record{Keys: slices.Clone(keys), Value: value, Weight: weight})
	return nil
}

// Symbols returns the keys and values of the content, in order of first appearance, to populate a Vocabulary.
func (c *Content) Symbols() (keys, values []string) {
	seenKeys, seenValues := make(map[string]bool), make(map[string]bool)
	for _, r := range c.records {
		for _, key := range r.Keys {
			if !seenKeys[key] {
				seenKeys[key] = true
				keys = append(keys, key)
			}
		}
		if !seenValues[r.Value] {
			seenValues[r.Value] = true
			values = append(values, r.Value)
		}
	}
	return
}

const (
	// ValueColumn is the CSV column with the records' values.
	ValueColumn = "value"

	// WeightColumn is the optional CSV column with the records' weights. If absent, weights are 1.
	WeightColumn = "weight"

	// KeyColumnPrefix is the prefix of the CSV key columns: "key", "key1", "key_b", etc.
	// The key columns are taken in the order they appear in the header.
	KeyColumnPrefix = "key"
)

// LoadCSV reads content from a CSV with a header. The header must have one or more key columns (see
// KeyColumnPrefix), a ValueColumn, and optionally a WeightColumn.
func LoadCSV(r io.Reader) (*Content, error) {
	df, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	names := df.Names()
	if !slices.Contains(names, ValueColumn) {
		return nil, errors.Errorf("database content CSV has no %q column in header %q", ValueColumn, names)
	}
	keyColumns := columnsWithPrefix(names, KeyColumnPrefix)
	keys := make([][]string, len(keyColumns))
	for ii, name := range keyColumns {
		keys[ii] = df.Col(name).Records()
	}
	values := df.Col(ValueColumn).Records()
	weights := csvWeights(df)

	content := NewContent(len(keyColumns))
	recordKeys := make([]string, len(keyColumns))
	for row := range df.Nrow() {
		for ii := range keyColumns {
			recordKeys[ii] = keys[ii][row]
		}
		if err := content.Add(weights[row], values[row], recordKeys...); err != nil {
			return nil, errors.WithMessagef(err, "database content CSV row %d", row+1)
		}
	}
	return content, nil
}

// readCSV parses a database CSV with all columns as strings, except WeightColumn. It checks that there is
// at least one key column.
func readCSV(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithTypes(map[string]series.Type{WeightColumn: series.Float}))
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "failed to parse database CSV")
	}
	if len(columnsWithPrefix(df.Names(), KeyColumnPrefix)) == 0 {
		return df, errors.Errorf("database CSV has no key column (prefix %q) in header %q", KeyColumnPrefix, df.Names())
	}
	return df, nil
}

// columnsWithPrefix returns the names starting with prefix, in order.
func columnsWithPrefix(names []string, prefix string) (columns []string) {
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			columns = append(columns, name)
		}
	}
	return
}

// csvWeights returns the WeightColumn values, or 1 for every row if there is no such column.
func csvWeights(df dataframe.DataFrame) []float64 {
	if slices.Contains(df.Names(), WeightColumn) {
		return df.Col(WeightColumn).Float()
	}
	weights := make([]float64, df.Nrow())
	for ii := range weights {
		weights[ii] = 1
	}
	return weights
}
