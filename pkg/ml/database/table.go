// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package database

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
)

// FieldColumnPrefix is the prefix of the field columns of a table CSV: "field", "field_name", etc.
const FieldColumnPrefix = "field"

// Table holds the contents of a DBSet: each record is one entry, with its own symbol in Entries, found through
// the Index content and holding one value per field.
type Table struct {
	Index      *Content
	Fields     []*Content
	FieldNames []string
	Entries    *Vocabulary
}

// LoadTableCSV reads a table from a CSV with a header. The header must have one or more key columns (see
// KeyColumnPrefix), one or more field columns (see FieldColumnPrefix), and optionally a WeightColumn with
// the weight of each record in the index. Records with an empty value in a field don't hold that field.
//
// The entries are named "#1", "#2", ..., after the CSV rows.
func LoadTableCSV(r io.Reader) (*Table, error) {
	df, err := readCSV(r)
	if err != nil {
		return nil, err
	}
	names := df.Names()
	keyColumns := columnsWithPrefix(names, KeyColumnPrefix)
	fieldColumns := columnsWithPrefix(names, FieldColumnPrefix)
	if len(fieldColumns) == 0 {
		return nil, errors.Errorf("database table CSV has no field column (prefix %q) in header %q", FieldColumnPrefix, names)
	}
	table := &Table{
		Index:      NewContent(len(keyColumns)),
		FieldNames: fieldColumns,
		Entries:    NewVocabulary(),
	}
	keys := make([][]string, len(keyColumns))
	for ii, name := range keyColumns {
		keys[ii] = df.Col(name).Records()
	}
	fieldValues := make([][]string, len(fieldColumns))
	for ii, name := range fieldColumns {
		fieldValues[ii] = df.Col(name).Records()
		table.Fields = append(table.Fields, NewContent(1))
	}
	weights := csvWeights(df)

	recordKeys := make([]string, len(keyColumns))
	for row := range df.Nrow() {
		entry := "#" + strconv.Itoa(row+1)
		table.Entries.MustAdd(entry)
		for ii := range keyColumns {
			recordKeys[ii] = keys[ii][row]
		}
		if err := table.Index.Add(weights[row], entry, recordKeys...); err != nil {
			return nil, errors.WithMessagef(err, "database table CSV row %d", row+1)
		}
		for ii, values := range fieldValues {
			if strings.TrimSpace(values[row]) == "" {
				continue
			}
			if err := table.Fields[ii].Add(1, values[row], entry); err != nil {
				return nil, errors.WithMessagef(err, "database table CSV row %d, field %q", row+1, fieldColumns[ii])
			}
		}
	}
	table.Entries.Freeze()
	return table, nil
}

// NewDBSet creates the DBSet over the table, with queries and field values in vocab.
func (t *Table) NewDBSet(vocab *Vocabulary, amplifyPower float64) (*DBSet, error) {
	return NewDBSet(t.Index, t.Fields, vocab, t.Entries, amplifyPower)
}

// FieldIndex returns the position of the field with the given column name.
func (t *Table) FieldIndex(name string) (int, error) {
	for ii, fieldName := range t.FieldNames {
		if fieldName == name {
			return ii, nil
		}
	}
	return -1, errors.Errorf("database table has no field %q, fields are %q", name, t.FieldNames)
}

// LoadBlockCSV reads a database CSV and returns its lookup block for a model over vocab, with a single query
// input and a single distribution output:
//
//   - A CSV with field columns is loaded as a Table, and the block is the Field of its DBSet with the column
//     name fieldName ("" for the first field). The index must have one key column.
//   - Otherwise it is loaded with LoadCSV, and the block is the DBDist of the content, which must have
//     one key column.
func LoadBlockCSV(r io.Reader, vocab *Vocabulary, fieldName string, amplifyPower float64) (nn.Block, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read database CSV")
	}
	header, _, _ := strings.Cut(string(data), "\n")
	hasFields := false
	for _, name := range strings.Split(header, ",") {
		hasFields = hasFields || strings.HasPrefix(strings.TrimSpace(name), FieldColumnPrefix)
	}

	if !hasFields {
		content, err := LoadCSV(strings.NewReader(string(data)))
		if err != nil {
			return nil, err
		}
		if content.Arity() != 1 {
			return nil, errors.Errorf("database must have exactly one key column for a single query, got %d", content.Arity())
		}
		return NewDBDist(content, vocab, vocab)
	}

	table, err := LoadTableCSV(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	if table.Index.Arity() != 1 {
		return nil, errors.Errorf("database table must have exactly one key column for a single query, got %d", table.Index.Arity())
	}
	field := 0
	if fieldName != "" {
		if field, err = table.FieldIndex(fieldName); err != nil {
			return nil, err
		}
	}
	set, err := table.NewDBSet(vocab, amplifyPower)
	if err != nil {
		return nil, err
	}
	return NewField(set, field), nil
}
