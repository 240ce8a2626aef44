// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package calc generates a synthetic arithmetic task: questions like "how much is 3+4", whose answers
// ("7", database.EOS) are only available through a database mapping each sum symbol ("3+4") to its result.
//
// The operand pairs are split between a train and a test set, so the test set measures whether the
// model learned to use the database rather than to memorize answers.
package calc

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/train"
)

// Templates of the questions, the sum symbol replaces "%s".
var Templates = []string{
	"how much is %s",
	"what is %s",
	"%s equals",
}

// Config of the task.
type Config struct {
	// MaxOperand is the largest operand: operands go from 0 to MaxOperand.
	MaxOperand int

	// TestFraction is the fraction of the operand pairs held out for the test set.
	TestFraction float64
}

// DefaultConfig uses operands from 0 to 9 and holds out 20% of the pairs.
func DefaultConfig() Config {
	return Config{MaxOperand: 9, TestFraction: 0.2}
}

// Pair of operands.
type Pair struct {
	A, B int
}

// Symbol is the vocabulary symbol of the sum of the pair, e.g. "3+4".
func (p Pair) Symbol() string {
	return fmt.Sprintf("%d+%d", p.A, p.B)
}

// Task holds the vocabulary, the database content and the train/test split.
type Task struct {
	config      Config
	vocab       *database.Vocabulary
	content     *database.Content
	train, test []Pair
}

// New creates the task, splitting the operand pairs randomly with rng.
// The returned Task's vocabulary is frozen.
func New(config Config, rng *rand.Rand) (*Task, error) {
	if config.MaxOperand < 1 {
		return nil, errors.Errorf("calc: MaxOperand must be >= 1, got %d", config.MaxOperand)
	}
	if config.TestFraction < 0 || config.TestFraction >= 1 {
		return nil, errors.Errorf("calc: TestFraction must be in [0, 1), got %g", config.TestFraction)
	}
	task := &Task{
		config:  config,
		vocab:   database.NewVocabulary(),
		content: database.NewContent(1),
	}
	for _, template := range Templates {
		for _, word := range strings.Fields(template) {
			if word != "%s" {
				task.vocab.MustAdd(word)
			}
		}
	}
	for sum := range 2*config.MaxOperand + 1 {
		task.vocab.MustAdd(strconv.Itoa(sum))
	}
	var pairs []Pair
	for a := range config.MaxOperand + 1 {
		for b := range config.MaxOperand + 1 {
			p := Pair{a, b}
			pairs = append(pairs, p)
			task.vocab.MustAdd(p.Symbol())
			if err := task.content.Add(1, strconv.Itoa(a+b), p.Symbol()); err != nil {
				return nil, err
			}
		}
	}
	task.vocab.Freeze()

	rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })
	numTest := int(math.Round(config.TestFraction * float64(len(pairs))))
	task.test, task.train = pairs[:numTest], pairs[numTest:]
	return task, nil
}

// Vocabulary of the questions and answers.
func (t *Task) Vocabulary() *database.Vocabulary { return t.vocab }

// Content of the database: each sum symbol maps to its result with weight 1.
func (t *Task) Content() *database.Content { return t.content }

// NewDBDist creates the differentiable database over the content, for the task's vocabulary.
func (t *Task) NewDBDist() (*database.DBDist, error) {
	return database.NewDBDist(t.content, t.vocab, t.vocab)
}

// TrainPairs returns the operand pairs of the train set.
func (t *Task) TrainPairs() []Pair { return t.train }

// TestPairs returns the operand pairs of the test set.
func (t *Task) TestPairs() []Pair { return t.test }

// Example returns the question for the pair using the given template, and its answer.
func Example(p Pair, template int) train.Example {
	return train.Example{
		Question: strings.Fields(fmt.Sprintf(Templates[template], p.Symbol())),
		Answer:   []string{strconv.Itoa(p.A + p.B), database.EOS},
	}
}

// TrainDataset returns an infinite dataset sampling train pairs and templates uniformly with rng.
func (t *Task) TrainDataset(rng *rand.Rand) train.Dataset {
	return &sampler{pairs: t.train, rng: rng}
}

// TestDataset returns a finite dataset with every test pair asked with every template.
func (t *Task) TestDataset() *train.InMemory {
	examples := make([]train.Example, 0, len(t.test)*len(Templates))
	for _, p := range t.test {
		for template := range Templates {
			examples = append(examples, Example(p, template))
		}
	}
	return train.NewInMemory("calc-test", examples)
}

// sampler is an infinite train.Dataset.
type sampler struct {
	pairs []Pair
	rng   *rand.Rand
}

func (s *sampler) Name() string { return "calc-train" }

func (s *sampler) Reset() {}

func (s *sampler) Yield() (train.Example, error) {
	if len(s.pairs) == 0 {
		return train.Example{}, errors.New("calc: no train pairs to sample from")
	}
	return Example(s.pairs[s.rng.IntN(len(s.pairs))], s.rng.IntN(len(Templates))), nil
}
