// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nton

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/gradcheck"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"github.com/vishalbelsare/nton/pkg/ml/layers/lstm"
	"gonum.org/v1/gonum/mat"
)

// newModel creates a model over a frozen vocabulary with the given symbols (plus EOS), and a database that
// maps each pair of symbols (key, value) given.
func newModel(t *testing.T, config Config, rng rand.Source, symbols []string, db ...[2]string) *Model {
	vocab := database.NewVocabulary(symbols...)
	vocab.Freeze()
	content := database.NewContent(1)
	for _, kv := range db {
		require.NoError(t, content.Add(1, kv[1], kv[0]))
	}
	dbDist, err := database.NewDBDist(content, vocab, vocab)
	require.NoError(t, err)
	m, err := New(config, vocab, dbDist, rng)
	require.NoError(t, err)
	return m
}

// seqLoss is the sum of the negative log-likelihood of each target token, over the steps both in target and
// generated. It returns one gradient per generated step.
func seqLoss(gen *Generation, target []int) (loss float64, dY []*mat.Dense) {
	for step, y := range gen.Y {
		dy := tensors.ZerosLike(y)
		if step < len(target) {
			prob := math.Max(y.At(0, target[step]), 1e-12)
			loss -= math.Log(prob)
			dy.Set(0, target[step], -1/prob)
		}
		dY = append(dY, dy)
	}
	return
}

func TestConfig(t *testing.T) {
	config := ConfigFromParams(hparams.Params{hparams.ParamNumCells: 7, hparams.ParamInitStddev: 1})
	assert.Equal(t, 7, config.NumCells)
	assert.Equal(t, 1.0, config.InitStddev)
	assert.Equal(t, DefaultConfig().MaxGen, config.MaxGen)
	require.NoError(t, config.Validate())

	config.MaxGen = 0
	require.ErrorContains(t, config.Validate(), "MaxGen")

	vocab := database.NewVocabulary("a")
	_, err := New(DefaultConfig(), vocab, nil, rand.NewPCG(0, 0))
	require.ErrorContains(t, err, "frozen")
}

func TestParams(t *testing.T) {
	rng := rand.New(rand.NewPCG(0, 0))
	m := newModel(t, Config{NumCells: 3, MaxGen: 2, InitStddev: 0.1}, rng, []string{"a", "b"})
	assert.Equal(t, []string{"encoder", "decoder", "attention", "classifier", "gate"}, m.Params().Names())
	assert.Len(t, m.ParamLayers(), 5)
	// d=3, n=3: 2 LSTMs (3x12 + 3x12 + 12), attention (9+9+3), classifier (9+3), gate (3+1).
	assert.Equal(t, 2*84+21+12+4, m.NumParams())
	require.NoError(t, m.Params().Compatible(m.Grads()))
}

// setupDecoder configures the model so that the decoder deterministically generates "a", "b", [EOS]:
// each decoder step copies the embedding of its input token into its hidden state, the classifier maps
// EOS->a, a->b and b->EOS, and the gate always selects the classifier.
func setupDecoder(m *Model) {
	n := m.config.NumCells
	params := m.decoder.Params()
	params.Get("Wh").Zero()
	wx, b := params.Get("Wx"), params.Get("b")
	wx.Zero()
	b.Zero()
	for ii := range n {
		wx.Set(ii, lstm.GateCandidate*n+ii, 3)
		b.Set(0, lstm.GateInput*n+ii, 20)
		b.Set(0, lstm.GateForget*n+ii, -20)
		b.Set(0, lstm.GateOutput*n+ii, 20)
	}

	vocab := m.vocab
	w := m.classifier.Params().GetPath("0/W")
	w.Zero()
	m.classifier.Params().GetPath("0/b").Zero()
	w.Set(database.EOSIndex, vocab.MustIndex("a"), 10)
	w.Set(vocab.MustIndex("a"), vocab.MustIndex("b"), 10)
	w.Set(vocab.MustIndex("b"), database.EOSIndex, 10)

	m.gate.Params().GetPath("0/W").Zero()
	m.gate.Params().GetPath("0/b").Set(0, 0, 20)
}

func TestDecodingLoop(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	m := newModel(t, Config{NumCells: 3, MaxGen: 5, InitStddev: 0.1}, rng, []string{"a", "b"}, [2]string{"a", "b"})
	setupDecoder(m)

	embeddings, start, target, err := m.PrepareExample([]string{"b", "a"}, []string{"a", "b", database.EOS})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, target)
	gen := m.Forward(embeddings, start)
	require.Equal(t, 3, gen.Len())
	assert.Equal(t, []int{1, 2, 0}, gen.Tokens)
	assert.Equal(t, []string{"a", "b", database.EOS}, m.Decode(gen.Y))
	assert.Equal(t, 2, gen.NumInputs())
	for step, y := range gen.Y {
		assert.InDelta(t, 1.0, tensors.Sum(y), 1e-6, "step %d", step)
	}
	require.Len(t, gen.Steps, 3)
	assert.Equal(t, "b", gen.Steps[1].Symbol)
	assert.Equal(t, "b", gen.Steps[1].RNNSymbol)
	assert.InDelta(t, 1.0, gen.Steps[1].Gate, 1e-6)
	assert.Len(t, gen.Steps[1].Alpha, 2)
	assert.InDelta(t, 1.0, gen.Steps[1].Alpha[0]+gen.Steps[1].Alpha[1], 1e-9)

	// Backward takes exactly one gradient per generated step.
	_, dY := seqLoss(gen, target)
	m.ZeroGrads()
	dEmbeddings, dStart := m.Backward(gen, dY)
	assert.Equal(t, "[2 3]", tensors.ShapeString(dEmbeddings))
	assert.Equal(t, "[1 3]", tensors.ShapeString(dStart))

	err = exceptions.TryCatch[error](func() { m.Backward(gen, dY[:2]) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 2 output gradients, but 3 steps were generated")

	// MaxGen caps the generation.
	m.config.MaxGen = 2
	gen = m.Forward(embeddings, start)
	assert.Equal(t, []int{1, 2}, gen.Tokens)

	_, _, _, err = m.PrepareExample([]string{"c"}, []string{"a"})
	require.Error(t, err)
}

// modelChecker checks the gradients of the input embeddings and of the start symbol.
func modelChecker(m *Model, numInputs int) *gradcheck.Checker[*Generation] {
	d := m.embedding.Size()
	return gradcheck.New(
		func(inputs []*mat.Dense) ([]*mat.Dense, *Generation) {
			gen := m.Forward(inputs[0], inputs[1])
			return gen.Y, gen
		},
		func(gen *Generation, dY []*mat.Dense) []*mat.Dense {
			m.ZeroGrads()
			dEmbeddings, dStart := m.Backward(gen, dY)
			return []*mat.Dense{dEmbeddings, dStart}
		},
		gradcheck.NormalInputs(1, [2]int{numInputs, d}, [2]int{1, d}),
	)
}

// paramChecker checks the gradient of the parameter in the given path, with fixed inputs.
func paramChecker(m *Model, path string, embeddings, start *mat.Dense) *gradcheck.Checker[*Generation] {
	param := m.Params().GetPath(path)
	rows, cols := param.Dims()
	return gradcheck.New(
		func(inputs []*mat.Dense) ([]*mat.Dense, *Generation) {
			param.Copy(inputs[0])
			gen := m.Forward(embeddings, start)
			return gen.Y, gen
		},
		func(gen *Generation, dY []*mat.Dense) []*mat.Dense {
			m.ZeroGrads()
			m.Backward(gen, dY)
			return []*mat.Dense{tensors.Clone(m.Grads().GetPath(path))}
		},
		gradcheck.NormalInputs(1, [2]int{rows, cols}),
	)
}

func TestGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 2))
	symbols := []string{"a", "b", "c"}
	m := newModel(t, Config{NumCells: 3, MaxGen: 4, InitStddev: 1}, rng, symbols,
		[2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"})

	report := modelChecker(m, 3).Trials(3).Check(rng)
	require.NoError(t, report.Err())
	require.True(t, report.Clean(), "report: %s", report)

	embeddings := tensors.Normal(rng, 3, m.embedding.Size(), 1)
	start := m.StartSymbol()
	for _, path := range []string{
		"encoder/Wx", "encoder/Wh", "encoder/b",
		"decoder/Wx", "decoder/Wh", "decoder/b",
		"attention/Wy", "attention/Wh", "attention/w",
		"classifier/0/W", "classifier/0/b",
		"gate/0/W", "gate/0/b",
	} {
		report := paramChecker(m, path, embeddings, start).Trials(2).Check(rng)
		require.NoError(t, report.Err(), "parameter %q", path)
		require.True(t, report.Clean(), "parameter %q report: %s", path, report)
	}
}

func TestTraining(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	m := newModel(t, Config{NumCells: 3, MaxGen: 3, InitStddev: 0.1}, rng, []string{"k", "v"}, [2]string{"k", "v"})
	embeddings, start, target, err := m.PrepareExample([]string{"k"}, []string{"v"})
	require.NoError(t, err)

	var firstLoss, lastLoss float64
	for step := range 200 {
		m.ZeroGrads()
		gen := m.Forward(embeddings, start)
		loss, dY := seqLoss(gen, target)
		m.Backward(gen, dY)
		require.NoError(t, m.UpdateParams(0.5))
		if step == 0 {
			firstLoss = loss
		}
		lastLoss = loss
	}
	assert.Greater(t, firstLoss, 10*lastLoss, "loss should drop from %.4f, got %.4f", firstLoss, lastLoss)
	gen := m.Forward(embeddings, start)
	assert.Equal(t, m.vocab.MustIndex("v"), gen.Tokens[0])
}

// TestTrainingThroughDatabase starts with a gate that selects the database lookup, over a single-entry
// database, and trains the full answer including EOS.
func TestTrainingThroughDatabase(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	m := newModel(t, Config{NumCells: 3, MaxGen: 3, InitStddev: 0.1}, rng, []string{"k", "v"}, [2]string{"k", "v"})
	m.gate.Params().GetPath("0/W").Zero()
	m.gate.Params().GetPath("0/b").Set(0, 0, -6)
	embeddings, start, target, err := m.PrepareExample([]string{"k"}, []string{"v", database.EOS})
	require.NoError(t, err)

	// The first step outputs about the database value.
	gen := m.Forward(embeddings, start)
	first := gen.Steps[0]
	assert.Less(t, first.Gate, 0.01)
	assert.Equal(t, "v", first.DBSymbol)
	assert.InDelta(t, 1.0, first.DBProb, 1e-9)
	assert.Equal(t, "v", first.Symbol)
	assert.Greater(t, gen.Y[0].At(0, m.vocab.MustIndex("v")), 0.99)

	var firstLoss, lastLoss float64
	for step := range 200 {
		m.ZeroGrads()
		gen := m.Forward(embeddings, start)
		loss, dY := seqLoss(gen, target)
		m.Backward(gen, dY)
		require.NoError(t, m.UpdateParams(0.5))
		if step == 0 {
			firstLoss = loss
		}
		lastLoss = loss
	}
	assert.Greater(t, firstLoss, 10*lastLoss, "loss should drop from %.4f, got %.4f", firstLoss, lastLoss)
	gen = m.Forward(embeddings, start)
	assert.Equal(t, target, gen.Tokens)
	assert.Equal(t, []string{"v", database.EOS}, m.Decode(gen.Y))
}
