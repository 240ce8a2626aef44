// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nton implements a sequence-to-sequence model that answers by blending two distributions at every
// generated step: one from a decoder LSTM, and one from a differentiable ("soft") database lookup addressed
// through attention over the input.
//
// The model is:
//
//  1. An encoder LSTM reads the input embeddings E, producing the hidden states H.
//  2. The decoder LSTM starts from the encoder's last state. Each step:
//     - Attention over H, with the decoder's current hidden state, blends the input embeddings into a query.
//     - The database maps the query to a distribution over the vocabulary.
//     - The decoder LSTM steps on the embedding of the previously generated token.
//     - A classifier head maps the new hidden state to a distribution over the vocabulary, and a gate head
//     to a probability p.
//     - The output distribution is `p·rnn + (1-p)·db`, and its argmax is the generated token.
//  3. Generation stops after emitting database.EOS, or after Config.MaxGen steps.
//
// Forward records everything the steps need for Backward in the returned Generation, and Backward replays the
// steps that were actually generated in reverse order.
package nton

import (
	"math/rand/v2"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/layers/attention"
	"github.com/vishalbelsare/nton/pkg/ml/layers/lstm"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// Model is an NTON model. Create it with New.
type Model struct {
	config    Config
	vocab     *database.Vocabulary
	embedding *nn.OneHot
	db        nn.Block

	encoder, decoder *lstm.LSTM
	attention        *attention.Attention
	classifier, gate *nn.Sequential

	params, grads *vars.Vars
}

// New creates a model over the given vocabulary, which must be frozen. The inputs and outputs are one-hot
// embeddings of the vocabulary, and db must map a [1, vocab.Len()] query distribution to a [1, vocab.Len()]
// distribution (e.g. a database.DBDist of arity 1, or a database.Field).
//
// Weights are initialized from src.
func New(config Config, vocab *database.Vocabulary, db nn.Block, src rand.Source) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !vocab.Frozen() {
		return nil, errors.New("NTON requires a frozen vocabulary")
	}
	d, n := vocab.Len(), config.NumCells
	m := &Model{
		config:    config,
		vocab:     vocab,
		embedding: nn.NewOneHot(vocab),
		db:        db,
		encoder:   lstm.New(d, n).InitStddev(config.InitStddev).ForgetBias(config.ForgetBias).Done(src),
		decoder:   lstm.New(d, n).InitStddev(config.InitStddev).ForgetBias(config.ForgetBias).Done(src),
		attention: attention.New(n).InitStddev(config.InitStddev).Done(src),
		classifier: nn.NewSequential(
			nn.NewLinear(src, n, d, config.InitStddev),
			nn.Softmax{},
		),
		gate: nn.NewSequential(
			nn.NewLinear(src, n, 1, config.InitStddev),
			nn.Sigmoid{},
		),
	}
	m.params, m.grads = vars.New(), vars.New()
	for _, layer := range m.namedLayers() {
		m.params.SetVars(layer.name, layer.block.Params())
		m.grads.SetVars(layer.name, layer.block.Grads())
	}
	return m, nil
}

type namedLayer struct {
	name  string
	block nn.Parametrized
}

func (m *Model) namedLayers() []namedLayer {
	return []namedLayer{
		{"encoder", m.encoder},
		{"decoder", m.decoder},
		{"attention", m.attention},
		{"classifier", m.classifier},
		{"gate", m.gate},
	}
}

// Config returns the model configuration.
func (m *Model) Config() Config { return m.config }

// Vocabulary of the model inputs and outputs.
func (m *Model) Vocabulary() *database.Vocabulary { return m.vocab }

// Embedding of the model inputs and outputs.
func (m *Model) Embedding() *nn.OneHot { return m.embedding }

// ParamLayers returns the layers with trainable parameters.
func (m *Model) ParamLayers() []nn.Parametrized {
	layers := m.namedLayers()
	blocks := make([]nn.Parametrized, len(layers))
	for ii, layer := range layers {
		blocks[ii] = layer.block
	}
	return blocks
}

// Params returns all the parameters, nested by layer name: "encoder", "decoder", "attention", "classifier"
// and "gate". The tensors are shared with the layers.
func (m *Model) Params() *vars.Vars { return m.params }

// Grads returns the accumulated gradients, with the same structure as Params.
func (m *Model) Grads() *vars.Vars { return m.grads }

// NumParams is the total number of trainable values.
func (m *Model) NumParams() int {
	return m.params.NumElements()
}

// ZeroGrads sets all the accumulated gradients to 0.
func (m *Model) ZeroGrads() {
	nn.ZeroGrads(m.ParamLayers()...)
}

// Update applies the optimizer to the parameters, using the accumulated gradients.
func (m *Model) Update(opt optimizers.Interface) error {
	return opt.Update(m.params, m.grads)
}

// UpdateParams applies one step of plain gradient descent, `param -= learningRate * grad`, to all parameters.
func (m *Model) UpdateParams(learningRate float64) error {
	return m.Update(optimizers.StochasticGradientDescent().WithLearningRate(learningRate).Done())
}

// StartSymbol returns the embedding of the symbol fed to the decoder on its first step: database.EOS.
func (m *Model) StartSymbol() *mat.Dense {
	return m.embedding.Embed(database.EOSIndex)
}

// PrepareExample converts a question and answer to the inputs of Forward (the question embeddings and
// the start symbol) and the target token ids of the answer.
// It returns an error if any word is not in the vocabulary.
func (m *Model) PrepareExample(question, answer []string) (embeddings, startSymbol *mat.Dense, target []int, err error) {
	if len(question) == 0 {
		err = errors.New("NTON example has an empty question")
		return
	}
	var questionIDs []int
	questionIDs, err = m.vocab.WordsToIDs(question)
	if err != nil {
		err = errors.WithMessage(err, "NTON example question")
		return
	}
	target, err = m.vocab.WordsToIDs(answer)
	if err != nil {
		err = errors.WithMessage(err, "NTON example answer")
		return
	}
	embeddings = m.embedding.Embed(questionIDs...)
	startSymbol = m.StartSymbol()
	return
}

// Decode returns the symbols of the argmax of each distribution in ys.
func (m *Model) Decode(ys []*mat.Dense) []string {
	symbols := make([]string, len(ys))
	for ii, y := range ys {
		symbols[ii] = m.vocab.Rev(tensors.Argmax(y))
	}
	return symbols
}

// Forward generates the answer to the input embeddings (shaped [T, vocabulary size]), starting the decoder
// with startSymbol (shaped [1, vocabulary size], usually StartSymbol()).
func (m *Model) Forward(embeddings, startSymbol *mat.Dense) *Generation {
	d, n := m.embedding.Size(), m.config.NumCells
	tensors.AssertDims("NTON input embeddings", embeddings, tensors.UncheckedAxis, d)
	tensors.AssertDims("NTON start symbol", startSymbol, 1, d)
	numInputs, _ := embeddings.Dims()

	h0, c0 := m.encoder.InitialState()
	encoded, encoderAux := m.encoder.Forward(embeddings, h0, c0)
	hs, cs := encoded[0], encoded[1]
	gen := &Generation{numInputs: numInputs, encoderAux: encoderAux}

	// The decoder starts from the encoder's last state.
	h, c := tensors.RowOf(hs, numInputs-1), tensors.RowOf(cs, numInputs-1)
	x := startSymbol
	for range m.config.MaxGen {
		queryOutputs, attentionAux := m.attention.Forward(hs, h, embeddings)
		dbDist, dbAux := nn.ForwardOne(m.db, queryOutputs[0])
		tensors.AssertDims("NTON database output", dbDist, 1, d)

		decoded, decoderAux := m.decoder.Forward(x, h, c)
		h, c = decoded[0], decoded[1]
		rnnDist, classifierAux := nn.ForwardOne(m.classifier, h)
		p, gateAux := nn.ForwardOne(m.gate, h)
		switched, switchAux := nn.Switch{}.Forward(p, rnnDist, dbDist)
		y := switched[0]
		token := tensors.Argmax(y)

		gen.Y = append(gen.Y, y)
		gen.Tokens = append(gen.Tokens, token)
		gen.stepsAux = append(gen.stepsAux, vars.With(
			"attention", attentionAux,
			"db", dbAux,
			"decoder", decoderAux,
			"classifier", classifierAux,
			"gate", gateAux,
			"switch", switchAux,
		))
		gen.Steps = append(gen.Steps, m.trace(token, attention.Alpha(attentionAux), p, rnnDist, dbDist))

		if token == database.EOSIndex {
			break
		}
		x = m.embedding.Embed(token)
	}
	klog.V(2).Infof("NTON: generated %d steps for %d inputs (%d cells)", gen.Len(), numInputs, n)
	return gen
}

func (m *Model) trace(token int, alpha, p, rnnDist, dbDist *mat.Dense) StepTrace {
	rnnToken, dbToken := tensors.Argmax(rnnDist), tensors.Argmax(dbDist)
	return StepTrace{
		Token:     token,
		Symbol:    m.vocab.Rev(token),
		Alpha:     tensors.Flat(tensors.Clone(alpha)),
		Gate:      p.At(0, 0),
		RNNToken:  rnnToken,
		RNNSymbol: m.vocab.Rev(rnnToken),
		RNNProb:   rnnDist.At(0, rnnToken),
		DBToken:   dbToken,
		DBSymbol:  m.vocab.Rev(dbToken),
		DBProb:    dbDist.At(0, dbToken),
	}
}

// Backward accumulates the gradients of the parameters, given the gradients of the loss with respect to
// each generated distribution: dY must have exactly gen.Len() elements.
//
// It returns the gradients with respect to the input embeddings (through the encoder and through the
// attention) and with respect to the start symbol. The generated tokens are discrete, so no gradient flows
// through the embeddings of the tokens fed back into the decoder.
func (m *Model) Backward(gen *Generation, dY []*mat.Dense) (dEmbeddings, dStartSymbol *mat.Dense) {
	if len(dY) != gen.Len() {
		exceptions.Panicf("NTON.Backward(): got %d output gradients, but %d steps were generated", len(dY), gen.Len())
	}
	d, n := m.embedding.Size(), m.config.NumCells
	numInputs := gen.numInputs
	dHs := tensors.Zeros(numInputs, n)
	dEmbeddings = tensors.Zeros(numInputs, d)

	// dh, dc: gradients with respect to the decoder state entering the step being reversed.
	dh, dc := tensors.Zeros(1, n), tensors.Zeros(1, n)
	for step := gen.Len() - 1; step >= 0; step-- {
		aux := gen.stepsAux[step]
		tensors.AssertSameShape("NTON generated distribution", gen.Y[step], "its gradient", dY[step])
		grads := nn.Switch{}.Backward(aux.Sub("switch"), dY[step])
		dp, dRNN, dDB := grads[0], grads[1], grads[2]

		dhStep := tensors.Clone(dh)
		tensors.AddInPlace(dhStep, 1, nn.BackwardOne(m.classifier, aux.Sub("classifier"), dRNN))
		tensors.AddInPlace(dhStep, 1, nn.BackwardOne(m.gate, aux.Sub("gate"), dp))
		grads = m.decoder.Backward(aux.Sub("decoder"), dhStep, dc)
		dx, dhPrev, dcPrev := grads[0], grads[1], grads[2]

		dQuery := nn.BackwardOne(m.db, aux.Sub("db"), dDB)
		grads = m.attention.Backward(aux.Sub("attention"), dQuery)
		tensors.AddInPlace(dHs, 1, grads[0])
		tensors.AddInPlace(dhPrev, 1, grads[1])
		tensors.AddInPlace(dEmbeddings, 1, grads[2])

		dh, dc = dhPrev, dcPrev
		if step == 0 {
			dStartSymbol = dx
		}
	}

	// The decoder's initial state is the encoder's last state.
	dCs := tensors.Zeros(numInputs, n)
	floats.Add(dHs.RawRowView(numInputs-1), dh.RawRowView(0))
	floats.Add(dCs.RawRowView(numInputs-1), dc.RawRowView(0))
	grads := m.encoder.Backward(gen.encoderAux, dHs, dCs)
	tensors.AddInPlace(dEmbeddings, 1, grads[0])
	return dEmbeddings, dStartSymbol
}
