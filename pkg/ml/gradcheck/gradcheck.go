// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gradcheck verifies analytic gradients against central finite differences.
//
// For each trial, random inputs are generated, the forward function is run, and a scalar objective is defined
// as a random-weighted sum of the outputs. The analytic gradients of this objective are computed with the
// backward function (the random weights are the output gradients), and compared element by element against
//
//	(objective(x + δ) - objective(x - δ)) / 2δ
//
// Each comparison yields at most one Finding:
//
//   - Negligible: both gradients are tiny, the comparison is inconclusive. A warning, not an error.
//   - SoftMismatch: relative error above the soft threshold. Logged, not fatal.
//   - HardMismatch: relative error above the hard threshold, or an analytic gradient with the wrong shape.
//     It signals a broken backward implementation, and stops the check.
//
// Example:
//
//	report := gradcheck.ForBlock(nn.Softmax{}, gradcheck.NormalInputs(1, [2]int{3, 5})).Check(rng)
//	require.NoError(t, report.Err())
package gradcheck

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/core/tensors"
	"github.com/vishalbelsare/nton/pkg/core/vars"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"
)

// ForwardFn computes the outputs for the given inputs, and an aux value for BackwardFn.
type ForwardFn[A any] func(inputs []*mat.Dense) (outputs []*mat.Dense, aux A)

// BackwardFn returns the gradients with respect to the inputs, given the aux of a ForwardFn call and
// the gradients with respect to its outputs.
type BackwardFn[A any] func(aux A, dOutputs []*mat.Dense) (dInputs []*mat.Dense)

// GeneratorFn generates random inputs, drawing from src.
type GeneratorFn func(src rand.Source) []*mat.Dense

// Severity of a Finding.
type Severity int

const (
	// Negligible means both gradients are too small to be compared.
	Negligible Severity = iota

	// SoftMismatch means the relative error is above the soft threshold.
	SoftMismatch

	// HardMismatch means the relative error is above the hard threshold, or the gradient shape is wrong.
	HardMismatch
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case Negligible:
		return "Negligible"
	case SoftMismatch:
		return "SoftMismatch"
	case HardMismatch:
		return "HardMismatch"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Finding is the result of one comparison that wasn't a clean match.
type Finding struct {
	Severity Severity

	// Trial, Input and Index (flat position in the input tensor) of the element checked.
	// Index is -1 for findings about a whole tensor (shape mismatches).
	Trial, Input, Index int

	// Value of the input element, and the analytic and numeric gradients.
	Value, Analytic, Numeric float64

	// RelError is |analytic - numeric| / |analytic + numeric|.
	RelError float64

	// Message with a human-readable description.
	Message string
}

// String implements fmt.Stringer.
func (f Finding) String() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: trial %d, input #%d: %s", f.Severity, f.Trial, f.Input, f.Message)
	}
	return fmt.Sprintf("%s: trial %d, input #%d, element %d (value %g): analytic %g, numeric %g, relative error %g",
		f.Severity, f.Trial, f.Input, f.Index, f.Value, f.Analytic, f.Numeric, f.RelError)
}

// Report of a gradient check.
type Report struct {
	// Checked is the number of elements compared.
	Checked int

	// Findings in the order they were found. Clean matches are not listed.
	Findings []Finding
}

// Count returns the number of findings with the given severity.
func (r *Report) Count(severity Severity) int {
	var count int
	for _, f := range r.Findings {
		if f.Severity == severity {
			count++
		}
	}
	return count
}

// Ok returns whether there were no hard mismatches.
func (r *Report) Ok() bool {
	return r.Count(HardMismatch) == 0
}

// Clean returns whether there were no mismatches at all. Negligible findings are allowed.
func (r *Report) Clean() bool {
	return r.Ok() && r.Count(SoftMismatch) == 0
}

// Err returns nil if there were no hard mismatches, or an error describing them otherwise.
func (r *Report) Err() error {
	if r.Ok() {
		return nil
	}
	var parts []string
	for _, f := range r.Findings {
		if f.Severity == HardMismatch {
			parts = append(parts, f.String())
		}
	}
	return errors.Errorf("gradient check failed: %s", strings.Join(parts, "; "))
}

// String implements fmt.Stringer.
func (r *Report) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "checked %d elements: %d negligible, %d soft mismatches, %d hard mismatches",
		r.Checked, r.Count(Negligible), r.Count(SoftMismatch), r.Count(HardMismatch))
	for _, f := range r.Findings {
		if f.Severity != Negligible {
			sb.WriteString("\n  ")
			sb.WriteString(f.String())
		}
	}
	return sb.String()
}

// Checker is the configuration of a gradient check. Create it with New, configure it, and run it with Check.
type Checker[A any] struct {
	fwd ForwardFn[A]
	bwd BackwardFn[A]
	gen GeneratorFn

	delta                float64
	trials               int
	inputs, outputs      []int
	soft, hard, tinyGrad float64
}

// New creates a Checker for the given forward and backward functions, and the random inputs generator.
//
// Defaults: Delta 1e-5, 10 trials, all inputs and all outputs, SoftThreshold 1e-2, HardThreshold 1 and
// Negligible 1e-7.
func New[A any](fwd ForwardFn[A], bwd BackwardFn[A], gen GeneratorFn) *Checker[A] {
	return &Checker[A]{
		fwd:      fwd,
		bwd:      bwd,
		gen:      gen,
		delta:    1e-5,
		trials:   10,
		soft:     1e-2,
		hard:     1,
		tinyGrad: 1e-7,
	}
}

// Delta sets the finite differences step.
func (c *Checker[A]) Delta(delta float64) *Checker[A] {
	c.delta = delta
	return c
}

// Trials sets the number of random inputs to check.
func (c *Checker[A]) Trials(trials int) *Checker[A] {
	c.trials = trials
	return c
}

// Inputs selects the inputs whose gradients are checked. The default (none given) is all of them.
func (c *Checker[A]) Inputs(indices ...int) *Checker[A] {
	c.inputs = indices
	return c
}

// Outputs selects the outputs included in the objective: the others get weight 0.
// The default (none given) is all of them.
func (c *Checker[A]) Outputs(indices ...int) *Checker[A] {
	c.outputs = indices
	return c
}

// SoftThreshold sets the relative error above which a SoftMismatch is reported.
func (c *Checker[A]) SoftThreshold(threshold float64) *Checker[A] {
	c.soft = threshold
	return c
}

// HardThreshold sets the relative error above which a HardMismatch is reported.
func (c *Checker[A]) HardThreshold(threshold float64) *Checker[A] {
	c.hard = threshold
	return c
}

// Negligible sets the magnitude under which both gradients are considered too small to be compared.
func (c *Checker[A]) Negligible(magnitude float64) *Checker[A] {
	c.tinyGrad = magnitude
	return c
}

// objective is the weighted sum of the outputs. It returns false if the outputs don't match the weights.
func objective(outputs, weights []*mat.Dense) (float64, bool) {
	if len(outputs) != len(weights) {
		return 0, false
	}
	var sum float64
	for ii, y := range outputs {
		if tensors.CheckDims("output", y, weights[ii].RawMatrix().Rows, weights[ii].RawMatrix().Cols) != nil {
			return 0, false
		}
		sum += mat.Sum(elementProduct(y, weights[ii]))
	}
	return sum, true
}

func elementProduct(a, b *mat.Dense) *mat.Dense {
	res := tensors.ZerosLike(a)
	res.MulElem(a, b)
	return res
}

func selected(idx int, selection []int) bool {
	if len(selection) == 0 {
		return true
	}
	for _, s := range selection {
		if s == idx {
			return true
		}
	}
	return false
}

// Check runs the gradient check, drawing random inputs and output weights from src.
//
// It stops at the first HardMismatch.
func (c *Checker[A]) Check(src rand.Source) *Report {
	report := &Report{}
	for trial := range c.trials {
		if !c.checkTrial(src, trial, report) {
			break
		}
	}
	klog.V(1).Infof("gradcheck: %s", report)
	return report
}

// checkTrial runs one trial, returning false if a hard mismatch was found.
func (c *Checker[A]) checkTrial(src rand.Source, trial int, report *Report) bool {
	inputs := c.gen(src)
	outputs, aux := c.fwd(inputs)
	weights := make([]*mat.Dense, len(outputs))
	for ii, y := range outputs {
		rows, cols := y.Dims()
		if selected(ii, c.outputs) {
			weights[ii] = tensors.Normal(src, rows, cols, 1)
		} else {
			weights[ii] = tensors.Zeros(rows, cols)
		}
	}
	grads := c.bwd(aux, weights)
	if len(grads) != len(inputs) {
		report.Findings = append(report.Findings, Finding{
			Severity: HardMismatch, Trial: trial, Index: -1,
			Message: fmt.Sprintf("backward returned %d gradients for %d inputs", len(grads), len(inputs)),
		})
		return false
	}

	for inputIdx, x := range inputs {
		if !selected(inputIdx, c.inputs) {
			continue
		}
		rows, cols := x.Dims()
		if err := tensors.CheckDims("gradient", grads[inputIdx], rows, cols); err != nil {
			report.Findings = append(report.Findings, Finding{
				Severity: HardMismatch, Trial: trial, Input: inputIdx, Index: -1, Message: err.Error(),
			})
			return false
		}
		analytic := tensors.Flat(tensors.Clone(grads[inputIdx]))
		flat := tensors.Flat(x)
		for idx, value := range flat {
			flat[idx] = value + c.delta
			plus, okPlus := objective(c.fwdOutputs(inputs), weights)
			flat[idx] = value - c.delta
			minus, okMinus := objective(c.fwdOutputs(inputs), weights)
			flat[idx] = value
			report.Checked++
			if !okPlus || !okMinus {
				report.Findings = append(report.Findings, Finding{
					Severity: HardMismatch, Trial: trial, Input: inputIdx, Index: idx, Value: value,
					Message: fmt.Sprintf("element %d: perturbed forward changed the number or shape of the outputs", idx),
				})
				return false
			}
			finding, found := c.compare(analytic[idx], (plus-minus)/(2*c.delta))
			if !found {
				continue
			}
			finding.Trial, finding.Input, finding.Index, finding.Value = trial, inputIdx, idx, value
			report.Findings = append(report.Findings, finding)
			switch finding.Severity {
			case HardMismatch:
				return false
			case SoftMismatch:
				klog.Warningf("gradcheck: %s", finding)
			default:
				klog.V(2).Infof("gradcheck: %s", finding)
			}
		}
	}
	return true
}

func (c *Checker[A]) fwdOutputs(inputs []*mat.Dense) []*mat.Dense {
	outputs, _ := c.fwd(inputs)
	return outputs
}

// compare an analytic and numeric gradient, and returns a finding if they are not a clean match.
func (c *Checker[A]) compare(analytic, numeric float64) (Finding, bool) {
	finding := Finding{Analytic: analytic, Numeric: numeric}
	if math.Abs(analytic) < c.tinyGrad && math.Abs(numeric) < c.tinyGrad {
		finding.Severity = Negligible
		return finding, true
	}
	finding.RelError = math.Abs(analytic-numeric) / math.Abs(analytic+numeric)
	switch {
	case math.IsNaN(finding.RelError) || finding.RelError > c.hard:
		finding.Severity = HardMismatch
	case finding.RelError > c.soft:
		finding.Severity = SoftMismatch
	default:
		return finding, false
	}
	return finding, true
}

// ForBlock creates a Checker of a block's input gradients. The generator must produce inputs of the
// shapes the block expects.
func ForBlock(block nn.Block, gen GeneratorFn) *Checker[*vars.Vars] {
	return New(
		func(inputs []*mat.Dense) ([]*mat.Dense, *vars.Vars) { return block.Forward(inputs...) },
		func(aux *vars.Vars, dOutputs []*mat.Dense) []*mat.Dense { return block.Backward(aux, dOutputs...) },
		gen,
	)
}

// ParamAsInput creates a Checker of the gradient of a block's parameter: the parameter in the given path
// is exposed as the single input, while the block inputs are kept fixed.
//
// The parameter is overwritten in place by the generated values; the block's gradients bag is
// zeroed on every backward call.
func ParamAsInput(block nn.Parametrized, inputs []*mat.Dense, path string) *Checker[*vars.Vars] {
	param := block.Params().GetPath(path)
	rows, cols := param.Dims()
	return New(
		func(p []*mat.Dense) ([]*mat.Dense, *vars.Vars) {
			param.Copy(p[0])
			return block.Forward(inputs...)
		},
		func(aux *vars.Vars, dOutputs []*mat.Dense) []*mat.Dense {
			block.Grads().Zero()
			block.Backward(aux, dOutputs...)
			return []*mat.Dense{tensors.Clone(block.Grads().GetPath(path))}
		},
		NormalInputs(1, [2]int{rows, cols}),
	)
}

// NormalInputs returns a generator of inputs with the given shapes, sampled from a normal distribution
// with the given standard deviation.
func NormalInputs(stddev float64, shapes ...[2]int) GeneratorFn {
	return func(src rand.Source) []*mat.Dense {
		inputs := make([]*mat.Dense, len(shapes))
		for ii, shape := range shapes {
			inputs[ii] = tensors.Normal(src, shape[0], shape[1], stddev)
		}
		return inputs
	}
}

// UniformInputs returns a generator of inputs with the given shapes, sampled uniformly from [minValue, maxValue).
func UniformInputs(minValue, maxValue float64, shapes ...[2]int) GeneratorFn {
	return func(src rand.Source) []*mat.Dense {
		inputs := make([]*mat.Dense, len(shapes))
		for ii, shape := range shapes {
			inputs[ii] = tensors.Uniform(src, shape[0], shape[1], minValue, maxValue)
		}
		return inputs
	}
}
