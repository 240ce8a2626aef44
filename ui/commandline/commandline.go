// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package commandline contains convenience UI training tools for the command line: hyperparameter settings
// flags, a progress bar, evaluation reports and generation traces.
package commandline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"gonum.org/v1/gonum/floats"
)

// ReportEval reports on Output the results of evaluating the model on each of the datasets with train.Evaluate,
// using up to numExamples examples of each (all if numExamples <= 0).
func ReportEval(model *nton.Model, numExamples int, evalMetrics []metrics.Interface, datasets ...train.Dataset) error {
	for _, ds := range datasets {
		meanLoss, values, err := train.Evaluate(model, ds, numExamples, nil, evalMetrics...)
		if err != nil {
			return err
		}
		table := newTable().Headers("Metric", "Value")
		table.Row("Mean loss", fmt.Sprintf("%.4f", meanLoss))
		for metricIdx, metric := range evalMetrics {
			table.Row(fmt.Sprintf("%s (%s)", metric.Name(), metric.ShortName()), metric.PrettyPrint(values[metricIdx]))
		}
		_, err = fmt.Fprintf(Output, "Results on %s:\n%s\n", ds.Name(), table.String())
		if err != nil {
			return err
		}
	}
	return nil
}

// SprintEvaluation returns the question, expected and generated answers of an evaluated example, followed by
// its generation trace (see SprintTrace).
func SprintEvaluation(model *nton.Model, ev train.Evaluation) string {
	var sb strings.Builder
	generated := model.Decode(ev.Generation.Y)
	style := lipgloss.NewStyle().Bold(true)
	_, _ = fmt.Fprintf(&sb, "%s %s\n", style.Render("Question: "), strings.Join(ev.Example.Question, " "))
	_, _ = fmt.Fprintf(&sb, "%s %s\n", style.Render("Expected: "), strings.Join(ev.Example.Answer, " "))
	_, _ = fmt.Fprintf(&sb, "%s %s (loss %.4f)\n", style.Render("Generated:"), strings.Join(generated, " "), ev.Loss)
	sb.WriteString(SprintTrace(ev.Example.Question, ev.Generation))
	return sb.String()
}

// SprintTrace renders the trace of each generated step as a table: the generated symbol, the gate between the
// RNN and the database distributions, the argmax of each of them, and the most attended question word.
//
// question is the input sequence, used to label the attention. It can be nil.
func SprintTrace(question []string, gen *nton.Generation) string {
	table := newTable().Headers("Step", "Symbol", "Gate", "RNN", "DB", "Attention")
	for stepIdx, step := range gen.Steps {
		attention := "-"
		if len(step.Alpha) > 0 {
			pos := floats.MaxIdx(step.Alpha)
			word := fmt.Sprintf("#%d", pos)
			if pos < len(question) {
				word = question[pos]
			}
			attention = fmt.Sprintf("%s (%.2f)", word, step.Alpha[pos])
		}
		table.Row(
			fmt.Sprintf("%d", stepIdx),
			step.Symbol,
			fmt.Sprintf("%.2f", step.Gate),
			fmt.Sprintf("%s (%.2f)", step.RNNSymbol, step.RNNProb),
			fmt.Sprintf("%s (%.2f)", step.DBSymbol, step.DBProb),
			attention,
		)
	}
	return table.String()
}
