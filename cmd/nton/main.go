// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// nton trains the sequence model with a soft database on the synthetic arithmetic task (see package calc),
// reporting the progress on the command line.
//
// Hyperparameters are set with -set, e.g.:
//
//	nton -set="n_cells=32;optimizer=adam;learning_rate=0.01;train_steps=20_000" -plot=~/tmp/nton.png
package main

import (
	"flag"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/must"
	"github.com/vishalbelsare/nton/ui/commandline"
	"k8s.io/klog/v2"
)

var (
	flagPlot      = flag.String("plot", "", "If set, save a PNG plot of the training and evaluation metrics to this file.")
	flagPoints    = flag.String("points", "", "If set, save the plot points collected during training to this file, as JSON lines.")
	flagDB        = flag.String("db", "", "CSV file with the database content to use instead of the generated one. Its symbols must belong to the task vocabulary.")
	flagTrace     = flag.Int("trace", 3, "Number of test examples whose generation trace is printed at the end.")
	flagEval      = flag.Bool("eval", true, "Whether to evaluate the model on the train and test data in the end.")
	flagVerbosity = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose. If < 0 the progress bar is disabled.")
)

func main() {
	params := createDefaultParams()
	settings := commandline.CreateSettingsFlag(params, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := must.M1(commandline.ParseSettings(params, *settings))
	opts := options{
		plotPath:   *flagPlot,
		pointsPath: *flagPoints,
		dbPath:     *flagDB,
		numTraces:  *flagTrace,
		evalOnEnd:  *flagEval,
		verbosity:  *flagVerbosity,
		paramsSet:  paramsSet,
	}
	err := exceptions.TryCatch[error](func() {
		must.M(trainModel(params, opts))
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}
