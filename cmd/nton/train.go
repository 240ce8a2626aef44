// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/vishalbelsare/nton/pkg/ml/database"
	"github.com/vishalbelsare/nton/pkg/ml/datasets"
	"github.com/vishalbelsare/nton/pkg/ml/datasets/calc"
	"github.com/vishalbelsare/nton/pkg/ml/hparams"
	"github.com/vishalbelsare/nton/pkg/ml/model/nton"
	"github.com/vishalbelsare/nton/pkg/ml/nn"
	"github.com/vishalbelsare/nton/pkg/ml/train"
	"github.com/vishalbelsare/nton/pkg/ml/train/metrics"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers"
	"github.com/vishalbelsare/nton/pkg/ml/train/optimizers/cosineschedule"
	"github.com/vishalbelsare/nton/pkg/support/fsutil"
	"github.com/vishalbelsare/nton/ui/commandline"
	"github.com/vishalbelsare/nton/ui/plots"
	"k8s.io/klog/v2"
)

const (
	// ParamMaxOperand is the largest operand of the arithmetic task.
	ParamMaxOperand = "calc_max_operand"

	// ParamTestFraction is the fraction of the operand pairs held out for the test set.
	ParamTestFraction = "calc_test_fraction"

	// ParamReadAhead is the number of train examples generated ahead of time, in a separate goroutine.
	ParamReadAhead = "read_ahead"

	// ParamDBField is the field column read by the model, when the -db CSV is a table with field columns.
	// Empty selects the first field.
	ParamDBField = "db_field"
)

// createDefaultParams returns the model and training hyperparameters, plus the ones of the task.
func createDefaultParams() hparams.Params {
	params := hparams.Defaults()
	config := calc.DefaultConfig()
	params[ParamMaxOperand] = config.MaxOperand
	params[ParamTestFraction] = config.TestFraction
	params[ParamReadAhead] = 100
	params[ParamDBField] = ""
	return params
}

type options struct {
	plotPath, pointsPath, dbPath string
	numTraces                    int
	evalOnEnd                    bool
	verbosity                    int
	paramsSet                    []string
}

var titleStyle = lipgloss.NewStyle().Bold(true)

// newDatabase returns the database lookup block: the one generated by the task, or the one loaded from dbPath.
// A CSV with field columns is read as a multi-field table (DBSet), and the model looks up the field
// given by ParamDBField.
func newDatabase(params hparams.Params, task *calc.Task, dbPath string) (nn.Block, error) {
	if dbPath == "" {
		return task.NewDBDist()
	}
	dbPath, err := fsutil.ExpandPath(dbPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %q", dbPath)
	}
	defer func() { _ = f.Close() }()
	db, err := database.LoadBlockCSV(f, task.Vocabulary(),
		hparams.MustGetParam[string](params, ParamDBField),
		hparams.MustGetParam[float64](params, hparams.ParamAmplifyPower))
	if err != nil {
		return nil, errors.WithMessagef(err, "database %q", dbPath)
	}
	return db, nil
}

// trainModel with the given hyperparameters on the arithmetic task.
func trainModel(params hparams.Params, opts options) error {
	if opts.verbosity >= 2 {
		fmt.Println(commandline.SprintSettings(params))
	} else if opts.verbosity >= 1 && len(opts.paramsSet) > 0 {
		fmt.Printf("Hyperparameters set:\n%s\n", commandline.SprintModifiedSettings(params, opts.paramsSet))
	}

	// Task and model.
	seed := uint64(hparams.MustGetParam[int](params, hparams.ParamSeed))
	task, err := calc.New(calc.Config{
		MaxOperand:   hparams.MustGetParam[int](params, ParamMaxOperand),
		TestFraction: hparams.MustGetParam[float64](params, ParamTestFraction),
	}, rand.New(rand.NewPCG(seed, 0)))
	if err != nil {
		return err
	}
	db, err := newDatabase(params, task, opts.dbPath)
	if err != nil {
		return err
	}
	model, err := nton.New(nton.ConfigFromParams(params), task.Vocabulary(), db, rand.NewPCG(seed, 1))
	if err != nil {
		return err
	}
	if opts.verbosity >= 1 {
		fmt.Printf("%s %s symbols, %s train pairs, %s test pairs, %s parameters\n", titleStyle.Render("Model:"),
			humanize.Comma(int64(task.Vocabulary().Len())), humanize.Comma(int64(len(task.TrainPairs()))),
			humanize.Comma(int64(len(task.TestPairs()))), humanize.Comma(int64(model.NumParams())))
	}

	// Datasets.
	trainDS := datasets.ReadAhead(task.TrainDataset(rand.New(rand.NewPCG(seed, 2))),
		hparams.MustGetParam[int](params, ParamReadAhead))
	defer trainDS.Done()
	evalExamples := hparams.MustGetParam[int](params, hparams.ParamEvalExamples)
	trainEvalDS := datasets.Take(task.TrainDataset(rand.New(rand.NewPCG(seed, 3))), evalExamples)
	testDS := task.TestDataset()

	// Trainer and loop.
	optimizer := optimizers.FromParams(params)
	trainer := train.NewTrainer(model, optimizer,
		metrics.NewMovingAverageAccuracy("Moving Average Accuracy", "~Acc", 0.01))
	loop := train.NewLoop(trainer).WithLossWindow(hparams.MustGetParam[int](params, hparams.ParamLossWindow))
	cosineschedule.New().FromParams(params).Done().AttachToLoop(loop, optimizer)
	evalMetrics := func() []metrics.Interface {
		return []metrics.Interface{
			metrics.NewMeanWER("Mean Word Error Rate", "WER"),
			metrics.NewMeanAccuracy("Mean Accuracy", "Acc"),
			metrics.NewMedianWER("Median Word Error Rate", "~WER"),
		}
	}

	// Periodic evaluation on the test set, collected for the plots and displayed along the progress bar.
	collector := plots.New()
	collector.AttachToLoop(loop, 100)
	testMetrics := evalMetrics()
	lastTestValues := "-"
	if evalStep := hparams.MustGetParam[int](params, hparams.ParamEvalStep); evalStep > 0 {
		train.EveryNSteps(loop, evalStep, "test evaluation", 100, func(loop *train.Loop, _ train.StepResult) error {
			meanLoss, values, err := train.Evaluate(model, testDS, evalExamples, nil, testMetrics...)
			if err != nil {
				return err
			}
			collector.AddEvaluation(loop.LoopStep, testDS.Name(), meanLoss, testMetrics, values)
			lastTestValues = fmt.Sprintf("loss=%.4f, %s=%s, %s=%s", meanLoss,
				testMetrics[0].ShortName(), testMetrics[0].PrettyPrint(values[0]),
				testMetrics[1].ShortName(), testMetrics[1].PrettyPrint(values[1]))
			klog.V(1).Infof("step %d: evaluation on %s: %s", loop.LoopStep, testDS.Name(), lastTestValues)
			return nil
		})
	}
	if opts.verbosity >= 0 {
		commandline.AttachProgressBar(loop, func() (string, string) {
			return "Evaluation on " + testDS.Name(), lastTestValues
		})
	}

	numTrainSteps := hparams.MustGetParam[int](params, hparams.ParamTrainSteps)
	if _, err = loop.RunSteps(trainDS, numTrainSteps); err != nil {
		return err
	}
	if opts.verbosity >= 1 {
		fmt.Printf("\t[Step %d] median train step: %s\n", loop.LoopStep,
			commandline.FormatDuration(loop.MedianTrainStepDuration()))
	}

	if opts.plotPath != "" {
		if err = collector.SavePNG(opts.plotPath); err != nil {
			return err
		}
	}
	if opts.pointsPath != "" {
		if err = collector.SavePoints(opts.pointsPath); err != nil {
			return err
		}
	}
	if opts.evalOnEnd {
		if err = commandline.ReportEval(model, evalExamples, evalMetrics(), trainEvalDS, testDS); err != nil {
			return err
		}
	}
	if opts.numTraces > 0 {
		_, _, err = train.Evaluate(model, testDS, opts.numTraces, func(ev train.Evaluation) {
			fmt.Println(commandline.SprintEvaluation(model, ev))
		})
		if err != nil {
			return err
		}
	}
	return nil
}
