// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
	"github.com/vishalbelsare/nton/pkg/ml/train"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// RefreshPeriod is the time between terminal updates.
var RefreshPeriod = time.Second * 3

// Output where the progress bar and the reports are written to.
var Output io.Writer = os.Stdout

// progressBar holds a progressbar being displayed.
type progressBar struct {
	numSteps         int
	lastStepReported int
	bar              *progressbar.ProgressBar
	out              io.Writer

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

// eraseToEndOfLine is appended to each progress bar line, to erase spurious characters from previous prints.
const eraseToEndOfLine = "\033[J"

// Write implements io.Writer, and appends eraseToEndOfLine to each write of the progress bar.
func (pBar *progressBar) Write(data []byte) (n int, err error) {
	n, err = pBar.out.Write(data)
	if err != nil {
		return n, err
	}
	if _, err = pBar.out.Write([]byte(eraseToEndOfLine)); err != nil {
		return 0, err
	}
	return
}

func (pBar *progressBar) onStart(loop *train.Loop, _ train.Dataset) error {
	pBar.lastStepReported = loop.LoopStep
	if loop.EndStep < 0 {
		pBar.numSteps = 1000 // Guess for now.
	} else {
		pBar.numSteps = loop.EndStep - loop.StartStep
	}
	pBar.bar = progressbar.NewOptions(pBar.numSteps,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar),
	)
	return nil
}

// onStep enqueues an update to be asynchronously printed. The values are collected here, in the training goroutine,
// since the metrics are not safe for concurrent use.
func (pBar *progressBar) onStep(loop *train.Loop, _ train.StepResult) error {
	if pBar.bar.IsFinished() {
		return nil
	}
	amount := loop.LoopStep + 1 - pBar.lastStepReported // +1 because the current LoopStep is finished.
	if amount <= 0 {
		return nil
	}

	update := progressBarUpdate{amount: amount}
	steps := humanize.Comma(int64(loop.LoopStep + 1))
	if loop.EndStep >= 0 {
		steps = fmt.Sprintf("%s of %s", steps, humanize.Comma(int64(loop.EndStep)))
	}
	update.add("Step", steps)
	update.add("Median train step duration", FormatDuration(loop.MedianTrainStepDuration()))
	update.add("Loss (moving average)", fmt.Sprintf("%.4f", loop.MovingAverageLoss()))
	update.add("Learning rate", fmt.Sprintf("%.3g", loop.Trainer.Optimizer().LearningRate()))
	for _, metric := range loop.Trainer.Metrics() {
		update.add(metric.Name(), metric.PrettyPrint(metric.Value()))
	}
	for _, extraMetric := range pBar.extraMetricFns {
		update.add(extraMetric())
	}
	pBar.updates <- update
	pBar.lastStepReported = loop.LoopStep + 1
	return nil
}

func (pBar *progressBar) onEnd(_ *train.Loop, _ train.StepResult) error {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	pBar.termenv.ShowCursor()
	_, _ = fmt.Fprintln(pBar.out)

	// Prepare for a following run of the loop.
	pBar.updates = make(chan progressBarUpdate, 100)
	pBar.isFirstOutput = true
	pBar.startAsyncUpdates()
	return nil
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "nton.ui.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

type progressBarUpdate struct {
	amount int
	rows   [][2]string
}

func (u *progressBarUpdate) add(name, value string) {
	u.rows = append(u.rows, [2]string{name, value})
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// startAsyncUpdates draws the updates as they arrive, in a separate goroutine: this is handy if the training is
// faster than the terminal, in particular if running on cloud, with a relatively slow network connection.
func (pBar *progressBar) startAsyncUpdates() {
	updates := pBar.updates
	pBar.asyncUpdatesDone.Add(1)
	go func() {
		defer pBar.asyncUpdatesDone.Done()
		var lastNumRows int
		for update := range updates {
			// Exhaust the updates in the buffer:
			amount := update.amount
		exhaust:
			for {
				select {
				case newUpdate, ok := <-updates:
					if !ok {
						break exhaust
					}
					amount += newUpdate.amount
					update = newUpdate
				default:
					break exhaust
				}
			}

			pBar.statsTable.Data(lgtable.NewStringData())
			for _, row := range update.rows {
				pBar.statsTable.Row(row[0], row[1])
			}

			// Clear the previous lines that will be overwritten: the table rows, its 2 borders and the progress bar.
			pBar.termenv.HideCursor()
			if !pBar.isFirstOutput {
				pBar.termenv.CursorPrevLine(lastNumRows + 3)
			}
			pBar.isFirstOutput = false
			lastNumRows = len(update.rows)

			_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
			_ = pBar.bar.Add(amount) // Prints progress bar line.
			_, _ = fmt.Fprintln(pBar.out)
			pBar.termenv.ShowCursor()
			time.Sleep(maxUpdateFrequency)
		}
	}()
}

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// everytime Loop is run, it will display a progress bar with progression, the moving average loss,
// the learning rate and the train metrics. It is written to Output.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func AttachProgressBar(loop *train.Loop, extraMetrics ...ExtraMetricFn) {
	pBar := &progressBar{
		out:            Output,
		extraMetricFns: extraMetrics,
		isFirstOutput:  true,
		statsStyle:     lipgloss.NewStyle().PaddingLeft(8),
		updates:        make(chan progressBarUpdate, 100), // Large buffer so things are not blocked.
	}
	pBar.termenv = termenv.NewOutput(pBar.out)
	pBar.statsTable = newTable()
	pBar.startAsyncUpdates()

	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Update at most 1000 times during the loop, and at least every RefreshPeriod.
	train.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onStep)
	train.PeriodicCallback(loop, RefreshPeriod, false, ProgressBarName, 0, pBar.onStep)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
}

// newTable returns a lipgloss table with the style of the package: the first column is right aligned.
func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
}
