// Package pipeline runs the ordered install stages, records an outcome for
// every stage, and decides the run's terminal state. Required stages fail
// the whole run; best-effort stages log their failure and let the run
// continue.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// Status of one executed stage.
type Status int

const (
	StatusSucceeded Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the audit record for one stage. The slice of outcomes is the
// run's authoritative history; nothing is recorded for stages never reached.
type Outcome struct {
	Stage  string
	Status Status
	Detail string
}

// Stage is one unit of install work. Skip, when set, is consulted before
// Run; returning true records a Skipped outcome with the reason.
type Stage struct {
	Name     string
	Required bool
	Skip     func() (bool, string)
	Run      func() error
}

// State is the run's terminal state.
type State int

const (
	StateCompleted State = iota
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the full account of a pipeline run.
type Result struct {
	State    State
	Outcomes []Outcome
	// Err is the error that ended a Failed run, nil otherwise.
	Err error
}

// BestEffortFailures returns the outcomes of best-effort stages that
// failed during a run, for the final summary.
func (r *Result) BestEffortFailures() []Outcome {
	var failures []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failures = append(failures, o)
		}
	}
	if r.State == StateFailed && len(failures) > 0 {
		// The last failure belongs to the required stage that ended the run.
		failures = failures[:len(failures)-1]
	}
	return failures
}

// Summary renders the outcome log plus any best-effort failures that need
// the operator's attention despite an overall completed run.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Installation %s.\n\n", r.State)
	for _, o := range r.Outcomes {
		if o.Detail != "" {
			fmt.Fprintf(&b, "  %-28s %s (%s)\n", o.Stage, o.Status, o.Detail)
		} else {
			fmt.Fprintf(&b, "  %-28s %s\n", o.Stage, o.Status)
		}
	}
	if failures := r.BestEffortFailures(); len(failures) > 0 && r.State == StateCompleted {
		b.WriteString("\nCompleted with issues:\n")
		for _, o := range failures {
			fmt.Fprintf(&b, "  %s: %s\n", o.Stage, o.Detail)
		}
	}
	return b.String()
}

// Run executes the stages in order. A required-stage failure ends the run
// immediately with no outcomes for later stages; an operator abort
// surfacing from any stage ends the run in the Aborted state.
func Run(stages []Stage, showProgress bool) *Result {
	log := logger.Logger()
	result := &Result{State: StateCompleted}

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = progressbar.NewOptions(len(stages),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("Installing"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)
	}
	advance := func(name string) {
		if bar != nil {
			bar.Describe(name)
			_ = bar.Add(1)
		}
	}

	for _, stage := range stages {
		if stage.Skip != nil {
			if skip, reason := stage.Skip(); skip {
				log.Infof("Stage %s skipped: %s", stage.Name, reason)
				result.Outcomes = append(result.Outcomes, Outcome{Stage: stage.Name, Status: StatusSkipped, Detail: reason})
				advance(stage.Name)
				continue
			}
		}

		log.Infof("Stage %s starting", stage.Name)
		err := stage.Run()
		advance(stage.Name)
		if err == nil {
			log.Infof("Stage %s succeeded", stage.Name)
			result.Outcomes = append(result.Outcomes, Outcome{Stage: stage.Name, Status: StatusSucceeded})
			continue
		}

		if errors.Is(err, gate.ErrUserAborted) {
			log.Infof("Stage %s aborted by operator", stage.Name)
			result.Outcomes = append(result.Outcomes, Outcome{Stage: stage.Name, Status: StatusSkipped, Detail: "aborted by operator"})
			result.State = StateAborted
			return result
		}

		result.Outcomes = append(result.Outcomes, Outcome{Stage: stage.Name, Status: StatusFailed, Detail: err.Error()})
		if stage.Required {
			log.Errorf("Required stage %s failed: %v", stage.Name, err)
			result.State = StateFailed
			result.Err = fmt.Errorf("stage %s failed: %w", stage.Name, err)
			return result
		}
		log.Warnf("Best-effort stage %s failed, continuing: %v", stage.Name, err)
	}

	return result
}
