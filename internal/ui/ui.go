// Package ui abstracts operator interaction so the planning and gate code
// can be driven by a terminal UI in production and a scripted prompter in
// tests.
package ui

import "fmt"

// Option is one selectable entry. Value is what the caller gets back;
// Label and Detail are what the operator sees.
type Option struct {
	Value  string
	Label  string
	Detail string
}

// Prompter is the single seam between interactive code and the operator.
// Every method blocks until the operator answers or cancels; cancellation
// surfaces as an error.
type Prompter interface {
	Select(title string, options []Option) (string, error)
	Confirm(title, message string) (bool, error)
	Input(label, initial string) (string, error)
	Password(label string) (string, error)
	Display(title, message string) error
}

// ErrCancelled is returned when the operator backs out of a prompt.
var ErrCancelled = fmt.Errorf("cancelled by operator")
