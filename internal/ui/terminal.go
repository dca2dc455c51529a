package ui

import (
	"fmt"
	"io"

	"github.com/gdamore/tcell"
	"github.com/rivo/tview"

	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// TerminalPrompter renders prompts as full-screen tview widgets, one
// application run per prompt. Escape cancels and maps to ErrCancelled.
type TerminalPrompter struct{}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{}
}

// runApp runs a tview application with the logger's console output
// suppressed. Log lines written mid-prompt would corrupt the screen; the
// file sink keeps receiving everything.
func runApp(app *tview.Application) error {
	old := logger.ReplaceStderrWriter(io.Discard)
	defer logger.ReplaceStderrWriter(old)
	return app.Run()
}

func (t *TerminalPrompter) Select(title string, options []Option) (string, error) {
	app := tview.NewApplication()
	list := tview.NewList().ShowSecondaryText(true)

	var value string
	chosen := false
	for _, opt := range options {
		opt := opt
		list.AddItem(opt.Label, opt.Detail, 0, func() {
			value = opt.Value
			chosen = true
			app.Stop()
		})
	}
	list.SetDoneFunc(func() {
		app.Stop()
	})
	list.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", title))

	if err := runApp(app.SetRoot(list, true)); err != nil {
		return "", fmt.Errorf("selection UI failed: %w", err)
	}
	if !chosen {
		return "", ErrCancelled
	}
	return value, nil
}

func (t *TerminalPrompter) Confirm(title, message string) (bool, error) {
	app := tview.NewApplication()

	answered := false
	confirmed := false
	modal := tview.NewModal().
		SetText(fmt.Sprintf("%s\n\n%s", title, message)).
		AddButtons([]string{"Yes", "No"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			answered = true
			confirmed = buttonLabel == "Yes"
			app.Stop()
		})

	if err := runApp(app.SetRoot(modal, true)); err != nil {
		return false, fmt.Errorf("confirmation UI failed: %w", err)
	}
	if !answered {
		return false, ErrCancelled
	}
	return confirmed, nil
}

func (t *TerminalPrompter) Input(label, initial string) (string, error) {
	return t.inputField(label, initial, 0)
}

func (t *TerminalPrompter) Password(label string) (string, error) {
	return t.inputField(label, "", '*')
}

func (t *TerminalPrompter) inputField(label, initial string, mask rune) (string, error) {
	app := tview.NewApplication()

	field := tview.NewInputField().
		SetLabel(fmt.Sprintf("%s: ", label)).
		SetText(initial).
		SetFieldWidth(40)
	if mask != 0 {
		field.SetMaskCharacter(mask)
	}

	done := false
	field.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			done = true
		}
		app.Stop()
	})
	field.SetBorder(true)

	if err := runApp(app.SetRoot(field, true)); err != nil {
		return "", fmt.Errorf("input UI failed: %w", err)
	}
	if !done {
		return "", ErrCancelled
	}
	return field.GetText(), nil
}

func (t *TerminalPrompter) Display(title, message string) error {
	app := tview.NewApplication()

	modal := tview.NewModal().
		SetText(fmt.Sprintf("%s\n\n%s", title, message)).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			app.Stop()
		})

	if err := runApp(app.SetRoot(modal, true)); err != nil {
		return fmt.Errorf("display UI failed: %w", err)
	}
	return nil
}
