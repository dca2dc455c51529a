package ui

import "fmt"

// MockPrompter replays scripted answers in order. Each prompt consumes the
// next queued answer of its kind; running out of answers fails the test
// loudly instead of hanging.
type MockPrompter struct {
	Selections []string
	Confirms   []bool
	Inputs     []string
	Passwords  []string

	selectIdx   int
	confirmIdx  int
	inputIdx    int
	passwordIdx int

	// PromptLog records every prompt title in order, for asserting that
	// specific confirmations were actually shown.
	PromptLog []string
	// Messages records every Display body.
	Messages []string
}

func (m *MockPrompter) Select(title string, options []Option) (string, error) {
	m.PromptLog = append(m.PromptLog, title)
	if m.selectIdx >= len(m.Selections) {
		return "", fmt.Errorf("mock prompter: no scripted selection for %q", title)
	}
	answer := m.Selections[m.selectIdx]
	m.selectIdx++
	for _, opt := range options {
		if opt.Value == answer {
			return answer, nil
		}
	}
	return "", fmt.Errorf("mock prompter: scripted selection %q not among options for %q", answer, title)
}

func (m *MockPrompter) Confirm(title, message string) (bool, error) {
	m.PromptLog = append(m.PromptLog, title)
	m.Messages = append(m.Messages, message)
	if m.confirmIdx >= len(m.Confirms) {
		return false, fmt.Errorf("mock prompter: no scripted confirmation for %q", title)
	}
	answer := m.Confirms[m.confirmIdx]
	m.confirmIdx++
	return answer, nil
}

func (m *MockPrompter) Input(label, initial string) (string, error) {
	m.PromptLog = append(m.PromptLog, label)
	if m.inputIdx >= len(m.Inputs) {
		return "", fmt.Errorf("mock prompter: no scripted input for %q", label)
	}
	answer := m.Inputs[m.inputIdx]
	m.inputIdx++
	return answer, nil
}

func (m *MockPrompter) Password(label string) (string, error) {
	m.PromptLog = append(m.PromptLog, label)
	if m.passwordIdx >= len(m.Passwords) {
		return "", fmt.Errorf("mock prompter: no scripted password for %q", label)
	}
	answer := m.Passwords[m.passwordIdx]
	m.passwordIdx++
	return answer, nil
}

func (m *MockPrompter) Display(title, message string) error {
	m.PromptLog = append(m.PromptLog, title)
	m.Messages = append(m.Messages, message)
	return nil
}
