package shell

import (
	"bufio"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts the process that finally runs a fully resolved command
// line. Production code uses the bash-backed executor; tests swap in a mock
// so no external tool is ever invoked.
type Executor interface {
	// Run executes the command and returns its combined output. A non-empty
	// input string is fed to the command's stdin.
	Run(fullCmdStr, input string) (string, error)
	// RunStream executes the command and forwards each output line to
	// logLine as it is produced, returning the accumulated stdout.
	RunStream(fullCmdStr string, logLine func(string)) (string, error)
}

// Default is the executor used by the package-level Exec functions.
var Default Executor = &BashExecutor{}

// BashExecutor runs command strings through `bash -c`.
type BashExecutor struct{}

func (b *BashExecutor) Run(fullCmdStr, input string) (string, error) {
	cmd := exec.Command("bash", "-c", fullCmdStr)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (b *BashExecutor) RunStream(fullCmdStr string, logLine func(string)) (string, error) {
	cmd := exec.Command("bash", "-c", fullCmdStr)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}

	if err := cmd.Start(); err != nil {
		return "", err
	}

	var outputStr string
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				outputStr += str + "\n"
				logLine(str)
			}
		}
	}()

	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			str := scanner.Text()
			if str != "" {
				logLine(str)
			}
		}
	}()

	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return outputStr, err
	}

	return outputStr, nil
}

// MockCommand pairs a command substring with the canned result the mock
// executor returns for it.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor replays canned outputs for matching commands and records
// every command it sees, so tests can assert on what would have run.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	calls    []string
	inputs   []string
}

func NewMockExecutor(commands []MockCommand) *MockExecutor {
	return &MockExecutor{commands: commands}
}

// Calls returns every command line the mock has been asked to run, in order.
func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallsMatching returns the recorded commands containing the substring.
func (m *MockExecutor) CallsMatching(substr string) []string {
	var matched []string
	for _, call := range m.Calls() {
		if strings.Contains(call, substr) {
			matched = append(matched, call)
		}
	}
	return matched
}

// InputsMatching returns the stdin payloads fed to recorded commands
// containing the substring, in call order. Commands run without stdin
// contribute an empty string.
func (m *MockExecutor) InputsMatching(substr string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []string
	for i, call := range m.calls {
		if strings.Contains(call, substr) {
			matched = append(matched, m.inputs[i])
		}
	}
	return matched
}

func (m *MockExecutor) lookup(fullCmdStr, input string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, fullCmdStr)
	m.inputs = append(m.inputs, input)
	commands := m.commands
	m.mu.Unlock()

	for _, mc := range commands {
		if strings.Contains(fullCmdStr, mc.Pattern) {
			return mc.Output, mc.Error
		}
	}
	// Unmatched commands succeed with empty output; assertions about what
	// ran go through Calls.
	return "", nil
}

func (m *MockExecutor) Run(fullCmdStr, input string) (string, error) {
	return m.lookup(fullCmdStr, input)
}

func (m *MockExecutor) RunStream(fullCmdStr string, logLine func(string)) (string, error) {
	output, err := m.lookup(fullCmdStr, "")
	if output != "" {
		logLine(strings.TrimRight(output, "\n"))
	}
	return output, err
}
