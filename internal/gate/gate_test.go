package gate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/ui"
)

func TestTokenRequiresBothStages(t *testing.T) {
	// Stage one declined: stage two must refuse without even prompting.
	prompter := &ui.MockPrompter{Confirms: []bool{false}}
	approval, err := gate.RequestApproval(prompter, gate.CategoryPartition, "partition /dev/sda")
	if err != nil {
		t.Fatalf("Approval prompt failed: %v", err)
	}
	if approval.Granted() {
		t.Fatal("Approval should not be granted")
	}

	_, err = gate.Confirm(prompter, approval, []string{"/dev/sda"})
	if !errors.Is(err, gate.ErrUserAborted) {
		t.Fatalf("Expected ErrUserAborted, got: %v", err)
	}
	// Only the stage-one prompt may have been shown.
	if len(prompter.PromptLog) != 1 {
		t.Errorf("Expected 1 prompt, got %v", prompter.PromptLog)
	}
}

func TestTokenMintedAfterBothConfirmations(t *testing.T) {
	prompter := &ui.MockPrompter{Confirms: []bool{true, true}}
	approval, err := gate.RequestApproval(prompter, gate.CategoryFormat, "format root partition")
	if err != nil {
		t.Fatalf("Approval prompt failed: %v", err)
	}

	token, err := gate.Confirm(prompter, approval, []string{"/dev/nvme0n1p2"})
	if err != nil {
		t.Fatalf("Expected token, got: %v", err)
	}
	if err := token.Authorizes(gate.CategoryFormat, "/dev/nvme0n1p2"); err != nil {
		t.Errorf("Token should authorize the confirmed device: %v", err)
	}
	if err := token.Authorizes(gate.CategoryFormat, "/dev/sda1"); err == nil {
		t.Error("Token must not authorize a device that was never shown")
	}
	if err := token.Authorizes(gate.CategoryPartition, "/dev/nvme0n1p2"); err == nil {
		t.Error("Token must not authorize a different category")
	}
}

func TestFinalConfirmationShowsConcretePaths(t *testing.T) {
	prompter := &ui.MockPrompter{Confirms: []bool{true, true}}
	approval, _ := gate.RequestApproval(prompter, gate.CategoryPartition, "partition target disk")
	devices := []string{"/dev/sda", "/dev/sda1", "/dev/sda2"}
	if _, err := gate.Confirm(prompter, approval, devices); err != nil {
		t.Fatalf("Expected token, got: %v", err)
	}

	final := prompter.Messages[len(prompter.Messages)-1]
	for _, dev := range devices {
		if !strings.Contains(final, dev) {
			t.Errorf("Final confirmation must show %s:\n%s", dev, final)
		}
	}
}

func TestConfirmDeclinedIsAbort(t *testing.T) {
	prompter := &ui.MockPrompter{Confirms: []bool{true, false}}
	approval, _ := gate.RequestApproval(prompter, gate.CategoryFormat, "format")
	_, err := gate.Confirm(prompter, approval, []string{"/dev/sda2"})
	if !errors.Is(err, gate.ErrUserAborted) {
		t.Fatalf("Expected ErrUserAborted, got: %v", err)
	}
}

func TestConfirmRejectsBadDeviceLists(t *testing.T) {
	prompter := &ui.MockPrompter{Confirms: []bool{true}}
	approval, _ := gate.RequestApproval(prompter, gate.CategoryFormat, "format")

	if _, err := gate.Confirm(prompter, approval, nil); err == nil {
		t.Error("Expected error for empty device list")
	}
	if _, err := gate.Confirm(prompter, approval, []string{"sda2"}); err == nil {
		t.Error("Expected error for non-device path")
	}
}

func TestZeroTokenAuthorizesNothing(t *testing.T) {
	var token gate.Token
	if err := token.Authorizes(gate.CategoryPartition, "/dev/sda"); err == nil {
		t.Error("Zero token must not authorize anything")
	}
}
