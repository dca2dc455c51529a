// Package gate guards destructive disk operations behind a two-stage
// operator confirmation. The partitioning and formatting code demands a
// Token, and the only way to mint one is through both confirmations here,
// so no code path can wipe a device without the operator having seen its
// concrete path.
package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edgeforge/os-installer/internal/ui"
	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// ErrUserAborted means the operator declined a confirmation. The run ends
// in the Aborted state, distinct from any failure.
var ErrUserAborted = errors.New("aborted by operator")

// Category names one class of destructive work.
type Category string

const (
	CategoryPartition Category = "partition"
	CategoryFormat    Category = "format"
)

// Approval is the stage-one record: the operator authorized a destructive
// category during planning, before devices were necessarily concrete.
type Approval struct {
	category Category
	granted  bool
}

// Token is the stage-two proof. Only mintable by Confirm; its fields are
// unexported so callers cannot fabricate one.
type Token struct {
	category Category
	devices  map[string]bool
}

// RequestApproval runs the stage-one prompt during planning. A declined
// prompt is not an error; it simply means the category stays unauthorized
// and the plan must avoid it.
func RequestApproval(prompter ui.Prompter, category Category, summary string) (Approval, error) {
	title := fmt.Sprintf("Authorize %s", category)
	granted, err := prompter.Confirm(title, summary)
	if err != nil {
		return Approval{}, fmt.Errorf("approval prompt failed: %w", err)
	}
	logger.Logger().Infof("Stage-one approval for %s: %v", category, granted)
	return Approval{category: category, granted: granted}, nil
}

// Granted reports whether the operator said yes at stage one.
func (a Approval) Granted() bool {
	return a.granted
}

// Confirm runs the stage-two prompt immediately before execution, showing
// the resolved concrete device paths that will be destroyed. Both stages
// must have passed for a Token to exist.
func Confirm(prompter ui.Prompter, approval Approval, devices []string) (Token, error) {
	log := logger.Logger()
	if !approval.granted {
		log.Warnf("Stage-two confirmation requested for %s without stage-one approval", approval.category)
		return Token{}, ErrUserAborted
	}
	if len(devices) == 0 {
		return Token{}, fmt.Errorf("no devices named for %s confirmation", approval.category)
	}
	for _, dev := range devices {
		if !strings.HasPrefix(dev, "/dev/") {
			return Token{}, fmt.Errorf("refusing to confirm non-device path %q", dev)
		}
	}

	message := fmt.Sprintf("ALL DATA on the following devices will be destroyed:\n\n  %s\n\nProceed?",
		strings.Join(devices, "\n  "))
	confirmed, err := prompter.Confirm(fmt.Sprintf("Confirm %s", approval.category), message)
	if err != nil {
		return Token{}, fmt.Errorf("confirmation prompt failed: %w", err)
	}
	if !confirmed {
		log.Infof("Operator declined final %s confirmation for %v", approval.category, devices)
		return Token{}, ErrUserAborted
	}

	log.Infof("Final %s confirmation granted for %v", approval.category, devices)
	covered := make(map[string]bool, len(devices))
	for _, dev := range devices {
		covered[dev] = true
	}
	return Token{category: approval.category, devices: covered}, nil
}

// Authorizes checks that this token covers the given category and device.
// The zero Token authorizes nothing.
func (t Token) Authorizes(category Category, device string) error {
	if t.devices == nil {
		return fmt.Errorf("no confirmation token for %s of %s", category, device)
	}
	if t.category != category {
		return fmt.Errorf("confirmation token is for %s, not %s", t.category, category)
	}
	if !t.devices[device] {
		return fmt.Errorf("device %s was not shown in the %s confirmation", device, category)
	}
	return nil
}
