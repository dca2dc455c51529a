package install

import (
	"fmt"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// writeTargetFile writes content to a path inside the target via tee under
// chroot, so ownership and paths resolve as the target sees them.
func (inst *Installer) writeTargetFile(path, content string) error {
	root := inst.MountRoot()
	if dir := parentDir(path); dir != "/" {
		if _, err := shell.ExecCmd("mkdir -p "+dir, false, root, nil); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	if _, err := shell.ExecCmdWithInput("tee "+path, content, false, root, nil); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// pacmanInstall installs packages inside the target. Long-running, so the
// output streams into the log.
func (inst *Installer) pacmanInstall(packages []string) error {
	if len(packages) == 0 {
		return nil
	}
	cmdStr := fmt.Sprintf("pacman -S --noconfirm --needed %s", strings.Join(packages, " "))
	if _, err := shell.ExecCmdWithStream(cmdStr, false, inst.MountRoot(), nil); err != nil {
		return fmt.Errorf("failed to install packages %v: %w", packages, err)
	}
	return nil
}

// enableService enables a systemd unit inside the target for the next boot.
func (inst *Installer) enableService(unit string) error {
	if _, err := shell.ExecCmd("systemctl enable "+unit, false, inst.MountRoot(), nil); err != nil {
		return fmt.Errorf("failed to enable %s: %w", unit, err)
	}
	return nil
}
