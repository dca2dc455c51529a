package install

import (
	"fmt"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// runDesktopAndAudio installs the desktop and audio package sets as one
// transaction. Required: a half-installed desktop is worse than a failed
// run the operator can retry.
func (inst *Installer) runDesktopAndAudio() error {
	packages := append(append([]string{}, inst.plan.Packages.DesktopPackages...),
		inst.plan.Packages.AudioPackages...)
	if len(packages) == 0 {
		return fmt.Errorf("no desktop or audio packages resolved")
	}
	logger.Logger().Infof("Installing desktop %q and audio stack (%d packages)",
		inst.plan.Packages.DesktopTag, len(packages))
	return inst.pacmanInstall(packages)
}

// runOptionalPackages installs each optional package on its own so one
// broken package cannot take the rest down. Failures are collected and
// reported together; the stage is best-effort.
func (inst *Installer) runOptionalPackages() error {
	log := logger.Logger()
	var failed []string
	for _, pkg := range inst.plan.Packages.OptionalPackages {
		if err := inst.pacmanInstall([]string{pkg}); err != nil {
			log.Warnf("Optional package %s failed: %v", pkg, err)
			failed = append(failed, pkg)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("optional packages failed: %s", strings.Join(failed, ", "))
	}
	return nil
}
