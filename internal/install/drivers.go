package install

import (
	"fmt"

	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// runNvidia installs the NVIDIA driver set matching the chosen kernel
// variant. Mismatched pairs leave the target without graphics, so the
// pairing comes from the catalog.
func (inst *Installer) runNvidia() error {
	packages, err := inst.catalog.NvidiaPackagesFor(inst.plan.KernelVariant)
	if err != nil {
		return fmt.Errorf("nvidia driver selection: %w", err)
	}
	logger.Logger().Infof("Installing NVIDIA drivers for kernel %s: %v", inst.plan.KernelVariant, packages)
	return inst.pacmanInstall(packages)
}

// guest tool service units per platform, enabled after the packages land.
var guestServices = map[sysprobe.VirtPlatform][]string{
	sysprobe.VirtVirtualBox: {"vboxservice"},
	sysprobe.VirtVMware:     {"vmtoolsd", "vmware-vmblock-fuse"},
	sysprobe.VirtKVM:        {"qemu-guest-agent"},
}

// runGuestTools installs the guest utilities for the detected hypervisor
// and enables their services for the first boot.
func (inst *Installer) runGuestTools() error {
	log := logger.Logger()
	packages := inst.catalog.GuestToolPackages(inst.plan.Virt)
	log.Infof("Installing guest tools for %s: %v", inst.plan.Virt, packages)
	if err := inst.pacmanInstall(packages); err != nil {
		return err
	}

	for _, unit := range guestServices[inst.plan.Virt] {
		if err := inst.enableService(unit); err != nil {
			log.Warnf("Could not enable %s, continuing: %v", unit, err)
		}
	}
	return nil
}

// runDisplayManager enables the desktop's display manager so the target
// boots into a graphical login.
func (inst *Installer) runDisplayManager() error {
	dm := inst.plan.Packages.DisplayManager
	logger.Logger().Infof("Enabling display manager %s", dm)
	return inst.enableService(dm)
}
