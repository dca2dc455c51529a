package install

import (
	"fmt"
	"path/filepath"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/mount"
)

// verifyMounted is a seam for tests; the real check compares device
// numbers and needs an actual mount.
var verifyMounted = mount.VerifyMounted

// runMount mounts the root partition at the configured mount root and, on
// EFI installs, the ESP at <root>/boot. Each mount is verified live before
// the stage reports success.
func (inst *Installer) runMount() error {
	log := logger.Logger()
	root := inst.MountRoot()
	rootDev := inst.plan.Target.RootPartitionPath

	if err := mount.MountPath(rootDev, root, ""); err != nil {
		return &MountError{Device: rootDev, MountPoint: root, Err: err}
	}
	if err := inst.verifyLive(rootDev, root); err != nil {
		return err
	}
	log.Infof("Root partition %s mounted at %s", rootDev, root)

	if espDev := inst.plan.Target.EFIPartitionPath; espDev != "" {
		bootPoint := filepath.Join(root, "boot")
		if err := mount.MountPath(espDev, bootPoint, ""); err != nil {
			return &MountError{Device: espDev, MountPoint: bootPoint, Err: err}
		}
		if err := inst.verifyLive(espDev, bootPoint); err != nil {
			return err
		}
		log.Infof("ESP %s mounted at %s", espDev, bootPoint)
	}

	// Chrooted steps (mkinitcpio, grub-install) need the host's /dev,
	// /proc and /sys visible inside the target.
	if err := mount.MountSysfs(root); err != nil {
		return &MountError{Device: "sysfs", MountPoint: root, Err: err}
	}

	return nil
}

func (inst *Installer) verifyLive(device, mountPoint string) error {
	live, err := verifyMounted(mountPoint)
	if err != nil {
		return &MountError{Device: device, MountPoint: mountPoint, Err: err}
	}
	if !live {
		return &MountError{Device: device, MountPoint: mountPoint,
			Err: fmt.Errorf("mount reported success but %s is not a live mount", mountPoint)}
	}
	return nil
}
