package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// basePackages is what every target gets regardless of selections.
var basePackages = []string{"base", "linux-firmware", "networkmanager", "sudo"}

// statTargetPath is a seam for the population check.
var statTargetPath = os.Stat

// runBootstrapBase places the base system into the mounted target with
// pacstrap, verifies the target actually got populated, and writes fstab.
// A pacstrap that exits zero but leaves an empty tree has happened on
// broken mirrors, hence the explicit population check.
func (inst *Installer) runBootstrapBase() error {
	log := logger.Logger()
	root := inst.MountRoot()

	kernel, err := inst.catalog.Kernel(inst.plan.KernelVariant)
	if err != nil {
		return &BootstrapError{Step: "kernel selection", Err: err}
	}
	packages := append(append([]string{}, basePackages...), kernel.Packages...)

	log.Infof("Bootstrapping base system into %s (%d packages)", root, len(packages))
	cmdStr := fmt.Sprintf("pacstrap -K %s %s", root, strings.Join(packages, " "))
	if _, err := shell.ExecCmdWithStream(cmdStr, true, shell.HostPath, nil); err != nil {
		return &BootstrapError{Step: "pacstrap", Err: err}
	}

	for _, dir := range []string{"etc", "usr/bin"} {
		path := filepath.Join(root, dir)
		if _, err := statTargetPath(path); err != nil {
			return &BootstrapError{Step: "population check",
				Err: fmt.Errorf("target missing %s after bootstrap: %w", path, err)}
		}
	}

	if inst.rootUUID == "" {
		// Format was skipped, so the UUIDs were never read.
		if err := inst.readUUIDs(); err != nil {
			return &BootstrapError{Step: "read UUIDs", Err: err}
		}
	}

	rootFs, err := inst.rootFilesystem()
	if err != nil {
		return &BootstrapError{Step: "root filesystem type", Err: err}
	}
	fstab := buildFstab(inst.rootUUID, rootFs, inst.espUUID)
	if err := inst.writeTargetFile("/etc/fstab", fstab); err != nil {
		return &BootstrapError{Step: "fstab", Err: err}
	}

	// pacstrap copies the host's mirrorlist; a configured mirror pins the
	// target to it instead.
	if url := inst.cfg.MirrorlistURL; url != "" {
		mirrorlist := fmt.Sprintf("Server = %s\n", url)
		if err := inst.writeTargetFile("/etc/pacman.d/mirrorlist", mirrorlist); err != nil {
			return &BootstrapError{Step: "mirrorlist", Err: err}
		}
		log.Infof("Target mirrorlist pinned to %s", url)
	}

	log.Infof("Base system bootstrapped")
	return nil
}

// buildFstab renders /etc/fstab with UUID references only. Device paths
// like /dev/sda2 can renumber across boots; UUIDs cannot.
func buildFstab(rootUUID, rootFs, espUUID string) string {
	var b strings.Builder
	b.WriteString("# <filesystem> <dir> <type> <options> <dump> <pass>\n")
	fmt.Fprintf(&b, "UUID=%s\t/\t%s\trw,relatime\t0 1\n", rootUUID, rootFs)
	if espUUID != "" {
		fmt.Fprintf(&b, "UUID=%s\t/boot\tvfat\trw,relatime\t0 2\n", espUUID)
	}
	return b.String()
}
