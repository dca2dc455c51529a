// Package bootloader installs and configures the boot chain inside the
// mounted target: systemd-boot on EFI hosts, GRUB on either firmware mode.
package bootloader

import (
	"fmt"
	"strings"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/diskops"
	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// BootloaderError wraps any failure in the boot chain setup. The pipeline
// treats it as non-fatal so the installed system survives on disk, but the
// summary calls it out because the machine will not boot unattended.
type BootloaderError struct {
	Loader string
	Step   string
	Err    error
}

func (e *BootloaderError) Error() string {
	return fmt.Sprintf("%s install failed at %s: %v", e.Loader, e.Step, e.Err)
}

func (e *BootloaderError) Unwrap() error {
	return e.Err
}

const loaderEntryName = "edge.conf"

// Install dispatches on the plan's bootloader choice. mountRoot is the
// mounted target root; all commands run chrooted into it.
func Install(plan *config.InstallPlan, mountRoot string) error {
	switch plan.Bootloader {
	case config.BootloaderSystemdBoot:
		if plan.Firmware != sysprobe.FirmwareEFI {
			return &BootloaderError{Loader: "systemd-boot", Step: "preflight",
				Err: fmt.Errorf("requires EFI firmware, host booted %s", plan.Firmware)}
		}
		return installSystemdBoot(plan, mountRoot)
	case config.BootloaderGrub:
		return installGrub(plan, mountRoot)
	default:
		return &BootloaderError{Loader: string(plan.Bootloader), Step: "dispatch",
			Err: fmt.Errorf("unknown bootloader choice")}
	}
}

// installSystemdBoot installs systemd-boot into the ESP and writes a loader
// entry pointing at the chosen kernel variant by root filesystem UUID.
func installSystemdBoot(plan *config.InstallPlan, mountRoot string) error {
	log := logger.Logger()

	rootUUID, err := diskops.ReadFilesystemUUID(plan.Target.RootPartitionPath)
	if err != nil {
		return &BootloaderError{Loader: "systemd-boot", Step: "root UUID", Err: err}
	}

	log.Infof("Installing systemd-boot into ESP")
	if _, err := shell.ExecCmd("bootctl --esp-path=/boot install", false, mountRoot, nil); err != nil {
		return &BootloaderError{Loader: "systemd-boot", Step: "bootctl install", Err: err}
	}

	loaderConf := fmt.Sprintf("default %s\ntimeout 3\nconsole-mode max\neditor no\n", loaderEntryName)
	if err := writeTargetFile(mountRoot, "/boot/loader/loader.conf", loaderConf); err != nil {
		return &BootloaderError{Loader: "systemd-boot", Step: "loader.conf", Err: err}
	}

	entry := loaderEntry(plan.KernelVariant, rootUUID)
	if err := writeTargetFile(mountRoot, "/boot/loader/entries/"+loaderEntryName, entry); err != nil {
		return &BootloaderError{Loader: "systemd-boot", Step: "loader entry", Err: err}
	}

	log.Infof("systemd-boot configured for kernel %s, root UUID %s", plan.KernelVariant, rootUUID)
	return nil
}

func loaderEntry(kernelVariant, rootUUID string) string {
	var b strings.Builder
	b.WriteString("title   Linux\n")
	fmt.Fprintf(&b, "linux   /vmlinuz-%s\n", kernelVariant)
	fmt.Fprintf(&b, "initrd  /initramfs-%s.img\n", kernelVariant)
	fmt.Fprintf(&b, "options root=UUID=%s rw\n", rootUUID)
	return b.String()
}

// installGrub installs GRUB for the host's firmware mode. On BIOS the MBR
// code must land on the whole disk; installing onto a partition leaves the
// machine unbootable, so that is refused outright.
func installGrub(plan *config.InstallPlan, mountRoot string) error {
	log := logger.Logger()

	var installCmd string
	packages := "grub"
	if plan.Firmware == sysprobe.FirmwareEFI {
		packages = "grub efibootmgr"
		installCmd = "grub-install --target=x86_64-efi --efi-directory=/boot --bootloader-id=GRUB"
	} else {
		if !blockdev.IsWholeDisk(plan.Target.DiskID) {
			return &BootloaderError{Loader: "grub", Step: "preflight",
				Err: fmt.Errorf("BIOS install target %s is not a whole disk", plan.Target.DiskID)}
		}
		installCmd = fmt.Sprintf("grub-install --target=i386-pc %s", plan.Target.DiskID)
	}

	log.Infof("Installing GRUB (%s firmware)", plan.Firmware)
	// The base bootstrap never pulls GRUB in; the target has no grub-install
	// binary until it is installed here.
	if _, err := shell.ExecCmdWithStream("pacman -S --noconfirm --needed "+packages, false, mountRoot, nil); err != nil {
		return &BootloaderError{Loader: "grub", Step: "package install", Err: err}
	}
	if _, err := shell.ExecCmd(installCmd, false, mountRoot, nil); err != nil {
		return &BootloaderError{Loader: "grub", Step: "grub-install", Err: err}
	}
	if _, err := shell.ExecCmd("grub-mkconfig -o /boot/grub/grub.cfg", false, mountRoot, nil); err != nil {
		return &BootloaderError{Loader: "grub", Step: "grub-mkconfig", Err: err}
	}

	return nil
}

// writeTargetFile writes content to a path inside the target via tee, so
// the write happens with the target's permissions and under chroot.
func writeTargetFile(mountRoot, path, content string) error {
	dirCmd := fmt.Sprintf("mkdir -p %s", parentDir(path))
	if _, err := shell.ExecCmd(dirCmd, false, mountRoot, nil); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	teeCmd := fmt.Sprintf("tee %s", path)
	if _, err := shell.ExecCmdWithInput(teeCmd, content, false, mountRoot, nil); err != nil {
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
