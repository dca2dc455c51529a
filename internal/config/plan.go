package config

import (
	"fmt"
	"strings"

	"github.com/edgeforge/os-installer/internal/sysprobe"
)

// AutoPartitionState tracks whether the run will create its own partition
// layout. Pending means the operator picked a whole disk but has not yet
// confirmed automatic partitioning; the pipeline refuses to start in that
// state.
type AutoPartitionState int

const (
	AutoPartitionNo AutoPartitionState = iota
	AutoPartitionPending
	AutoPartitionConfirmed
)

// TargetSpec describes where the system will be installed. Built by the
// selection resolver; only the partition planner may fill in partition
// paths afterwards (after auto-creation).
type TargetSpec struct {
	DiskID            string // whole-disk device, e.g. /dev/sda
	RootPartitionPath string // e.g. /dev/sda2; empty until planned when auto-partitioning
	EFIPartitionPath  string // set iff EFI install; empty means not applicable
	AutoPartition     AutoPartitionState
}

// Filesystem is the root filesystem choice offered when formatting.
type Filesystem string

const (
	FilesystemExt4  Filesystem = "ext4"
	FilesystemBtrfs Filesystem = "btrfs"
	FilesystemXfs   Filesystem = "xfs"
)

// FormatPlan records whether the root partition gets a fresh filesystem.
// When DoFormat is false no mkfs command may run for any target partition.
type FormatPlan struct {
	DoFormat       bool
	RootFilesystem Filesystem
}

// PackageSelection is the frozen set of packages derived from the chosen
// desktop tag plus audio/optional picks. Immutable after planning.
type PackageSelection struct {
	DesktopTag       string
	DesktopPackages  []string
	AudioPackages    []string
	OptionalPackages []string
	DisplayManager   string // empty means none to enable
}

// SystemSettings is the base configuration applied inside the target.
type SystemSettings struct {
	Hostname     string
	Timezone     string // e.g. Europe/Berlin
	Locale       string // e.g. en_US.UTF-8
	Username     string
	UserPassword string
	RootPassword string
}

// BootloaderChoice selects the install strategy.
type BootloaderChoice string

const (
	BootloaderSystemdBoot BootloaderChoice = "systemd-boot"
	BootloaderGrub        BootloaderChoice = "grub"
)

// InstallPlan is everything the planning phase produces. It is frozen into
// a reviewable summary, confirmed once by the operator, and then handed
// read-only to the stage executor.
type InstallPlan struct {
	Target        TargetSpec
	Firmware      sysprobe.FirmwareMode
	Virt          sysprobe.VirtPlatform
	Format        FormatPlan
	Packages      PackageSelection
	System        SystemSettings
	KernelVariant string // linux, linux-lts, linux-zen, linux-hardened
	Bootloader    BootloaderChoice
	InstallNvidia bool
}

// Validate checks the invariants the stage executor depends on.
func (p *InstallPlan) Validate() error {
	if p.Target.AutoPartition == AutoPartitionPending {
		return fmt.Errorf("automatic partitioning was never confirmed")
	}
	if p.Target.AutoPartition == AutoPartitionNo && p.Target.RootPartitionPath == "" {
		return fmt.Errorf("no root partition selected")
	}
	if p.Target.DiskID == "" {
		return fmt.Errorf("no target disk resolved")
	}
	if p.Firmware == sysprobe.FirmwareBIOS && p.Bootloader == BootloaderSystemdBoot {
		return fmt.Errorf("systemd-boot requires EFI firmware")
	}
	if p.Format.DoFormat && p.Format.RootFilesystem == "" {
		return fmt.Errorf("format requested without a filesystem choice")
	}
	if p.KernelVariant == "" {
		return fmt.Errorf("no kernel variant selected")
	}
	return nil
}

// Summary renders the frozen plan for the operator's final review. Every
// value shown is concrete; the planning phase must resolve placeholders
// before calling this.
func (p *InstallPlan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target disk:      %s\n", p.Target.DiskID)
	if p.Target.AutoPartition == AutoPartitionConfirmed {
		fmt.Fprintf(&b, "Partitioning:     automatic (%s layout)\n", partitionTableName(p.Firmware))
	} else {
		fmt.Fprintf(&b, "Partitioning:     keep existing\n")
	}
	fmt.Fprintf(&b, "Root partition:   %s\n", p.Target.RootPartitionPath)
	if p.Target.EFIPartitionPath != "" {
		fmt.Fprintf(&b, "EFI partition:    %s\n", p.Target.EFIPartitionPath)
	}
	if p.Format.DoFormat {
		fmt.Fprintf(&b, "Format root as:   %s\n", p.Format.RootFilesystem)
	} else {
		fmt.Fprintf(&b, "Format root as:   (no formatting)\n")
	}
	fmt.Fprintf(&b, "Firmware mode:    %s\n", p.Firmware)
	fmt.Fprintf(&b, "Bootloader:       %s\n", p.Bootloader)
	fmt.Fprintf(&b, "Kernel:           %s\n", p.KernelVariant)
	fmt.Fprintf(&b, "Desktop:          %s\n", p.Packages.DesktopTag)
	if p.Packages.DisplayManager != "" {
		fmt.Fprintf(&b, "Display manager:  %s\n", p.Packages.DisplayManager)
	}
	if len(p.Packages.OptionalPackages) > 0 {
		fmt.Fprintf(&b, "Optional:         %s\n", strings.Join(p.Packages.OptionalPackages, ", "))
	}
	fmt.Fprintf(&b, "Hostname:         %s\n", p.System.Hostname)
	fmt.Fprintf(&b, "Timezone:         %s\n", p.System.Timezone)
	fmt.Fprintf(&b, "Locale:           %s\n", p.System.Locale)
	fmt.Fprintf(&b, "User:             %s\n", p.System.Username)
	if p.InstallNvidia {
		fmt.Fprintf(&b, "NVIDIA driver:    yes\n")
	}
	if p.Virt != sysprobe.VirtNone {
		fmt.Fprintf(&b, "Guest tools:      %s\n", p.Virt)
	}
	return b.String()
}

func partitionTableName(mode sysprobe.FirmwareMode) string {
	if mode == sysprobe.FirmwareEFI {
		return "GPT"
	}
	return "MBR"
}
