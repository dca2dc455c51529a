// Package diskops plans and applies partition layouts and filesystem
// formats. Every function that writes to a disk demands a gate.Token, so
// nothing here can run without the operator's two confirmations.
package diskops

import (
	"fmt"
	"strings"
	"time"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// PlanningError means a partition layout could not be derived for the disk.
type PlanningError struct {
	Disk   string
	Reason string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("partition planning failed for %s: %s", e.Disk, e.Reason)
}

// espSize is the EFI system partition size for automatic GPT layouts.
// Large enough for several kernels plus systemd-boot.
const espSize = "550MiB"

// Partition roles within a planned layout.
const (
	RoleESP  = "esp"
	RoleRoot = "root"
)

// PlannedPartition is one partition of an automatic layout, resolved to a
// concrete device path before anything is created.
type PlannedPartition struct {
	Number     int
	Role       string
	Device     string
	Size       string // sfdisk size field; empty takes the remainder
	TypeField  string // sfdisk type value (GPT alias or MBR hex code)
	Bootable   bool
	Filesystem config.Filesystem
}

// Layout is a complete automatic partition plan for one disk.
type Layout struct {
	DiskID     string
	Label      string // sfdisk label: "gpt" or "dos"
	Partitions []PlannedPartition
}

// PlanLayout derives the automatic layout for a whole disk. EFI hosts get
// GPT with an EFI system partition first and the root on the remainder;
// BIOS hosts get a single bootable MBR root. Pure; Apply does the writing.
func PlanLayout(diskID string, firmware sysprobe.FirmwareMode, rootFs config.Filesystem) (*Layout, error) {
	if !blockdev.IsWholeDisk(diskID) {
		return nil, &PlanningError{Disk: diskID, Reason: "not a whole-disk device"}
	}
	if rootFs == "" {
		return nil, &PlanningError{Disk: diskID, Reason: "no root filesystem chosen"}
	}

	if firmware == sysprobe.FirmwareEFI {
		return &Layout{
			DiskID: diskID,
			Label:  "gpt",
			Partitions: []PlannedPartition{
				{
					Number:     1,
					Role:       RoleESP,
					Device:     blockdev.PartitionDevice(diskID, 1),
					Size:       espSize,
					TypeField:  "uefi",
					Filesystem: "vfat",
				},
				{
					Number:     2,
					Role:       RoleRoot,
					Device:     blockdev.PartitionDevice(diskID, 2),
					TypeField:  "linux",
					Filesystem: rootFs,
				},
			},
		}, nil
	}

	return &Layout{
		DiskID: diskID,
		Label:  "dos",
		Partitions: []PlannedPartition{
			{
				Number:     1,
				Role:       RoleRoot,
				Device:     blockdev.PartitionDevice(diskID, 1),
				TypeField:  "83",
				Bootable:   true,
				Filesystem: rootFs,
			},
		},
	}, nil
}

// Devices lists the disk and every planned partition device, in the order
// the final confirmation shows them.
func (l *Layout) Devices() []string {
	devices := []string{l.DiskID}
	for _, p := range l.Partitions {
		devices = append(devices, p.Device)
	}
	return devices
}

// RootDevice returns the planned root partition path.
func (l *Layout) RootDevice() string {
	return l.deviceByRole(RoleRoot)
}

// ESPDevice returns the planned EFI system partition path, or empty on
// BIOS layouts.
func (l *Layout) ESPDevice() string {
	return l.deviceByRole(RoleESP)
}

func (l *Layout) deviceByRole(role string) string {
	for _, p := range l.Partitions {
		if p.Role == role {
			return p.Device
		}
	}
	return ""
}

// script renders the full sfdisk input creating the label and all
// partitions in one shot.
func (l *Layout) script() string {
	var b strings.Builder
	fmt.Fprintf(&b, "label: %s\n\n", l.Label)
	for _, p := range l.Partitions {
		var fields []string
		if p.Size != "" {
			fields = append(fields, fmt.Sprintf("size=%s", p.Size))
		}
		fields = append(fields, fmt.Sprintf("type=%s", p.TypeField))
		if p.Bootable {
			fields = append(fields, "bootable")
		}
		b.WriteString(strings.Join(fields, ", "))
		b.WriteString("\n")
	}
	return b.String()
}

// Apply wipes the disk and writes the planned layout, then waits for every
// partition device node to appear. The token must cover the disk itself.
func Apply(layout *Layout, token gate.Token, waitAttempts int, waitDelay time.Duration) error {
	log := logger.Logger()
	if err := token.Authorizes(gate.CategoryPartition, layout.DiskID); err != nil {
		return fmt.Errorf("partitioning %s refused: %w", layout.DiskID, err)
	}

	log.Infof("Wiping existing signatures on %s", layout.DiskID)
	wipeCmd := fmt.Sprintf("wipefs --all %s", layout.DiskID)
	if _, err := shell.ExecCmd(wipeCmd, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to wipe %s: %w", layout.DiskID, err)
	}

	log.Infof("Writing %s layout to %s", layout.Label, layout.DiskID)
	sfdiskCmd := fmt.Sprintf("sfdisk %s", layout.DiskID)
	if _, err := shell.ExecCmdWithInput(sfdiskCmd, layout.script(), true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to partition %s: %w", layout.DiskID, err)
	}

	// Refresh the kernel's view before waiting on device nodes.
	partxCmd := fmt.Sprintf("partx -u %s", layout.DiskID)
	if _, err := shell.ExecCmd(partxCmd, true, shell.HostPath, nil); err != nil {
		log.Warnf("partx refresh on %s failed: %v", layout.DiskID, err)
	}

	for _, p := range layout.Partitions {
		if err := blockdev.WaitForDevice(p.Device, waitAttempts, waitDelay); err != nil {
			return fmt.Errorf("partition %d of %s: %w", p.Number, layout.DiskID, err)
		}
	}

	log.Infof("Partition layout applied to %s", layout.DiskID)
	return nil
}

// FormatAll formats every planned partition with its filesystem. The token
// must cover each partition device individually.
func FormatAll(layout *Layout, token gate.Token) error {
	for _, p := range layout.Partitions {
		if err := Format(p.Device, p.Filesystem, token); err != nil {
			return err
		}
	}
	return nil
}

// Format creates a filesystem on one partition device.
func Format(device string, fs config.Filesystem, token gate.Token) error {
	log := logger.Logger()
	if err := token.Authorizes(gate.CategoryFormat, device); err != nil {
		return fmt.Errorf("formatting %s refused: %w", device, err)
	}
	if blockdev.IsWholeDisk(device) {
		return fmt.Errorf("refusing to format whole disk %s", device)
	}

	var cmdStr string
	switch fs {
	case "vfat":
		cmdStr = fmt.Sprintf("mkfs -t vfat -F 32 %s", device)
	case config.FilesystemExt4:
		cmdStr = fmt.Sprintf("mkfs -t ext4 -F %s", device)
	case config.FilesystemBtrfs:
		cmdStr = fmt.Sprintf("mkfs -t btrfs -f %s", device)
	case config.FilesystemXfs:
		cmdStr = fmt.Sprintf("mkfs -t xfs -f %s", device)
	default:
		return fmt.Errorf("unsupported filesystem %q for %s", fs, device)
	}

	log.Infof("Formatting %s as %s", device, fs)
	if _, err := shell.ExecCmd(cmdStr, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to format %s as %s: %w", device, fs, err)
	}
	return nil
}
