// Package blockdev enumerates the host's block devices and owns the
// device-path naming rules shared by the selection and partitioning code.
package blockdev

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// Device is one row of the catalog presented to the operator.
type Device struct {
	Path      string // Example: /dev/sda
	SizeHuman string // Example: 476.9G
	Kind      string // "disk" or "part"
	Model     string // Example: Samsung SSD 970
}

type lsblkOutput struct {
	Devices []lsblkDevice `json:"blockdevices"`
}

type lsblkDevice struct {
	Path  string `json:"path"`
	Size  string `json:"size"`
	Type  string `json:"type"`
	Model string `json:"model"`
}

// List returns all disks and partitions lsblk reports, skipping loop and
// optical devices. Read-only; the selection resolver consumes this.
func List() ([]Device, error) {
	log := logger.Logger()
	cmd := "lsblk --json --list --output PATH,SIZE,TYPE,MODEL"
	output, err := shell.ExecCmdSilent(cmd, true, shell.HostPath, nil)
	if err != nil {
		log.Errorf("Failed to execute lsblk: %v", err)
		return nil, fmt.Errorf("failed to execute lsblk: %w", err)
	}

	var parsed lsblkOutput
	if err := json.Unmarshal([]byte(output), &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lsblk output: %w", err)
	}

	devices := make([]Device, 0, len(parsed.Devices))
	for _, dev := range parsed.Devices {
		if dev.Type != "disk" && dev.Type != "part" {
			continue
		}
		if strings.HasPrefix(dev.Path, "/dev/loop") || strings.HasPrefix(dev.Path, "/dev/sr") {
			continue
		}
		devices = append(devices, Device{
			Path:      dev.Path,
			SizeHuman: strings.TrimSpace(dev.Size),
			Kind:      dev.Type,
			Model:     strings.TrimSpace(dev.Model),
		})
	}

	log.Debugf("Device catalog: %d entries", len(devices))
	return devices, nil
}

// Partitions filters the catalog down to partitions.
func Partitions(devices []Device) []Device {
	var parts []Device
	for _, dev := range devices {
		if dev.Kind == "part" {
			parts = append(parts, dev)
		}
	}
	return parts
}

// NVMe/MMC-style disks carry a `p` between disk name and partition number
// (/dev/nvme0n1p2); SCSI-style disks append the number directly (/dev/sda2).
// Getting this wrong aims later stages at a non-existent device, so both
// directions live here and nowhere else.
var (
	nvmeStyleDiskPattern = regexp.MustCompile(`^/dev/(?:nvme\d+n\d+|mmcblk\d+)$`)
	scsiStyleDiskPattern = regexp.MustCompile(`^/dev/(?:[shv]d[a-z]+|xvd[a-z]+)$`)
	nvmeStylePartPattern = regexp.MustCompile(`^(/dev/(?:nvme\d+n\d+|mmcblk\d+))p(\d+)$`)
	scsiStylePartPattern = regexp.MustCompile(`^(/dev/(?:[shv]d[a-z]+|xvd[a-z]+))(\d+)$`)
)

// IsWholeDisk reports whether the path names a whole disk syntactically.
func IsWholeDisk(path string) bool {
	return nvmeStyleDiskPattern.MatchString(path) || scsiStyleDiskPattern.MatchString(path)
}

// PartitionDevice derives the device path of partition n on the given disk.
func PartitionDevice(diskPath string, n int) string {
	if nvmeStyleDiskPattern.MatchString(diskPath) {
		return fmt.Sprintf("%sp%d", diskPath, n)
	}
	return fmt.Sprintf("%s%d", diskPath, n)
}

// SplitPartition decomposes a partition path into its disk and partition
// number. ok is false when the path does not name a partition.
func SplitPartition(path string) (diskPath string, num int, ok bool) {
	if match := nvmeStylePartPattern.FindStringSubmatch(path); match != nil {
		n, err := strconv.Atoi(match[2])
		if err != nil {
			return "", 0, false
		}
		return match[1], n, true
	}
	if match := scsiStylePartPattern.FindStringSubmatch(path); match != nil {
		n, err := strconv.Atoi(match[2])
		if err != nil {
			return "", 0, false
		}
		return match[1], n, true
	}
	return "", 0, false
}

// DiskOfPartition strips the partition suffix, returning the whole-disk
// path. ok is false when the path is not a recognizable partition.
func DiskOfPartition(path string) (string, bool) {
	diskPath, _, ok := SplitPartition(path)
	return diskPath, ok
}
