// Package selection turns the operator's device choice into a target
// specification. Pure: no commands run here, so planning mistakes surface
// before anything touches a disk.
package selection

import (
	"fmt"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/ui"
)

// SelectionError means the chosen device cannot be resolved into a target.
type SelectionError struct {
	Path   string
	Reason string
}

func (e *SelectionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("device selection failed: %s", e.Reason)
	}
	return fmt.Sprintf("device selection failed for %s: %s", e.Path, e.Reason)
}

// CatalogOptions renders the device catalog as selectable entries. Disks
// are offered for automatic partitioning, partitions for direct use.
func CatalogOptions(devices []blockdev.Device) []ui.Option {
	options := make([]ui.Option, 0, len(devices))
	for _, dev := range devices {
		detail := fmt.Sprintf("%s, %s", dev.Kind, dev.SizeHuman)
		if dev.Model != "" {
			detail = fmt.Sprintf("%s, %s", detail, dev.Model)
		}
		if dev.Kind == "disk" {
			detail += " (whole disk, will be partitioned)"
		}
		options = append(options, ui.Option{
			Value:  dev.Path,
			Label:  dev.Path,
			Detail: detail,
		})
	}
	return options
}

// Resolve maps the chosen device path onto a TargetSpec. A partition
// choice pins the root partition and derives its disk; a whole-disk choice
// leaves partition paths empty and marks auto-partitioning as pending
// until the operator confirms it separately.
func Resolve(path string, devices []blockdev.Device) (config.TargetSpec, error) {
	if len(devices) == 0 {
		return config.TargetSpec{}, &SelectionError{Reason: "no block devices found on this host"}
	}

	var chosen *blockdev.Device
	for i := range devices {
		if devices[i].Path == path {
			chosen = &devices[i]
			break
		}
	}
	if chosen == nil {
		return config.TargetSpec{}, &SelectionError{Path: path, Reason: "not in the device catalog"}
	}

	switch chosen.Kind {
	case "part":
		diskID, ok := blockdev.DiskOfPartition(path)
		if !ok {
			return config.TargetSpec{}, &SelectionError{Path: path, Reason: "unrecognized partition naming"}
		}
		return config.TargetSpec{
			DiskID:            diskID,
			RootPartitionPath: path,
			AutoPartition:     config.AutoPartitionNo,
		}, nil
	case "disk":
		if !blockdev.IsWholeDisk(path) {
			return config.TargetSpec{}, &SelectionError{Path: path, Reason: "unrecognized disk naming"}
		}
		return config.TargetSpec{
			DiskID:        path,
			AutoPartition: config.AutoPartitionPending,
		}, nil
	default:
		return config.TargetSpec{}, &SelectionError{Path: path, Reason: fmt.Sprintf("unsupported device type %q", chosen.Kind)}
	}
}
