package install

import (
	"fmt"

	"github.com/edgeforge/os-installer/internal/diskops"
	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// runPartition applies the automatic layout, then resolves the plan's
// partition paths from it. Only reached when auto-partitioning was
// confirmed; the skip check guards the rest.
func (inst *Installer) runPartition() error {
	if inst.layout == nil {
		return fmt.Errorf("automatic partitioning confirmed but no layout planned")
	}

	attempts, delay := inst.deviceWait()
	if err := diskops.Apply(inst.layout, inst.partitionToken, attempts, delay); err != nil {
		return err
	}

	inst.plan.Target.RootPartitionPath = inst.layout.RootDevice()
	inst.plan.Target.EFIPartitionPath = inst.layout.ESPDevice()
	logger.Logger().Infof("Partitions created: root %s, ESP %q",
		inst.plan.Target.RootPartitionPath, inst.plan.Target.EFIPartitionPath)
	return nil
}

// runFormat formats the automatic layout's partitions, or just the chosen
// root partition when the operator kept an existing layout. The UUIDs are
// read back immediately for fstab and loader entries.
func (inst *Installer) runFormat() error {
	if inst.layout != nil {
		if err := diskops.FormatAll(inst.layout, inst.formatToken); err != nil {
			return err
		}
	} else {
		if err := diskops.Format(inst.plan.Target.RootPartitionPath, inst.plan.Format.RootFilesystem, inst.formatToken); err != nil {
			return err
		}
	}
	return inst.readUUIDs()
}

func (inst *Installer) readUUIDs() error {
	rootUUID, err := diskops.ReadFilesystemUUID(inst.plan.Target.RootPartitionPath)
	if err != nil {
		return err
	}
	inst.rootUUID = rootUUID

	if inst.plan.Target.EFIPartitionPath != "" {
		espUUID, err := diskops.ReadFilesystemUUID(inst.plan.Target.EFIPartitionPath)
		if err != nil {
			return err
		}
		inst.espUUID = espUUID
	}
	return nil
}

// rootFilesystem returns the filesystem type the root partition carries,
// for fstab. When nothing was formatted the type is read back from the
// partition; the operator never declared one.
func (inst *Installer) rootFilesystem() (string, error) {
	if inst.plan.Format.RootFilesystem != "" {
		return string(inst.plan.Format.RootFilesystem), nil
	}
	return diskops.ReadFilesystemType(inst.plan.Target.RootPartitionPath)
}
