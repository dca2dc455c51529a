package install

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/mount"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// runFinalize flushes caches, archives the run log into the installed
// system, and unmounts the target so the machine can reboot cleanly.
func (inst *Installer) runFinalize() error {
	log := logger.Logger()

	if _, err := shell.ExecCmd("sync", true, shell.HostPath, nil); err != nil {
		log.Warnf("sync failed, continuing: %v", err)
	}

	if logPath := logger.LogFilePath(); logPath != "" {
		target := filepath.Join(inst.MountRoot(), "var/log", filepath.Base(logPath)+".xz")
		if err := archiveLog(logPath, target); err != nil {
			return fmt.Errorf("failed to archive run log: %w", err)
		}
		log.Infof("Run log archived to %s", target)
	}

	return inst.unmountTarget()
}

// unmountTarget tears down everything below the mount root, deepest first,
// then the root itself.
func (inst *Installer) unmountTarget() error {
	log := logger.Logger()
	root := inst.MountRoot()

	if err := mount.UmountSysfs(root); err != nil {
		log.Warnf("Could not unmount sysfs binds, continuing: %v", err)
	}
	if err := mount.UmountSubPath(root); err != nil {
		return fmt.Errorf("failed to unmount below %s: %w", root, err)
	}
	if err := mount.UmountPath(root); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", root, err)
	}
	log.Infof("Target unmounted from %s", root)
	return nil
}

// archiveLog compresses the run log into the target filesystem.
func archiveLog(srcPath, dstPath string) error {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", srcPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dstPath), err)
	}

	out, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dstPath, err)
	}
	defer out.Close()

	writer, err := xz.NewWriter(out)
	if err != nil {
		return fmt.Errorf("failed to start xz stream: %w", err)
	}
	if _, err := writer.Write(content); err != nil {
		return fmt.Errorf("failed to compress log: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return out.Sync()
}
