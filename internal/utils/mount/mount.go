package mount

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
	"github.com/edgeforge/os-installer/internal/utils/slice"
)

func GetMountPathList() ([]string, error) {
	var mountPathList []string
	output, err := shell.ExecCmdSilent("mount", false, shell.HostPath, nil)
	if err != nil {
		return mountPathList, err
	}
	for _, line := range strings.Split(output, "\n") {
		mountInfoList := strings.Fields(line)
		if len(mountInfoList) > 2 {
			mountPathList = append(mountPathList, mountInfoList[2])
		}
	}
	return mountPathList, nil
}

// GetMountSubPathList returns the mount points below the given root mount point
func GetMountSubPathList(rootMountPoint string) ([]string, error) {
	var mountSubpathList []string
	mountPathList, err := GetMountPathList()
	if err != nil {
		return mountSubpathList, fmt.Errorf("failed to get mount path list: %w", err)
	}
	for _, mountPath := range mountPathList {
		if strings.HasPrefix(mountPath, rootMountPoint) {
			mountSubpathList = append(mountSubpathList, mountPath)
		}
	}
	return mountSubpathList, nil
}

// IsMountPathExist checks if a given path is currently mounted
func IsMountPathExist(mountPoint string) (bool, error) {
	mountPathList, err := GetMountPathList()
	if err != nil {
		return false, fmt.Errorf("failed to get mount path list: %w", err)
	}
	for _, path := range mountPathList {
		if path == mountPoint {
			return true, nil
		}
	}

	return false, nil
}

// MountPath mounts a target path to a mount point with specific flags
func MountPath(targetPath, mountPoint, mountFlags string) error {
	log := logger.Logger()
	if _, err := os.Stat(mountPoint); os.IsNotExist(err) {
		if _, err := shell.ExecCmd("mkdir -p "+mountPoint, true, shell.HostPath, nil); err != nil {
			return fmt.Errorf("failed to create mount point %s: %w", mountPoint, err)
		}
	}
	pathExist, err := IsMountPathExist(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to check if mount point %s exists: %w", mountPoint, err)
	}
	if pathExist {
		log.Debugf("Mount point already exists: %s", mountPoint)
		return nil
	}
	mountCmdStr := strings.TrimSpace("mount " + mountFlags + " " + targetPath + " " + mountPoint)
	if _, err := shell.ExecCmd(mountCmdStr, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to mount %s to %s: %w", targetPath, mountPoint, err)
	}
	log.Debugf("Mounted: %s to %s", targetPath, mountPoint)
	return nil
}

// VerifyMounted proves a live mount exists at mountPoint by comparing the
// device number of the mount point against its parent directory. A freshly
// created but unmounted directory shares the parent's device.
func VerifyMounted(mountPoint string) (bool, error) {
	var pointStat, parentStat unix.Stat_t
	if err := unix.Stat(mountPoint, &pointStat); err != nil {
		return false, fmt.Errorf("failed to stat mount point %s: %w", mountPoint, err)
	}
	parent := filepath.Dir(mountPoint)
	if err := unix.Stat(parent, &parentStat); err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", parent, err)
	}
	return pointStat.Dev != parentStat.Dev, nil
}

func UmountPath(mountPoint string) error {
	log := logger.Logger()
	pathExist, err := IsMountPathExist(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to check if mount point %s exists: %w", mountPoint, err)
	}
	if !pathExist {
		log.Debugf("Mount point does not exist: %s", mountPoint)
		return nil
	}

	// Try different unmount strategies with increasing aggressiveness
	unmountStrategies := []struct {
		cmd  string
		desc string
	}{
		{"umount " + mountPoint, "standard"},
		{"umount -l " + mountPoint, "lazy"},
		{"umount -f " + mountPoint, "force"},
		{"umount -lf " + mountPoint, "lazy-force"},
	}
	for _, strategy := range unmountStrategies {
		log.Debugf("Trying %s unmount for %s", strategy.desc, mountPoint)
		if output, err := shell.ExecCmd(strategy.cmd, true, shell.HostPath, nil); err == nil {
			log.Debugf("Successfully unmounted %s using %s approach", mountPoint, strategy.desc)
			return nil
		} else {
			log.Debugf("Unmount failed with %s approach: %v, output: %s", strategy.desc, err, output)
		}
	}
	return nil
}

// UmountSubPath unmounts everything below the mount point, deepest first.
func UmountSubPath(mountPoint string) error {
	mountSubpathList, err := GetMountSubPathList(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to get mount subpath list for %s: %w", mountPoint, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(mountSubpathList)))
	for _, path := range mountSubpathList {
		if _, err := shell.ExecCmd("umount -l "+path, true, shell.HostPath, nil); err != nil {
			return fmt.Errorf("failed to unmount %s: %w", path, err)
		}
	}
	return nil
}

// MountSysfs mounts system directories (/dev, /proc, /sys, /run) into the
// chroot environment so chroot-scoped configuration steps can run.
func MountSysfs(mountPoint string) error {
	devMountPoint := filepath.Join(mountPoint, "dev")
	if err := MountPath("/dev", devMountPoint, "--bind"); err != nil {
		return fmt.Errorf("failed to mount /dev to %s: %w", devMountPoint, err)
	}
	if _, err := shell.ExecCmd("mount --make-rslave "+devMountPoint, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to make %s a slave mount: %w", devMountPoint, err)
	}

	procMountPoint := filepath.Join(mountPoint, "proc")
	if err := MountPath("/proc", procMountPoint, "-t proc"); err != nil {
		return fmt.Errorf("failed to mount /proc to %s: %w", procMountPoint, err)
	}

	sysMountPoint := filepath.Join(mountPoint, "sys")
	if err := MountPath("/sys", sysMountPoint, "--bind"); err != nil {
		return fmt.Errorf("failed to mount /sys to %s: %w", sysMountPoint, err)
	}
	if _, err := shell.ExecCmd("mount --make-rslave "+sysMountPoint, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to make %s a slave mount: %w", sysMountPoint, err)
	}

	runMountPoint := filepath.Join(mountPoint, "run")
	if err := MountPath("/run", runMountPoint, "--bind"); err != nil {
		return fmt.Errorf("failed to mount /run to %s: %w", runMountPoint, err)
	}
	if _, err := shell.ExecCmd("mount --make-rslave "+runMountPoint, true, shell.HostPath, nil); err != nil {
		return fmt.Errorf("failed to make %s a slave mount: %w", runMountPoint, err)
	}

	devPtsMountPoint := filepath.Join(mountPoint, "dev/pts")
	if err := MountPath("/dev/pts", devPtsMountPoint, "--bind"); err != nil {
		return fmt.Errorf("failed to mount /dev/pts to %s: %w", devPtsMountPoint, err)
	}

	return nil
}

// UmountSysfs unmounts system directories from the chroot environment
func UmountSysfs(mountPoint string) error {
	log := logger.Logger()
	mountPathList, err := GetMountPathList()
	if err != nil {
		return fmt.Errorf("failed to get mount path list: %w", err)
	}

	for _, sub := range []string{"dev/pts", "run", "sys", "proc", "dev"} {
		fullPath := filepath.Join(mountPoint, sub)
		if !slice.Contains(mountPathList, fullPath) {
			continue
		}
		if _, err := shell.ExecCmd("umount -l "+fullPath, true, shell.HostPath, nil); err != nil {
			if !strings.Contains(err.Error(), "not found") {
				return fmt.Errorf("failed to unmount %s: %w", fullPath, err)
			}
			log.Warnf("Mount point not found (already unmounted?): %s", fullPath)
			continue
		}
		log.Debugf("Unmounted: %s", fullPath)
	}
	return nil
}
