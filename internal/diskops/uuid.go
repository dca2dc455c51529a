package diskops

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// FAT volume IDs are 8 hex digits with a dash, not RFC 4122 UUIDs.
var fatVolumeIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}$`)

// blkid TYPE values are short lowercase tokens (ext4, btrfs, vfat, ...).
var fsTypePattern = regexp.MustCompile(`^[a-z0-9_.-]+$`)

// ReadFilesystemUUID returns the filesystem UUID of a formatted partition,
// validated so a garbled blkid line cannot end up in fstab or a loader
// entry. Linux filesystems carry RFC 4122 UUIDs; vfat carries a short FAT
// volume ID.
func ReadFilesystemUUID(device string) (string, error) {
	cmdStr := fmt.Sprintf("blkid -s UUID -o value %s", device)
	output, err := shell.ExecCmdSilent(cmdStr, true, shell.HostPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read UUID of %s: %w", device, err)
	}

	id := strings.TrimSpace(output)
	if id == "" {
		return "", fmt.Errorf("device %s has no filesystem UUID", device)
	}
	if _, parseErr := uuid.Parse(id); parseErr != nil && !fatVolumeIDPattern.MatchString(id) {
		return "", fmt.Errorf("device %s reports malformed UUID %q", device, id)
	}
	return id, nil
}

// ReadFilesystemType returns the filesystem type a partition already
// carries. Used when formatting was skipped: fstab must state what is
// actually on the partition, not a guess.
func ReadFilesystemType(device string) (string, error) {
	cmdStr := fmt.Sprintf("blkid -s TYPE -o value %s", device)
	output, err := shell.ExecCmdSilent(cmdStr, true, shell.HostPath, nil)
	if err != nil {
		return "", fmt.Errorf("failed to read filesystem type of %s: %w", device, err)
	}

	fsType := strings.TrimSpace(output)
	if fsType == "" {
		return "", fmt.Errorf("device %s carries no filesystem", device)
	}
	if !fsTypePattern.MatchString(fsType) {
		return "", fmt.Errorf("device %s reports malformed filesystem type %q", device, fsType)
	}
	return fsType, nil
}
