package mount_test

import (
	"testing"

	"github.com/edgeforge/os-installer/internal/utils/mount"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

const mountOutput = `proc on /proc type proc (rw,nosuid,nodev,noexec,relatime)
/dev/sda2 on / type ext4 (rw,relatime)
/dev/sda1 on /boot type vfat (rw,relatime)
/dev/sdb1 on /mnt/install type ext4 (rw,relatime)
/dev/sdb2 on /mnt/install/boot type vfat (rw,relatime)
`

func withMock(t *testing.T, commands []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	original := shell.Default
	t.Cleanup(func() { shell.Default = original })
	mock := shell.NewMockExecutor(commands)
	shell.Default = mock
	return mock
}

func TestGetMountPathList(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: "mount", Output: mountOutput, Error: nil},
	})

	paths, err := mount.GetMountPathList()
	if err != nil {
		t.Fatalf("Expected mount list, got: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("Expected 5 mount points, got %d: %v", len(paths), paths)
	}
	if paths[1] != "/" || paths[3] != "/mnt/install" {
		t.Errorf("Unexpected mount points: %v", paths)
	}
}

func TestGetMountSubPathList(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: "mount", Output: mountOutput, Error: nil},
	})

	subs, err := mount.GetMountSubPathList("/mnt/install")
	if err != nil {
		t.Fatalf("Expected sub paths, got: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("Expected 2 sub paths, got %v", subs)
	}
}

func TestIsMountPathExist(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: "mount", Output: mountOutput, Error: nil},
	})

	exists, err := mount.IsMountPathExist("/mnt/install")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Expected /mnt/install to be reported mounted")
	}

	exists, err = mount.IsMountPathExist("/mnt/other")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("Expected /mnt/other to be reported unmounted")
	}
}
