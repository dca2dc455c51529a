package install

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/diskops"
	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/pipeline"
	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/ui"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

const (
	rootUUID = "f4b2a1c8-8a1e-4f6a-9c3d-2b7e8d9f0a1b"
	espUUID  = "A1B2-C3D4"
)

func withMock(t *testing.T, commands []shell.MockCommand) *shell.MockExecutor {
	t.Helper()
	original := shell.Default
	t.Cleanup(func() { shell.Default = original })
	mock := shell.NewMockExecutor(commands)
	shell.Default = mock
	return mock
}

func stubHostChecks(t *testing.T) {
	t.Helper()
	originalVerify := verifyMounted
	originalStat := statTargetPath
	originalDevStat := blockdev.Stat
	t.Cleanup(func() {
		verifyMounted = originalVerify
		statTargetPath = originalStat
		blockdev.Stat = originalDevStat
	})
	verifyMounted = func(mountPoint string) (bool, error) { return true, nil }
	statTargetPath = func(path string) (os.FileInfo, error) { return nil, nil }
	blockdev.Stat = func(path string) (os.FileInfo, error) { return nil, nil }
}

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	cfg, err := config.LoadGlobalConfig("")
	if err != nil {
		t.Fatal(err)
	}
	// The mount root must exist: chrooted commands verify the path.
	cfg.MountRoot = t.TempDir()
	cfg.DeviceWait.Attempts = 1
	cfg.DeviceWait.DelayMs = 1
	return cfg
}

func testCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	cat, err := config.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func mintToken(t *testing.T, category gate.Category, devices []string) gate.Token {
	t.Helper()
	prompter := &ui.MockPrompter{Confirms: []bool{true, true}}
	approval, err := gate.RequestApproval(prompter, category, "test")
	if err != nil {
		t.Fatal(err)
	}
	token, err := gate.Confirm(prompter, approval, devices)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func resolvePackages(t *testing.T, cat *config.Catalog, plan *config.InstallPlan, desktopTag, audioTag string, optional []string) {
	t.Helper()
	desktop, err := cat.Desktop(desktopTag)
	if err != nil {
		t.Fatal(err)
	}
	// An empty audio tag mirrors planning: console-only targets are never
	// asked for an audio stack.
	var audio []string
	if audioTag != "" {
		audio, err = cat.AudioPackages(audioTag)
		if err != nil {
			t.Fatal(err)
		}
	}
	opt, err := cat.OptionalPackages(optional)
	if err != nil {
		t.Fatal(err)
	}
	plan.Packages = config.PackageSelection{
		DesktopTag:       desktopTag,
		DesktopPackages:  desktop.Packages,
		AudioPackages:    audio,
		OptionalPackages: opt,
		DisplayManager:   desktop.DisplayManager,
	}
}

func TestBuildFstab(t *testing.T) {
	fstab := buildFstab(rootUUID, "ext4", espUUID)
	if !strings.Contains(fstab, "UUID="+rootUUID+"\t/\text4") {
		t.Errorf("fstab missing root entry:\n%s", fstab)
	}
	if !strings.Contains(fstab, "UUID="+espUUID+"\t/boot\tvfat") {
		t.Errorf("fstab missing ESP entry:\n%s", fstab)
	}
	if strings.Contains(fstab, "/dev/") {
		t.Errorf("fstab must reference UUIDs only:\n%s", fstab)
	}

	biosFstab := buildFstab(rootUUID, "btrfs", "")
	if strings.Contains(biosFstab, "/boot") {
		t.Errorf("fstab must not carry an ESP entry without one:\n%s", biosFstab)
	}
}

func TestRunMountFailsWhenNotLive(t *testing.T) {
	withMock(t, nil)
	originalVerify := verifyMounted
	t.Cleanup(func() { verifyMounted = originalVerify })
	verifyMounted = func(mountPoint string) (bool, error) { return false, nil }

	plan := &config.InstallPlan{
		Target: config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
	}
	inst := New(plan, testConfig(t), testCatalog(t))

	err := inst.runMount()
	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("Expected *MountError, got %T: %v", err, err)
	}
	if mountErr.Device != "/dev/sda2" {
		t.Errorf("Unexpected device in error: %s", mountErr.Device)
	}
}

func TestBootstrapPopulationCheck(t *testing.T) {
	withMock(t, []shell.MockCommand{
		{Pattern: "blkid", Output: rootUUID + "\n", Error: nil},
	})
	originalStat := statTargetPath
	t.Cleanup(func() { statTargetPath = originalStat })
	statTargetPath = func(path string) (os.FileInfo, error) { return nil, os.ErrNotExist }

	plan := &config.InstallPlan{
		Target:        config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
		KernelVariant: "linux",
	}
	inst := New(plan, testConfig(t), testCatalog(t))

	err := inst.runBootstrapBase()
	var bootErr *BootstrapError
	if !errors.As(err, &bootErr) {
		t.Fatalf("Expected *BootstrapError, got %T: %v", err, err)
	}
	if bootErr.Step != "population check" {
		t.Errorf("Unexpected step: %s", bootErr.Step)
	}
}

func TestOptionalPackagesContinuePastFailures(t *testing.T) {
	mock := withMock(t, []shell.MockCommand{
		{Pattern: "--needed firefox", Output: "", Error: fmt.Errorf("mirror unreachable")},
	})

	plan := &config.InstallPlan{
		Target: config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
		Packages: config.PackageSelection{
			OptionalPackages: []string{"firefox", "git", "docker"},
		},
	}
	inst := New(plan, testConfig(t), testCatalog(t))

	err := inst.runOptionalPackages()
	if err == nil {
		t.Fatal("Expected aggregated failure")
	}
	if !strings.Contains(err.Error(), "firefox") || strings.Contains(err.Error(), "git") {
		t.Errorf("Error should name only the failed package: %v", err)
	}
	// The remaining packages still got their install attempts.
	if len(mock.CallsMatching("--needed git")) != 1 || len(mock.CallsMatching("--needed docker")) != 1 {
		t.Errorf("Later packages must still be attempted: %v", mock.Calls())
	}
}

func TestConfigurePasswordsTravelViaStdin(t *testing.T) {
	mock := withMock(t, nil)

	plan := &config.InstallPlan{
		Target: config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
		System: config.SystemSettings{
			Hostname:     "edge01",
			Timezone:     "Europe/Berlin",
			Locale:       "en_US.UTF-8",
			Username:     "ops",
			UserPassword: "correct horse battery staple",
			RootPassword: "another strong one",
		},
	}
	inst := New(plan, testConfig(t), testCatalog(t))

	if err := inst.runConfigure(); err != nil {
		t.Fatalf("Expected configure to succeed, got: %v", err)
	}
	for _, call := range mock.Calls() {
		if strings.Contains(call, "correct horse") || strings.Contains(call, "another strong") {
			t.Errorf("Password leaked onto a command line: %s", call)
		}
	}
	if len(mock.CallsMatching("chpasswd")) != 2 {
		t.Errorf("Expected two chpasswd calls, got: %v", mock.CallsMatching("chpasswd"))
	}
	if len(mock.CallsMatching("useradd -m -G wheel")) != 1 {
		t.Errorf("Expected wheel user creation, got: %v", mock.Calls())
	}
	if len(mock.CallsMatching("ln -sf /usr/share/zoneinfo/Europe/Berlin")) != 1 {
		t.Errorf("Expected timezone link, got: %v", mock.Calls())
	}
}

// Whole-disk BIOS install: MS-DOS label, single bootable root, GRUB onto
// the whole disk.
func TestScenarioBIOSWholeDisk(t *testing.T) {
	mock := withMock(t, []shell.MockCommand{
		{Pattern: "value /dev/sda1", Output: rootUUID + "\n", Error: nil},
	})
	stubHostChecks(t)

	cfg := testConfig(t)
	cat := testCatalog(t)
	plan := &config.InstallPlan{
		Target:        config.TargetSpec{DiskID: "/dev/sda", AutoPartition: config.AutoPartitionConfirmed},
		Firmware:      sysprobe.FirmwareBIOS,
		Virt:          sysprobe.VirtNone,
		Format:        config.FormatPlan{DoFormat: true, RootFilesystem: config.FilesystemExt4},
		KernelVariant: "linux",
		Bootloader:    config.BootloaderGrub,
		System:        config.SystemSettings{Hostname: "edge01", Timezone: "UTC", Locale: "en_US.UTF-8"},
	}
	resolvePackages(t, cat, plan, "xfce", "pipewire", nil)
	if err := plan.Validate(); err != nil {
		t.Fatal(err)
	}

	layout, err := diskops.PlanLayout(plan.Target.DiskID, plan.Firmware, plan.Format.RootFilesystem)
	if err != nil {
		t.Fatal(err)
	}
	inst := New(plan, cfg, cat)
	inst.SetLayout(layout)
	inst.SetTokens(
		mintToken(t, gate.CategoryPartition, layout.Devices()),
		mintToken(t, gate.CategoryFormat, layout.Devices()[1:]),
	)

	result := pipeline.Run(inst.Stages(), false)
	if result.State != pipeline.StateCompleted {
		t.Fatalf("State = %v, expected completed:\n%s", result.State, result.Summary())
	}
	if len(mock.CallsMatching("sfdisk /dev/sda")) != 1 {
		t.Errorf("Expected one sfdisk call: %v", mock.CallsMatching("sfdisk"))
	}
	if len(mock.CallsMatching("mkfs -t ext4 -F /dev/sda1")) != 1 {
		t.Errorf("Expected root format on /dev/sda1: %v", mock.CallsMatching("mkfs"))
	}
	grub := mock.CallsMatching("grub-install")
	if len(grub) != 1 || !strings.Contains(grub[0], "--target=i386-pc /dev/sda") {
		t.Errorf("GRUB must land on the whole disk: %v", grub)
	}
	if len(mock.CallsMatching("--needed grub")) != 1 {
		t.Errorf("The grub package must be installed into the target: %v", mock.Calls())
	}
	if len(mock.CallsMatching("bootctl")) != 0 {
		t.Errorf("No systemd-boot on a BIOS install: %v", mock.Calls())
	}
	if plan.Target.RootPartitionPath != "/dev/sda1" {
		t.Errorf("Plan not updated with created partition: %s", plan.Target.RootPartitionPath)
	}
}

// Whole-disk EFI install on NVMe: GPT with ESP p1 and root p2, NVMe
// partition naming, systemd-boot.
func TestScenarioEFINvme(t *testing.T) {
	mock := withMock(t, []shell.MockCommand{
		{Pattern: "value /dev/nvme0n1p1", Output: espUUID + "\n", Error: nil},
		{Pattern: "value /dev/nvme0n1p2", Output: rootUUID + "\n", Error: nil},
	})
	stubHostChecks(t)

	cfg := testConfig(t)
	cat := testCatalog(t)
	plan := &config.InstallPlan{
		Target:        config.TargetSpec{DiskID: "/dev/nvme0n1", AutoPartition: config.AutoPartitionConfirmed},
		Firmware:      sysprobe.FirmwareEFI,
		Virt:          sysprobe.VirtKVM,
		Format:        config.FormatPlan{DoFormat: true, RootFilesystem: config.FilesystemExt4},
		KernelVariant: "linux-lts",
		Bootloader:    config.BootloaderSystemdBoot,
		System:        config.SystemSettings{Hostname: "edge02", Timezone: "UTC", Locale: "en_US.UTF-8"},
	}
	resolvePackages(t, cat, plan, "gnome", "pipewire", []string{"git"})

	layout, err := diskops.PlanLayout(plan.Target.DiskID, plan.Firmware, plan.Format.RootFilesystem)
	if err != nil {
		t.Fatal(err)
	}
	inst := New(plan, cfg, cat)
	inst.SetLayout(layout)
	inst.SetTokens(
		mintToken(t, gate.CategoryPartition, layout.Devices()),
		mintToken(t, gate.CategoryFormat, layout.Devices()[1:]),
	)

	result := pipeline.Run(inst.Stages(), false)
	if result.State != pipeline.StateCompleted {
		t.Fatalf("State = %v, expected completed:\n%s", result.State, result.Summary())
	}
	if len(mock.CallsMatching("mkfs -t vfat -F 32 /dev/nvme0n1p1")) != 1 {
		t.Errorf("Expected ESP format: %v", mock.CallsMatching("mkfs"))
	}
	if len(mock.CallsMatching("mkfs -t ext4 -F /dev/nvme0n1p2")) != 1 {
		t.Errorf("Expected root format: %v", mock.CallsMatching("mkfs"))
	}
	if len(mock.CallsMatching("bootctl")) != 1 {
		t.Errorf("Expected systemd-boot install: %v", mock.Calls())
	}
	if len(mock.CallsMatching("grub-install")) != 0 {
		t.Errorf("No GRUB on a systemd-boot install: %v", mock.Calls())
	}
	// Guest tools for the detected hypervisor.
	if len(mock.CallsMatching("qemu-guest-agent")) == 0 {
		t.Errorf("Expected KVM guest tools: %v", mock.Calls())
	}
	if plan.Target.EFIPartitionPath != "/dev/nvme0n1p1" {
		t.Errorf("Plan not updated with ESP path: %s", plan.Target.EFIPartitionPath)
	}
}

// Existing partition, no format requested: zero partitioning or formatting
// commands may run, and fstab must state the filesystem the partition
// actually carries.
func TestScenarioExistingPartitionNoFormat(t *testing.T) {
	mock := withMock(t, []shell.MockCommand{
		{Pattern: "UUID -o value /dev/sda2", Output: rootUUID + "\n", Error: nil},
		{Pattern: "TYPE -o value /dev/sda2", Output: "btrfs\n", Error: nil},
	})
	stubHostChecks(t)

	cfg := testConfig(t)
	cat := testCatalog(t)
	plan := &config.InstallPlan{
		Target: config.TargetSpec{
			DiskID:            "/dev/sda",
			RootPartitionPath: "/dev/sda2",
			AutoPartition:     config.AutoPartitionNo,
		},
		Firmware:      sysprobe.FirmwareBIOS,
		Virt:          sysprobe.VirtNone,
		Format:        config.FormatPlan{DoFormat: false},
		KernelVariant: "linux",
		Bootloader:    config.BootloaderGrub,
		System:        config.SystemSettings{Hostname: "edge03", Timezone: "UTC", Locale: "en_US.UTF-8"},
	}
	resolvePackages(t, cat, plan, "none", "", nil)

	inst := New(plan, cfg, cat)
	// No layout, no tokens: nothing destructive was authorized.

	result := pipeline.Run(inst.Stages(), false)
	if result.State != pipeline.StateCompleted {
		t.Fatalf("State = %v, expected completed:\n%s", result.State, result.Summary())
	}
	if calls := mock.CallsMatching("mkfs"); len(calls) != 0 {
		t.Errorf("No format commands may run: %v", calls)
	}
	if calls := mock.CallsMatching("sfdisk"); len(calls) != 0 {
		t.Errorf("No partitioning commands may run: %v", calls)
	}
	if calls := mock.CallsMatching("wipefs"); len(calls) != 0 {
		t.Errorf("No wipe commands may run: %v", calls)
	}
	// The first two stages were skipped, with reasons.
	if result.Outcomes[0].Status != pipeline.StatusSkipped || result.Outcomes[1].Status != pipeline.StatusSkipped {
		t.Errorf("Partition and format stages must be skipped:\n%s", result.Summary())
	}
	// Console-only selection: no desktop or audio packages to install.
	if result.Outcomes[4].Stage != "desktop-audio" || result.Outcomes[4].Status != pipeline.StatusSkipped {
		t.Errorf("Desktop-audio stage must be skipped:\n%s", result.Summary())
	}
	// The only in-target package install is GRUB's.
	if calls := mock.CallsMatching("pacman -S"); len(calls) != 1 || !strings.Contains(calls[0], "grub") {
		t.Errorf("Expected only the grub package install, got: %v", calls)
	}
	// The unformatted root keeps its filesystem; fstab must name it.
	fstabs := mock.InputsMatching("tee /etc/fstab")
	if len(fstabs) != 1 {
		t.Fatalf("Expected one fstab write, got: %v", fstabs)
	}
	if !strings.Contains(fstabs[0], "UUID="+rootUUID+"\t/\tbtrfs") {
		t.Errorf("fstab must carry the read-back filesystem type:\n%s", fstabs[0])
	}
	if strings.Contains(fstabs[0], "ext4") {
		t.Errorf("fstab must not guess ext4 for an unformatted root:\n%s", fstabs[0])
	}
}
