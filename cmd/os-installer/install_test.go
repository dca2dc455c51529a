package main

import (
	"errors"
	"testing"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/ui"
)

const strongPassword = "correct horse battery staple 42"

func planningCatalog(t *testing.T) *config.Catalog {
	t.Helper()
	cat, err := config.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func planningDevices() []blockdev.Device {
	return []blockdev.Device{
		{Path: "/dev/sda", SizeHuman: "477G", Kind: "disk"},
		{Path: "/dev/sda1", SizeHuman: "512M", Kind: "part"},
		{Path: "/dev/sda2", SizeHuman: "476.5G", Kind: "part"},
		{Path: "/dev/nvme0n1", SizeHuman: "1T", Kind: "disk"},
	}
}

func TestBuildPlanWholeDiskEFI(t *testing.T) {
	prompter := &ui.MockPrompter{
		Selections: []string{"/dev/nvme0n1", "ext4", "linux", "gnome", "pipewire", "systemd-boot"},
		Confirms:   []bool{true, true, false}, // partition, format, nvidia
		Inputs:     []string{"git, docker", "edge01", "Europe/Berlin", "en_US.UTF-8", "ops"},
		Passwords:  []string{strongPassword, strongPassword, strongPassword, strongPassword},
	}

	session, err := buildPlan(prompter, planningCatalog(t), planningDevices(),
		sysprobe.FirmwareEFI, sysprobe.VirtNone)
	if err != nil {
		t.Fatalf("Expected plan, got: %v", err)
	}

	plan := session.plan
	if plan.Target.AutoPartition != config.AutoPartitionConfirmed {
		t.Error("Whole-disk choice must confirm auto partitioning")
	}
	if plan.Target.RootPartitionPath != "/dev/nvme0n1p2" || plan.Target.EFIPartitionPath != "/dev/nvme0n1p1" {
		t.Errorf("Unexpected partition paths: %+v", plan.Target)
	}
	if session.layout == nil {
		t.Fatal("Expected a planned layout")
	}
	if !plan.Format.DoFormat || plan.Format.RootFilesystem != config.FilesystemExt4 {
		t.Errorf("Unexpected format plan: %+v", plan.Format)
	}
	if plan.Bootloader != config.BootloaderSystemdBoot {
		t.Errorf("Unexpected bootloader: %s", plan.Bootloader)
	}
	if len(plan.Packages.OptionalPackages) != 3 { // git + docker + docker-compose
		t.Errorf("Unexpected optional packages: %v", plan.Packages.OptionalPackages)
	}
	if plan.System.Username != "ops" || plan.System.UserPassword != strongPassword {
		t.Errorf("Unexpected user settings: %+v", plan.System)
	}
	if !session.partitionApproval.Granted() || !session.formatApproval.Granted() {
		t.Error("Stage-one approvals must be recorded")
	}
}

func TestBuildPlanExistingPartitionNoFormat(t *testing.T) {
	prompter := &ui.MockPrompter{
		Selections: []string{"/dev/sda2", "linux-lts", "none"},
		Confirms:   []bool{false, false}, // format, nvidia
		Inputs:     []string{"", "edge03", "UTC", "en_US.UTF-8", ""},
		Passwords:  []string{strongPassword, strongPassword}, // root only
	}

	session, err := buildPlan(prompter, planningCatalog(t), planningDevices(),
		sysprobe.FirmwareBIOS, sysprobe.VirtNone)
	if err != nil {
		t.Fatalf("Expected plan, got: %v", err)
	}

	plan := session.plan
	if plan.Target.RootPartitionPath != "/dev/sda2" || plan.Target.DiskID != "/dev/sda" {
		t.Errorf("Unexpected target: %+v", plan.Target)
	}
	if plan.Format.DoFormat {
		t.Error("Format must stay off when declined")
	}
	if session.layout != nil {
		t.Error("No layout may exist for an existing partition")
	}
	// BIOS installs never ask: GRUB is the only option.
	if plan.Bootloader != config.BootloaderGrub {
		t.Errorf("Unexpected bootloader: %s", plan.Bootloader)
	}
	if plan.System.Username != "" || plan.System.RootPassword != strongPassword {
		t.Errorf("Unexpected system settings: %+v", plan.System)
	}
	// Console-only: nothing to install for desktop or audio, and the audio
	// prompt is never shown.
	if len(plan.Packages.DesktopPackages) != 0 || len(plan.Packages.AudioPackages) != 0 {
		t.Errorf("Console-only selection must resolve no packages: %+v", plan.Packages)
	}
	for _, title := range prompter.PromptLog {
		if title == "Audio stack" {
			t.Error("Audio prompt must not be shown for a console-only target")
		}
	}
}

func TestBuildPlanAbortsWhenPartitionApprovalDeclined(t *testing.T) {
	prompter := &ui.MockPrompter{
		Selections: []string{"/dev/sda", "ext4"},
		Confirms:   []bool{false}, // partition approval declined
	}

	_, err := buildPlan(prompter, planningCatalog(t), planningDevices(),
		sysprobe.FirmwareBIOS, sysprobe.VirtNone)
	if !errors.Is(err, gate.ErrUserAborted) {
		t.Fatalf("Expected ErrUserAborted, got: %v", err)
	}
}

func TestBuildPlanRepromptsOnBadOptionalTags(t *testing.T) {
	prompter := &ui.MockPrompter{
		Selections: []string{"/dev/sda2", "linux", "xfce", "pipewire"},
		Confirms:   []bool{false, false},
		Inputs:     []string{"netscape", "git", "edge04", "UTC", "en_US.UTF-8", ""},
		Passwords:  []string{strongPassword, strongPassword},
	}

	session, err := buildPlan(prompter, planningCatalog(t), planningDevices(),
		sysprobe.FirmwareBIOS, sysprobe.VirtNone)
	if err != nil {
		t.Fatalf("Expected plan after re-prompt, got: %v", err)
	}
	if len(session.plan.Packages.OptionalPackages) != 1 || session.plan.Packages.OptionalPackages[0] != "git" {
		t.Errorf("Unexpected optional packages: %v", session.plan.Packages.OptionalPackages)
	}
	// The typo produced an explanatory message before the second attempt.
	if len(prompter.Messages) == 0 {
		t.Error("Expected an invalid-selection message")
	}
}

func TestPromptPasswordRejectsWeakThenAccepts(t *testing.T) {
	prompter := &ui.MockPrompter{
		Passwords: []string{"abc", strongPassword, strongPassword},
	}

	password, err := promptPassword(prompter, "Root password")
	if err != nil {
		t.Fatalf("Expected password, got: %v", err)
	}
	if password != strongPassword {
		t.Errorf("Unexpected password returned")
	}
	if len(prompter.Messages) == 0 {
		t.Error("Weak password should produce an explanation")
	}
}

func TestPromptPasswordMismatchEventuallyFails(t *testing.T) {
	prompter := &ui.MockPrompter{
		Passwords: []string{
			strongPassword, "different but also long 42",
			strongPassword, "still not matching 42",
			strongPassword, "nope nope nope nope 42",
		},
	}

	if _, err := promptPassword(prompter, "Root password"); err == nil {
		t.Fatal("Expected failure after repeated mismatches")
	}
}

// Exit code 0 is reserved for a completed run: declining the plan review
// must surface as an error to the caller.
func TestDeclinedPlanReviewIsNotASuccess(t *testing.T) {
	cfg, err := config.LoadGlobalConfig("")
	if err != nil {
		t.Fatal(err)
	}
	prompter := &ui.MockPrompter{Confirms: []bool{false}} // review declined
	session := &planSession{plan: &config.InstallPlan{
		Target:        config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
		KernelVariant: "linux",
		Bootloader:    config.BootloaderGrub,
	}}

	err = confirmAndRun(prompter, session, cfg, planningCatalog(t))
	if !errors.Is(err, errAborted) {
		t.Fatalf("Expected abort error, got: %v", err)
	}
}

func TestDeclinedFinalConfirmationIsNotASuccess(t *testing.T) {
	cfg, err := config.LoadGlobalConfig("")
	if err != nil {
		t.Fatal(err)
	}
	approvalPrompter := &ui.MockPrompter{Confirms: []bool{true}}
	approval, err := gate.RequestApproval(approvalPrompter, gate.CategoryFormat, "format /dev/sda2")
	if err != nil {
		t.Fatal(err)
	}

	prompter := &ui.MockPrompter{Confirms: []bool{true, false}} // review yes, final confirmation no
	session := &planSession{
		plan: &config.InstallPlan{
			Target:        config.TargetSpec{DiskID: "/dev/sda", RootPartitionPath: "/dev/sda2"},
			Format:        config.FormatPlan{DoFormat: true, RootFilesystem: config.FilesystemExt4},
			KernelVariant: "linux",
			Bootloader:    config.BootloaderGrub,
		},
		formatApproval: approval,
	}

	err = confirmAndRun(prompter, session, cfg, planningCatalog(t))
	if !errors.Is(err, errAborted) {
		t.Fatalf("Expected abort error, got: %v", err)
	}
}
