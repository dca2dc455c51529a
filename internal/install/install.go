// Package install implements the install stages the pipeline runs: mount,
// base bootstrap, package installation, system configuration, drivers, and
// finalization. Partitioning and formatting live in diskops; this package
// wires them into stages with their gate tokens.
package install

import (
	"fmt"
	"time"

	"github.com/edgeforge/os-installer/internal/bootloader"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/diskops"
	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/pipeline"
	"github.com/edgeforge/os-installer/internal/sysprobe"
)

// MountError means the target could not be mounted or the mount could not
// be proven live. Always fatal; nothing may install into an unmounted path.
type MountError struct {
	Device     string
	MountPoint string
	Err        error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("failed to mount %s at %s: %v", e.Device, e.MountPoint, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// BootstrapError means the base system could not be placed into the target.
type BootstrapError struct {
	Step string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("base bootstrap failed at %s: %v", e.Step, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// ConfigurationError means a required configuration step failed inside the
// target.
type ConfigurationError struct {
	Step string
	Err  error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration failed at %s: %v", e.Step, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Installer owns one run: the frozen plan, the installer configuration,
// the package catalog, and the gate tokens minted at final confirmation.
type Installer struct {
	plan    *config.InstallPlan
	cfg     *config.GlobalConfig
	catalog *config.Catalog

	layout         *diskops.Layout
	partitionToken gate.Token
	formatToken    gate.Token

	// rootUUID is read back after formatting for fstab generation.
	rootUUID string
	espUUID  string
}

func New(plan *config.InstallPlan, cfg *config.GlobalConfig, catalog *config.Catalog) *Installer {
	return &Installer{plan: plan, cfg: cfg, catalog: catalog}
}

// SetLayout attaches the automatic partition layout. Nil means the operator
// chose an existing partition.
func (inst *Installer) SetLayout(layout *diskops.Layout) {
	inst.layout = layout
}

// SetTokens attaches the gate tokens minted during final confirmation.
func (inst *Installer) SetTokens(partition, format gate.Token) {
	inst.partitionToken = partition
	inst.formatToken = format
}

// MountRoot is where the target filesystem is mounted for the whole run.
func (inst *Installer) MountRoot() string {
	return inst.cfg.MountRoot
}

// Stages returns the ordered pipeline. Order is load-bearing: each stage
// assumes everything before it has run.
func (inst *Installer) Stages() []pipeline.Stage {
	return []pipeline.Stage{
		{
			Name:     "partition",
			Required: true,
			Skip:     inst.skipPartition,
			Run:      inst.runPartition,
		},
		{
			Name:     "format",
			Required: true,
			Skip:     inst.skipFormat,
			Run:      inst.runFormat,
		},
		{
			Name:     "mount",
			Required: true,
			Run:      inst.runMount,
		},
		{
			Name:     "bootstrap-base",
			Required: true,
			Run:      inst.runBootstrapBase,
		},
		{
			Name:     "desktop-audio",
			Required: true,
			Skip:     inst.skipDesktopAndAudio,
			Run:      inst.runDesktopAndAudio,
		},
		{
			Name:     "optional-packages",
			Required: false,
			Skip:     inst.skipOptionalPackages,
			Run:      inst.runOptionalPackages,
		},
		{
			Name:     "configure",
			Required: true,
			Run:      inst.runConfigure,
		},
		{
			Name:     "nvidia-driver",
			Required: false,
			Skip:     inst.skipNvidia,
			Run:      inst.runNvidia,
		},
		{
			Name:     "guest-tools",
			Required: false,
			Skip:     inst.skipGuestTools,
			Run:      inst.runGuestTools,
		},
		{
			Name:     "bootloader",
			Required: false,
			Run:      inst.runBootloader,
		},
		{
			Name:     "display-manager",
			Required: false,
			Skip:     inst.skipDisplayManager,
			Run:      inst.runDisplayManager,
		},
		{
			Name:     "finalize",
			Required: false,
			Run:      inst.runFinalize,
		},
	}
}

func (inst *Installer) skipPartition() (bool, string) {
	if inst.plan.Target.AutoPartition != config.AutoPartitionConfirmed {
		return true, "using existing partitions"
	}
	return false, ""
}

func (inst *Installer) skipFormat() (bool, string) {
	if !inst.plan.Format.DoFormat {
		return true, "formatting not requested"
	}
	return false, ""
}

func (inst *Installer) skipDesktopAndAudio() (bool, string) {
	if len(inst.plan.Packages.DesktopPackages)+len(inst.plan.Packages.AudioPackages) == 0 {
		return true, "console-only selection"
	}
	return false, ""
}

func (inst *Installer) skipOptionalPackages() (bool, string) {
	if len(inst.plan.Packages.OptionalPackages) == 0 {
		return true, "none selected"
	}
	return false, ""
}

func (inst *Installer) skipNvidia() (bool, string) {
	if !inst.plan.InstallNvidia {
		return true, "not requested"
	}
	return false, ""
}

func (inst *Installer) skipGuestTools() (bool, string) {
	if inst.plan.Virt == sysprobe.VirtNone {
		return true, "bare metal host"
	}
	if inst.catalog.GuestToolPackages(inst.plan.Virt) == nil {
		return true, fmt.Sprintf("no guest tools for %s", inst.plan.Virt)
	}
	return false, ""
}

func (inst *Installer) skipDisplayManager() (bool, string) {
	if inst.plan.Packages.DisplayManager == "" {
		return true, "no display manager selected"
	}
	return false, ""
}

func (inst *Installer) runBootloader() error {
	return bootloader.Install(inst.plan, inst.MountRoot())
}

func (inst *Installer) deviceWait() (int, time.Duration) {
	return inst.cfg.DeviceWait.Attempts, inst.cfg.DeviceWaitDelay()
}
