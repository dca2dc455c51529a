package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/muesli/crunchy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/edgeforge/os-installer/internal/blockdev"
	"github.com/edgeforge/os-installer/internal/config"
	"github.com/edgeforge/os-installer/internal/diskops"
	"github.com/edgeforge/os-installer/internal/gate"
	"github.com/edgeforge/os-installer/internal/install"
	"github.com/edgeforge/os-installer/internal/pipeline"
	"github.com/edgeforge/os-installer/internal/selection"
	"github.com/edgeforge/os-installer/internal/sysprobe"
	"github.com/edgeforge/os-installer/internal/ui"
	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/slice"
)

// errAborted marks an operator-driven termination. It is a clean stop, not
// a failure, but the process still exits non-zero: exit code 0 means the
// pipeline ran to completion and nothing else.
var errAborted = errors.New("installation aborted before completion")

// createInstallCommand creates the install subcommand
func createInstallCommand() *cobra.Command {
	installCmd := &cobra.Command{
		Use:   "install",
		Short: "Run an interactive installation onto a local disk",
		RunE:  executeInstall,
	}

	return installCmd
}

func executeInstall(cmd *cobra.Command, args []string) error {
	return runInstall(ui.NewTerminalPrompter())
}

// planSession carries the outcome of the planning phase into execution:
// the frozen plan, the automatic layout if one was chosen, and the
// stage-one approvals awaiting their final confirmations.
type planSession struct {
	plan              *config.InstallPlan
	layout            *diskops.Layout
	partitionApproval gate.Approval
	formatApproval    gate.Approval
}

func runInstall(prompter ui.Prompter) error {
	log := logger.Logger()

	catalog, err := config.LoadCatalog()
	if err != nil {
		return err
	}
	devices, err := blockdev.List()
	if err != nil {
		return err
	}
	firmware := sysprobe.DetectFirmwareMode()
	virt := sysprobe.DetectVirtualization()
	log.Infof("Host probed: firmware %s, virtualization %s", firmware, virt)

	session, err := buildPlan(prompter, catalog, devices, firmware, virt)
	if errors.Is(err, gate.ErrUserAborted) || errors.Is(err, ui.ErrCancelled) {
		log.Infof("Installation aborted during planning")
		return errAborted
	}
	if err != nil {
		return err
	}

	return confirmAndRun(prompter, session, config.Global(), catalog)
}

// buildPlan drives the interactive planning phase. Nothing here touches a
// disk; the result is a validated plan plus stage-one approvals for
// whatever destructive work it implies.
func buildPlan(prompter ui.Prompter, catalog *config.Catalog, devices []blockdev.Device,
	firmware sysprobe.FirmwareMode, virt sysprobe.VirtPlatform) (*planSession, error) {

	choice, err := prompter.Select("Select install target", selection.CatalogOptions(devices))
	if err != nil {
		return nil, err
	}
	target, err := selection.Resolve(choice, devices)
	if err != nil {
		return nil, err
	}

	session := &planSession{
		plan: &config.InstallPlan{
			Target:   target,
			Firmware: firmware,
			Virt:     virt,
		},
	}
	if err := planDiskWork(prompter, session, devices); err != nil {
		return nil, err
	}
	if err := planSoftware(prompter, session, catalog); err != nil {
		return nil, err
	}
	if err := planSystem(prompter, session); err != nil {
		return nil, err
	}

	if err := session.plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan is inconsistent: %w", err)
	}
	return session, nil
}

// planDiskWork settles partitioning and formatting, collecting stage-one
// approvals for both. Declining either on a whole-disk choice aborts; the
// disk cannot be used without them.
func planDiskWork(prompter ui.Prompter, session *planSession, devices []blockdev.Device) error {
	plan := session.plan

	if plan.Target.AutoPartition == config.AutoPartitionPending {
		fs, err := chooseFilesystem(prompter)
		if err != nil {
			return err
		}
		layout, err := diskops.PlanLayout(plan.Target.DiskID, plan.Firmware, fs)
		if err != nil {
			return err
		}

		approval, err := gate.RequestApproval(prompter, gate.CategoryPartition,
			fmt.Sprintf("Disk %s will be wiped and repartitioned (%s layout, %d partitions).",
				plan.Target.DiskID, layout.Label, len(layout.Partitions)))
		if err != nil {
			return err
		}
		if !approval.Granted() {
			return gate.ErrUserAborted
		}
		formatApproval, err := gate.RequestApproval(prompter, gate.CategoryFormat,
			fmt.Sprintf("All created partitions on %s will be formatted (root as %s).",
				plan.Target.DiskID, fs))
		if err != nil {
			return err
		}
		if !formatApproval.Granted() {
			return gate.ErrUserAborted
		}

		session.layout = layout
		session.partitionApproval = approval
		session.formatApproval = formatApproval
		plan.Target.AutoPartition = config.AutoPartitionConfirmed
		plan.Target.RootPartitionPath = layout.RootDevice()
		plan.Target.EFIPartitionPath = layout.ESPDevice()
		plan.Format = config.FormatPlan{DoFormat: true, RootFilesystem: fs}
		return nil
	}

	// Existing partition: formatting is optional.
	doFormat, err := prompter.Confirm("Format root partition",
		fmt.Sprintf("Create a fresh filesystem on %s? Choosing no keeps its current contents.",
			plan.Target.RootPartitionPath))
	if err != nil {
		return err
	}
	if doFormat {
		fs, err := chooseFilesystem(prompter)
		if err != nil {
			return err
		}
		approval, err := gate.RequestApproval(prompter, gate.CategoryFormat,
			fmt.Sprintf("Partition %s will be formatted as %s.", plan.Target.RootPartitionPath, fs))
		if err != nil {
			return err
		}
		if !approval.Granted() {
			return gate.ErrUserAborted
		}
		session.formatApproval = approval
		plan.Format = config.FormatPlan{DoFormat: true, RootFilesystem: fs}
	}

	// EFI installs need an ESP; with an existing layout the operator points
	// at it.
	if plan.Firmware == sysprobe.FirmwareEFI {
		esp, err := chooseESP(prompter, devices, plan.Target.RootPartitionPath)
		if err != nil {
			return err
		}
		plan.Target.EFIPartitionPath = esp
	}
	return nil
}

func chooseFilesystem(prompter ui.Prompter) (config.Filesystem, error) {
	choice, err := prompter.Select("Root filesystem", []ui.Option{
		{Value: string(config.FilesystemExt4), Label: "ext4", Detail: "default, widely supported"},
		{Value: string(config.FilesystemBtrfs), Label: "btrfs", Detail: "snapshots and checksumming"},
		{Value: string(config.FilesystemXfs), Label: "xfs", Detail: "good for large files"},
	})
	if err != nil {
		return "", err
	}
	return config.Filesystem(choice), nil
}

func chooseESP(prompter ui.Prompter, devices []blockdev.Device, rootPath string) (string, error) {
	options := []ui.Option{}
	for _, dev := range blockdev.Partitions(devices) {
		if dev.Path == rootPath {
			continue
		}
		options = append(options, ui.Option{
			Value:  dev.Path,
			Label:  dev.Path,
			Detail: dev.SizeHuman,
		})
	}
	if len(options) == 0 {
		return "", fmt.Errorf("EFI install needs an EFI system partition, none available")
	}
	return prompter.Select("Select the EFI system partition", options)
}

// planSoftware settles kernel, desktop, audio, optional packages, drivers
// and the bootloader choice.
func planSoftware(prompter ui.Prompter, session *planSession, catalog *config.Catalog) error {
	plan := session.plan

	kernelOptions := make([]ui.Option, 0, len(catalog.Kernels))
	for _, k := range catalog.Kernels {
		kernelOptions = append(kernelOptions, ui.Option{Value: k.Variant, Label: k.Variant})
	}
	kernel, err := prompter.Select("Kernel variant", kernelOptions)
	if err != nil {
		return err
	}
	plan.KernelVariant = kernel

	desktopOptions := make([]ui.Option, 0, len(catalog.Desktops))
	for _, d := range catalog.Desktops {
		desktopOptions = append(desktopOptions, ui.Option{Value: d.Tag, Label: d.Name})
	}
	desktopTag, err := prompter.Select("Desktop environment", desktopOptions)
	if err != nil {
		return err
	}
	desktop, err := catalog.Desktop(desktopTag)
	if err != nil {
		return err
	}

	// A console-only choice carries no packages; an audio stack without a
	// desktop to play through is not offered.
	var audioPackages []string
	if len(desktop.Packages) > 0 {
		audioOptions := make([]ui.Option, 0, len(catalog.Audio))
		for _, a := range catalog.Audio {
			audioOptions = append(audioOptions, ui.Option{Value: a.Tag, Label: a.Tag})
		}
		audioTag, err := prompter.Select("Audio stack", audioOptions)
		if err != nil {
			return err
		}
		audioPackages, err = catalog.AudioPackages(audioTag)
		if err != nil {
			return err
		}
	}

	optionalPackages, err := chooseOptional(prompter, catalog)
	if err != nil {
		return err
	}

	plan.Packages = config.PackageSelection{
		DesktopTag:       desktopTag,
		DesktopPackages:  desktop.Packages,
		AudioPackages:    audioPackages,
		OptionalPackages: optionalPackages,
		DisplayManager:   desktop.DisplayManager,
	}

	nvidia, err := prompter.Confirm("NVIDIA driver",
		"Install the proprietary NVIDIA driver matching the chosen kernel?")
	if err != nil {
		return err
	}
	plan.InstallNvidia = nvidia

	if plan.Firmware == sysprobe.FirmwareEFI {
		loader, err := prompter.Select("Bootloader", []ui.Option{
			{Value: string(config.BootloaderSystemdBoot), Label: "systemd-boot", Detail: "simple, EFI only"},
			{Value: string(config.BootloaderGrub), Label: "GRUB", Detail: "flexible, multi-boot"},
		})
		if err != nil {
			return err
		}
		plan.Bootloader = config.BootloaderChoice(loader)
	} else {
		plan.Bootloader = config.BootloaderGrub
	}
	return nil
}

// chooseOptional reads a comma-separated tag list and validates it against
// the catalog, re-prompting on typos so they surface now and not
// mid-install.
func chooseOptional(prompter ui.Prompter, catalog *config.Catalog) ([]string, error) {
	available := make([]string, 0, len(catalog.Optional))
	for _, o := range catalog.Optional {
		available = append(available, o.Tag)
	}
	label := fmt.Sprintf("Optional packages, comma separated (available: %s; empty for none)",
		strings.Join(available, ", "))

	for {
		answer, err := prompter.Input(label, "")
		if err != nil {
			return nil, err
		}
		tags := slice.Dedup(slice.SplitCSV(answer))
		packages, err := catalog.OptionalPackages(tags)
		if err != nil {
			if displayErr := prompter.Display("Invalid selection", err.Error()); displayErr != nil {
				return nil, displayErr
			}
			continue
		}
		return packages, nil
	}
}

// planSystem collects hostname, timezone, locale and the user account.
// Passwords are checked for strength before they are accepted.
func planSystem(prompter ui.Prompter, session *planSession) error {
	plan := session.plan

	hostname, err := prompter.Input("Hostname", "edge")
	if err != nil {
		return err
	}
	timezone, err := prompter.Input("Timezone", "UTC")
	if err != nil {
		return err
	}
	locale, err := prompter.Input("Locale", "en_US.UTF-8")
	if err != nil {
		return err
	}
	username, err := prompter.Input("Username", "")
	if err != nil {
		return err
	}

	var userPassword, rootPassword string
	if username != "" {
		userPassword, err = promptPassword(prompter, fmt.Sprintf("Password for %s", username))
		if err != nil {
			return err
		}
	}
	rootPassword, err = promptPassword(prompter, "Root password")
	if err != nil {
		return err
	}

	plan.System = config.SystemSettings{
		Hostname:     hostname,
		Timezone:     timezone,
		Locale:       locale,
		Username:     username,
		UserPassword: userPassword,
		RootPassword: rootPassword,
	}
	return nil
}

const passwordAttempts = 3

// promptPassword asks for a password twice and rejects weak ones. Three
// failed attempts end planning rather than looping forever on a console
// that might be unattended.
func promptPassword(prompter ui.Prompter, label string) (string, error) {
	validator := crunchy.NewValidator()

	for attempt := 0; attempt < passwordAttempts; attempt++ {
		password, err := prompter.Password(label)
		if err != nil {
			return "", err
		}
		if err := validator.Check(password); err != nil {
			if displayErr := prompter.Display("Weak password", err.Error()); displayErr != nil {
				return "", displayErr
			}
			continue
		}
		confirm, err := prompter.Password(label + " (again)")
		if err != nil {
			return "", err
		}
		if password != confirm {
			if displayErr := prompter.Display("Password mismatch", "The passwords do not match."); displayErr != nil {
				return "", displayErr
			}
			continue
		}
		return password, nil
	}
	return "", fmt.Errorf("no acceptable password after %d attempts", passwordAttempts)
}

// confirmAndRun shows the frozen plan, runs the final destructive
// confirmations, and executes the pipeline.
func confirmAndRun(prompter ui.Prompter, session *planSession, cfg *config.GlobalConfig, catalog *config.Catalog) error {
	log := logger.Logger()
	plan := session.plan

	confirmed, err := prompter.Confirm("Review install plan", plan.Summary())
	if err != nil {
		return err
	}
	if !confirmed {
		log.Infof("Installation aborted at plan review")
		return errAborted
	}

	var partitionToken, formatToken gate.Token
	if session.layout != nil {
		partitionToken, err = gate.Confirm(prompter, session.partitionApproval, session.layout.Devices())
		if err != nil {
			return abortOrErr(err, log)
		}
		formatToken, err = gate.Confirm(prompter, session.formatApproval, session.layout.Devices()[1:])
		if err != nil {
			return abortOrErr(err, log)
		}
	} else if plan.Format.DoFormat {
		formatToken, err = gate.Confirm(prompter, session.formatApproval,
			[]string{plan.Target.RootPartitionPath})
		if err != nil {
			return abortOrErr(err, log)
		}
	}

	inst := install.New(plan, cfg, catalog)
	inst.SetLayout(session.layout)
	inst.SetTokens(partitionToken, formatToken)

	result := pipeline.Run(inst.Stages(), true)
	if err := prompter.Display(fmt.Sprintf("Installation %s", result.State), result.Summary()); err != nil {
		log.Warnf("Could not display summary: %v", err)
	}
	log.Infof("Run finished: %s", result.State)

	switch result.State {
	case pipeline.StateCompleted:
		return nil
	case pipeline.StateAborted:
		return errAborted
	default:
		return result.Err
	}
}

func abortOrErr(err error, log *zap.SugaredLogger) error {
	if errors.Is(err, gate.ErrUserAborted) {
		log.Infof("Installation aborted at final confirmation")
		return errAborted
	}
	return err
}
