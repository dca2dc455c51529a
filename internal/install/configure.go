package install

import (
	"fmt"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// runConfigure applies the base system configuration inside the target.
// Clock sync and network enablement are best-effort; everything else is
// required, because a system without users or an initramfs is unusable.
func (inst *Installer) runConfigure() error {
	log := logger.Logger()
	root := inst.MountRoot()
	sys := inst.plan.System

	// Timezone and clock.
	tzCmd := fmt.Sprintf("ln -sf /usr/share/zoneinfo/%s /etc/localtime", sys.Timezone)
	if _, err := shell.ExecCmd(tzCmd, false, root, nil); err != nil {
		return &ConfigurationError{Step: "timezone", Err: err}
	}
	if _, err := shell.ExecCmd("hwclock --systohc", false, root, nil); err != nil {
		log.Warnf("Hardware clock sync failed, continuing: %v", err)
	}

	// Locale.
	sedCmd := fmt.Sprintf("sed -i 's/^#%s/%s/' /etc/locale.gen", sys.Locale, sys.Locale)
	if _, err := shell.ExecCmd(sedCmd, false, root, nil); err != nil {
		return &ConfigurationError{Step: "locale.gen", Err: err}
	}
	if _, err := shell.ExecCmd("locale-gen", false, root, nil); err != nil {
		return &ConfigurationError{Step: "locale-gen", Err: err}
	}
	if err := inst.writeTargetFile("/etc/locale.conf", fmt.Sprintf("LANG=%s\n", sys.Locale)); err != nil {
		return &ConfigurationError{Step: "locale.conf", Err: err}
	}

	// Hostname and hosts.
	if err := inst.writeTargetFile("/etc/hostname", sys.Hostname+"\n"); err != nil {
		return &ConfigurationError{Step: "hostname", Err: err}
	}
	hosts := fmt.Sprintf("127.0.0.1\tlocalhost\n::1\t\tlocalhost\n127.0.1.1\t%s\n", sys.Hostname)
	if err := inst.writeTargetFile("/etc/hosts", hosts); err != nil {
		return &ConfigurationError{Step: "hosts", Err: err}
	}

	// Initramfs for the installed kernel.
	if _, err := shell.ExecCmd("mkinitcpio -P", false, root, nil); err != nil {
		return &ConfigurationError{Step: "initramfs", Err: err}
	}

	if err := inst.configureUsers(); err != nil {
		return err
	}

	// Network comes up on first boot; a failure here only costs the operator
	// one manual systemctl call.
	if err := inst.enableService("NetworkManager"); err != nil {
		log.Warnf("Could not enable NetworkManager, continuing: %v", err)
	}

	log.Infof("System configuration applied")
	return nil
}

// configureUsers sets the root password and creates the operator's user
// with wheel membership. Passwords travel via chpasswd stdin, never on a
// command line.
func (inst *Installer) configureUsers() error {
	root := inst.MountRoot()
	sys := inst.plan.System

	if sys.RootPassword != "" {
		input := fmt.Sprintf("root:%s\n", sys.RootPassword)
		if _, err := shell.ExecCmdWithInput("chpasswd", input, false, root, nil); err != nil {
			return &ConfigurationError{Step: "root password", Err: err}
		}
	}

	if sys.Username != "" {
		addCmd := fmt.Sprintf("useradd -m -G wheel -s /bin/bash %s", sys.Username)
		if _, err := shell.ExecCmd(addCmd, false, root, nil); err != nil {
			return &ConfigurationError{Step: "create user", Err: err}
		}
		input := fmt.Sprintf("%s:%s\n", sys.Username, sys.UserPassword)
		if _, err := shell.ExecCmdWithInput("chpasswd", input, false, root, nil); err != nil {
			return &ConfigurationError{Step: "user password", Err: err}
		}
		sudoers := "%wheel ALL=(ALL:ALL) ALL\n"
		if err := inst.writeTargetFile("/etc/sudoers.d/10-wheel", sudoers); err != nil {
			return &ConfigurationError{Step: "sudoers", Err: err}
		}
	}

	return nil
}
