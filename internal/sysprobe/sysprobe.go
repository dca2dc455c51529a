// Package sysprobe inspects the running host: firmware mode and
// virtualization platform. Pure reads, no side effects.
package sysprobe

import (
	"os"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// FirmwareMode is how the host booted. Set once per run; it selects the
// partition table type and the bootloader branch.
type FirmwareMode int

const (
	FirmwareBIOS FirmwareMode = iota
	FirmwareEFI
)

func (m FirmwareMode) String() string {
	if m == FirmwareEFI {
		return "EFI"
	}
	return "BIOS"
}

// VirtPlatform is the hypervisor the host runs under, if any.
type VirtPlatform int

const (
	VirtNone VirtPlatform = iota
	VirtVirtualBox
	VirtVMware
	VirtKVM
	VirtHyperV
	VirtUnknown
)

func (p VirtPlatform) String() string {
	switch p {
	case VirtNone:
		return "none"
	case VirtVirtualBox:
		return "virtualbox"
	case VirtVMware:
		return "vmware"
	case VirtKVM:
		return "kvm"
	case VirtHyperV:
		return "hyperv"
	default:
		return "unknown"
	}
}

// EfiVarsDir is the sysfs directory only present on EFI-booted hosts.
// Overridable for tests.
var EfiVarsDir = "/sys/firmware/efi/efivars"

// DetectFirmwareMode reports whether the host booted via EFI or legacy BIOS.
func DetectFirmwareMode() FirmwareMode {
	log := logger.Logger()
	if info, err := os.Stat(EfiVarsDir); err == nil && info.IsDir() {
		log.Debugf("EFI variables present at %s, firmware mode is EFI", EfiVarsDir)
		return FirmwareEFI
	}
	log.Debugf("No EFI variables at %s, firmware mode is BIOS", EfiVarsDir)
	return FirmwareBIOS
}

// DetectVirtualization maps systemd-detect-virt output onto the closed
// platform enum. A failing probe (exit status 1 with output "none") means
// bare metal; unrecognized hypervisors come back as VirtUnknown.
func DetectVirtualization() VirtPlatform {
	log := logger.Logger()
	output, err := shell.ExecCmdSilent("systemd-detect-virt --vm", false, shell.HostPath, nil)
	name := strings.TrimSpace(output)
	if err != nil && name == "" {
		log.Debugf("systemd-detect-virt unavailable: %v", err)
		return VirtUnknown
	}
	return PlatformFromName(name)
}

// PlatformFromName converts a systemd-detect-virt identifier to the enum.
func PlatformFromName(name string) VirtPlatform {
	switch name {
	case "", "none":
		return VirtNone
	case "oracle":
		return VirtVirtualBox
	case "vmware":
		return VirtVMware
	case "kvm", "qemu":
		return VirtKVM
	case "microsoft":
		return VirtHyperV
	default:
		return VirtUnknown
	}
}
