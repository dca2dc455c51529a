package shell

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgeforge/os-installer/internal/utils/logger"
)

// HostPath is the chrootPath value meaning "run on the host, no chroot".
var HostPath string = ""

// Every tool the installer may invoke, pinned to its absolute path. A
// command missing from this map is a programming error, caught before
// anything is executed.
var commandMap = map[string]string{
	"bash":                "/usr/bin/bash",
	"blkid":               "/usr/sbin/blkid",
	"bootctl":             "/usr/bin/bootctl",
	"cat":                 "/usr/bin/cat",
	"chpasswd":            "/usr/sbin/chpasswd",
	"chroot":              "/usr/sbin/chroot",
	"cp":                  "/usr/bin/cp",
	"echo":                "/usr/bin/echo",
	"efibootmgr":          "/usr/bin/efibootmgr",
	"grub-install":        "/usr/bin/grub-install",
	"grub-mkconfig":       "/usr/bin/grub-mkconfig",
	"hwclock":             "/usr/sbin/hwclock",
	"ln":                  "/usr/bin/ln",
	"locale-gen":          "/usr/bin/locale-gen",
	"lsblk":               "/usr/bin/lsblk",
	"mkdir":               "/usr/bin/mkdir",
	"mkfs":                "/usr/sbin/mkfs",
	"mkinitcpio":          "/usr/bin/mkinitcpio",
	"mkswap":              "/usr/sbin/mkswap",
	"mount":               "/usr/bin/mount",
	"pacman":              "/usr/bin/pacman",
	"pacstrap":            "/usr/bin/pacstrap",
	"partx":               "/usr/sbin/partx",
	"rm":                  "/usr/bin/rm",
	"sed":                 "/usr/bin/sed",
	"sfdisk":              "/usr/sbin/sfdisk",
	"sleep":               "/usr/bin/sleep",
	"sudo":                "/usr/bin/sudo",
	"sync":                "/usr/bin/sync",
	"systemctl":           "/usr/bin/systemctl",
	"systemd-detect-virt": "/usr/bin/systemd-detect-virt",
	"tee":                 "/usr/bin/tee",
	"udevadm":             "/usr/bin/udevadm",
	"umount":              "/usr/bin/umount",
	"uname":               "/usr/bin/uname",
	"useradd":             "/usr/sbin/useradd",
	"wipefs":              "/usr/sbin/wipefs",
}

// GetOSEnvirons returns the system environment variables
func GetOSEnvirons() map[string]string {
	environ := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			environ[parts[0]] = parts[1]
		}
	}
	return environ
}

// GetOSProxyEnvirons retrieves HTTP and HTTPS proxy environment variables
func GetOSProxyEnvirons() map[string]string {
	osEnv := GetOSEnvirons()
	proxyEnv := make(map[string]string)

	for key, value := range osEnv {
		if strings.Contains(strings.ToLower(key), "http_proxy") ||
			strings.Contains(strings.ToLower(key), "https_proxy") {
			proxyEnv[key] = value
		}
	}

	return proxyEnv
}

func verifyCmdWithFullPath(cmd string) (string, error) {
	separators := []string{"&&", "||", ";"}

	sepIdx := -1
	sep := ""
	for _, s := range separators {
		if idx := strings.Index(cmd, s); idx != -1 && (sepIdx == -1 || idx < sepIdx) {
			sepIdx = idx
			sep = s
		}
	}
	if sepIdx != -1 {
		left := strings.TrimSpace(cmd[:sepIdx])
		right := strings.TrimSpace(cmd[sepIdx+len(sep):])
		leftCmdStr, err := verifyCmdWithFullPath(left)
		if err != nil {
			return "", fmt.Errorf("failed to verify command: %w", err)
		}
		rightCmdStr, err := verifyCmdWithFullPath(right)
		if err != nil {
			return "", fmt.Errorf("failed to verify command: %w", err)
		}
		return leftCmdStr + " " + sep + " " + rightCmdStr, nil
	}

	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return cmd, nil
	}
	bin := fields[0]
	fullPath, ok := commandMap[bin]
	if !ok {
		return "", fmt.Errorf("command %s not found in commandMap", bin)
	}
	fields[0] = fullPath
	return strings.Join(fields, " "), nil
}

// GetFullCmdStr prepares a command string with necessary prefixes
func GetFullCmdStr(cmdStr string, sudo bool, chrootPath string, envVal []string) (string, error) {
	var fullCmdStr string
	envValStr := ""
	for _, env := range envVal {
		envValStr += env + " "
	}

	fullPathCmdStr, err := verifyCmdWithFullPath(cmdStr)
	if err != nil {
		return fullPathCmdStr, fmt.Errorf("failed to verify command with full path: %w", err)
	}

	if chrootPath != HostPath {
		if _, err := os.Stat(chrootPath); os.IsNotExist(err) {
			return fullPathCmdStr, fmt.Errorf("chroot path %s does not exist", chrootPath)
		}

		for key, value := range GetOSProxyEnvirons() {
			envValStr += key + "=" + value + " "
		}

		fullCmdStr = "sudo " + envValStr + "chroot " + chrootPath + " " + fullPathCmdStr
	} else if sudo {
		for key, value := range GetOSProxyEnvirons() {
			envValStr += key + "=" + value + " "
		}

		fullCmdStr = "sudo " + envValStr + fullPathCmdStr
	} else {
		fullCmdStr = envValStr + fullPathCmdStr
	}

	return fullCmdStr, nil
}

// ExecCmd executes a command and returns its output
func ExecCmd(cmdStr string, sudo bool, chrootPath string, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, chrootPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	log.Debugf("Exec: [%s]", fullCmdStr)
	output, err := Default.Run(fullCmdStr, "")
	if err != nil {
		if output != "" {
			log.Infof(output)
		}
		return output, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if output != "" {
		log.Debugf(output)
	}
	return output, nil
}

// ExecCmdSilent executes a command without echoing its output to the log.
func ExecCmdSilent(cmdStr string, sudo bool, chrootPath string, envVal []string) (string, error) {
	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, chrootPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	output, err := Default.Run(fullCmdStr, "")
	if err != nil {
		return output, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	return output, nil
}

// ExecCmdWithStream executes a command and streams its output to the log as
// it is produced. Used for long-running package operations.
func ExecCmdWithStream(cmdStr string, sudo bool, chrootPath string, envVal []string) (string, error) {
	log := logger.Logger()

	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, chrootPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	log.Debugf("Exec: [%s]", fullCmdStr)
	output, err := Default.RunStream(fullCmdStr, func(line string) {
		log.Infof(line)
	})
	if err != nil {
		return output, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	return output, nil
}

// ExecCmdWithInput executes a command with input fed to its stdin.
func ExecCmdWithInput(cmdStr string, inputStr string, sudo bool, chrootPath string, envVal []string) (string, error) {
	log := logger.Logger()
	fullCmdStr, err := GetFullCmdStr(cmdStr, sudo, chrootPath, envVal)
	if err != nil {
		return "", fmt.Errorf("failed to get full command string: %w", err)
	}

	log.Debugf("Exec: [%s] (with stdin)", fullCmdStr)
	output, err := Default.Run(fullCmdStr, inputStr)
	if err != nil {
		if output != "" {
			log.Infof(output)
		}
		return output, fmt.Errorf("failed to exec %s: %w", fullCmdStr, err)
	}
	if output != "" {
		log.Debugf(output)
	}
	return output, nil
}
