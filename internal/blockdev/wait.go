package blockdev

import (
	"fmt"
	"os"
	"time"

	"github.com/edgeforge/os-installer/internal/utils/logger"
	"github.com/edgeforge/os-installer/internal/utils/shell"
)

// TimeoutError means a freshly created partition device node never appeared
// within the bounded wait. Fatal: later stages must not guess at devices.
type TimeoutError struct {
	Device   string
	Attempts int
	Delay    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("device %s did not appear after %d attempts (%v apart)",
		e.Device, e.Attempts, e.Delay)
}

// Stat is the file probe used by WaitForDevice; swapped in tests.
var Stat = os.Stat

// WaitForDevice polls until the device node exists. Virtualized hosts can
// take a moment to surface new partitions, so the kernel partition table is
// nudged once via udevadm before polling. The wait is strictly bounded:
// attempts x delay, then a TimeoutError.
func WaitForDevice(devicePath string, attempts int, delay time.Duration) error {
	log := logger.Logger()

	// Best effort; the poll below is the real check.
	if _, err := shell.ExecCmdSilent("udevadm settle", true, shell.HostPath, nil); err != nil {
		log.Debugf("udevadm settle failed: %v", err)
	}

	for i := 0; i < attempts; i++ {
		if _, err := Stat(devicePath); err == nil {
			log.Debugf("Device %s appeared after %d attempt(s)", devicePath, i+1)
			return nil
		}
		time.Sleep(delay)
	}

	log.Errorf("Device %s did not appear within %d attempts", devicePath, attempts)
	return &TimeoutError{Device: devicePath, Attempts: attempts, Delay: delay}
}
