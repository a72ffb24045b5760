//go:build !linux || (!arm && !arm64)

package haptic

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func openSysfs(specs [NumChannels]string, hz int) ([NumChannels]dutyChannel, error) {
	return [NumChannels]dutyChannel{}, fmt.Errorf("haptic: sysfs pwm unsupported on this platform")
}
