//go:build !linux || (!arm && !arm64)

package gpio

import "fmt"

// Stub implementation for non-Linux and/or non-ARM platforms.
func openOutput(pin int, initial bool, consumer string) (Output, error) {
	return nil, fmt.Errorf("gpio: %s unsupported on this platform", lineName(pin))
}

func openInput(pin int, bias Bias, consumer string) (Input, error) {
	return nil, fmt.Errorf("gpio: %s unsupported on this platform", lineName(pin))
}
