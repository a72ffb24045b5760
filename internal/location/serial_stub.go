//go:build !linux && !darwin && !windows

package location

import (
	"fmt"
	"io"
)

func OpenSerial(path string, baud int) (io.ReadWriteCloser, error) {
	return nil, fmt.Errorf("location: serial not supported on this platform")
}
