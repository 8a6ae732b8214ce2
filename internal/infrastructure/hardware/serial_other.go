//go:build !linux

package hardware

import (
	"fmt"
	"os"
)

// Serial PTZ is only wired on the camera units, which run Linux.
func openSerial(device string, baud int) (*os.File, error) {
	return nil, fmt.Errorf("serial ptz unsupported on this platform")
}
