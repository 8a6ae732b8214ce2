package hardware

import (
	"io"
	"sync"

	apperrors "camgate/pkg/errors"

	"go.uber.org/zap"
)

// Pelco-D command bits (byte 4 of the frame).
const (
	cmdRight   = 0x02
	cmdLeft    = 0x04
	cmdUp      = 0x08
	cmdDown    = 0x10
	cmdZoomIn  = 0x20
	cmdZoomOut = 0x40
)

const pelcoAddress = 0x01

// SerialPTZ drives a Pelco-D pan/tilt head over a raw serial line.
type SerialPTZ struct {
	log *zap.SugaredLogger

	mu   sync.Mutex
	port io.WriteCloser
}

func NewSerialPTZ(device string, baud int, log *zap.SugaredLogger) (*SerialPTZ, error) {
	port, err := openSerial(device, baud)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "serial open failed").
			WithContext("device", device)
	}
	log.Infow("ptz serial port open", "device", device, "baud", baud)
	return &SerialPTZ{port: port, log: log}, nil
}

// Move starts motion in the given direction at speed 0-100. Motion continues
// until Stop.
func (p *SerialPTZ) Move(direction string, speed int) error {
	var cmd byte
	switch direction {
	case "up":
		cmd = cmdUp
	case "down":
		cmd = cmdDown
	case "left":
		cmd = cmdLeft
	case "right":
		cmd = cmdRight
	case "zoom_in":
		cmd = cmdZoomIn
	case "zoom_out":
		cmd = cmdZoomOut
	default:
		return apperrors.NewParseError("unknown ptz direction: " + direction)
	}

	return p.write(pelcoFrame(cmd, pelcoSpeed(speed)))
}

// Stop halts all motion.
func (p *SerialPTZ) Stop() error {
	return p.write(pelcoFrame(0x00, 0x00))
}

func (p *SerialPTZ) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}

func (p *SerialPTZ) write(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.port.Write(frame); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "serial write failed")
	}
	return nil
}

// pelcoFrame builds a 7 byte Pelco-D frame. The same speed is used for pan
// and tilt; the head clamps internally.
func pelcoFrame(cmd, speed byte) []byte {
	frame := []byte{0xFF, pelcoAddress, 0x00, cmd, speed, speed, 0x00}
	var sum byte
	for _, b := range frame[1:6] {
		sum += b
	}
	frame[6] = sum
	return frame
}

// pelcoSpeed maps 0-100 onto the protocol's 0x00-0x3F range.
func pelcoSpeed(percent int) byte {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return byte(percent * 0x3F / 100)
}
