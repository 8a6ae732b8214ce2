package domain

import "strings"

// CameraDevice identifies a physical capture device on the gateway.
type CameraDevice int

const (
	DeviceRGB CameraDevice = iota
	DeviceThermal
)

func (d CameraDevice) String() string {
	switch d {
	case DeviceThermal:
		return "thermal"
	default:
		return "rgb"
	}
}

// StreamQuality selects one of the encoder branches of a device.
type StreamQuality int

const (
	QualityMain StreamQuality = iota
	QualitySecondary
)

func (q StreamQuality) String() string {
	switch q {
	case QualitySecondary:
		return "secondary"
	default:
		return "main"
	}
}

// Source pairs a device with the encode quality a viewer asked for.
type Source struct {
	Device  CameraDevice
	Quality StreamQuality
}

// ParseSource resolves the selector string a viewer supplies on join.
// Unknown tokens fall back to RGB/main rather than failing the join.
func ParseSource(selector string) Source {
	s := Source{Device: DeviceRGB, Quality: QualityMain}

	lower := strings.ToLower(selector)
	if strings.Contains(lower, "thermal") {
		s.Device = DeviceThermal
	}
	if strings.Contains(lower, "sub") || strings.Contains(lower, "secondary") {
		s.Quality = QualitySecondary
	}
	return s
}

// DistributionPoint names the fan-out element inside the media graph that
// branches for this source attach to. The names mirror the tee elements the
// graph builder creates per device and encoder.
func (s Source) DistributionPoint() string {
	base := "dist_main_enc_"
	if s.Quality == QualitySecondary {
		base = "dist_sub_enc_"
	}
	switch s.Device {
	case DeviceThermal:
		return base + "1"
	default:
		return base + "0"
	}
}
