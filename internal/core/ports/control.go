package ports

import (
	"context"

	"camgate/internal/core/domain"
)

// PTZController drives the camera's pan/tilt/zoom head.
type PTZController interface {
	Move(direction string, speed int) error
	Stop() error
}

// Recorder controls on-device event recording.
type Recorder interface {
	StartClip(reason string) (string, error)
	StopClip() error
	Status() domain.RecorderStatus
}

// CommandRunner executes ad-hoc device commands relayed through signaling.
type CommandRunner interface {
	Run(ctx context.Context, name string, args map[string]any) (string, error)
}

// HealthSampler produces the camera health snapshot published to the
// signaling server.
type HealthSampler interface {
	Sample(ctx context.Context) (domain.StatusReport, error)
}
