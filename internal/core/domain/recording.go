package domain

import "time"

// RecorderStatus is the recorder's externally visible state.
type RecorderStatus struct {
	Recording        bool
	ActiveClip       string
	ClipsStored      int
	DiskUsagePercent int
}

// Clip describes one recorded segment on disk.
type Clip struct {
	ID        string
	Reason    string
	Path      string
	StartedAt time.Time
	StoppedAt time.Time
}
