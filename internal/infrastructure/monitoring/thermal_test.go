package monitoring

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"camgate/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeZone(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestThermalSampleReadsZones(t *testing.T) {
	dir := t.TempDir()
	cpuZone := writeZone(t, dir, "cpu", "48500\n")
	gpuZone := writeZone(t, dir, "gpu", "52000\n")

	m := NewThermalMonitor(ThermalConfig{
		CPUZone:  cpuZone,
		GPUZone:  gpuZone,
		Interval: time.Second,
	}, nil, nil, zap.NewNop().Sugar())

	m.sample()

	cpu, gpu := m.Temperatures()
	assert.Equal(t, 48, cpu)
	assert.Equal(t, 52, gpu)
}

func TestThermalMissingZoneReportsZero(t *testing.T) {
	m := NewThermalMonitor(ThermalConfig{
		CPUZone:  "/nonexistent/thermal",
		Interval: time.Second,
	}, nil, nil, zap.NewNop().Sugar())

	m.sample()
	m.sample()

	cpu, gpu := m.Temperatures()
	assert.Equal(t, 0, cpu)
	assert.Equal(t, 0, gpu)
}

func TestThermalOverheatFiresOncePerEpisode(t *testing.T) {
	dir := t.TempDir()
	cpuZone := writeZone(t, dir, "cpu", "91000")

	var mu sync.Mutex
	var alerts []string
	m := NewThermalMonitor(ThermalConfig{
		CPUZone:     cpuZone,
		CPUWarnTemp: 85,
		Interval:    time.Second,
	}, nil, func(zone string, temp int) {
		mu.Lock()
		alerts = append(alerts, zone)
		mu.Unlock()
	}, zap.NewNop().Sugar())

	m.sample()
	m.sample()
	assert.Equal(t, []string{"cpu"}, alerts, "sustained overheat alerts once")

	// Cooling down rearms the alert.
	require.NoError(t, os.WriteFile(cpuZone, []byte("60000"), 0o644))
	m.sample()
	require.NoError(t, os.WriteFile(cpuZone, []byte("92000"), 0o644))
	m.sample()
	assert.Equal(t, []string{"cpu", "cpu"}, alerts)
}

type stubRecorder struct {
	status domain.RecorderStatus
}

func (r *stubRecorder) StartClip(reason string) (string, error) { return "clip", nil }
func (r *stubRecorder) StopClip() error                         { return nil }
func (r *stubRecorder) Status() domain.RecorderStatus           { return r.status }

func TestHealthSamplerAssemblesReport(t *testing.T) {
	dir := t.TempDir()
	cpuZone := writeZone(t, dir, "cpu", "50000")
	snap := writeZone(t, dir, "rgb.jpg", "jpegbytes")

	thermal := NewThermalMonitor(ThermalConfig{CPUZone: cpuZone, Interval: time.Second}, nil, nil, zap.NewNop().Sugar())
	thermal.sample()

	rec := &stubRecorder{status: domain.RecorderStatus{Recording: true, DiskUsagePercent: 37}}
	s := NewHealthSampler(HealthSamplerConfig{RGBSnapshotPath: snap}, thermal, rec, nil, zap.NewNop().Sugar())

	report, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "recording", report.RecordStatus)
	assert.Equal(t, 37, report.RecordUsage)
	assert.Equal(t, 50, report.CPUTemp)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("jpegbytes")), report.RGBSnapshot)
	assert.Empty(t, report.ThermalSnapshot)
}

func TestHealthSamplerWithoutRecorder(t *testing.T) {
	dir := t.TempDir()
	thermal := NewThermalMonitor(ThermalConfig{Interval: time.Second}, nil, nil, zap.NewNop().Sugar())

	s := NewHealthSampler(HealthSamplerConfig{RecordingDir: dir}, thermal, nil, nil, zap.NewNop().Sugar())
	report, err := s.Sample(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "disabled", report.RecordStatus)
	assert.GreaterOrEqual(t, report.RecordUsage, 0)
}

func TestDiskUsagePercent(t *testing.T) {
	usage, err := DiskUsagePercent(t.TempDir())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, usage, 0)
	assert.LessOrEqual(t, usage, 100)
}
