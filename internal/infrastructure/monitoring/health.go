package monitoring

import (
	"context"
	"encoding/base64"
	"os"

	"camgate/internal/core/domain"
	"camgate/internal/core/ports"

	"go.uber.org/zap"
)

// HealthSamplerConfig locates the optional snapshot files the camera process
// refreshes on disk.
type HealthSamplerConfig struct {
	RGBSnapshotPath     string
	ThermalSnapshotPath string
	RecordingDir        string
}

// HealthSampler assembles the periodic camera status report from the thermal
// monitor, the recorder and the snapshot files.
type HealthSampler struct {
	cfg       HealthSamplerConfig
	thermal   *ThermalMonitor
	recorder  ports.Recorder // nil when recording is disabled
	collector *PrometheusCollector
	log       *zap.SugaredLogger
}

func NewHealthSampler(cfg HealthSamplerConfig, thermal *ThermalMonitor, recorder ports.Recorder, collector *PrometheusCollector, log *zap.SugaredLogger) *HealthSampler {
	return &HealthSampler{
		cfg:       cfg,
		thermal:   thermal,
		recorder:  recorder,
		collector: collector,
		log:       log,
	}
}

func (s *HealthSampler) Sample(ctx context.Context) (domain.StatusReport, error) {
	cpu, gpu := s.thermal.Temperatures()

	report := domain.StatusReport{
		RecordStatus: "disabled",
		CPUTemp:      cpu,
		GPUTemp:      gpu,
	}

	if s.recorder != nil {
		status := s.recorder.Status()
		if status.Recording {
			report.RecordStatus = "recording"
		} else {
			report.RecordStatus = "idle"
		}
		report.RecordUsage = status.DiskUsagePercent
	} else if s.cfg.RecordingDir != "" {
		if usage, err := DiskUsagePercent(s.cfg.RecordingDir); err == nil {
			report.RecordUsage = usage
		}
	}

	if s.collector != nil {
		s.collector.SetDiskUsage(float64(report.RecordUsage) / 100)
	}

	report.RGBSnapshot = s.readSnapshot(s.cfg.RGBSnapshotPath)
	report.ThermalSnapshot = s.readSnapshot(s.cfg.ThermalSnapshotPath)
	return report, nil
}

// readSnapshot base64-encodes a snapshot file; a missing file is not an
// error, the field is simply omitted from the report.
func (s *HealthSampler) readSnapshot(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
