package monitoring

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ThermalConfig points at the sysfs thermal zones and their warn thresholds
// in whole degrees Celsius.
type ThermalConfig struct {
	CPUZone     string
	GPUZone     string
	CPUWarnTemp int
	GPUWarnTemp int
	Interval    time.Duration
}

// OverheatFunc is called once per sample for each zone above its threshold.
type OverheatFunc func(zone string, temp int)

// ThermalMonitor samples the SoC thermal zones. Zones that cannot be read
// (absent on dev machines) report zero and log once.
type ThermalMonitor struct {
	cfg        ThermalConfig
	collector  *PrometheusCollector // optional
	onOverheat OverheatFunc         // optional
	log        *zap.SugaredLogger

	mu          sync.Mutex
	cpuTemp     int
	gpuTemp     int
	warnedCPU   bool
	warnedGPU   bool
	readFailLog map[string]bool
}

func NewThermalMonitor(cfg ThermalConfig, collector *PrometheusCollector, onOverheat OverheatFunc, log *zap.SugaredLogger) *ThermalMonitor {
	return &ThermalMonitor{
		cfg:         cfg,
		collector:   collector,
		onOverheat:  onOverheat,
		log:         log,
		readFailLog: make(map[string]bool),
	}
}

// Run samples until the context ends. Performs one immediate sample so
// status reports never see zero temperatures on a healthy unit.
func (m *ThermalMonitor) Run(ctx context.Context) {
	if m.cfg.Interval <= 0 {
		return
	}

	m.sample()
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

// Temperatures returns the latest sampled values in degrees Celsius.
func (m *ThermalMonitor) Temperatures() (cpu, gpu int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cpuTemp, m.gpuTemp
}

func (m *ThermalMonitor) sample() {
	cpu := m.readZone(m.cfg.CPUZone)
	gpu := m.readZone(m.cfg.GPUZone)

	m.mu.Lock()
	m.cpuTemp = cpu
	m.gpuTemp = gpu
	cpuHot := m.cfg.CPUWarnTemp > 0 && cpu >= m.cfg.CPUWarnTemp
	gpuHot := m.cfg.GPUWarnTemp > 0 && gpu >= m.cfg.GPUWarnTemp
	cpuEdge := cpuHot && !m.warnedCPU
	gpuEdge := gpuHot && !m.warnedGPU
	m.warnedCPU = cpuHot
	m.warnedGPU = gpuHot
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.SetTemperatures(float64(cpu), float64(gpu))
	}

	if cpuEdge {
		m.log.Warnw("cpu over temperature threshold", "temp_c", cpu, "threshold_c", m.cfg.CPUWarnTemp)
		if m.onOverheat != nil {
			m.onOverheat("cpu", cpu)
		}
	}
	if gpuEdge {
		m.log.Warnw("gpu over temperature threshold", "temp_c", gpu, "threshold_c", m.cfg.GPUWarnTemp)
		if m.onOverheat != nil {
			m.onOverheat("gpu", gpu)
		}
	}
}

// readZone parses a sysfs thermal_zone temp file (millidegrees Celsius).
func (m *ThermalMonitor) readZone(path string) int {
	if path == "" {
		return 0
	}

	data, err := os.ReadFile(path)
	if err != nil {
		m.mu.Lock()
		logged := m.readFailLog[path]
		m.readFailLog[path] = true
		m.mu.Unlock()
		if !logged {
			m.log.Warnw("thermal zone unreadable", "path", path, "error", err)
		}
		return 0
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return milli / 1000
}
