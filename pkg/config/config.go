package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Camera struct {
		ID              string `yaml:"id"`
		FirmwareVersion string `yaml:"firmware_version"`
		AIVersion       string `yaml:"ai_version"`
	} `yaml:"camera"`

	Signal struct {
		URL            string        `yaml:"url"`
		AuthSecret     string        `yaml:"auth_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		ReconnectMax   time.Duration `yaml:"reconnect_max"`
	} `yaml:"signal"`

	WebRTC struct {
		STUNServer   string `yaml:"stun_server"`
		TURNServer   string `yaml:"turn_server"`
		TURNUser     string `yaml:"turn_user"`
		TURNPassword string `yaml:"turn_password"`
	} `yaml:"webrtc"`

	Stream struct {
		PortBase  int `yaml:"port_base"`
		PortCount int `yaml:"port_count"`
		Reserved  []struct {
			From int `yaml:"from"`
			To   int `yaml:"to"`
		} `yaml:"reserved"`
		IdleTimeout   time.Duration `yaml:"idle_timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"stream"`

	Media struct {
		IngestBase int `yaml:"ingest_base"`
	} `yaml:"media"`

	Monitoring struct {
		HTTPAddress    string        `yaml:"http_address"`
		HTTPRateLimit  float64       `yaml:"http_rate_limit"`
		HTTPBurst      int           `yaml:"http_burst"`
		StatusInterval time.Duration `yaml:"status_interval"`
		SampleInterval time.Duration `yaml:"sample_interval"`
		ThermalZone    string        `yaml:"thermal_zone"`
		GPUThermalZone string        `yaml:"gpu_thermal_zone"`
		RGBSnapshot    string        `yaml:"rgb_snapshot"`
		ThermalSnap    string        `yaml:"thermal_snapshot"`
		CPUWarnTemp    int           `yaml:"cpu_warn_temp"`
		GPUWarnTemp    int           `yaml:"gpu_warn_temp"`
	} `yaml:"monitoring"`

	Recording struct {
		Enabled   bool          `yaml:"enabled"`
		Directory string        `yaml:"directory"`
		PreRoll   time.Duration `yaml:"pre_roll"`
		PostRoll  time.Duration `yaml:"post_roll"`
	} `yaml:"recording"`

	Hardware struct {
		SerialDevice string              `yaml:"serial_device"`
		BaudRate     int                 `yaml:"baud_rate"`
		Commands     map[string][]string `yaml:"commands"`
	} `yaml:"hardware"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Camera.ID == "" {
		return fmt.Errorf("camera.id must not be empty")
	}

	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > ping_interval")
	}
	if c.Signal.ReconnectDelay <= 0 {
		return fmt.Errorf("signal.reconnect_delay must be > 0")
	}

	if c.Stream.PortBase <= 0 || c.Stream.PortBase > 65535 {
		return fmt.Errorf("stream.port_base must be a valid port")
	}
	if c.Stream.PortCount <= 0 || c.Stream.PortBase+c.Stream.PortCount > 65536 {
		return fmt.Errorf("stream.port_count out of range for base %d", c.Stream.PortBase)
	}
	for _, r := range c.Stream.Reserved {
		if r.From >= r.To {
			return fmt.Errorf("stream.reserved range [%d,%d) is empty", r.From, r.To)
		}
	}

	if c.Media.IngestBase <= 0 || c.Media.IngestBase+4 > 65536 {
		return fmt.Errorf("media.ingest_base must leave room for four encoder feeds")
	}

	if c.Monitoring.StatusInterval <= 0 {
		return fmt.Errorf("monitoring.status_interval must be > 0")
	}
	if c.Monitoring.SampleInterval <= 0 {
		return fmt.Errorf("monitoring.sample_interval must be > 0")
	}

	if c.Recording.Enabled && c.Recording.Directory == "" {
		return fmt.Errorf("recording.directory must not be empty when recording.enabled=true")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0,1]")
		}
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Camera.ID = "ai_cds"
	cfg.Camera.FirmwareVersion = "1.0.0"
	cfg.Camera.AIVersion = "0.1.0"

	cfg.Signal.URL = "ws://localhost:8443/signaling"
	cfg.Signal.TokenTTL = 24 * time.Hour
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.ReconnectDelay = 1 * time.Second
	cfg.Signal.ReconnectMax = 30 * time.Second

	cfg.WebRTC.STUNServer = "stun:stun.l.google.com:19302"

	cfg.Stream.PortBase = 5000
	cfg.Stream.PortCount = 1000
	cfg.Stream.Reserved = append(cfg.Stream.Reserved, struct {
		From int `yaml:"from"`
		To   int `yaml:"to"`
	}{From: 5900, To: 6000})
	cfg.Stream.IdleTimeout = 2 * time.Minute
	cfg.Stream.SweepInterval = 30 * time.Second

	cfg.Media.IngestBase = 7000

	cfg.Monitoring.HTTPAddress = ":8088"
	cfg.Monitoring.HTTPRateLimit = 10
	cfg.Monitoring.HTTPBurst = 20
	cfg.Monitoring.StatusInterval = 10 * time.Second
	cfg.Monitoring.SampleInterval = 5 * time.Second
	cfg.Monitoring.ThermalZone = "/sys/class/thermal/thermal_zone0/temp"
	cfg.Monitoring.GPUThermalZone = "/sys/class/thermal/thermal_zone1/temp"
	cfg.Monitoring.CPUWarnTemp = 85
	cfg.Monitoring.GPUWarnTemp = 90

	cfg.Recording.Enabled = false
	cfg.Recording.Directory = "/var/lib/camgate/recordings"
	cfg.Recording.PreRoll = 5 * time.Second
	cfg.Recording.PostRoll = 10 * time.Second

	cfg.Hardware.SerialDevice = ""
	cfg.Hardware.BaudRate = 9600

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if id := os.Getenv("CAMGATE_CAMERA_ID"); id != "" {
		c.Camera.ID = id
	}
	if url := os.Getenv("CAMGATE_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if secret := os.Getenv("CAMGATE_AUTH_SECRET"); secret != "" {
		c.Signal.AuthSecret = secret
	}
	if level := os.Getenv("CAMGATE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// ReservedRanges converts the configured reserved spans into (from, to) pairs.
func (c *Config) ReservedRanges() [][2]int {
	out := make([][2]int, 0, len(c.Stream.Reserved))
	for _, r := range c.Stream.Reserved {
		out = append(out, [2]int{r.From, r.To})
	}
	return out
}
