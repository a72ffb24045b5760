package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scan      ScanConfig      `yaml:"scan"`
	Sonar     SonarConfig     `yaml:"sonar"`
	Pins      PinsConfig      `yaml:"pins"`
	Actuators ActuatorsConfig `yaml:"actuators"`
	Location  LocationConfig  `yaml:"location"`
	Web       WebConfig       `yaml:"web"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sim       SimConfig       `yaml:"sim"`
}

type LogConfig struct {
	// Level is one of error, warn, info, debug.
	Level string `yaml:"level"`
	// BufferLines is the number of log lines kept for /api/logs.
	BufferLines int `yaml:"buffer_lines"`
}

type ScanConfig struct {
	FullStepsPerRevolution    int           `yaml:"full_steps_per_revolution"`
	Microsteps                int           `yaml:"microsteps"`
	MeasurementsPerRevolution int           `yaml:"measurements_per_revolution"`
	StepPulseWidth            time.Duration `yaml:"step_pulse_width"`
	StepMinDelay              time.Duration `yaml:"step_min_delay"`
	PostMeasurePause          time.Duration `yaml:"post_measure_pause"`
}

type SonarConfig struct {
	TriggerPulse  time.Duration `yaml:"trigger_pulse"`
	EchoTimeout   time.Duration `yaml:"echo_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MaxDistanceCm float64       `yaml:"max_distance_cm"`
	MicrosPerCm   float64       `yaml:"micros_per_cm"`
	Samples       int           `yaml:"samples"`
	SamplePause   time.Duration `yaml:"sample_pause"`
}

// PinsConfig uses BCM numbering.
type PinsConfig struct {
	Step      int   `yaml:"step"`
	Dir       int   `yaml:"dir"`
	Enable    int   `yaml:"enable"`
	Trigger   int   `yaml:"trigger"`
	Echo      int   `yaml:"echo"`
	Actuators []int `yaml:"actuators"`
}

type ActuatorsConfig struct {
	// Backend is one of sysfs, periph, gpio, sim.
	Backend         string   `yaml:"backend"`
	FrequencyHz     int      `yaml:"frequency_hz"`
	SysfsChannels   []string `yaml:"sysfs_channels"`
	SmoothingFactor int      `yaml:"smoothing_factor"`
	// SmoothingMode is shared or per_quadrant.
	SmoothingMode string `yaml:"smoothing_mode"`
}

type LocationConfig struct {
	Enable         bool             `yaml:"enable"`
	Device         string           `yaml:"device"`
	Baud           int              `yaml:"baud"`
	LinkDevice     string           `yaml:"link_device"`
	LinkBaud       int              `yaml:"link_baud"`
	StrictChecksum bool             `yaml:"strict_checksum"`
	AverageSamples int              `yaml:"average_samples"`
	MaxLine        int              `yaml:"max_line"`
	Waypoints      []WaypointConfig `yaml:"waypoints"`
	MQTT           MQTTConfig       `yaml:"mqtt"`
}

type WaypointConfig struct {
	Name    string  `yaml:"name"`
	LatDeg  float64 `yaml:"lat_deg"`
	LonDeg  float64 `yaml:"lon_deg"`
	RadiusM float64 `yaml:"radius_m"`
}

type MQTTConfig struct {
	Enable   bool          `yaml:"enable"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      int           `yaml:"qos"`
	Retain   bool          `yaml:"retain"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WebConfig struct {
	// Listen is the status server address; empty disables it.
	Listen string `yaml:"listen"`
}

type TelemetryConfig struct {
	// UDPDest receives one JSON datagram per measurement; empty disables it.
	UDPDest string `yaml:"udp_dest"`
}

type SimConfig struct {
	Obstacles []ObstacleConfig `yaml:"obstacles"`
	// Scenario is an optional obstacle script (see sim.ScenarioScript).
	Scenario     string `yaml:"scenario"`
	ScenarioLoop bool   `yaml:"scenario_loop"`

	SpinPeriod time.Duration   `yaml:"spin_period"`
	EchoLead   time.Duration   `yaml:"echo_lead"`
	Walker     WalkerSimConfig `yaml:"walker"`
}

type ObstacleConfig struct {
	AngleDeg   float64 `yaml:"angle_deg"`
	WidthDeg   float64 `yaml:"width_deg"`
	DistanceCm float64 `yaml:"distance_cm"`
}

type WalkerSimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	RadiusM      float64       `yaml:"radius_m"`
	Period       time.Duration `yaml:"period"`
	Interval     time.Duration `yaml:"interval"`
	NoFixEvery   int           `yaml:"no_fix_every"`
}

// Defaults returns the configuration used when the file sets nothing.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	// 1.8° motor at 8x microstepping, one measurement every 30°.
	if cfg.Scan.FullStepsPerRevolution == 0 {
		cfg.Scan.FullStepsPerRevolution = 200
	}
	if cfg.Scan.Microsteps == 0 {
		cfg.Scan.Microsteps = 8
	}
	if cfg.Scan.MeasurementsPerRevolution == 0 {
		cfg.Scan.MeasurementsPerRevolution = 12
	}
	if cfg.Scan.StepPulseWidth == 0 {
		cfg.Scan.StepPulseWidth = 50 * time.Microsecond
	}
	if cfg.Scan.StepMinDelay == 0 {
		cfg.Scan.StepMinDelay = 100 * time.Microsecond
	}
	if cfg.Scan.PostMeasurePause == 0 {
		cfg.Scan.PostMeasurePause = 2 * time.Millisecond
	}

	if cfg.Sonar.TriggerPulse == 0 {
		cfg.Sonar.TriggerPulse = 10 * time.Microsecond
	}
	if cfg.Sonar.EchoTimeout == 0 {
		cfg.Sonar.EchoTimeout = 25 * time.Millisecond
	}
	if cfg.Sonar.PollInterval == 0 {
		cfg.Sonar.PollInterval = time.Microsecond
	}
	if cfg.Sonar.MaxDistanceCm == 0 {
		cfg.Sonar.MaxDistanceCm = 250
	}
	if cfg.Sonar.MicrosPerCm == 0 {
		cfg.Sonar.MicrosPerCm = 29.1
	}
	if cfg.Sonar.Samples == 0 {
		cfg.Sonar.Samples = 5
	}
	if cfg.Sonar.SamplePause == 0 {
		cfg.Sonar.SamplePause = 2 * time.Millisecond
	}

	if cfg.Pins.Step == 0 {
		cfg.Pins.Step = 13
	}
	if cfg.Pins.Dir == 0 {
		cfg.Pins.Dir = 21
	}
	if cfg.Pins.Enable == 0 {
		cfg.Pins.Enable = 5
	}
	if cfg.Pins.Trigger == 0 {
		cfg.Pins.Trigger = 2
	}
	if cfg.Pins.Echo == 0 {
		cfg.Pins.Echo = 3
	}
	if len(cfg.Pins.Actuators) == 0 {
		cfg.Pins.Actuators = []int{6, 8, 10, 12}
	}

	if cfg.Actuators.Backend == "" {
		cfg.Actuators.Backend = "gpio"
	}
	cfg.Actuators.Backend = strings.ToLower(strings.TrimSpace(cfg.Actuators.Backend))
	if cfg.Actuators.FrequencyHz == 0 {
		cfg.Actuators.FrequencyHz = 200
	}
	if cfg.Actuators.SmoothingFactor == 0 {
		cfg.Actuators.SmoothingFactor = 10
	}
	if cfg.Actuators.SmoothingMode == "" {
		cfg.Actuators.SmoothingMode = "shared"
	}

	if cfg.Location.Device == "" {
		cfg.Location.Device = "/dev/serial0"
	}
	if cfg.Location.Baud == 0 {
		cfg.Location.Baud = 9600
	}
	if cfg.Location.LinkBaud == 0 {
		cfg.Location.LinkBaud = 9600
	}
	if cfg.Location.AverageSamples == 0 {
		cfg.Location.AverageSamples = 1
	}
	if cfg.Location.MaxLine == 0 {
		cfg.Location.MaxLine = 256
	}
	if cfg.Location.MQTT.Topic == "" {
		cfg.Location.MQTT.Topic = "hapticscan/gps"
	}
	if cfg.Location.MQTT.ClientID == "" {
		cfg.Location.MQTT.ClientID = "hapticscan-location"
	}
	if cfg.Location.MQTT.Timeout == 0 {
		cfg.Location.MQTT.Timeout = 5 * time.Second
	}

	// Simulator defaults (safe even if the simulator is unused).
	if len(cfg.Sim.Obstacles) == 0 && cfg.Sim.Scenario == "" {
		cfg.Sim.Obstacles = []ObstacleConfig{
			{AngleDeg: 30, WidthDeg: 20, DistanceCm: 60},
			{AngleDeg: 150, WidthDeg: 40, DistanceCm: 180},
			{AngleDeg: 250, WidthDeg: 15, DistanceCm: 30},
		}
	}
	if cfg.Sim.EchoLead == 0 {
		cfg.Sim.EchoLead = 200 * time.Microsecond
	}
	if cfg.Sim.Walker.CenterLatDeg == 0 && cfg.Sim.Walker.CenterLonDeg == 0 {
		cfg.Sim.Walker.CenterLatDeg = 48.1173
		cfg.Sim.Walker.CenterLonDeg = 11.5167
	}
	if cfg.Sim.Walker.RadiusM <= 0 {
		cfg.Sim.Walker.RadiusM = 40
	}
	if cfg.Sim.Walker.Period <= 0 {
		cfg.Sim.Walker.Period = 5 * time.Minute
	}
	if cfg.Sim.Walker.Interval <= 0 {
		cfg.Sim.Walker.Interval = time.Second
	}
}

// Validate reports the first invalid setting by its dotted key.
func (cfg Config) Validate() error {
	switch strings.ToLower(cfg.Log.Level) {
	case "error", "warn", "warning", "info", "debug":
	default:
		return fmt.Errorf("log.level must be one of error, warn, info, debug (got %q)", cfg.Log.Level)
	}

	if cfg.Scan.FullStepsPerRevolution < 0 {
		return fmt.Errorf("scan.full_steps_per_revolution must be > 0")
	}
	if cfg.Scan.Microsteps < 0 {
		return fmt.Errorf("scan.microsteps must be > 0")
	}
	if cfg.Scan.MeasurementsPerRevolution < 0 {
		return fmt.Errorf("scan.measurements_per_revolution must be > 0")
	}
	if steps := cfg.Scan.FullStepsPerRevolution * cfg.Scan.Microsteps; cfg.Scan.MeasurementsPerRevolution > steps {
		return fmt.Errorf("scan.measurements_per_revolution must be <= %d steps per revolution", steps)
	}
	if cfg.Scan.StepPulseWidth < 0 || cfg.Scan.StepMinDelay < 0 || cfg.Scan.PostMeasurePause < 0 {
		return fmt.Errorf("scan durations must not be negative")
	}

	if cfg.Sonar.MaxDistanceCm < 0 {
		return fmt.Errorf("sonar.max_distance_cm must be > 0")
	}
	if cfg.Sonar.MicrosPerCm < 0 {
		return fmt.Errorf("sonar.micros_per_cm must be > 0")
	}
	if cfg.Sonar.Samples < 3 {
		return fmt.Errorf("sonar.samples must be >= 3")
	}
	if cfg.Sonar.TriggerPulse < 0 || cfg.Sonar.EchoTimeout < 0 || cfg.Sonar.PollInterval < 0 || cfg.Sonar.SamplePause < 0 {
		return fmt.Errorf("sonar durations must not be negative")
	}

	if len(cfg.Pins.Actuators) != 4 {
		return fmt.Errorf("pins.actuators must list 4 pins (A, B, C, D), got %d", len(cfg.Pins.Actuators))
	}
	seen := map[int]string{}
	named := []struct {
		key string
		pin int
	}{
		{"pins.step", cfg.Pins.Step},
		{"pins.dir", cfg.Pins.Dir},
		{"pins.enable", cfg.Pins.Enable},
		{"pins.trigger", cfg.Pins.Trigger},
		{"pins.echo", cfg.Pins.Echo},
	}
	for i, p := range cfg.Pins.Actuators {
		named = append(named, struct {
			key string
			pin int
		}{fmt.Sprintf("pins.actuators[%d]", i), p})
	}
	for _, n := range named {
		if n.pin < 0 {
			return fmt.Errorf("%s must be >= 0", n.key)
		}
		if prev, ok := seen[n.pin]; ok {
			return fmt.Errorf("%s reuses pin %d of %s", n.key, n.pin, prev)
		}
		seen[n.pin] = n.key
	}

	switch cfg.Actuators.Backend {
	case "sysfs":
		if len(cfg.Actuators.SysfsChannels) != 4 {
			return fmt.Errorf("actuators.sysfs_channels must list 4 channels when actuators.backend is sysfs")
		}
	case "periph", "gpio", "sim":
	default:
		return fmt.Errorf("actuators.backend must be one of sysfs, periph, gpio, sim (got %q)", cfg.Actuators.Backend)
	}
	if cfg.Actuators.FrequencyHz < 0 {
		return fmt.Errorf("actuators.frequency_hz must be > 0")
	}
	if cfg.Actuators.SmoothingFactor < 1 {
		return fmt.Errorf("actuators.smoothing_factor must be >= 1")
	}
	switch strings.ToLower(cfg.Actuators.SmoothingMode) {
	case "shared", "per_quadrant":
	default:
		return fmt.Errorf("actuators.smoothing_mode must be shared or per_quadrant (got %q)", cfg.Actuators.SmoothingMode)
	}

	if cfg.Location.Enable && strings.TrimSpace(cfg.Location.Device) == "" {
		return fmt.Errorf("location.device is required when location.enable is true")
	}
	if cfg.Location.Baud < 0 || cfg.Location.LinkBaud < 0 {
		return fmt.Errorf("location baud rates must be > 0")
	}
	if cfg.Location.AverageSamples < 1 {
		return fmt.Errorf("location.average_samples must be >= 1")
	}
	if cfg.Location.MaxLine < 16 {
		return fmt.Errorf("location.max_line must be >= 16")
	}
	for i, wp := range cfg.Location.Waypoints {
		if strings.TrimSpace(wp.Name) == "" {
			return fmt.Errorf("location.waypoints[%d].name is required", i)
		}
		if wp.RadiusM <= 0 {
			return fmt.Errorf("location.waypoints[%d].radius_m must be > 0", i)
		}
		if wp.LatDeg < -90 || wp.LatDeg > 90 || wp.LonDeg < -180 || wp.LonDeg > 180 {
			return fmt.Errorf("location.waypoints[%d] is out of range", i)
		}
	}
	if cfg.Location.MQTT.Enable && strings.TrimSpace(cfg.Location.MQTT.Broker) == "" {
		return fmt.Errorf("location.mqtt.broker is required when location.mqtt.enable is true")
	}
	if cfg.Location.MQTT.QoS < 0 || cfg.Location.MQTT.QoS > 2 {
		return fmt.Errorf("location.mqtt.qos must be 0, 1 or 2")
	}

	for i, o := range cfg.Sim.Obstacles {
		if o.DistanceCm <= 0 {
			return fmt.Errorf("sim.obstacles[%d].distance_cm must be > 0", i)
		}
		if o.WidthDeg < 0 || o.WidthDeg > 360 {
			return fmt.Errorf("sim.obstacles[%d].width_deg must be in [0,360]", i)
		}
	}
	if cfg.Sim.SpinPeriod < 0 {
		return fmt.Errorf("sim.spin_period must not be negative")
	}
	if cfg.Sim.Walker.NoFixEvery < 0 {
		return fmt.Errorf("sim.walker.no_fix_every must not be negative")
	}
	return nil
}
