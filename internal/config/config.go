package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChannelPlaceholder is replaced by a camera's channel in Parameters.BaseAddress
const ChannelPlaceholder = "{channel}"

// Config represents the application configuration
type Config struct {
	Log        LogConfig        `yaml:"log,omitempty"`
	Parameters ParametersConfig `yaml:"parameters"`
	Stream     StreamConfig     `yaml:"stream"`
	Model      ModelConfig      `yaml:"model"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Storage    StorageConfig    `yaml:"storage"`
	Web        WebConfig        `yaml:"web"`
	Cameras    []CameraConfig   `yaml:"cameras"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ParametersConfig contains the overwatch run parameters
type ParametersConfig struct {
	BaseAddress                 string        `yaml:"base_address"`
	MinDetectionsInARow         int           `yaml:"min_detections_in_a_row"`
	MainLoopMinimumTimeDuration float64       `yaml:"main_loop_minimum_time_duration"` // seconds
	OverwatchTime               string        `yaml:"overwatch_time"`                  // HH:MM
	RuntimeVerboseLevel         int           `yaml:"runtime_verbose_level"`
	LogStatusEveryNMinutes      int           `yaml:"log_status_every_n_minutes"`
	TimeoutCountBeforeMessage   int           `yaml:"timeout_count_before_message"`
	SaveFrames                  bool          `yaml:"save_frames"`
	StaleFrameTimeout           time.Duration `yaml:"stale_frame_timeout"`
}

// StreamConfig contains frame capture settings
type StreamConfig struct {
	FFmpegPath        string        `yaml:"ffmpeg_path"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	UnhealthyAfter    int           `yaml:"unhealthy_after"`
	FailureBackoff    time.Duration `yaml:"failure_backoff"` // least time a tick without a frame takes
	ProbeOnStart      bool          `yaml:"probe_on_start"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout"`
}

// ModelConfig contains detector service configuration
type ModelConfig struct {
	ServiceURL       string        `yaml:"service_url"`
	ImgSize          int           `yaml:"imgsz"`
	Confidence       float64       `yaml:"confidence"`
	DetectionClasses []int         `yaml:"detection_classes"` // empty = every class
	Timeout          time.Duration `yaml:"timeout"`
}

// TelegramConfig contains notification settings
type TelegramConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Token           string  `yaml:"token"` // never logged
	ChatID          string  `yaml:"chat_id"`
	APIURL          string  `yaml:"api_url"`
	BotFrameTimeout float64 `yaml:"bot_frame_timeout"` // seconds
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DataDir             string  `yaml:"data_dir"`
	FramesDir           string  `yaml:"frames_dir"`
	DBPath              string  `yaml:"db_path"`
	JPEGQuality         int     `yaml:"jpeg_quality"`
	RetentionDays       int     `yaml:"retention_days"` // 0 keeps frames forever
	MaxDiskUsagePercent float64 `yaml:"max_disk_usage_percent"`
}

// WebConfig contains web server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// CameraConfig describes one watched camera. It is immutable after Load.
type CameraConfig struct {
	Name             string `yaml:"name"`
	Channel          string `yaml:"camera_channel"`
	ZoomIn           ZoomIn `yaml:"zoom_in"`
	ShowCameraWindow bool   `yaml:"show_camera_window"`
	Zones            []Zone `yaml:"zones"`
}

// Zone is an exclusion rectangle [x1, y1, x2, y2] in normalized [0,1] coordinates
type Zone [4]float64

// ZoomIn holds the pixel margins [left, right, top, bottom] cropped off each
// frame. The zero value means zoom is off.
type ZoomIn struct {
	Enabled bool
	Left    int
	Right   int
	Top     int
	Bottom  int
}

// UnmarshalYAML accepts "off", false, null or a list of four integers.
func (z *ZoomIn) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch strings.ToLower(strings.TrimSpace(node.Value)) {
		case "", "off", "false", "none", "null", "~":
			*z = ZoomIn{}
			return nil
		}
		return fmt.Errorf("zoom_in: expected off or [left, right, top, bottom], got %q", node.Value)
	case yaml.SequenceNode:
		var values []int
		if err := node.Decode(&values); err != nil {
			return fmt.Errorf("zoom_in: %w", err)
		}
		if len(values) != 4 {
			return fmt.Errorf("zoom_in: expected 4 values, got %d", len(values))
		}
		*z = ZoomIn{Enabled: true, Left: values[0], Right: values[1], Top: values[2], Bottom: values[3]}
		return nil
	default:
		return fmt.Errorf("zoom_in: unsupported value at line %d", node.Line)
	}
}

// MarshalYAML writes the same forms UnmarshalYAML accepts.
func (z ZoomIn) MarshalYAML() (interface{}, error) {
	if !z.Enabled {
		return "off", nil
	}
	return []int{z.Left, z.Right, z.Top, z.Bottom}, nil
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and defaults
func Parse(data []byte) (*Config, error) {
	cfg := presetConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.setDefaults()

	return cfg, nil
}

// presetConfig holds the defaults of options where zero is a valid setting.
// They are filled in before decoding so only absent keys keep them.
func presetConfig() *Config {
	return &Config{
		Parameters: ParametersConfig{StaleFrameTimeout: 2 * time.Second},
		Model:      ModelConfig{Confidence: 0.5},
		Telegram:   TelegramConfig{BotFrameTimeout: 60},
	}
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	paths := []string{
		"./config/config.yaml",
		"./config.yaml",
		"/etc/overwatch/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return paths[0]
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Parameters.MinDetectionsInARow == 0 {
		c.Parameters.MinDetectionsInARow = 1
	}
	if c.Parameters.OverwatchTime == "" {
		c.Parameters.OverwatchTime = "01:00"
	}
	if c.Parameters.RuntimeVerboseLevel == 0 {
		c.Parameters.RuntimeVerboseLevel = 1
	}
	if c.Parameters.LogStatusEveryNMinutes == 0 {
		c.Parameters.LogStatusEveryNMinutes = 10
	}
	if c.Parameters.TimeoutCountBeforeMessage == 0 {
		c.Parameters.TimeoutCountBeforeMessage = 5
	}

	if c.Stream.FFmpegPath == "" {
		c.Stream.FFmpegPath = "ffmpeg"
	}
	if c.Stream.ReconnectInterval == 0 {
		c.Stream.ReconnectInterval = 2 * time.Second
	}
	if c.Stream.ReadTimeout == 0 {
		c.Stream.ReadTimeout = 10 * time.Second
	}
	if c.Stream.UnhealthyAfter == 0 {
		c.Stream.UnhealthyAfter = 3
	}
	if c.Stream.FailureBackoff == 0 {
		c.Stream.FailureBackoff = 750 * time.Millisecond
	}
	if c.Stream.ProbeTimeout == 0 {
		c.Stream.ProbeTimeout = 10 * time.Second
	}

	if c.Model.ServiceURL == "" {
		c.Model.ServiceURL = "http://localhost:8080"
	}
	if c.Model.ImgSize == 0 {
		c.Model.ImgSize = 640
	}
	if c.Model.Timeout == 0 {
		c.Model.Timeout = 5 * time.Second
	}

	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = "https://api.telegram.org"
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Storage.FramesDir == "" {
		c.Storage.FramesDir = filepath.Join(c.Storage.DataDir, "detection_frames")
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = filepath.Join(c.Storage.DataDir, "db", "overwatch.db")
	}
	if c.Storage.JPEGQuality == 0 {
		c.Storage.JPEGQuality = 85
	}
	if c.Storage.MaxDiskUsagePercent == 0 {
		c.Storage.MaxDiskUsagePercent = 90
	}

	if c.Web.Port == 0 {
		c.Web.Port = 8090
	}

	for i := range c.Cameras {
		if c.Cameras[i].Name == "" {
			c.Cameras[i].Name = "Camera_" + c.Cameras[i].Channel
		}
	}
}

// MainLoopMinimum returns main_loop_minimum_time_duration as a duration
func (p ParametersConfig) MainLoopMinimum() time.Duration {
	return secondsToDuration(p.MainLoopMinimumTimeDuration)
}

// StatusInterval returns the heartbeat interval
func (p ParametersConfig) StatusInterval() time.Duration {
	return time.Duration(p.LogStatusEveryNMinutes) * time.Minute
}

// OverwatchDuration parses overwatch_time
func (p ParametersConfig) OverwatchDuration() (time.Duration, error) {
	return ParseOverwatchTime(p.OverwatchTime)
}

// FrameTimeout returns bot_frame_timeout as a duration
func (t TelegramConfig) FrameTimeout() time.Duration {
	return secondsToDuration(t.BotFrameTimeout)
}

// ParseOverwatchTime parses an "HH:MM" run length
func ParseOverwatchTime(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("overwatch_time must be HH:MM, got %q", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("overwatch_time has invalid hours %q", parts[0])
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("overwatch_time has invalid minutes %q", parts[1])
	}

	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// StreamURL builds the stream address of a camera from base_address
func (c *Config) StreamURL(cam CameraConfig) string {
	return strings.ReplaceAll(c.Parameters.BaseAddress, ChannelPlaceholder, cam.Channel)
}

// Camera returns the configuration of a camera by name
func (c *Config) Camera(name string) (CameraConfig, bool) {
	for _, cam := range c.Cameras {
		if cam.Name == name {
			return cam, true
		}
	}
	return CameraConfig{}, false
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
