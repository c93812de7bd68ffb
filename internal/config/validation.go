package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate validates the configuration with detailed error messages
func (c *Config) Validate() error {
	var errors []string

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}

	// Validate log format
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log.format: %s (must be: text or json)", c.Log.Format))
	}

	// Validate run parameters
	p := c.Parameters
	if p.BaseAddress == "" {
		errors = append(errors, "parameters.base_address is required")
	} else if !strings.Contains(p.BaseAddress, ChannelPlaceholder) && len(c.Cameras) > 1 {
		errors = append(errors, fmt.Sprintf("parameters.base_address must contain %s when more than one camera is configured", ChannelPlaceholder))
	}

	if p.MinDetectionsInARow < 1 {
		errors = append(errors, fmt.Sprintf("parameters.min_detections_in_a_row must be >= 1, got: %d", p.MinDetectionsInARow))
	}

	if p.MainLoopMinimumTimeDuration < 0 {
		errors = append(errors, fmt.Sprintf("parameters.main_loop_minimum_time_duration must be >= 0, got: %.2f", p.MainLoopMinimumTimeDuration))
	}

	if d, err := ParseOverwatchTime(p.OverwatchTime); err != nil {
		errors = append(errors, fmt.Sprintf("parameters.%v", err))
	} else if d <= 0 {
		errors = append(errors, "parameters.overwatch_time must be greater than 00:00")
	}

	if p.RuntimeVerboseLevel < 1 || p.RuntimeVerboseLevel > 3 {
		errors = append(errors, fmt.Sprintf("parameters.runtime_verbose_level must be between 1 and 3, got: %d", p.RuntimeVerboseLevel))
	}

	if p.LogStatusEveryNMinutes < 1 {
		errors = append(errors, fmt.Sprintf("parameters.log_status_every_n_minutes must be >= 1, got: %d", p.LogStatusEveryNMinutes))
	}

	if p.TimeoutCountBeforeMessage < 1 {
		errors = append(errors, fmt.Sprintf("parameters.timeout_count_before_message must be >= 1, got: %d", p.TimeoutCountBeforeMessage))
	}

	if p.StaleFrameTimeout < 0 {
		errors = append(errors, fmt.Sprintf("parameters.stale_frame_timeout must be >= 0, got: %v", p.StaleFrameTimeout))
	}

	// Validate stream settings
	if c.Stream.ReconnectInterval <= 0 {
		errors = append(errors, fmt.Sprintf("stream.reconnect_interval must be > 0, got: %v", c.Stream.ReconnectInterval))
	}

	if c.Stream.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("stream.read_timeout must be > 0, got: %v", c.Stream.ReadTimeout))
	}

	if c.Stream.FailureBackoff < 0 {
		errors = append(errors, fmt.Sprintf("stream.failure_backoff must be >= 0, got: %v", c.Stream.FailureBackoff))
	}

	if c.Stream.UnhealthyAfter < 1 {
		errors = append(errors, fmt.Sprintf("stream.unhealthy_after must be >= 1, got: %d", c.Stream.UnhealthyAfter))
	}

	// Validate model settings
	if c.Model.ServiceURL == "" {
		errors = append(errors, "model.service_url is required")
	} else if u, err := url.Parse(c.Model.ServiceURL); err != nil || u.Scheme == "" || u.Host == "" {
		errors = append(errors, fmt.Sprintf("model.service_url is not a valid URL: %s", c.Model.ServiceURL))
	}

	if c.Model.ImgSize <= 0 {
		errors = append(errors, fmt.Sprintf("model.imgsz must be > 0, got: %d", c.Model.ImgSize))
	}

	if c.Model.Confidence < 0 || c.Model.Confidence > 1 {
		errors = append(errors, fmt.Sprintf("model.confidence must be between 0 and 1, got: %.2f", c.Model.Confidence))
	}

	for _, class := range c.Model.DetectionClasses {
		if class < 0 {
			errors = append(errors, fmt.Sprintf("model.detection_classes must be >= 0, got: %d", class))
		}
	}

	// Validate telegram settings
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			errors = append(errors, "telegram.token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			errors = append(errors, "telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Telegram.BotFrameTimeout < 0 {
		errors = append(errors, fmt.Sprintf("telegram.bot_frame_timeout must be >= 0, got: %.2f", c.Telegram.BotFrameTimeout))
	}

	// Validate storage settings
	if c.Storage.JPEGQuality < 1 || c.Storage.JPEGQuality > 100 {
		errors = append(errors, fmt.Sprintf("storage.jpeg_quality must be between 1 and 100, got: %d", c.Storage.JPEGQuality))
	}

	if c.Storage.RetentionDays < 0 {
		errors = append(errors, fmt.Sprintf("storage.retention_days must be >= 0, got: %d", c.Storage.RetentionDays))
	}

	if c.Storage.MaxDiskUsagePercent <= 0 || c.Storage.MaxDiskUsagePercent > 100 {
		errors = append(errors, fmt.Sprintf("storage.max_disk_usage_percent must be between 0 and 100, got: %.1f", c.Storage.MaxDiskUsagePercent))
	}

	// Validate web settings
	if c.Web.Enabled && (c.Web.Port < 1 || c.Web.Port > 65535) {
		errors = append(errors, fmt.Sprintf("web.port must be between 1 and 65535, got: %d", c.Web.Port))
	}

	// Validate cameras
	if len(c.Cameras) == 0 {
		errors = append(errors, "at least one camera must be configured")
	}

	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		prefix := fmt.Sprintf("cameras[%d]", i)
		if cam.Channel == "" {
			errors = append(errors, prefix+".camera_channel is required")
		}
		if seen[cam.Name] {
			errors = append(errors, fmt.Sprintf("%s.name %q is duplicated", prefix, cam.Name))
		}
		seen[cam.Name] = true

		if z := cam.ZoomIn; z.Enabled && (z.Left < 0 || z.Right < 0 || z.Top < 0 || z.Bottom < 0) {
			errors = append(errors, fmt.Sprintf("%s.zoom_in margins must be >= 0, got: [%d, %d, %d, %d]", prefix, z.Left, z.Right, z.Top, z.Bottom))
		}

		for j, zone := range cam.Zones {
			if err := zone.Validate(); err != nil {
				errors = append(errors, fmt.Sprintf("%s.zones[%d]: %v", prefix, j, err))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// Validate checks that a zone lies in normalized space with ordered corners
func (z Zone) Validate() error {
	for _, v := range z {
		if v < 0 || v > 1 {
			return fmt.Errorf("coordinates must be within [0, 1], got: %v", [4]float64(z))
		}
	}
	if z[0] > z[2] || z[1] > z[3] {
		return fmt.Errorf("expected x1 <= x2 and y1 <= y2, got: %v", [4]float64(z))
	}
	return nil
}
