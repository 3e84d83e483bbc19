package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants, normalizes soft mistakes in place, and
// returns non-fatal warnings.
func Validate(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Record.ServerURI) == "" {
		return nil, fmt.Errorf("record.server_uri must not be empty")
	}
	u, err := url.Parse(cfg.Record.ServerURI)
	if err != nil || u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("record.server_uri must be an http URL, got %q", cfg.Record.ServerURI)
	}
	if cfg.Record.SampleRate <= 0 {
		return nil, fmt.Errorf("record.sample_rate must be > 0")
	}
	if cfg.Record.Bits != 16 {
		return nil, fmt.Errorf("record.bits must be 16")
	}
	if cfg.Record.Channels != 1 && cfg.Record.Channels != 2 {
		return nil, fmt.Errorf("record.channels must be 1 or 2")
	}
	if cfg.Record.BufferSize <= 0 {
		return nil, fmt.Errorf("record.buffer_size must be > 0")
	}
	if cfg.Record.StopTimeout <= 0 {
		return nil, fmt.Errorf("record.stop_timeout must be > 0")
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Audio.Driver))
	if driver != "pulse" && driver != "null" {
		return nil, fmt.Errorf("audio.driver must be one of: pulse, null")
	}
	cfg.Audio.Driver = driver

	if cfg.Playback.Autoplay && strings.TrimSpace(cfg.Playback.URL) == "" {
		warnings = append(warnings, Warning{Message: "playback.autoplay is set but playback.url is empty; autoplay disabled"})
		cfg.Playback.Autoplay = false
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 100 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("playback.volume %d out of range; clamping to [0, 100]", cfg.Playback.Volume)})
		if cfg.Playback.Volume < 0 {
			cfg.Playback.Volume = 0
		} else {
			cfg.Playback.Volume = 100
		}
	}

	if strings.TrimSpace(cfg.Control.ListenAddr) == "" {
		return nil, fmt.Errorf("control.listen_addr must not be empty")
	}

	level := strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		cfg.Log.Level = level
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if format != "json" && format != "text" {
		return nil, fmt.Errorf("log.format must be one of: json, text")
	}
	cfg.Log.Format = format

	return warnings, nil
}
