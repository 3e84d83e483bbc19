// Package config resolves, parses, validates, and defaults korvod
// configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by korvod.
type Config struct {
	Playback PlaybackConfig `yaml:"playback"`
	Record   RecordConfig   `yaml:"record"`
	Audio    AudioConfig    `yaml:"audio"`
	Control  ControlConfig  `yaml:"control"`
	Log      LogConfig      `yaml:"log"`
}

// PlaybackConfig controls the MP3 playback pipeline.
type PlaybackConfig struct {
	URL      string `yaml:"url"`
	Autoplay bool   `yaml:"autoplay"`
	Volume   int    `yaml:"volume"`
}

// RecordConfig controls the capture pipeline and its upload target.
type RecordConfig struct {
	ServerURI   string        `yaml:"server_uri"`
	SampleRate  int           `yaml:"sample_rate"`
	Bits        int           `yaml:"bits"`
	Channels    int           `yaml:"channels"`
	BufferSize  int           `yaml:"buffer_size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// AudioConfig selects the audio driver and input-source preferences.
type AudioConfig struct {
	Driver   string `yaml:"driver"`
	Input    string `yaml:"input"`
	Fallback string `yaml:"fallback"`
}

// ControlConfig controls the remote button feed listener and the local
// control socket. An empty Socket falls back to the user runtime directory.
type ControlConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Socket     string `yaml:"socket"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Warning is a non-fatal configuration finding surfaced at startup.
type Warning struct {
	Message string
}
