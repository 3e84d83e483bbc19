package config

import "time"

// Default returns the canonical runtime configuration used when no file is
// present.
func Default() Config {
	return Config{
		Playback: PlaybackConfig{
			URL:      "",
			Autoplay: false,
			Volume:   60,
		},
		Record: RecordConfig{
			ServerURI:   "http://127.0.0.1:8000/api/audio",
			SampleRate:  16000,
			Bits:        16,
			Channels:    1,
			BufferSize:  16 * 1024,
			StopTimeout: 8 * time.Second,
		},
		Audio: AudioConfig{
			Driver:   "pulse",
			Input:    "default",
			Fallback: "default",
		},
		Control: ControlConfig{
			ListenAddr: "127.0.0.1:8090",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
