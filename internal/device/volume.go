// Package device models the board-level controls that sit outside the audio
// pipeline, currently the playback volume.
package device

import (
	"log/slog"
	"sync"
)

// VolumeStep is how far one button press moves the volume.
const VolumeStep = 10

// HAL applies device settings to hardware. Implementations must tolerate
// repeated application of the same value.
type HAL interface {
	SetVolume(percent int) error
}

// Volume tracks playback volume as a percentage and pushes changes to the
// HAL. Values are clamped to [0, 100].
type Volume struct {
	logger *slog.Logger
	hal    HAL

	mu      sync.Mutex
	percent int
}

// NewVolume builds the control at the given initial level, clamped, and
// applies it to the HAL.
func NewVolume(logger *slog.Logger, hal HAL, initial int) (*Volume, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Volume{logger: logger, hal: hal, percent: clamp(initial)}
	if err := hal.SetVolume(v.percent); err != nil {
		return nil, err
	}
	return v, nil
}

// Level returns the current volume percentage.
func (v *Volume) Level() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.percent
}

// Up raises the volume one step and returns the new level.
func (v *Volume) Up() int { return v.adjust(VolumeStep) }

// Down lowers the volume one step and returns the new level.
func (v *Volume) Down() int { return v.adjust(-VolumeStep) }

// Set moves the volume to an absolute level, clamped, and returns the value
// actually applied.
func (v *Volume) Set(percent int) int { return v.apply(clamp(percent)) }

func (v *Volume) adjust(delta int) int {
	v.mu.Lock()
	target := clamp(v.percent + delta)
	v.mu.Unlock()
	return v.apply(target)
}

func (v *Volume) apply(target int) int {
	v.mu.Lock()
	prev := v.percent
	v.percent = target
	v.mu.Unlock()

	if target == prev {
		return target
	}
	if err := v.hal.SetVolume(target); err != nil {
		v.logger.Error("set device volume",
			"level", target,
			"error", err.Error(),
		)
		v.mu.Lock()
		v.percent = prev
		v.mu.Unlock()
		return prev
	}
	v.logger.Info("volume changed", "from", prev, "to", target)
	return target
}

func clamp(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// LogHAL is a HAL placeholder for boards without a programmable codec; it
// records the requested level and nothing else.
type LogHAL struct {
	logger *slog.Logger
}

// NewLogHAL builds the no-op HAL.
func NewLogHAL(logger *slog.Logger) *LogHAL {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHAL{logger: logger}
}

func (h *LogHAL) SetVolume(percent int) error {
	h.logger.Debug("hal volume", "level", percent)
	return nil
}
