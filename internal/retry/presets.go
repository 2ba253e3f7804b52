package retry

import (
	"errors"
	"fmt"
	"time"
)

const (
	PresetDefault = "default"
	PresetQuick   = "quick"
	PresetSlow    = "slow"
)

var (
	// Default retries 3 times, doubling from 1s up to 10s, with jitter
	Default = Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}

	// Quick retries twice, growing by 1.5 from 500ms up to 2s, no jitter
	Quick = Policy{
		MaxAttempts: 2,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Multiplier:  1.5,
		Jitter:      false,
	}

	// Slow retries 5 times, doubling from 2s up to 30s, with jitter
	Slow = Policy{
		MaxAttempts: 5,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}

	presets = map[string]Policy{
		PresetDefault: Default,
		PresetQuick:   Quick,
		PresetSlow:    Slow,
	}
)

var ErrUnknownPreset = errors.New("unknown retry preset")

// Preset returns the named configuration preset
func Preset(name string) (Policy, error) {
	if p, ok := presets[name]; ok {
		return p, nil
	}
	return Policy{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
}
