package jitter

import "time"

// VoiceActivity is a debounced talking indicator. A loud frame sets it
// and pushes the expiry out by hold.
type VoiceActivity struct {
	threshold float64
	hold      time.Duration
	talking   bool
	until     time.Time
}

// NewVoiceActivity creates an indicator with the given RMS threshold.
func NewVoiceActivity(threshold float64, hold time.Duration) *VoiceActivity {
	return &VoiceActivity{threshold: threshold, hold: hold}
}

// Observe records one frame's loudness. It returns true when the
// indicator changed.
func (v *VoiceActivity) Observe(rms float64, now time.Time) bool {
	if rms > v.threshold {
		v.until = now.Add(v.hold)
		if !v.talking {
			v.talking = true
			return true
		}
		return false
	}
	return v.Expire(now)
}

// Expire clears the indicator once the hold has elapsed. It returns true
// when the indicator changed.
func (v *VoiceActivity) Expire(now time.Time) bool {
	if v.talking && !now.Before(v.until) {
		v.talking = false
		return true
	}
	return false
}

// Talking reports the current state.
func (v *VoiceActivity) Talking() bool { return v.talking }

// SetThreshold updates the threshold and hold for subsequent frames.
func (v *VoiceActivity) SetThreshold(threshold float64, hold time.Duration) {
	v.threshold = threshold
	v.hold = hold
}

// Reset clears the indicator.
func (v *VoiceActivity) Reset() {
	v.talking = false
	v.until = time.Time{}
}
