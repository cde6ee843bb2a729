package telemetry

import "time"

// DefaultScore is the bootstrap impatience score for a device with no
// prior record.
const DefaultScore = 0.5

// Score reduces one completed wait period into an impatience score in
// [0, 1]. It is pure and deterministic: identical inputs always yield the
// identical score, and there is no error path.
func Score(rageClickEvents, totalClicks, tabSwitches int, waitDuration time.Duration) float64 {
	base := 0.3

	if rageClickEvents > 0 {
		base += 0.4
	}

	switch {
	case totalClicks > 20:
		base += 0.2
	case totalClicks > 10:
		base += 0.1
	}

	switch {
	case tabSwitches > 2:
		base += 0.2
	case tabSwitches > 0:
		base += 0.1
	}

	// A long quiet wait reads as patience.
	if waitDuration > 5000*time.Millisecond && totalClicks < 5 {
		base -= 0.2
	}

	return Clamp(base)
}

// ScoreSample applies Score to a collected sample.
func ScoreSample(s Sample) float64 {
	return Score(s.RageClickEvents, s.TotalClicks, s.TabSwitches, s.WaitDuration)
}

// Clamp bounds a score to [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
