package activity

import "time"

// IdleDetector classifies samples as idle or active. The only state it keeps
// is the previous classification, used for the hysteresis band in both
// directions.
type IdleDetector struct {
	threshold  time.Duration
	hysteresis time.Duration
	prevIdle   bool
}

func NewIdleDetector(threshold, hysteresis time.Duration) *IdleDetector {
	return &IdleDetector{
		threshold:  threshold,
		hysteresis: hysteresis,
	}
}

// Classify stamps s with its idle state and remembers the result.
func (d *IdleDetector) Classify(s Sample) ClassifiedSample {
	idleFor := s.IdleFor()
	idle := determineIdle(d.prevIdle, idleFor, d.threshold, d.hysteresis)
	tentative := idle && !d.prevIdle && idleFor < d.threshold+d.hysteresis
	d.prevIdle = idle
	return ClassifiedSample{Sample: s, Idle: idle, Tentative: tentative}
}

// Reset forgets the previous classification, e.g. after a sleep gap.
func (d *IdleDetector) Reset() {
	d.prevIdle = false
}

// determineIdle applies the threshold while active and the hysteresis while
// idle: leaving idle requires input strictly newer than the hysteresis window.
func determineIdle(prevIdle bool, idleFor, threshold, hysteresis time.Duration) bool {
	if !prevIdle {
		return idleFor >= threshold
	}
	return idleFor >= hysteresis
}
