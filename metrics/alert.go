package metrics

import (
	"sync"
	"time"
)

// AlertEvent describes a burst of failed logins.
type AlertEvent struct {
	Count     int
	Threshold int
	Window    time.Duration
	Timestamp time.Time
}

// AlertFunc is invoked synchronously when a burst is detected.
type AlertFunc func(AlertEvent)

// spikeDetector counts events in a sliding window and fires once per burst.
type spikeDetector struct {
	mu        sync.Mutex
	events    []time.Time
	window    time.Duration
	threshold int
	alertFn   AlertFunc
}

func newSpikeDetector(window time.Duration, threshold int, fn AlertFunc) *spikeDetector {
	return &spikeDetector{window: window, threshold: threshold, alertFn: fn}
}

func (d *spikeDetector) record(now time.Time) {
	if d == nil || d.alertFn == nil || d.threshold <= 0 {
		return
	}
	d.mu.Lock()
	d.events = append(d.events, now)
	d.events = trimWindow(d.events, now, d.window)
	var ev *AlertEvent
	if len(d.events) >= d.threshold {
		ev = &AlertEvent{Count: len(d.events), Threshold: d.threshold, Window: d.window, Timestamp: now}
		// Reset so one burst raises one alert.
		d.events = d.events[:0]
	}
	d.mu.Unlock()
	if ev != nil {
		d.alertFn(*ev)
	}
}

// trimWindow drops entries older than now-window from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
