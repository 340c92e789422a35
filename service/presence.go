package service

import (
	"log"
	"time"

	"smsrelay/models"
)

// PresenceMonitor periodically reclassifies devices from heartbeat age.
// Transition detection lives in the registry; the monitor only drives the
// clock and forwards devices that flipped to the offline callback, so each
// online→offline transition is reported exactly once.
type PresenceMonitor struct {
	registry  *DeviceRegistry
	threshold time.Duration
	period    time.Duration
	onOffline func(models.Device)
	done      chan struct{}
	stopped   chan struct{}
}

func NewPresenceMonitor(registry *DeviceRegistry, threshold, period time.Duration, onOffline func(models.Device)) *PresenceMonitor {
	return &PresenceMonitor{
		registry:  registry,
		threshold: threshold,
		period:    period,
		onOffline: onOffline,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Run sweeps until Stop is called. Each tick applies one full sweep; a
// sweep in progress finishes before shutdown completes, so presence state
// is never half-applied.
func (m *PresenceMonitor) Run() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(time.Now())
		case <-m.done:
			return
		}
	}
}

// Stop halts the sweep loop and waits for it to finish.
func (m *PresenceMonitor) Stop() {
	close(m.done)
	<-m.stopped
}

func (m *PresenceMonitor) sweep(now time.Time) {
	flipped := m.registry.SweepOffline(m.threshold, now)
	for _, dev := range flipped {
		log.Printf("Device %s (%s) went offline", dev.UUID, dev.Model)
		if m.onOffline != nil {
			m.onOffline(dev)
		}
	}
}
