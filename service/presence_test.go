package service

import (
	"sync/atomic"
	"testing"
	"time"

	"smsrelay/models"
)

func TestMonitorFlipsStaleDevices(t *testing.T) {
	r := NewDeviceRegistry()
	r.Upsert(models.HeartbeatRequest{UUID: "stale", Model: "Old"})
	r.Upsert(models.HeartbeatRequest{UUID: "fresh", Model: "New"})
	r.devices["stale"].LastSeen = time.Now().Add(-80 * time.Second).Unix()

	var offline []string
	m := NewPresenceMonitor(r, 70*time.Second, time.Minute, func(dev models.Device) {
		offline = append(offline, dev.UUID)
	})

	m.sweep(time.Now())
	if len(offline) != 1 || offline[0] != "stale" {
		t.Fatalf("expected only the stale device to flip, got %v", offline)
	}

	dev, _ := r.Get("fresh")
	if dev.Status != models.StatusOnline {
		t.Fatal("fresh device must stay online")
	}

	// Reconnect, then let it go stale again: exactly one more emission.
	r.Upsert(models.HeartbeatRequest{UUID: "stale", Model: "Old"})
	r.devices["stale"].LastSeen = time.Now().Add(-80 * time.Second).Unix()
	m.sweep(time.Now())
	if len(offline) != 2 {
		t.Fatalf("expected a second offline emission after reconnect, got %v", offline)
	}
}

func TestMonitorStops(t *testing.T) {
	r := NewDeviceRegistry()
	var sweeps atomic.Int32
	r.Upsert(models.HeartbeatRequest{UUID: "d1"})
	r.devices["d1"].LastSeen = 0

	m := NewPresenceMonitor(r, time.Nanosecond, 5*time.Millisecond, func(models.Device) {
		sweeps.Add(1)
	})
	go m.Run()

	time.Sleep(20 * time.Millisecond)
	m.Stop()

	if sweeps.Load() != 1 {
		t.Fatalf("expected exactly one offline emission before stop, got %d", sweeps.Load())
	}
	// Stop must have fully halted the loop.
	r.Upsert(models.HeartbeatRequest{UUID: "d1"})
	r.devices["d1"].LastSeen = 0
	time.Sleep(20 * time.Millisecond)
	if sweeps.Load() != 1 {
		t.Fatal("monitor kept sweeping after Stop")
	}
}
