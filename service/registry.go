package service

import (
	"sync"
	"time"

	"smsrelay/models"
)

// DeviceRegistry is the authoritative in-memory view of known devices. It
// is a pure state container: no I/O happens under its lock, and every
// presence transition decision is made here so heartbeats and the periodic
// sweep can never double-report the same transition.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	order   []string // insertion order, for listing
}

func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]*models.Device),
	}
}

// Upsert records a heartbeat: metadata and last-seen are refreshed and the
// device is marked online. The returned flag is true when this call is a
// first registration or an offline→online flip, i.e. exactly when a
// "device connected" notification is due.
func (r *DeviceRegistry) Upsert(hb models.HeartbeatRequest) (models.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().Unix()
	dev, ok := r.devices[hb.UUID]
	if !ok {
		dev = &models.Device{UUID: hb.UUID}
		r.devices[hb.UUID] = dev
		r.order = append(r.order, hb.UUID)
	}

	transitioned := !ok || dev.Status == models.StatusOffline

	dev.Model = hb.Model
	dev.Battery = hb.Battery
	dev.SIM1 = hb.SIM1
	dev.SIM2 = hb.SIM2
	dev.Status = models.StatusOnline
	dev.LastSeen = now

	return *dev, transitioned
}

func (r *DeviceRegistry) Get(uuid string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dev, ok := r.devices[uuid]
	if !ok {
		return models.Device{}, false
	}
	return *dev, true
}

// All returns every registered device in insertion order.
func (r *DeviceRegistry) All() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]models.Device, 0, len(r.order))
	for _, uuid := range r.order {
		devices = append(devices, *r.devices[uuid])
	}
	return devices
}

// Remove deletes a device outright. Only the push transport's explicit
// disconnect uses this; poll-based devices just age out to offline.
func (r *DeviceRegistry) Remove(uuid string) (models.Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[uuid]
	if !ok {
		return models.Device{}, false
	}
	delete(r.devices, uuid)
	for i, u := range r.order {
		if u == uuid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return *dev, true
}

// Bind points a device's notifications at one operator chat instead of the
// admin set. Returns false for an unknown device.
func (r *DeviceRegistry) Bind(uuid string, chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dev, ok := r.devices[uuid]
	if !ok {
		return false
	}
	dev.BoundChat = chatID
	return true
}

// SweepOffline flips every online device whose last heartbeat is older than
// threshold to offline and returns those that transitioned. Holding the
// registry lock for the whole sweep means a heartbeat racing the sweep
// either lands before it (device stays online) or after it (Upsert reports
// the reconnect) — never both, and never neither.
func (r *DeviceRegistry) SweepOffline(threshold time.Duration, now time.Time) []models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []models.Device
	cutoff := now.Add(-threshold).Unix()
	for _, uuid := range r.order {
		dev := r.devices[uuid]
		if dev.Status == models.StatusOnline && dev.LastSeen < cutoff {
			dev.Status = models.StatusOffline
			flipped = append(flipped, *dev)
		}
	}
	return flipped
}
