// Package registry tracks known input devices and their connect/disconnect lifecycle.
//
// Registry has a single writer: the dispatcher goroutine. It is not safe for
// concurrent use and takes no locks; other goroutines only ever see Device
// values copied out of it.
package registry

import (
	"time"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/google/uuid"
)

// State 描述 Connect 对注册表的影响
type State uint8

const (
	StateCreated State = iota + 1
	StateReactivated
	StateActive
)

type Registry struct {
	devices map[string]*model.Device
	newID   func() string
}

func New() *Registry {
	return &Registry{
		devices: make(map[string]*model.Device),
		newID:   uuid.NewString,
	}
}

// Seed loads persisted devices so ids stay stable across restarts.
func (r *Registry) Seed(devices []model.Device) {
	for _, d := range devices {
		d := d
		r.devices[d.PlatformID] = &d
	}
}

// Connect registers a device, or reactivates a retired one with the same platform id.
func (r *Registry) Connect(info model.DeviceInfo, at time.Time) (model.Device, State) {
	d, ok := r.devices[info.PlatformID]
	if !ok {
		d = &model.Device{
			ID:           r.newID(),
			PlatformID:   info.PlatformID,
			Name:         info.Name,
			Capabilities: info.Capabilities,
			FirstSeen:    at,
			LastSeen:     at,
		}
		r.devices[info.PlatformID] = d
		return *d, StateCreated
	}

	state := StateActive
	if d.RetiredAt != nil {
		d.RetiredAt = nil
		state = StateReactivated
	}
	if info.Name != "" {
		d.Name = info.Name
	}
	d.Capabilities |= info.Capabilities
	if at.After(d.LastSeen) {
		d.LastSeen = at
	}
	return *d, state
}

// Touch records activity and returns the device. Unknown platform ids are
// created on first observed event with only the id known.
// The returned time is at clamped so it never goes backwards for the device.
func (r *Registry) Touch(platformID string, at time.Time) (model.Device, time.Time) {
	d, ok := r.devices[platformID]
	if !ok {
		dev, _ := r.Connect(model.DeviceInfo{PlatformID: platformID, Name: platformID}, at)
		return dev, at
	}
	if at.Before(d.LastSeen) {
		at = d.LastSeen
	}
	d.LastSeen = at
	return *d, at
}

// Retire soft-retires a device. It returns false for unknown ids.
func (r *Registry) Retire(platformID string, at time.Time) (model.Device, bool) {
	d, ok := r.devices[platformID]
	if !ok {
		return model.Device{}, false
	}
	if at.Before(d.LastSeen) {
		at = d.LastSeen
	}
	d.LastSeen = at
	retired := at
	d.RetiredAt = &retired
	return *d, true
}

// Counts returns the number of active and retired devices.
func (r *Registry) Counts() (active, retired int) {
	for _, d := range r.devices {
		if d.RetiredAt != nil {
			retired++
		} else {
			active++
		}
	}
	return active, retired
}

// Len is the number of known devices, retired ones included.
func (r *Registry) Len() int { return len(r.devices) }
