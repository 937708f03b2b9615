package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Capabilities 设备能力位
type Capabilities uint8

const (
	CapKeyboard Capabilities = 1 << iota
	CapPointer
	CapTouch
	CapOther
)

var capNames = []struct {
	c    Capabilities
	name string
}{
	{CapKeyboard, "keyboard"},
	{CapPointer, "pointer"},
	{CapTouch, "touch"},
	{CapOther, "other"},
}

func (c Capabilities) Has(o Capabilities) bool { return c&o == o }

// Strings lists the set flags in a fixed order.
func (c Capabilities) Strings() []string {
	var out []string
	for _, n := range capNames {
		if c&n.c != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (c Capabilities) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Strings(), ",")
}

func (c Capabilities) MarshalJSON() ([]byte, error) {
	s := c.Strings()
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

func (c *Capabilities) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*c = 0
	for _, name := range names {
		for _, n := range capNames {
			if n.name == name {
				*c |= n.c
			}
		}
	}
	return nil
}

// Device 已注册的输入设备，跨重连保持同一个 ID
type Device struct {
	ID           string       `json:"id"`
	PlatformID   string       `json:"platform_id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"`
	RetiredAt    *time.Time   `json:"retired_at,omitempty"`
}

func (d Device) Retired() bool { return d.RetiredAt != nil }

// DeviceInfo is what a source knows about a device when it opens it.
type DeviceInfo struct {
	PlatformID   string
	Name         string
	Path         string
	Capabilities Capabilities
	ByID         string
	ByPath       string
}
