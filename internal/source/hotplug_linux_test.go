//go:build linux

package source

import (
	"testing"

	"github.com/Hara602/inputSentry/internal/model"
	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
)

func TestInputUEventFiltering(t *testing.T) {
	cases := []struct {
		name   string
		uevent netlink.UEvent
		kind   model.RawKind
		path   string
		ok     bool
	}{
		{
			name:   "event node added",
			uevent: netlink.UEvent{Action: "add", Env: map[string]string{"SUBSYSTEM": "input", "DEVNAME": "input/event7"}},
			kind:   model.RawAttach, path: "/dev/input/event7", ok: true,
		},
		{
			name:   "event node removed",
			uevent: netlink.UEvent{Action: "remove", Env: map[string]string{"SUBSYSTEM": "input", "DEVNAME": "/dev/input/event7"}},
			kind:   model.RawDetach, path: "/dev/input/event7", ok: true,
		},
		{
			name:   "legacy mouse node",
			uevent: netlink.UEvent{Action: "add", Env: map[string]string{"SUBSYSTEM": "input", "DEVNAME": "input/mouse0"}},
		},
		{
			name:   "parent input device without node",
			uevent: netlink.UEvent{Action: "add", Env: map[string]string{"SUBSYSTEM": "input"}},
		},
		{
			name:   "block device",
			uevent: netlink.UEvent{Action: "add", Env: map[string]string{"SUBSYSTEM": "block", "DEVNAME": "sdb1"}},
		},
		{
			name:   "change action",
			uevent: netlink.UEvent{Action: "change", Env: map[string]string{"SUBSYSTEM": "input", "DEVNAME": "input/event7"}},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw, ok := inputUEvent(c.uevent)
			assert.Equal(t, c.ok, ok)
			if c.ok {
				assert.Equal(t, c.kind, raw.Kind)
				assert.Equal(t, c.path, raw.Path)
			}
		})
	}
}
