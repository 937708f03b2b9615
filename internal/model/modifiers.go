package model

import "encoding/json"

// Modifiers 键盘修饰键状态
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCapsLock
	ModControl
	ModAlt
	ModNumLock
	ModSuper
	ModAltGr
)

var modNames = []struct {
	m    Modifiers
	name string
}{
	{ModShift, "Shift"},
	{ModCapsLock, "CapsLock"},
	{ModControl, "Control"},
	{ModAlt, "Alt"},
	{ModNumLock, "NumLock"},
	{ModSuper, "Super"},
	{ModAltGr, "AltGr"},
}

func (m Modifiers) Strings() []string {
	var out []string
	for _, n := range modNames {
		if m&n.m != 0 {
			out = append(out, n.name)
		}
	}
	return out
}

func (m Modifiers) MarshalJSON() ([]byte, error) {
	s := m.Strings()
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

func (m *Modifiers) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*m = 0
	for _, name := range names {
		for _, n := range modNames {
			if n.name == name {
				*m |= n.m
			}
		}
	}
	return nil
}
