// Package devicefilter decides which input devices are never captured.
package devicefilter

import (
	"fmt"
	"path"

	"github.com/Hara602/inputSentry/internal/model"
)

// Filter 忽略规则列表，规则为 glob，匹配平台标识或设备名
type Filter struct {
	patterns []string
}

// New validates every pattern up front so a typo fails at startup.
func New(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("ignore pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

// IsIgnored reports whether the device matches an ignore rule, and which one.
// A nil Filter ignores nothing.
func (f *Filter) IsIgnored(info model.DeviceInfo) (bool, string) {
	if f == nil {
		return false, ""
	}
	for _, p := range f.patterns {
		if match(p, info.PlatformID) || match(p, info.Name) {
			return true, p
		}
	}
	return false, ""
}

func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.patterns)
}

func match(pattern, s string) bool {
	if s == "" {
		return false
	}
	ok, _ := path.Match(pattern, s)
	return ok
}
