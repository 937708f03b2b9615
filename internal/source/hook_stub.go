//go:build !hook || !linux

package source

import (
	"github.com/Hara602/inputSentry/internal/devicefilter"
	"go.uber.org/zap"
)

// built without the hook tag: gohook needs cgo and X11 headers
func newHookBackend(*zap.Logger, *devicefilter.Filter) (Backend, error) {
	return nil, ErrNotCompiled
}
