//go:build !linux

package source

import (
	"github.com/Hara602/inputSentry/internal/devicefilter"
	"go.uber.org/zap"
)

func newEvdevBackend(*zap.Logger, *devicefilter.Filter) (Backend, error) {
	return nil, ErrUnsupported
}
