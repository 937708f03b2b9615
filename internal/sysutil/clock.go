package sysutil

import (
	"time"

	"github.com/Hara602/inputSentry/internal/model"
)

var processStart = time.Now()

// NewEpoch 进程启动时调用一次，所有设备时间戳都以它为参考
func NewEpoch() model.Epoch {
	mono := MonotonicNow()
	return model.Epoch{Wall: time.Now(), Mono: mono}
}
