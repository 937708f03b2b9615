//go:build !linux

package sysutil

import "time"

func MonotonicNow() time.Duration { return time.Since(processStart) }
