//go:build !linux

package main

import "errors"

func listAttachedDevices() error {
	return errors.New("listing attached devices is only supported on linux")
}
