//go:build !linux

package dispatch

import (
	"errors"
	"time"
)

var errNoPoller = errors.New("dispatch: readiness polling is only implemented on linux")

type poller struct{}

func newPoller() (*poller, error)                   { return nil, errNoPoller }
func (p *poller) add(int) error                     { return errNoPoller }
func (p *poller) remove(int) error                  { return errNoPoller }
func (p *poller) wait(time.Duration) ([]int, error) { return nil, errNoPoller }
func (p *poller) wake() error                       { return errNoPoller }
func (p *poller) close() error                      { return nil }
