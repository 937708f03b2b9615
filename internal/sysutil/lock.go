package sysutil

import (
	"errors"
	"fmt"

	"github.com/alexflint/go-filemutex"
)

var ErrAlreadyRunning = errors.New("another recorder holds the storage lock")

// InstanceLock 防止两个进程写同一个数据库
type InstanceLock struct {
	path string
	mu   *filemutex.FileMutex
}

func AcquireLock(path string) (*InstanceLock, error) {
	mu, err := filemutex.New(path)
	if err != nil {
		return nil, fmt.Errorf("create lock file %s: %w", path, err)
	}
	if err := mu.TryLock(); err != nil {
		mu.Close()
		if errors.Is(err, filemutex.AlreadyLocked) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	return &InstanceLock{path: path, mu: mu}, nil
}

func (l *InstanceLock) Release() error {
	if err := l.mu.Unlock(); err != nil {
		l.mu.Close()
		return err
	}
	return l.mu.Close()
}
