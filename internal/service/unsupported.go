//go:build !windows && !linux && !darwin

package service

import (
	"fmt"
	"runtime"
)

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return nil, fmt.Errorf("no service manager available on %s", runtime.GOOS)
}
