//go:build !windows && !linux

package firewall

// newPlatformManager creates the platform-specific manager
func newPlatformManager() (Manager, error) {
	return nil, ErrUnsupported
}
