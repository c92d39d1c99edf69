package auth

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// IsRunningAsRoot checks if the application is running with elevated
// privileges.
func IsRunningAsRoot() bool {
	switch runtime.GOOS {
	case "windows":
		return isWindowsAdmin()
	default:
		return os.Getuid() == 0
	}
}

// isWindowsAdmin checks if running as admin on Windows. `net session`
// fails for non-elevated callers.
func isWindowsAdmin() bool {
	cmd := exec.Command("net", "session")
	err := cmd.Run()
	return err == nil
}

// RequireRoot returns an error if not running as root/admin. Service
// registration and firewall mutation both need elevation, so this is
// checked once at startup.
func RequireRoot() error {
	if !IsRunningAsRoot() {
		switch runtime.GOOS {
		case "windows":
			return fmt.Errorf("administrator privileges required: run from an elevated prompt")
		default:
			return fmt.Errorf("root privileges required: run with sudo")
		}
	}
	return nil
}
