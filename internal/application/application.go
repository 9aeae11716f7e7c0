// Package application holds identity and filesystem conventions shared
// by every command.
package application

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// AppName is the application name used for directories and
	// identification
	AppName = "octoface"

	// Version is the released version string
	Version = "0.3.0"
)

var (
	once   sync.Once
	appDir string
	errDir error
)

// GetApplicationDirectory returns the octoface data directory, where
// the upload cache lives.
// Linux: ~/.config/octoface (via os.UserConfigDir)
// Windows: C:\Users\{username}\AppData\Local\octoface (via os.UserCacheDir)
func GetApplicationDirectory() (string, error) {
	once.Do(lazyLoad)

	return appDir, errDir
}

func lazyLoad() {
	var (
		baseDir string
		err     error
	)

	switch runtime.GOOS {
	case "windows":
		baseDir, err = os.UserCacheDir()
	default:
		baseDir, err = os.UserConfigDir()
	}

	if err != nil {
		errDir = fmt.Errorf("failed to get config directory: %w", err)

		return
	}

	appDir = filepath.Join(baseDir, AppName)
}
