//go:build windows

package server

// getPlatformAbsPath returns a valid absolute path for Windows systems
func getPlatformAbsPath() string {
	return `C:\tmp\x`
}
